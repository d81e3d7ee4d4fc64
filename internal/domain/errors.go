// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrDuplicateID indicates an insert with an id that already exists.
var ErrDuplicateID = errors.New("duplicate id")

// ErrInvalidTransition indicates a work item status transition that is not in
// the legal transition table, or one attempted against a stale current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrDependencyCycle indicates an insert that would make the dependency graph cyclic.
var ErrDependencyCycle = errors.New("dependency cycle")

// ErrDependencyNotSatisfied indicates a transition out of pending/blocked while
// at least one dependency is not done.
var ErrDependencyNotSatisfied = errors.New("dependency not satisfied")

// ErrNoCapableParticipant indicates no registered participant scored above the
// routing floor for a work item.
var ErrNoCapableParticipant = errors.New("no capable participant")

// ErrParticipantBusy indicates a deregistration attempt while open work items
// still reference the participant.
var ErrParticipantBusy = errors.New("participant has open work items")

// ErrNoConsensus indicates the weighted agreement score fell below the
// consensus threshold.
var ErrNoConsensus = errors.New("no consensus reached")

// ErrDispatchTimeout indicates a participant did not respond within the
// dispatch timeout.
var ErrDispatchTimeout = errors.New("dispatch timeout")

// ErrDispatchError indicates a participant returned an explicit error.
var ErrDispatchError = errors.New("dispatch error")
