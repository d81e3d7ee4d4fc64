// Package localdispatch implements the dispatch gateway for in-process
// participants. It backs NATS-less deployments and embedded use, where
// participant handlers are registered directly on the gateway.
package localdispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/port/dispatch"
)

// HandlerFunc answers a dispatch request on behalf of one participant.
type HandlerFunc func(ctx context.Context, req dispatch.Request) (*dispatch.Response, error)

// Gateway routes dispatch requests to registered in-process handlers.
type Gateway struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates an empty Gateway.
func New() *Gateway {
	return &Gateway{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a participant id, replacing any previous one.
func (g *Gateway) Register(participantID string, fn HandlerFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[participantID] = fn
}

// Unregister removes a participant's handler.
func (g *Gateway) Unregister(participantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.handlers, participantID)
}

// Send invokes the participant's handler under the timeout. Unregistered
// participants fail with ErrDispatchError; a handler that outlives the
// timeout fails with ErrDispatchTimeout.
func (g *Gateway) Send(ctx context.Context, participantID string, req dispatch.Request, timeout time.Duration) (*dispatch.Response, error) {
	g.mu.RLock()
	fn, ok := g.handlers[participantID]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("participant %s not registered: %w", participantID, domain.ErrDispatchError)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp *dispatch.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := fn(ctx, req)
		ch <- result{resp: resp, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("participant %s: %v: %w", participantID, r.err, domain.ErrDispatchError)
		}
		return r.resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("participant %s: %w", participantID, domain.ErrDispatchTimeout)
	}
}
