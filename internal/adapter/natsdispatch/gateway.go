// Package natsdispatch implements the dispatch gateway port over NATS core
// request/reply. Each participant listens on dispatch.participant.{id}; a
// send is a single round-trip bounded by the caller's timeout.
package natsdispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/port/dispatch"
	"github.com/Strob0t/Hivemind/internal/port/messagequeue"
)

// Gateway implements dispatch.Gateway using NATS request/reply.
type Gateway struct {
	nc *nats.Conn
}

// New creates a NATS-backed dispatch gateway.
func New(nc *nats.Conn) *Gateway {
	return &Gateway{nc: nc}
}

// errorReply is the wire shape a participant uses to signal an explicit error.
type errorReply struct {
	Error string `json:"error,omitempty"`
}

// Send dispatches a request to the participant's subject and waits for the
// reply. Context cancellation and the timeout both abort the round-trip.
func (g *Gateway) Send(ctx context.Context, participantID string, req dispatch.Request, timeout time.Duration) (*dispatch.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	subject := messagequeue.SubjectDispatchRequest + "." + participantID
	msg, err := g.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("dispatch to %s: %w", participantID, domain.ErrDispatchTimeout)
		case errors.Is(err, context.Canceled):
			return nil, err
		case errors.Is(err, nats.ErrNoResponders):
			return nil, fmt.Errorf("dispatch to %s: no responder: %w", participantID, domain.ErrDispatchError)
		default:
			return nil, fmt.Errorf("dispatch to %s: %w", participantID, domain.ErrDispatchError)
		}
	}

	var eresp errorReply
	if err := json.Unmarshal(msg.Data, &eresp); err == nil && eresp.Error != "" {
		return nil, fmt.Errorf("dispatch to %s: %s: %w", participantID, eresp.Error, domain.ErrDispatchError)
	}

	var resp dispatch.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("dispatch to %s: decode reply: %w", participantID, domain.ErrDispatchError)
	}
	return &resp, nil
}
