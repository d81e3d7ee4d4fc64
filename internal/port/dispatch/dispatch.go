// Package dispatch defines the gateway port to external planners and
// executors. The engine does not know whether a send is an HTTP call, an
// in-process function, or a queue round-trip.
package dispatch

import (
	"context"
	"encoding/json"
	"time"
)

// Request is the payload sent to a participant.
type Request struct {
	WorkItemID  string   `json:"work_item_id"`
	Kind        string   `json:"kind"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
}

// Response is a participant's answer to a dispatch request.
type Response struct {
	Value      string          `json:"value"`
	Confidence float64         `json:"confidence"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// Gateway is the single abstracted boundary call to reach a participant.
// Send blocks until the participant answers, the timeout elapses, or ctx is
// cancelled. Implementations must honor ctx cancellation.
type Gateway interface {
	Send(ctx context.Context, participantID string, req Request, timeout time.Duration) (*Response, error)
}
