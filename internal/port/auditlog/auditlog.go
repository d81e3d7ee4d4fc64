// Package auditlog defines the port interface for the append-only audit log.
package auditlog

import (
	"context"

	"github.com/Strob0t/Hivemind/internal/domain/audit"
)

// Log is the port interface for appending and querying audit entries.
// Implementations must never mutate or delete an entry once appended.
type Log interface {
	// Append persists a new entry to the log.
	Append(ctx context.Context, e *audit.Entry) error

	// Query returns entries matching the filter, ordered by creation time ascending.
	Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}
