package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/Strob0t/Hivemind/internal/domain/audit"
)

// AuditLog implements auditlog.Log in memory (append-only).
type AuditLog struct {
	mu      sync.RWMutex
	entries []audit.Entry
	now     func() time.Time // for testing
}

// NewAuditLog creates an empty in-memory audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{now: time.Now}
}

// Append adds an entry to the log. Entries are never mutated afterwards.
func (l *AuditLog) Append(_ context.Context, e *audit.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *e
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = l.now()
	}
	l.entries = append(l.entries, cp)
	return nil
}

// Query returns entries matching the filter in append order.
func (l *AuditLog) Query(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []audit.Entry
	for i := range l.entries {
		e := l.entries[i]
		if filter.WorkItemID != "" && e.WorkItemID != filter.WorkItemID {
			continue
		}
		if filter.ParticipantID != "" && e.ParticipantID != filter.ParticipantID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.After != nil && !e.CreatedAt.After(*filter.After) {
			continue
		}
		if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns the number of entries in the log.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
