package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Hivemind/internal/domain/audit"
)

// AuditLog implements auditlog.Log using PostgreSQL. Entries are insert-only;
// there is no update or delete path.
type AuditLog struct {
	pool *pgxpool.Pool
}

// NewAuditLog creates an AuditLog backed by the given connection pool.
func NewAuditLog(pool *pgxpool.Pool) *AuditLog {
	return &AuditLog{pool: pool}
}

func (l *AuditLog) Append(ctx context.Context, e *audit.Entry) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, work_item_id, participant_id, decision_id, action, source, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.WorkItemID, e.ParticipantID, e.DecisionID, e.Action, e.Source, nullIfEmptyBytes(e.Details))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (l *AuditLog) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	query := `SELECT id, work_item_id, participant_id, decision_id, action, source, details, created_at
	          FROM audit_entries WHERE 1=1`
	args := []any{}
	if filter.WorkItemID != "" {
		args = append(args, filter.WorkItemID)
		query += fmt.Sprintf(" AND work_item_id = $%d", len(args))
	}
	if filter.ParticipantID != "" {
		args = append(args, filter.ParticipantID)
		query += fmt.Sprintf(" AND participant_id = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.After != nil {
		args = append(args, *filter.After)
		query += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	if filter.Before != nil {
		args = append(args, *filter.Before)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.WorkItemID, &e.ParticipantID, &e.DecisionID,
			&e.Action, &e.Source, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// nullIfEmptyBytes returns nil for empty JSON so the column stores SQL NULL.
func nullIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
