package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// --- Work items ---

const workItemColumns = `id, kind, title, description, status, COALESCE(parent_id, ''), depends_on, tags, assigned_to, confidence, reason, version, created_at, updated_at`

func scanWorkItem(row scannable) (workitem.WorkItem, error) {
	var w workitem.WorkItem
	err := row.Scan(&w.ID, &w.Kind, &w.Title, &w.Description, &w.Status, &w.ParentID,
		&w.DependsOn, &w.Tags, &w.AssignedTo, &w.Confidence, &w.Reason, &w.Version,
		&w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *Store) InsertWorkItem(ctx context.Context, item *workitem.WorkItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO work_items (id, kind, title, description, status, parent_id, depends_on, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.Kind, item.Title, item.Description, item.Status,
		nullIfEmpty(item.ParentID), textArray(item.DependsOn), textArray(item.Tags))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("insert work item %s: %w", item.ID, domain.ErrDuplicateID)
		}
		return fmt.Errorf("insert work item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) GetWorkItem(ctx context.Context, id string) (*workitem.WorkItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = $1`, id)

	w, err := scanWorkItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get work item %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get work item %s: %w", id, err)
	}
	return &w, nil
}

func (s *Store) ListWorkItems(ctx context.Context, filter workitem.Filter) ([]workitem.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE 1=1`
	args := []any{}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ParentID != "" {
		args = append(args, filter.ParentID)
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		query += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var items []workitem.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// SwapStatus performs a compare-and-set transition: the UPDATE only matches
// when the current status equals the expected one, so concurrent transitions
// on the same item serialize and the loser gets domain.ErrConflict.
func (s *Store) SwapStatus(ctx context.Context, id string, from, to workitem.Status, upd workitem.StatusUpdate) (*workitem.WorkItem, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE work_items
		 SET status = $3,
		     assigned_to = COALESCE($4, assigned_to),
		     confidence = COALESCE($5, confidence),
		     reason = CASE WHEN $6 <> '' THEN $6 ELSE reason END,
		     version = version + 1,
		     updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+workItemColumns,
		id, from, to, upd.AssignedTo, upd.Confidence, upd.Reason)

	w, err := scanWorkItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing item from a lost race.
			if _, getErr := s.GetWorkItem(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("swap status of %s from %s: %w", id, from, domain.ErrConflict)
		}
		return nil, fmt.Errorf("swap status of %s: %w", id, err)
	}
	return &w, nil
}

// --- Participants ---

const participantColumns = `id, domain_tags, role, weight, health, disabled, created_at, updated_at`

func scanParticipant(row scannable) (participant.Participant, error) {
	var p participant.Participant
	err := row.Scan(&p.ID, &p.DomainTags, &p.Role, &p.Weight, &p.Health, &p.Disabled,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) SaveParticipant(ctx context.Context, p *participant.Participant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (id, domain_tags, role, weight, health, disabled)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		     domain_tags = EXCLUDED.domain_tags,
		     role = EXCLUDED.role,
		     weight = EXCLUDED.weight,
		     health = EXCLUDED.health,
		     disabled = EXCLUDED.disabled,
		     updated_at = now()`,
		p.ID, textArray(p.DomainTags), p.Role, p.Weight, p.Health, p.Disabled)
	if err != nil {
		return fmt.Errorf("save participant %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (*participant.Participant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)

	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get participant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get participant %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListParticipants(ctx context.Context) ([]participant.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []participant.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// UpdateParticipant applies mutate inside a transaction holding a row lock,
// so concurrent weight adjustments never lose updates.
func (s *Store) UpdateParticipant(ctx context.Context, id string, mutate func(*participant.Participant) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("update participant %s: begin: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1 FOR UPDATE`, id)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update participant %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("update participant %s: %w", id, err)
	}

	if err := mutate(&p); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE participants
		 SET domain_tags = $2, role = $3, weight = $4, health = $5, disabled = $6, updated_at = now()
		 WHERE id = $1`,
		id, textArray(p.DomainTags), p.Role, p.Weight, p.Health, p.Disabled)
	if err != nil {
		return fmt.Errorf("update participant %s: %w", id, err)
	}

	return tx.Commit(ctx)
}

func (s *Store) CountOpenItems(ctx context.Context, participantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM work_items
		 WHERE assigned_to = $1 AND status NOT IN ('done', 'failed', 'cancelled')`,
		participantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open items of %s: %w", participantID, err)
	}
	return n, nil
}

// --- Decisions ---

func (s *Store) InsertDecision(ctx context.Context, d *decision.Decision) error {
	proposals, err := json.Marshal(orEmpty(d.Proposals))
	if err != nil {
		return fmt.Errorf("marshal proposals: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, work_item_id, proposals, outcome, agreement_score, quorum_met, accepted, source, justification, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.WorkItemID, proposals, d.Outcome, d.AgreementScore,
		d.QuorumMet, d.Accepted, d.Source, d.Justification, d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("insert decision %s: %w", d.ID, domain.ErrDuplicateID)
		}
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) ListDecisionsByWorkItem(ctx context.Context, workItemID string) ([]decision.Decision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, work_item_id, proposals, outcome, agreement_score, quorum_met, accepted, source, justification, created_at
		 FROM decisions WHERE work_item_id = $1 ORDER BY created_at`, workItemID)
	if err != nil {
		return nil, fmt.Errorf("list decisions of %s: %w", workItemID, err)
	}
	defer rows.Close()

	var decisions []decision.Decision
	for rows.Next() {
		var d decision.Decision
		var proposals []byte
		if err := rows.Scan(&d.ID, &d.WorkItemID, &proposals, &d.Outcome, &d.AgreementScore,
			&d.QuorumMet, &d.Accepted, &d.Source, &d.Justification, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal(proposals, &d.Proposals); err != nil {
			return nil, fmt.Errorf("unmarshal proposals of %s: %w", d.ID, err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// --- Helpers ---

// nullIfEmpty returns nil for empty strings (for nullable FK columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// textArray converts a string slice to a pgx-compatible text array.
// nil slices become empty arrays to avoid SQL NULL.
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
