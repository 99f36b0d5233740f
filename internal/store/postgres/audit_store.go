package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// AuditStore records privileged engine calls (owner changes, oracle
// assignment, credits, archive uploads) in audit_log.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends an entry. The "caller" detail, when present, is also stored in
// the indexed actor column.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail for %s: %w", event, err)
	}
	const stmt = `INSERT INTO audit_log (event, actor, detail) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, stmt, event, actorOf(detail), payload); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first, restricted to opts.Actor when set.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	q := newQuery(`SELECT id, event, actor, detail, created_at FROM audit_log WHERE TRUE`)
	if opts.Actor != "" {
		q.where("actor = $%d", opts.Actor)
	}
	q.timeRange("created_at", opts)
	q.page("id DESC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e       domain.AuditEntry
		actor   *string
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &actor, &payload, &e.CreatedAt); err != nil {
		return e, err
	}
	if actor != nil {
		e.Actor = *actor
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Detail); err != nil {
			return e, fmt.Errorf("decode audit %d detail: %w", e.ID, err)
		}
	}
	return e, nil
}

// actorOf returns detail["caller"] as a string, or nil.
func actorOf(detail map[string]any) *string {
	if c, ok := detail["caller"].(string); ok && c != "" {
		return &c
	}
	return nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
