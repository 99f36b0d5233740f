package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Only the
// newest Keep snapshots are retained.
type SnapshotStore struct {
	pool *pgxpool.Pool
	keep int
}

// NewSnapshotStore creates a SnapshotStore keeping the newest keep rows;
// keep <= 0 keeps everything.
func NewSnapshotStore(pool *pgxpool.Pool, keep int) *SnapshotStore {
	return &SnapshotStore{pool: pool, keep: keep}
}

// Save upserts snap keyed by its sequence and prunes old rows.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	engineJSON, err := json.Marshal(snap.Engine)
	if err != nil {
		return fmt.Errorf("postgres: marshal engine snapshot: %w", err)
	}
	ledgerJSON, err := json.Marshal(snap.Ledger)
	if err != nil {
		return fmt.Errorf("postgres: marshal ledger snapshot: %w", err)
	}

	const query = `
		INSERT INTO engine_snapshots (seq, taken_at, engine, ledger)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (seq) DO UPDATE
		SET taken_at = EXCLUDED.taken_at, engine = EXCLUDED.engine, ledger = EXCLUDED.ledger`
	if _, err := s.pool.Exec(ctx, query, int64(snap.Seq), snap.TakenAt, engineJSON, ledgerJSON); err != nil {
		return fmt.Errorf("postgres: save snapshot %d: %w", snap.Seq, err)
	}

	if s.keep > 0 {
		const prune = `
			DELETE FROM engine_snapshots
			WHERE seq < (SELECT MIN(seq) FROM (
				SELECT seq FROM engine_snapshots ORDER BY seq DESC LIMIT $1
			) newest)`
		if _, err := s.pool.Exec(ctx, prune, s.keep); err != nil {
			return fmt.Errorf("postgres: prune snapshots: %w", err)
		}
	}
	return nil
}

// Latest returns the snapshot with the highest sequence.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.Snapshot, error) {
	const query = `
		SELECT seq, taken_at, engine, ledger
		FROM engine_snapshots ORDER BY seq DESC LIMIT 1`

	var (
		snap       domain.Snapshot
		seq        int64
		engineJSON []byte
		ledgerJSON []byte
	)
	err := s.pool.QueryRow(ctx, query).Scan(&seq, &snap.TakenAt, &engineJSON, &ledgerJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("postgres: latest snapshot: %w", err)
	}
	snap.Seq = uint64(seq)
	if err := json.Unmarshal(engineJSON, &snap.Engine); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: unmarshal engine snapshot: %w", err)
	}
	if err := json.Unmarshal(ledgerJSON, &snap.Ledger); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: unmarshal ledger snapshot: %w", err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
