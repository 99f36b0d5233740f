package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The full event
// is kept as JSONB; the indexed columns only serve filtering.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts events in one batch. Events already stored are skipped, so
// replaying a batch after a partial failure is safe.
func (s *EventStore) Append(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	const query = `
		INSERT INTO engine_events (seq, id, type, token, account, order_id, payload, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (seq) DO NOTHING`

	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("postgres: marshal event %d: %w", ev.Seq, err)
		}
		var orderID *int64
		if ev.OrderID != 0 {
			v := int64(ev.OrderID)
			orderID = &v
		}
		batch.Queue(query,
			int64(ev.Seq), ev.ID, string(ev.Type),
			addressOrNil(ev.Token), addressOrNil(ev.Account),
			orderID, payload, ev.At,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append events: %w", err)
		}
	}
	return nil
}

// List returns events in sequence order.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	q := newQuery(`SELECT payload FROM engine_events WHERE seq > $1`, int64(opts.AfterSeq))
	q.timeRange("at", opts)
	q.page("seq ASC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest stored sequence, 0 when empty.
func (s *EventStore) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM engine_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("postgres: last event seq: %w", err)
	}
	return uint64(seq), nil
}

func addressOrNil(a common.Address) *string {
	if a == (common.Address{}) {
		return nil
	}
	v := a.Hex()
	return &v
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
