package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// OrderStore implements domain.OrderHistoryStore using PostgreSQL. Amounts
// are stored as NUMERIC(78,0) fixed point integers.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Apply upserts the order carried by each order event. A row only moves
// forward: events older than the stored last_seq are ignored.
func (s *OrderStore) Apply(ctx context.Context, events []domain.Event) error {
	const query = `
		INSERT INTO orders (
			id, token, side, maker, price, principal, pending,
			status, last_seq, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric,
			$8, $9, $10, $11
		)
		ON CONFLICT (id) DO UPDATE SET
			principal = EXCLUDED.principal,
			pending = EXCLUDED.pending,
			status = EXCLUDED.status,
			last_seq = EXCLUDED.last_seq,
			updated_at = EXCLUDED.updated_at
		WHERE orders.last_seq < EXCLUDED.last_seq`

	batch := &pgx.Batch{}
	for _, ev := range events {
		status, ok := ev.OrderStatus()
		if !ok {
			continue
		}
		o := ev.Order
		batch.Queue(query,
			int64(o.ID), o.Token.Hex(), string(o.Side), o.Maker.Hex(),
			o.Price.String(), o.Principal.String(), o.Pending.String(),
			string(status), int64(ev.Seq), o.CreatedAt, ev.At,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: apply order events: %w", err)
		}
	}
	return nil
}

const orderColumns = `id, token, side, maker, price::text, principal::text, pending::text, status, created_at, updated_at`

// GetByID returns the latest record of order id.
func (s *OrderStore) GetByID(ctx context.Context, id uint64) (domain.OrderRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, int64(id))
	rec, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrderRecord{}, domain.ErrNotFound
		}
		return domain.OrderRecord{}, fmt.Errorf("postgres: get order %d: %w", id, err)
	}
	return rec, nil
}

// ListByMaker returns the orders of maker, newest first.
func (s *OrderStore) ListByMaker(ctx context.Context, maker string, opts domain.ListOpts) ([]domain.OrderRecord, error) {
	if !common.IsHexAddress(maker) {
		return nil, fmt.Errorf("postgres: list orders: invalid maker %q", maker)
	}
	q := newQuery(`SELECT `+orderColumns+` FROM orders WHERE maker = $1`, common.HexToAddress(maker).Hex())
	q.timeRange("created_at", opts)
	q.page("created_at DESC, id DESC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.OrderRecord, error) {
	var (
		rec                       domain.OrderRecord
		id                        int64
		token, side, maker        string
		price, principal, pending string
		status                    string
		createdAt, updatedAt      time.Time
	)
	if err := row.Scan(&id, &token, &side, &maker, &price, &principal, &pending, &status, &createdAt, &updatedAt); err != nil {
		return domain.OrderRecord{}, err
	}
	amounts := make([]*num.Uint, 3)
	for i, s := range []string{price, principal, pending} {
		v, err := num.UintFromString(strings.TrimSpace(s))
		if err != nil {
			return domain.OrderRecord{}, err
		}
		amounts[i] = v
	}
	rec.Order = domain.Order{
		ID:        uint64(id),
		Token:     common.HexToAddress(token),
		Side:      domain.Side(side),
		Price:     amounts[0],
		Principal: amounts[1],
		Pending:   amounts[2],
		Maker:     common.HexToAddress(maker),
		CreatedAt: createdAt,
	}
	rec.Status = domain.OrderStatus(status)
	rec.UpdatedAt = updatedAt
	return rec, nil
}

// Compile-time interface check.
var _ domain.OrderHistoryStore = (*OrderStore)(nil)
