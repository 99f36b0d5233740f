package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	// AfterSeq restricts event queries to sequences strictly greater than it.
	AfterSeq uint64
	// Actor restricts audit queries to one caller address.
	Actor string
	Since *time.Time
	Until *time.Time
}

// SnapshotStore persists engine and ledger snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	// Latest returns the snapshot with the highest sequence or ErrNotFound.
	Latest(ctx context.Context) (Snapshot, error)
}

// EventStore persists the engine event log.
type EventStore interface {
	Append(ctx context.Context, events []Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// OrderStatus is the lifecycle state recorded in the order history.
type OrderStatus string

const (
	OrderStatusActive  OrderStatus = "active"
	OrderStatusFilled  OrderStatus = "filled"
	OrderStatusExpired OrderStatus = "expired"
)

// OrderRecord is the latest known state of an order, including orders that
// have left the book.
type OrderRecord struct {
	Order     Order       `json:"order"`
	Status    OrderStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OrderHistoryStore keeps a queryable projection of every order the engine
// has seen, built from the event log.
type OrderHistoryStore interface {
	Apply(ctx context.Context, events []Event) error
	GetByID(ctx context.Context, id uint64) (OrderRecord, error)
	ListByMaker(ctx context.Context, maker string, opts ListOpts) ([]OrderRecord, error)
}

// AuditEntry is a single audit log row. Actor is the caller recorded in
// Detail["caller"], when present.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Actor     string         `json:"actor,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only log of privileged actions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
