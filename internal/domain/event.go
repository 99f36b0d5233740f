package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/num"
)

// EventType names an engine state change.
type EventType string

const (
	EventTokenListed          EventType = "token_listed"
	EventOrderCreated         EventType = "order_created"
	EventOrderTaken           EventType = "order_taken"
	EventOrderSettled         EventType = "order_settled"
	EventOrderFilled          EventType = "order_filled"
	EventOrderExpired         EventType = "order_expired"
	EventEscrowDeposited      EventType = "escrow_deposited"
	EventEscrowWithdrawn      EventType = "escrow_withdrawn"
	EventOracleAssigned       EventType = "oracle_assigned"
	EventOwnerAssigned        EventType = "owner_assigned"
	EventFeeCollectorAssigned EventType = "fee_collector_assigned"
	EventOwnershipRenounced   EventType = "ownership_renounced"
	EventAccountCredited      EventType = "account_credited"
)

// Event is emitted by the engine for every committed state change. Seq is
// strictly increasing across the engine lifetime, including restores.
type Event struct {
	ID      string         `json:"id"`
	Seq     uint64         `json:"seq"`
	Type    EventType      `json:"type"`
	Token   common.Address `json:"token,omitempty"`
	Account common.Address `json:"account,omitempty"`
	OrderID uint64         `json:"order_id,omitempty"`
	Amount  *num.Uint      `json:"amount,omitempty"`
	Order   *Order         `json:"order,omitempty"`
	Listing *Listing       `json:"listing,omitempty"`
	Fill    *Fill          `json:"fill,omitempty"`
	At      time.Time      `json:"at"`
}

// RemovesOrder reports whether the event takes an order out of the book.
func (e Event) RemovesOrder() bool {
	return e.Type == EventOrderFilled || e.Type == EventOrderExpired
}

// OrderStatus returns the history status an order carried by e ends up in,
// and false for events that do not describe an order.
func (e Event) OrderStatus() (OrderStatus, bool) {
	switch e.Type {
	case EventOrderCreated, EventOrderTaken, EventOrderSettled:
		return OrderStatusActive, e.Order != nil
	case EventOrderFilled:
		return OrderStatusFilled, e.Order != nil
	case EventOrderExpired:
		return OrderStatusExpired, e.Order != nil
	default:
		return "", false
	}
}
