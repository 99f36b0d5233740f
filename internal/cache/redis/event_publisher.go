package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// Channel and stream names used for engine events.
const (
	EventsChannel = "events"
	EventsStream  = "events"
)

// batchPublisher is implemented by buses that can write a whole batch in
// one round trip. *SignalBus does.
type batchPublisher interface {
	PublishBatch(ctx context.Context, channel, stream string, payloads [][]byte) error
}

// EventPublisher fans engine events out over the signal bus: live
// subscribers receive them on a Pub/Sub channel and a capped stream keeps
// them for late readers.
type EventPublisher struct {
	bus domain.SignalBus
}

// NewEventPublisher creates a publisher writing to bus.
func NewEventPublisher(bus domain.SignalBus) *EventPublisher {
	return &EventPublisher{bus: bus}
}

// PublishEvents publishes every event in sequence order. Events that fail
// to encode are skipped; the remaining ones are still delivered.
func (p *EventPublisher) PublishEvents(ctx context.Context, events []domain.Event) error {
	var errs []error
	payloads := make([][]byte, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("redis: marshal event %d: %w", ev.Seq, err))
			continue
		}
		payloads = append(payloads, payload)
	}

	if bp, ok := p.bus.(batchPublisher); ok {
		errs = append(errs, bp.PublishBatch(ctx, EventsChannel, EventsStream, payloads))
		return errors.Join(errs...)
	}
	for _, payload := range payloads {
		if err := p.bus.StreamAppend(ctx, EventsStream, payload); err != nil {
			errs = append(errs, err)
		}
		if err := p.bus.Publish(ctx, EventsChannel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recent returns up to limit published events with a stream id after
// afterID, oldest first.
func (p *EventPublisher) Recent(ctx context.Context, afterID string, limit int) ([]domain.Event, error) {
	msgs, err := p.bus.StreamRead(ctx, EventsStream, afterID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.Event
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			return nil, fmt.Errorf("redis: decode stream entry %s: %w", m.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.EventPublisher = (*EventPublisher)(nil)
