package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/cache/local"
	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

type recordingBus struct {
	published []string
	streamed  [][]byte
	failPub   bool
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.failPub {
		return errors.New("publish down")
	}
	b.published = append(b.published, channel)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *recordingBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestEventPublisherWritesStreamAndChannel(t *testing.T) {
	bus := &recordingBus{}
	p := NewEventPublisher(bus)
	events := []domain.Event{
		{Seq: 1, Type: domain.EventOrderCreated, OrderID: 7, Amount: num.NewUint(10)},
		{Seq: 2, Type: domain.EventOrderFilled, OrderID: 7},
	}
	require.NoError(t, p.PublishEvents(context.Background(), events))
	assert.Equal(t, []string{EventsChannel, EventsChannel}, bus.published)
	require.Len(t, bus.streamed, 2)

	var got domain.Event
	require.NoError(t, json.Unmarshal(bus.streamed[0], &got))
	assert.Equal(t, uint64(7), got.OrderID)
	assert.Equal(t, "10", got.Amount.String())
}

func TestEventPublisherKeepsGoingOnFailure(t *testing.T) {
	bus := &recordingBus{failPub: true}
	p := NewEventPublisher(bus)
	err := p.PublishEvents(context.Background(), []domain.Event{{Seq: 1}, {Seq: 2}})
	assert.Error(t, err)
	assert.Len(t, bus.streamed, 2)
}

type batchBus struct {
	recordingBus
	batches [][][]byte
}

func (b *batchBus) PublishBatch(_ context.Context, channel, stream string, payloads [][]byte) error {
	b.batches = append(b.batches, payloads)
	return nil
}

func TestEventPublisherUsesBatchWhenAvailable(t *testing.T) {
	bus := &batchBus{}
	p := NewEventPublisher(bus)
	require.NoError(t, p.PublishEvents(context.Background(), []domain.Event{{Seq: 1}, {Seq: 2}, {Seq: 3}}))
	require.Len(t, bus.batches, 1)
	assert.Len(t, bus.batches[0], 3)
	assert.Empty(t, bus.published, "single events are not published one by one")
}

func TestEventPublisherRecent(t *testing.T) {
	ctx := context.Background()
	p := NewEventPublisher(local.NewBus())
	require.NoError(t, p.PublishEvents(ctx, []domain.Event{
		{Seq: 1, Type: domain.EventOrderCreated},
		{Seq: 2, Type: domain.EventOrderFilled},
		{Seq: 3, Type: domain.EventOrderExpired},
	}))

	all, err := p.Recent(ctx, "0", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.EventOrderExpired, all[2].Type)

	tail, err := p.Recent(ctx, "2", 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Seq)
}

func TestParsePriceFields(t *testing.T) {
	ts := time.Unix(1700000000, 42)
	price, gotTS, err := parsePriceFields(map[string]string{
		"price": "2000000000000000000",
		"ts":    "1700000000000000042",
	})
	require.NoError(t, err)
	assert.Equal(t, "2", num.Decimal(price).String())
	assert.True(t, ts.Equal(gotTS))

	_, _, err = parsePriceFields(map[string]string{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = parsePriceFields(map[string]string{"price": "1.5", "ts": "1"})
	assert.Error(t, err)
}
