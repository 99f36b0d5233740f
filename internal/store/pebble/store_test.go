package pebble_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
	"github.com/alanyoungcy/dexengine/internal/store/pebble"
)

func openStore(t *testing.T, keep int) *pebble.Store {
	t.Helper()
	s, err := pebble.Open(t.TempDir(), keep)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLatestSnapshotEmpty(t *testing.T) {
	s := openStore(t, 0)
	_, err := s.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveKeepsNewestSnapshots(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 2)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, seq := range []uint64{3, 7, 12} {
		require.NoError(t, s.Save(ctx, domain.Snapshot{
			Seq:     seq,
			TakenAt: at,
			Engine:  domain.EngineState{LastSeq: seq, NextOrderID: seq + 1, NextFee: num.NewUint(1000)},
		}))
	}

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), latest.Seq)
	assert.Equal(t, uint64(13), latest.Engine.NextOrderID)
	assert.Equal(t, "1000", latest.Engine.NextFee.String())
	assert.True(t, latest.TakenAt.Equal(at))
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 0)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var events []domain.Event
	for i := uint64(1); i <= 5; i++ {
		events = append(events, domain.Event{
			ID:      "ev",
			Seq:     i,
			Type:    domain.EventOrderCreated,
			OrderID: i,
			Amount:  num.NewUint(i * 10),
			At:      base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, s.Append(ctx, events[:3]))
	require.NoError(t, s.Append(ctx, events[2:]))

	last, err = s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	all, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, ev := range all {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
	assert.Equal(t, "30", all[2].Amount.String())

	after, err := s.List(ctx, domain.ListOpts{AfterSeq: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, uint64(3), after[0].Seq)
	assert.Equal(t, uint64(4), after[1].Seq)

	since := base.Add(4 * time.Minute)
	recent, err := s.List(ctx, domain.ListOpts{Since: &since, Offset: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, uint64(5), recent[0].Seq)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := pebble.Open(dir, 0)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, domain.Snapshot{Seq: 9}))
	require.NoError(t, s.Append(ctx, []domain.Event{{Seq: 9, Type: domain.EventTokenListed}}))
	require.NoError(t, s.Close())

	s, err = pebble.Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), snap.Seq)
	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), last)
}
