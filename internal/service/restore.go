package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// LoadSnapshot returns the newest stored snapshot, or nil when the store is
// empty.
func LoadSnapshot(ctx context.Context, store domain.SnapshotStore) (*domain.Snapshot, error) {
	snap, err := store.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service: load snapshot: %w", err)
	}
	return &snap, nil
}

// Restore loads snap into the engine and its ledger. It must run before the
// service accepts requests.
func (s *ExchangeService) Restore(ctx context.Context, snap domain.Snapshot) error {
	ls, ok := s.ledger.(domain.LedgerSnapshotter)
	if !ok {
		return fmt.Errorf("service: restore: ledger %T cannot be restored", s.ledger)
	}
	if err := s.engine.Restore(snap.Engine); err != nil {
		return fmt.Errorf("service: restore engine at seq %d: %w", snap.Seq, err)
	}
	if err := ls.Restore(snap.Ledger); err != nil {
		return fmt.Errorf("service: restore ledger at seq %d: %w", snap.Seq, err)
	}

	if s.sinks.Events != nil {
		last, err := s.sinks.Events.LastSeq(ctx)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "read event log head failed", slog.String("error", err.Error()))
		case last > snap.Seq:
			s.logger.WarnContext(ctx, "event log is ahead of the restored snapshot",
				slog.Uint64("snapshot_seq", snap.Seq),
				slog.Uint64("event_seq", last),
			)
		}
	}

	s.logger.InfoContext(ctx, "engine restored",
		slog.Uint64("seq", snap.Seq),
		slog.Int("listings", len(snap.Engine.Listings)),
		slog.Int("orders", len(snap.Engine.Orders)),
		slog.Time("taken_at", snap.TakenAt),
	)
	return nil
}
