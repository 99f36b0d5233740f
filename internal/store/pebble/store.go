// Package pebble persists engine snapshots and the event log in an embedded
// Pebble database for standalone deployments.
package pebble

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

var (
	snapshotPrefix = []byte("snap/")
	eventPrefix    = []byte("event/")
)

// Store implements domain.SnapshotStore and domain.EventStore on top of a
// single Pebble database. Values are JSON; keys end in a big-endian sequence
// so that iteration order is sequence order.
type Store struct {
	db   *pebble.DB
	keep int
}

// Open opens (or creates) the database in dir. Only the newest keep snapshots
// are retained; keep <= 0 keeps everything.
func Open(dir string, keep int) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dir, err)
	}
	return &Store{db: db, keep: keep}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes snap and prunes older snapshots in the same batch.
func (s *Store) Save(_ context.Context, snap domain.Snapshot) error {
	val, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("pebble: marshal snapshot %d: %w", snap.Seq, err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyFor(snapshotPrefix, snap.Seq), val, nil); err != nil {
		return fmt.Errorf("pebble: save snapshot %d: %w", snap.Seq, err)
	}
	if s.keep > 0 {
		if err := s.pruneSnapshots(b, snap.Seq); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble: commit snapshot %d: %w", snap.Seq, err)
	}
	return nil
}

// pruneSnapshots deletes every snapshot older than the newest keep, counting
// the one being written at seq.
func (s *Store) pruneSnapshots(b *pebble.Batch, seq uint64) error {
	iter, err := s.db.NewIter(prefixBounds(snapshotPrefix))
	if err != nil {
		return fmt.Errorf("pebble: prune snapshots: %w", err)
	}
	defer iter.Close()

	kept := 1
	for iter.Last(); iter.Valid(); iter.Prev() {
		if parseKey(snapshotPrefix, iter.Key()) == seq {
			continue
		}
		if kept < s.keep {
			kept++
			continue
		}
		if err := b.Delete(bytes.Clone(iter.Key()), nil); err != nil {
			return fmt.Errorf("pebble: prune snapshots: %w", err)
		}
	}
	return iter.Error()
}

// Latest returns the snapshot with the highest sequence.
func (s *Store) Latest(_ context.Context) (domain.Snapshot, error) {
	iter, err := s.db.NewIter(prefixBounds(snapshotPrefix))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("pebble: latest snapshot: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return domain.Snapshot{}, fmt.Errorf("pebble: latest snapshot: %w", err)
		}
		return domain.Snapshot{}, domain.ErrNotFound
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(iter.Value(), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("pebble: decode snapshot: %w", err)
	}
	return snap, nil
}

// Append writes events in one synced batch. Rewriting an existing sequence
// overwrites it with the same content.
func (s *Store) Append(_ context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, ev := range events {
		val, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("pebble: marshal event %d: %w", ev.Seq, err)
		}
		if err := b.Set(keyFor(eventPrefix, ev.Seq), val, nil); err != nil {
			return fmt.Errorf("pebble: append event %d: %w", ev.Seq, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble: commit events: %w", err)
	}
	return nil
}

// List returns events after opts.AfterSeq in sequence order.
func (s *Store) List(_ context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	bounds := prefixBounds(eventPrefix)
	if opts.AfterSeq < ^uint64(0) {
		bounds.LowerBound = keyFor(eventPrefix, opts.AfterSeq+1)
	}
	iter, err := s.db.NewIter(bounds)
	if err != nil {
		return nil, fmt.Errorf("pebble: list events: %w", err)
	}
	defer iter.Close()

	var (
		out     []domain.Event
		skipped int
	)
	for iter.First(); iter.Valid(); iter.Next() {
		var ev domain.Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("pebble: decode event: %w", err)
		}
		if opts.Since != nil && ev.At.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && ev.At.After(*opts.Until) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, ev)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebble: list events: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest stored event sequence, or 0 when empty.
func (s *Store) LastSeq(_ context.Context) (uint64, error) {
	iter, err := s.db.NewIter(prefixBounds(eventPrefix))
	if err != nil {
		return 0, fmt.Errorf("pebble: last seq: %w", err)
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(eventPrefix, iter.Key()), nil
}

// -------------------- Helpers --------------------

func keyFor(prefix []byte, seq uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

func parseKey(prefix, key []byte) uint64 {
	rest := bytes.TrimPrefix(key, prefix)
	if len(rest) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(rest)
}

// prefixBounds covers every key starting with prefix. The prefixes end in
// '/', so incrementing the last byte yields the exclusive upper bound.
func prefixBounds(prefix []byte) *pebble.IterOptions {
	upper := bytes.Clone(prefix)
	upper[len(upper)-1]++
	return &pebble.IterOptions{LowerBound: prefix, UpperBound: upper}
}

// Compile-time interface checks.
var (
	_ domain.SnapshotStore = (*Store)(nil)
	_ domain.EventStore    = (*Store)(nil)
)
