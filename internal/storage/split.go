package storage

import (
	"context"
	"errors"
	"fmt"
)

// StateStore is a CheckpointStore that can drop the state of a source and
// owns a connection.
type StateStore interface {
	CheckpointStore
	DeleteSourceState(ctx context.Context, sourceID int64) error
	Close() error
}

var (
	_ Storage    = (*Split)(nil)
	_ StateStore = (*SQLite)(nil)
)

// Split keeps sources and rules in a base Storage and routes checkpoints
// and dedup records to a separate StateStore.
type Split struct {
	Storage
	state StateStore
}

// NewSplit combines base and state. Closing the result closes both.
func NewSplit(base Storage, state StateStore) *Split {
	return &Split{Storage: base, state: state}
}

// GetCheckpoint reads the checkpoint from the state store.
func (s *Split) GetCheckpoint(ctx context.Context, sourceID int64) (string, bool, error) {
	return s.state.GetCheckpoint(ctx, sourceID)
}

// SetCheckpoint writes the checkpoint to the state store.
func (s *Split) SetCheckpoint(ctx context.Context, sourceID int64, key string) error {
	return s.state.SetCheckpoint(ctx, sourceID, key)
}

// HasSeen reads the dedup record from the state store.
func (s *Split) HasSeen(ctx context.Context, sourceID int64, key string) (bool, error) {
	return s.state.HasSeen(ctx, sourceID, key)
}

// MarkSeen writes the dedup record to the state store.
func (s *Split) MarkSeen(ctx context.Context, sourceID int64, key, title string) (bool, error) {
	return s.state.MarkSeen(ctx, sourceID, key, title)
}

// DeleteSource removes the source state first so a failure leaves the
// source in place for another attempt.
func (s *Split) DeleteSource(ctx context.Context, id int64) error {
	if err := s.state.DeleteSourceState(ctx, id); err != nil {
		return fmt.Errorf("delete source %d state: %w", id, err)
	}
	return s.Storage.DeleteSource(ctx, id)
}

// Close closes both stores.
func (s *Split) Close() error {
	return errors.Join(s.state.Close(), s.Storage.Close())
}
