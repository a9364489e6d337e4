// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"feedalert/internal/model"
)

// Errors returned by storage implementations.
var (
	ErrRuleExists = errors.New("rule already exists")
	ErrNotFound   = errors.New("not found")
)

// CheckpointStore persists per-source checkpoints and per-item dedup records.
type CheckpointStore interface {
	// GetCheckpoint returns the stored checkpoint key and whether one exists.
	GetCheckpoint(ctx context.Context, sourceID int64) (string, bool, error)
	SetCheckpoint(ctx context.Context, sourceID int64, key string) error

	HasSeen(ctx context.Context, sourceID int64, key string) (bool, error)
	// MarkSeen records the item and reports whether the record was newly
	// created. A false result means another writer recorded it first.
	MarkSeen(ctx context.Context, sourceID int64, key, title string) (bool, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	CheckpointStore

	CreateSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	ListSources(ctx context.Context, chatID int64) ([]model.Source, error)
	ListDueSources(ctx context.Context) ([]model.Source, error)
	UpdateSource(ctx context.Context, src *model.Source) error
	MarkChecked(ctx context.Context, id int64, at time.Time) error
	DeleteSource(ctx context.Context, id int64) error

	CreateRule(ctx context.Context, r *model.Rule) error
	ListRules(ctx context.Context) ([]model.Rule, error)
	DeleteRule(ctx context.Context, id int64) error

	Close() error
}
