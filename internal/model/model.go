// Package model defines the domain types used across the application.
package model

import "time"

// SourceKind defines how a source is fetched and how its items are keyed.
type SourceKind string

// Supported source kinds.
const (
	SourceFeed   SourceKind = "feed"
	SourceThread SourceKind = "thread"
)

// Source represents a pollable origin of items.
type Source struct {
	ID              int64
	Kind            SourceKind
	ChatID          int64
	Name            string
	URL             string
	IntervalMinutes int
	IsActive        bool
	LastCheckAt     *time.Time
	CreatedAt       time.Time
}

// Item is one discoverable unit of content with a stable identifier.
type Item struct {
	ID        string
	Title     string
	Text      string
	Author    string
	Category  string
	Link      string
	Published time.Time

	// Set for threaded sources only.
	ThreadID      string
	FirstInThread bool
}

// Threaded reports whether the item belongs to a message thread.
func (i Item) Threaded() bool {
	return i.ThreadID != ""
}

// Key returns the dedup key of the item. Threaded items are keyed by
// thread and message so message ids only need to be unique per thread.
func (i Item) Key() string {
	if i.Threaded() {
		return i.ThreadID + ":" + i.ID
	}
	return i.ID
}

// RuleKind defines how an exclusion rule pattern is matched.
type RuleKind string

// Supported rule kinds.
const (
	RuleKeyword RuleKind = "keyword"
	RulePrefix  RuleKind = "prefix"
)

// Rule is an exclusion rule suppressing notifications for matching items.
type Rule struct {
	ID        int64
	Kind      RuleKind
	Pattern   string
	CreatedAt time.Time
}

// SeenItem tracks an item that has already been processed.
type SeenItem struct {
	SourceID int64
	Key      string
	Title    string
	SeenAt   time.Time
}

// Priority is the urgency of a notification.
type Priority string

// Supported priorities.
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// SoundMuted is the sound selector that plays nothing.
const SoundMuted = "none"

// Notification is a formatted message ready for a transport. ChatID names
// the chat owning the source; transports with a fixed recipient ignore it.
type Notification struct {
	ChatID   int64
	Title    string
	Body     string
	Link     string
	Priority Priority
	Sound    string
	Retry    time.Duration
	Expire   time.Duration
}

// Muted reports whether the notification should be delivered silently.
func (n Notification) Muted() bool {
	return n.Sound == SoundMuted
}
