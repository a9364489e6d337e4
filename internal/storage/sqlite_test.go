package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"feedalert/internal/model"
)

var ignoreTimestamps = cmpopts.IgnoreFields(model.Source{}, "CreatedAt", "LastCheckAt")
var ignoreRuleTS = cmpopts.IgnoreFields(model.Rule{}, "CreatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSourceCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name   string
		source model.Source
	}{
		{
			name: "feed source",
			source: model.Source{
				Kind:            model.SourceFeed,
				ChatID:          12345,
				Name:            "politietsorvest",
				URL:             "https://nitter.net/politietsorvest/rss",
				IntervalMinutes: 1,
				IsActive:        true,
			},
		},
		{
			name: "inactive thread source",
			source: model.Source{
				Kind:            model.SourceThread,
				ChatID:          67890,
				Name:            "Politiloggen Sør-Vest",
				URL:             "https://example.com/api/messagethread",
				IntervalMinutes: 5,
				IsActive:        false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.source
			if err := s.CreateSource(ctx, &src); err != nil {
				t.Fatalf("create: %v", err)
			}
			if src.ID == 0 {
				t.Fatal("expected non-zero ID")
			}

			got, err := s.GetSource(ctx, src.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			want := tt.source
			want.ID = src.ID
			if diff := cmp.Diff(want, *got, ignoreTimestamps); diff != "" {
				t.Errorf("GetSource mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateSourceDefaultsKind(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{ChatID: 1, Name: "F", URL: "https://f.com", IntervalMinutes: 1, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(model.SourceFeed, got.Kind); diff != "" {
		t.Errorf("kind mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSourceNotFound(t *testing.T) {
	s := newTestDB(t)
	_, err := s.GetSource(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSources(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	chatID := int64(111)
	sources := []model.Source{
		{Kind: model.SourceFeed, ChatID: chatID, Name: "A", URL: "https://a.com/rss", IntervalMinutes: 10, IsActive: true},
		{Kind: model.SourceThread, ChatID: chatID, Name: "B", URL: "https://b.com/api", IntervalMinutes: 30, IsActive: false},
		{Kind: model.SourceFeed, ChatID: 999, Name: "Other Chat", URL: "https://c.com/rss", IntervalMinutes: 15, IsActive: true},
	}
	for i := range sources {
		if err := s.CreateSource(ctx, &sources[i]); err != nil {
			t.Fatalf("create source %d: %v", i, err)
		}
	}

	got, err := s.ListSources(ctx, chatID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []model.Source{sources[0], sources[1]}
	if diff := cmp.Diff(want, got, ignoreTimestamps); diff != "" {
		t.Errorf("ListSources mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateSource(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{Kind: model.SourceFeed, ChatID: 1, Name: "Old", URL: "https://old.com", IntervalMinutes: 10, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	src.Name = "New"
	src.IntervalMinutes = 60
	src.IsActive = false
	src.LastCheckAt = &now

	if err := s.UpdateSource(ctx, &src); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want := model.Source{
		ID: src.ID, Kind: model.SourceFeed, ChatID: 1, Name: "New", URL: "https://old.com",
		IntervalMinutes: 60, IsActive: false,
	}
	if diff := cmp.Diff(want, *got, ignoreTimestamps); diff != "" {
		t.Errorf("UpdateSource mismatch (-want +got):\n%s", diff)
	}
	if got.LastCheckAt == nil || !got.LastCheckAt.Equal(now) {
		t.Errorf("LastCheckAt = %v, want %v", got.LastCheckAt, now)
	}
}

func TestDeleteSourceCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{ChatID: 1, Name: "F", URL: "https://f.com", IntervalMinutes: 15, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create source: %v", err)
	}
	if _, err := s.MarkSeen(ctx, src.ID, "guid-1", "title"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if err := s.SetCheckpoint(ctx, src.ID, "guid-1"); err != nil {
		t.Fatalf("set checkpoint: %v", err)
	}

	if err := s.DeleteSource(ctx, src.ID); err != nil {
		t.Fatalf("delete source: %v", err)
	}

	if _, err := s.GetSource(ctx, src.ID); err == nil {
		t.Fatal("expected error getting deleted source")
	}

	seen, err := s.HasSeen(ctx, src.ID, "guid-1")
	if err != nil {
		t.Fatalf("has seen: %v", err)
	}
	if seen {
		t.Error("expected seen item to be deleted")
	}

	_, ok, err := s.GetCheckpoint(ctx, src.ID)
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if ok {
		t.Error("expected checkpoint to be deleted")
	}
}

func TestRuleCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	rules := []model.Rule{
		{Kind: model.RuleKeyword, Pattern: "haugesund"},
		{Kind: model.RuleKeyword, Pattern: "redningshelikopter rygge"},
		{Kind: model.RulePrefix, Pattern: "trafikkontroll"},
	}
	for i := range rules {
		if err := s.CreateRule(ctx, &rules[i]); err != nil {
			t.Fatalf("create rule %d: %v", i, err)
		}
		if rules[i].ID == 0 {
			t.Fatalf("rule %d: expected non-zero ID", i)
		}
	}

	got, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(rules, got, ignoreRuleTS); diff != "" {
		t.Errorf("ListRules mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteRule(ctx, rules[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	remaining, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if diff := cmp.Diff(rules[1:], remaining, ignoreRuleTS); diff != "" {
		t.Errorf("rules after delete mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteRule(ctx, rules[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestCreateRuleDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	first := model.Rule{Kind: model.RuleKeyword, Pattern: "oslo"}
	if err := s.CreateRule(ctx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := model.Rule{Kind: model.RuleKeyword, Pattern: "oslo"}
	if err := s.CreateRule(ctx, &dup); !errors.Is(err, ErrRuleExists) {
		t.Fatalf("expected ErrRuleExists, got %v", err)
	}

	// Same pattern with another kind is a different rule.
	prefix := model.Rule{Kind: model.RulePrefix, Pattern: "oslo"}
	if err := s.CreateRule(ctx, &prefix); err != nil {
		t.Fatalf("create prefix: %v", err)
	}
}

func TestSeenItems(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	seen, err := s.HasSeen(ctx, 1, "thread-1:msg-1")
	if err != nil {
		t.Fatalf("has seen: %v", err)
	}
	if seen {
		t.Fatal("expected item not seen yet")
	}

	created, err := s.MarkSeen(ctx, 1, "thread-1:msg-1", "Savnet person")
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if !created {
		t.Error("expected first MarkSeen to create the record")
	}

	seen, err = s.HasSeen(ctx, 1, "thread-1:msg-1")
	if err != nil {
		t.Fatalf("has seen: %v", err)
	}
	if !seen {
		t.Error("expected item to be seen after marking")
	}

	// Duplicate insert does not error and reports no new record.
	created, err = s.MarkSeen(ctx, 1, "thread-1:msg-1", "Savnet person")
	if err != nil {
		t.Fatalf("mark seen duplicate: %v", err)
	}
	if created {
		t.Error("expected duplicate MarkSeen to report existing record")
	}

	// Records are scoped per source.
	seen, err = s.HasSeen(ctx, 2, "thread-1:msg-1")
	if err != nil {
		t.Fatalf("has seen other source: %v", err)
	}
	if seen {
		t.Error("expected record to be scoped to its source")
	}
}

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	_, ok, err := s.GetCheckpoint(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected no checkpoint for a never polled source")
	}

	for _, key := range []string{"A", "D"} {
		if err := s.SetCheckpoint(ctx, 7, key); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
		got, ok, err := s.GetCheckpoint(ctx, 7)
		if err != nil {
			t.Fatalf("get after set %s: %v", key, err)
		}
		if !ok {
			t.Fatalf("expected checkpoint after set %s", key)
		}
		if diff := cmp.Diff(key, got); diff != "" {
			t.Errorf("checkpoint mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestListDueSources(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	past := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Second)
	recent := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Second)

	sources := []struct {
		name    string
		source  model.Source
		wantDue bool
	}{
		{
			name:    "never checked",
			source:  model.Source{ChatID: 1, Name: "A", URL: "https://a.com", IntervalMinutes: 15, IsActive: true},
			wantDue: true,
		},
		{
			name:    "checked long ago",
			source:  model.Source{ChatID: 1, Name: "B", URL: "https://b.com", IntervalMinutes: 15, IsActive: true, LastCheckAt: &past},
			wantDue: true,
		},
		{
			name:    "checked recently",
			source:  model.Source{ChatID: 1, Name: "C", URL: "https://c.com", IntervalMinutes: 15, IsActive: true, LastCheckAt: &recent},
			wantDue: false,
		},
		{
			name:    "inactive",
			source:  model.Source{ChatID: 1, Name: "D", URL: "https://d.com", IntervalMinutes: 15, IsActive: false},
			wantDue: false,
		},
	}

	for i := range sources {
		if err := s.CreateSource(ctx, &sources[i].source); err != nil {
			t.Fatalf("create: %v", err)
		}
		if sources[i].source.LastCheckAt != nil {
			if err := s.UpdateSource(ctx, &sources[i].source); err != nil {
				t.Fatalf("update: %v", err)
			}
		}
	}

	got, err := s.ListDueSources(ctx)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}

	var wantIDs []int64
	for _, src := range sources {
		if src.wantDue {
			wantIDs = append(wantIDs, src.source.ID)
		}
	}

	var gotIDs []int64
	for _, src := range got {
		gotIDs = append(gotIDs, src.ID)
	}

	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Errorf("due source IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkChecked(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{ChatID: 1, Name: "A", URL: "https://a.com", IntervalMinutes: 5, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Date(2025, 1, 14, 18, 0, 0, 0, time.UTC)
	if err := s.MarkChecked(ctx, src.ID, at); err != nil {
		t.Fatalf("mark checked: %v", err)
	}

	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastCheckAt == nil || !got.LastCheckAt.Equal(at) {
		t.Errorf("last check = %v, want %v", got.LastCheckAt, at)
	}
	if diff := cmp.Diff(src, *got, ignoreTimestamps); diff != "" {
		t.Errorf("other fields changed (-want +got):\n%s", diff)
	}
}

// Ensure the Storage interface is satisfied.
var _ Storage = (*SQLite)(nil)
