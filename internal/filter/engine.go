// Package filter implements the exclusion rule engine.
package filter

import (
	"fmt"
	"strings"

	"feedalert/internal/model"
)

// Title prefixes marking reshares and replies.
const (
	ReshareMarker = "RT"
	ReplyMarker   = "R to @"
)

// Verdict is the outcome of checking an item against the rules.
type Verdict struct {
	Excluded bool
	Reason   string
}

// Check reports whether an item is excluded. Exclusion rules are evaluated
// first, then the reshare and reply shape checks. The first match wins.
func Check(title string, rules []model.Rule) Verdict {
	lower := strings.ToLower(title)
	for _, r := range rules {
		if matchesRule(lower, r) {
			return Verdict{Excluded: true, Reason: fmt.Sprintf("%s %q", r.Kind, r.Pattern)}
		}
	}

	switch {
	case strings.HasPrefix(title, ReshareMarker):
		return Verdict{Excluded: true, Reason: "reshare"}
	case strings.HasPrefix(title, ReplyMarker):
		return Verdict{Excluded: true, Reason: "reply"}
	}
	return Verdict{}
}

func matchesRule(lowerTitle string, r model.Rule) bool {
	pattern := strings.ToLower(r.Pattern)
	if pattern == "" {
		return false
	}
	switch r.Kind {
	case model.RuleKeyword:
		return strings.Contains(lowerTitle, pattern)
	case model.RulePrefix:
		return strings.HasPrefix(lowerTitle, pattern)
	}
	return false
}

// NormalizePattern trims and lowercases a rule pattern and rejects empty ones.
func NormalizePattern(pattern string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" {
		return "", fmt.Errorf("pattern cannot be empty")
	}
	return p, nil
}
