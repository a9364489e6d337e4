package bot

import (
	"fmt"
	"strings"

	"feedalert/internal/model"
	"feedalert/internal/pipeline"
)

const (
	statusActive = "active"
	statusPaused = "paused"
)

// FormatNotification formats a notification as a Telegram message.
func FormatNotification(n model.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", n.Title)
	if n.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(n.Body)
	}
	return b.String()
}

// FormatSourceList formats a list of sources for display.
func FormatSourceList(sources []model.Source) string {
	if len(sources) == 0 {
		return "You have no sources yet. Use /add <url> or /addthread <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Your sources:\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "\n#%d %s [%s]  (every %d min) [%s]\n", s.ID, s.Name, s.Kind, s.IntervalMinutes, status(s))
	}
	return b.String()
}

// FormatSourceInfo formats detailed information about a single source.
func FormatSourceInfo(src *model.Source, checkpoint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", src.ID, src.Name, status(*src))
	fmt.Fprintf(&b, "Kind: %s\n", src.Kind)
	fmt.Fprintf(&b, "URL: %s\n", src.URL)
	fmt.Fprintf(&b, "Interval: every %d min\n", src.IntervalMinutes)
	if src.LastCheckAt != nil {
		fmt.Fprintf(&b, "Last check: %s\n", src.LastCheckAt.Format("2006-01-02 15:04 UTC"))
	}
	if checkpoint != "" {
		fmt.Fprintf(&b, "Newest item: %s\n", checkpoint)
	} else {
		b.WriteString("Newest item: never polled\n")
	}
	return b.String()
}

// FormatRuleList formats the exclusion rules grouped by kind.
func FormatRuleList(rules []model.Rule) string {
	if len(rules) == 0 {
		return "No exclusion rules.\nUse /exclude or /excludeprefix to add one."
	}

	groups := map[model.RuleKind][]model.Rule{}
	for _, r := range rules {
		groups[r.Kind] = append(groups[r.Kind], r)
	}

	var b strings.Builder
	b.WriteString("Exclusion rules:\n")
	order := []struct {
		kind  model.RuleKind
		label string
	}{
		{model.RuleKeyword, "Keywords"},
		{model.RulePrefix, "Title prefixes"},
	}
	for _, g := range order {
		rs := groups[g.kind]
		if len(rs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", g.label)
		for _, r := range rs {
			fmt.Fprintf(&b, "  R%d: %s\n", r.ID, r.Pattern)
		}
	}
	return b.String()
}

// FormatCheckResult summarizes a forced check.
func FormatCheckResult(src *model.Source, res pipeline.Result) string {
	if res.Unchanged {
		return fmt.Sprintf("No new items in #%d \"%s\".", src.ID, src.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Checked #%d \"%s\": %d notified, %d excluded, %d already seen",
		src.ID, src.Name, res.Notified, res.Excluded, res.Skipped)
	if res.Failed > 0 {
		fmt.Fprintf(&b, ", %d failed to send", res.Failed)
	}
	b.WriteString(".")
	if res.Err != nil {
		fmt.Fprintf(&b, "\nError: %v", res.Err)
	}
	return b.String()
}

func status(s model.Source) string {
	if !s.IsActive {
		return statusPaused
	}
	return statusActive
}
