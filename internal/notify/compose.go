// Package notify composes notifications from items and hands them to a
// push transport.
package notify

import (
	"fmt"
	"strings"
	"time"

	"feedalert/internal/model"
)

// DefaultAlertSound is played for the first notification of a cycle.
const DefaultAlertSound = "pushover"

const publishedLayout = "2006-01-02 15:04 MST"

// RetryPolicy describes how persistently a transport should deliver a
// notification of a given priority. Level is the transport priority value.
type RetryPolicy struct {
	Level  int
	Retry  time.Duration
	Expire time.Duration
}

// Policies maps each priority to its delivery policy. High priority
// notifications are repeated until acknowledged or expired.
var Policies = map[model.Priority]RetryPolicy{
	model.PriorityNormal: {Level: 0},
	model.PriorityHigh:   {Level: 2, Retry: 120 * time.Second, Expire: 600 * time.Second},
}

// PolicyFor returns the delivery policy for p, falling back to normal.
func PolicyFor(p model.Priority) RetryPolicy {
	if pol, ok := Policies[p]; ok {
		return pol
	}
	return Policies[model.PriorityNormal]
}

// Composer turns items into notifications.
type Composer struct {
	alertSound string
	loc        *time.Location
}

// NewComposer creates a Composer playing alertSound for unmuted notifications.
func NewComposer(alertSound string) *Composer {
	if alertSound == "" {
		alertSound = DefaultAlertSound
	}
	return &Composer{alertSound: alertSound, loc: time.UTC}
}

// Compose builds the notification for item. Only the first notification of
// a cycle plays the alert sound; later ones in the same burst are muted.
func (c *Composer) Compose(src model.Source, item model.Item, first bool) model.Notification {
	n := model.Notification{
		ChatID:   src.ChatID,
		Link:     item.Link,
		Priority: model.PriorityNormal,
		Sound:    c.alertSound,
	}
	if !first {
		n.Sound = model.SoundMuted
	}

	if item.Threaded() {
		prefix := "THREAD UPDATE"
		if item.FirstInThread {
			prefix = "NEW THREAD"
			n.Priority = model.PriorityHigh
		}
		n.Title = fmt.Sprintf("%s - %s: %s", prefix, fallback(item.Category, src.Name), fallback(item.Author, "unknown"))
		n.Body = c.body(fallback(item.Text, item.Title), item)
	} else {
		n.Title = "New post from " + fallback(item.Author, src.Name)
		n.Body = c.body(item.Title, item)
	}

	pol := PolicyFor(n.Priority)
	n.Retry = pol.Retry
	n.Expire = pol.Expire
	return n
}

func (c *Composer) body(text string, item model.Item) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	if !item.Published.IsZero() {
		fmt.Fprintf(&b, "\n(%s)", item.Published.In(c.loc).Format(publishedLayout))
	}
	if item.Link != "" {
		b.WriteString("\n")
		b.WriteString(item.Link)
	}
	return b.String()
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
