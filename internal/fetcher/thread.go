package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"feedalert/internal/model"
)

// threadPageSize is the number of threads requested per poll.
const threadPageSize = 10

// threadLookback bounds how far back the thread API is queried.
const threadLookback = 7 * 24 * time.Hour

type threadQuery struct {
	Category     []string `json:"Category,omitempty"`
	SortBy       string   `json:"sortByEnum"`
	SortByAsc    bool     `json:"sortByAsc"`
	TimeSpanType string   `json:"timeSpanType"`
	DateTimeFrom string   `json:"dateTimeFrom"`
	DateTimeTo   string   `json:"dateTimeTo"`
	Skip         int      `json:"skip"`
	Take         int      `json:"take"`
	District     string   `json:"district,omitempty"`
}

type threadResponse struct {
	MessageThreads []messageThread `json:"messageThreads"`
}

type messageThread struct {
	ID           string          `json:"id"`
	Category     string          `json:"category"`
	District     string          `json:"district"`
	Municipality string          `json:"municipality"`
	IsActive     bool            `json:"isActive"`
	CreatedOn    string          `json:"createdOn"`
	UpdatedOn    string          `json:"updatedOn"`
	Messages     []threadMessage `json:"messages"`
}

type threadMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	HasImage  bool   `json:"hasImage"`
	CreatedOn string `json:"createdOn"`
}

// buildThreadQuery splits a source URL into the API endpoint and the query
// body. The "category" and "district" query parameters select threads.
func buildThreadQuery(rawURL string, now time.Time) (string, threadQuery, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", threadQuery{}, fmt.Errorf("parse url: %w", err)
	}
	params := u.Query()
	u.RawQuery = ""

	q := threadQuery{
		Category:     params["category"],
		SortBy:       "Date",
		SortByAsc:    false,
		TimeSpanType: "Custom",
		DateTimeFrom: now.UTC().Add(-threadLookback).Format("2006-01-02T15:04:05.000Z"),
		DateTimeTo:   "2099-12-24T23:59:00.000Z",
		Skip:         0,
		Take:         threadPageSize,
		District:     params.Get("district"),
	}
	return u.String(), q, nil
}

func (f *Fetcher) fetchThreads(ctx context.Context, rawURL string) ([]model.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	endpoint, query, err := buildThreadQuery(rawURL, f.now())
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	body, err := f.do(req)
	if err != nil {
		return nil, err
	}

	var resp threadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode threads: %w", err)
	}
	return threadItems(resp.MessageThreads), nil
}

// threadItems flattens message threads into items, newest first. The first
// message of a thread is flagged so it can be announced as a new thread.
func threadItems(threads []messageThread) []model.Item {
	var items []model.Item
	for _, th := range threads {
		threadCreated := parseTime(th.CreatedOn)
		threadUpdated := parseTime(th.UpdatedOn)
		// Messages arrive oldest first; walk them backwards so ties in the
		// stable sort below keep the later message in front.
		for i := len(th.Messages) - 1; i >= 0; i-- {
			msg := th.Messages[i]
			published := parseTime(msg.CreatedOn)
			if published.IsZero() {
				published = threadUpdated
				if i == 0 {
					published = threadCreated
				}
			}
			items = append(items, model.Item{
				ID:            msg.ID,
				Title:         strings.TrimSpace(msg.Text),
				Text:          msg.Text,
				Author:        th.Municipality,
				Category:      th.Category,
				Published:     published,
				ThreadID:      th.ID,
				FirstInThread: i == 0,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	return items
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
