// Package fetcher downloads sources and turns them into ordered item snapshots.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedalert/internal/model"
)

const (
	userAgent    = "FeedAlert/1.0"
	maxBodyBytes = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads feeds and message-thread APIs.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
	now     func() time.Time
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
}

// Fetch returns the current snapshot of a source, newest item first.
func (f *Fetcher) Fetch(ctx context.Context, src model.Source) ([]model.Item, error) {
	switch src.Kind {
	case model.SourceThread:
		return f.fetchThreads(ctx, src.URL)
	case model.SourceFeed, "":
		feed, err := f.FetchFeed(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		return FeedItems(feed), nil
	}
	return nil, fmt.Errorf("unsupported source kind %q", src.Kind)
}

// FetchFeed downloads and parses an RSS, Atom or JSON feed from the given URL.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	body, err := f.do(req)
	if err != nil {
		return nil, err
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func (f *Fetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s: %w", strings.ToLower(req.Method), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// FeedItems converts parsed feed entries to items, newest first. Document
// order is kept unless every entry carries a date, in which case entries
// are sorted by date.
func FeedItems(feed *gofeed.Feed) []model.Item {
	items := make([]model.Item, 0, len(feed.Items))
	dated := true
	for _, it := range feed.Items {
		item := model.Item{
			ID:     ItemGUID(it),
			Title:  strings.TrimSpace(it.Title),
			Text:   it.Description,
			Author: itemAuthor(feed, it),
			Link:   it.Link,
		}
		switch {
		case it.PublishedParsed != nil:
			item.Published = it.PublishedParsed.UTC()
		case it.UpdatedParsed != nil:
			item.Published = it.UpdatedParsed.UTC()
		default:
			dated = false
		}
		if len(it.Categories) > 0 {
			item.Category = it.Categories[0]
		}
		items = append(items, item)
	}

	if dated {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Published.After(items[j].Published)
		})
	}
	return items
}

func itemAuthor(feed *gofeed.Feed, it *gofeed.Item) string {
	if it.Author != nil && it.Author.Name != "" {
		return it.Author.Name
	}
	for _, a := range it.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return feed.Title
}
