package sources

import (
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"

	"github.com/samvad-hq/newswatch/internal/domain"
)

// FeedExtractor reads RSS, Atom and JSON feeds.
type FeedExtractor struct {
	client HTTPClient
	parser *gofeed.Parser
	log    Logger
}

// NewFeedExtractor constructs a feed extractor; the feed body is fetched
// through client so headers and browser mode apply uniformly.
func NewFeedExtractor(client HTTPClient, log Logger) *FeedExtractor {
	return &FeedExtractor{
		client: client,
		parser: gofeed.NewParser(),
		log:    ensureLogger(log),
	}
}

func (e *FeedExtractor) ID() string { return TypeFeed }

// Extract returns feed entries in feed order.
func (e *FeedExtractor) Extract(ctx context.Context, src Source) ([]domain.Item, error) {
	if e.client == nil {
		return nil, fmt.Errorf("feed extractor: http client is nil")
	}

	feedURL := src.Endpoint()
	body, err := fetchPage(ctx, e.client, feedURL, Headers(src))
	if err != nil {
		return nil, err
	}

	feed, err := e.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		item := domain.Item{
			Title:       cleanText(entry.Title),
			URL:         resolveURL(firstNonEmpty(entry.Link, feedGUIDLink(entry)), feedURL),
			PublishedAt: firstNonEmpty(entry.Published, entry.Updated),
			Categories:  appendUnique(nil, entry.Categories...),
		}
		if item.Title == "" && item.URL == "" {
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrNoItems
	}
	e.log.DebugObj("feed parsed", "extract", map[string]any{
		"source_id": src.ID,
		"feed":      feed.Title,
		"items":     len(items),
	})
	return filterCategories(src, items), nil
}

// feedGUIDLink uses the GUID when it is itself a link.
func feedGUIDLink(entry *gofeed.Item) string {
	if _, ok := normalizedHTTP(entry.GUID); ok {
		return entry.GUID
	}
	return ""
}
