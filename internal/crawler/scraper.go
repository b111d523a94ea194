package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/internal/logger"
	"github.com/samvad-hq/newswatch/pkg/httpclient"
	"github.com/samvad-hq/newswatch/pkg/sources"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
)

// Scraper fetches article pages and fills missing item fields from OG tags.
type Scraper struct {
	client httpclient.Client
	log    logger.Logger
}

// NewScraper constructs a scraper with the provided HTTP client (or default).
func NewScraper(client httpclient.Client, log logger.Logger) *Scraper {
	if client == nil {
		client = sources.DefaultHTTPClient(0)
	}
	return &Scraper{client: client, log: logger.Ensure(log)}
}

// Enrich visits each item missing a title, date or categories (with
// throttling) and merges page metadata. Items are never dropped; on abort the
// remaining items are returned unchanged.
func (s *Scraper) Enrich(ctx context.Context, src sources.Source, items []domain.Item) []domain.Item {
	delay := src.RequestDelay()
	out := append([]domain.Item(nil), items...)

	fetched := 0
	for i, item := range items {
		if !needsEnrichment(item) || item.URL == "" {
			continue
		}
		if fetched > 0 && delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return out
		}
		fetched++

		enriched, err := s.fetchAndParse(ctx, src, item)
		if err != nil {
			s.log.WarnObj("article metadata scrape failed", "metadata_error", map[string]any{
				"source_id": src.ID,
				"url":       item.URL,
				"error":     err.Error(),
			})
			continue
		}
		out[i] = enriched
	}

	return out
}

func needsEnrichment(item domain.Item) bool {
	return item.Title == "" || item.PublishedAt == "" || len(item.Categories) == 0
}

func (s *Scraper) fetchAndParse(ctx context.Context, src sources.Source, item domain.Item) (domain.Item, error) {
	resp, err := s.client.Get(ctx, item.URL, sources.Headers(src))
	if err != nil {
		return item, fmt.Errorf("http fetch: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return item, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	meta, err := parseMeta(body)
	if err != nil {
		return item, err
	}
	updated := item
	if updated.Title == "" {
		updated.Title = meta.Title
	}
	if updated.PublishedAt == "" {
		updated.PublishedAt = meta.PublishedAt
	}
	if len(updated.Categories) == 0 && len(meta.Categories) > 0 {
		updated.Categories = meta.Categories
	}

	return updated, nil
}

func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	pm := pageMeta{}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pm.Title = firstNonEmpty(
		extract(`meta[property="og:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	pm.PublishedAt = firstNonEmpty(
		extract(`meta[property="article:published_time"]`),
		extract(`meta[name="pubdate"]`),
		extract(`meta[itemprop="datePublished"]`),
	)
	if section := extract(`meta[property="article:section"]`); section != "" {
		pm.Categories = append(pm.Categories, section)
	}
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
			pm.Categories = append(pm.Categories, strings.TrimSpace(v))
		}
	})

	return pm, nil
}

type pageMeta struct {
	Title       string
	PublishedAt string
	Categories  []string
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
