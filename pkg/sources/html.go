package sources

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/newswatch/internal/domain"
)

// HTMLExtractor scrapes listing pages with CSS selector strategies.
type HTMLExtractor struct {
	client HTTPClient
	log    Logger
}

// NewHTMLExtractor constructs an extractor that fetches pages through client.
func NewHTMLExtractor(client HTTPClient, log Logger) *HTMLExtractor {
	return &HTMLExtractor{client: client, log: ensureLogger(log)}
}

func (e *HTMLExtractor) ID() string { return TypeHTML }

// Extract fetches the source endpoint and applies its strategies in order.
// The first strategy that yields at least one item wins.
func (e *HTMLExtractor) Extract(ctx context.Context, src Source) ([]domain.Item, error) {
	if e.client == nil {
		return nil, fmt.Errorf("html extractor: http client is nil")
	}

	pageURL := src.Endpoint()
	body, err := fetchPage(ctx, e.client, pageURL, Headers(src))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", pageURL, err)
	}

	for _, st := range strategiesFor(src) {
		items := applyCSSStrategy(doc, st, pageURL)
		if len(items) == 0 {
			continue
		}
		e.log.DebugObj("html strategy matched", "extract", map[string]any{
			"source_id": src.ID,
			"strategy":  st.Name,
			"items":     len(items),
		})
		return filterCategories(src, items), nil
	}

	return nil, ErrNoItems
}

func applyCSSStrategy(doc *goquery.Document, st Strategy, pageURL string) []domain.Item {
	var items []domain.Item
	doc.Find(st.Item).Each(func(_ int, sel *goquery.Selection) {
		item := domain.Item{
			Title:       cssTitle(sel, st),
			URL:         resolveURL(cssLink(sel, st), pageURL),
			PublishedAt: cssDate(sel, st),
			Categories:  cssCategories(sel, st),
		}
		if item.Title == "" && item.URL == "" {
			return
		}
		items = append(items, item)
	})
	return items
}

func cssTitle(sel *goquery.Selection, st Strategy) string {
	if st.Title != "" {
		if t := cleanText(sel.Find(st.Title).First().Text()); t != "" {
			return t
		}
	}
	if st.Link != "" {
		if t := cleanText(sel.Find(st.Link).First().Text()); t != "" {
			return t
		}
	}
	return cleanText(sel.Text())
}

func cssLink(sel *goquery.Selection, st Strategy) string {
	attr := st.linkAttr()
	if goquery.NodeName(sel) == "a" {
		if href, ok := sel.Attr(attr); ok {
			return href
		}
	}
	if st.Link == "" {
		return ""
	}
	href, _ := sel.Find(st.Link).First().Attr(attr)
	return href
}

func cssDate(sel *goquery.Selection, st Strategy) string {
	if st.Date == "" {
		return ""
	}
	node := sel.Find(st.Date).First()
	if st.DateAttr != "" {
		if v, ok := node.Attr(st.DateAttr); ok && strings.TrimSpace(v) != "" {
			return cleanText(v)
		}
	}
	return cleanText(node.Text())
}

func cssCategories(sel *goquery.Selection, st Strategy) []string {
	if st.Category == "" {
		return nil
	}
	var out []string
	sel.Find(st.Category).Each(func(_ int, c *goquery.Selection) {
		out = appendUnique(out, c.Text())
	})
	return out
}
