package sources

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/samvad-hq/newswatch/internal/domain"
)

// XPathExtractor scrapes listing pages with XPath strategies.
type XPathExtractor struct {
	client HTTPClient
	log    Logger
}

// NewXPathExtractor constructs an xpath extractor.
func NewXPathExtractor(client HTTPClient, log Logger) *XPathExtractor {
	return &XPathExtractor{client: client, log: ensureLogger(log)}
}

func (e *XPathExtractor) ID() string { return TypeXPath }

// Extract fetches the page and applies the configured XPath strategies in order.
func (e *XPathExtractor) Extract(ctx context.Context, src Source) ([]domain.Item, error) {
	if e.client == nil {
		return nil, fmt.Errorf("xpath extractor: http client is nil")
	}

	pageURL := src.Endpoint()
	body, err := fetchPage(ctx, e.client, pageURL, Headers(src))
	if err != nil {
		return nil, err
	}

	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", pageURL, err)
	}

	for _, st := range strategiesFor(src) {
		items, err := e.applyStrategy(doc, st, pageURL)
		if err != nil {
			e.log.WarnObj("invalid xpath strategy", "extract", map[string]any{
				"source_id": src.ID,
				"strategy":  st.Name,
				"error":     err.Error(),
			})
			continue
		}
		if len(items) > 0 {
			return filterCategories(src, items), nil
		}
	}

	return nil, ErrNoItems
}

func (e *XPathExtractor) applyStrategy(doc *html.Node, st Strategy, pageURL string) ([]domain.Item, error) {
	nodes, err := htmlquery.QueryAll(doc, st.Item)
	if err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, len(nodes))
	for _, node := range nodes {
		item := domain.Item{
			Title:       xpathText(node, st.Title),
			URL:         resolveURL(xpathAttr(node, st.Link, st.linkAttr()), pageURL),
			PublishedAt: xpathDate(node, st),
			Categories:  xpathAll(node, st.Category),
		}
		if item.Title == "" && item.URL == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func xpathText(node *html.Node, expr string) string {
	if expr == "" {
		return cleanText(htmlquery.InnerText(node))
	}
	n, err := htmlquery.Query(node, expr)
	if err != nil || n == nil {
		return ""
	}
	return cleanText(htmlquery.InnerText(n))
}

func xpathAttr(node *html.Node, expr, attr string) string {
	target := node
	if expr != "" {
		n, err := htmlquery.Query(node, expr)
		if err != nil || n == nil {
			return ""
		}
		target = n
	}
	// htmlquery returns attribute selections (".../@href") as a synthetic
	// element whose text is the attribute value.
	if strings.Contains(expr, "@") && htmlquery.SelectAttr(target, attr) == "" {
		return strings.TrimSpace(htmlquery.InnerText(target))
	}
	return strings.TrimSpace(htmlquery.SelectAttr(target, attr))
}

func xpathDate(node *html.Node, st Strategy) string {
	if st.Date == "" {
		return ""
	}
	if st.DateAttr != "" {
		if v := xpathAttr(node, st.Date, st.DateAttr); v != "" {
			return cleanText(v)
		}
	}
	return xpathText(node, st.Date)
}

func xpathAll(node *html.Node, expr string) []string {
	if expr == "" {
		return nil
	}
	nodes, err := htmlquery.QueryAll(node, expr)
	if err != nil {
		return nil
	}
	var out []string
	for _, n := range nodes {
		out = appendUnique(out, htmlquery.InnerText(n))
	}
	return out
}
