package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/samvad-hq/newswatch/pkg/httpclient"
)

type mockHTTPClient struct {
	t         *testing.T
	expect    map[string]string
	expectURL string
	status    int
	body      string
	err       error
	calls     int
}

func (m *mockHTTPClient) Get(ctx context.Context, url string, headers map[string]string) (httpclient.Response, error) {
	m.calls++
	if m.expectURL != "" && url != m.expectURL {
		m.t.Fatalf("expected url %q, got %q", m.expectURL, url)
	}
	for key, want := range m.expect {
		if got := headers[key]; got != want {
			m.t.Fatalf("expected header %s=%q, got %q", key, want, got)
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	status := m.status
	if status == 0 {
		status = 200
	}
	return httpclient.StaticResponse{Status: status, Content: []byte(m.body)}, nil
}

const listingPage = `<html><body>
<div class="sidebar"><a href="/about">About</a></div>
<article>
  <h2><a href="/films/new-release?utm_source=home">  New   release </a></h2>
  <time datetime="2024-05-02T10:30:00Z">2 May</time>
  <span class="category">Films</span><span class="tag">Reviews</span>
</article>
<article>
  <h2><a href="https://cdn.example.org/films/old-classic">Old classic</a></h2>
  <time>1 May 2024</time>
</article>
<article><p>   </p></article>
</body></html>`

func TestHTMLExtractorFirstStrategy(t *testing.T) {
	client := &mockHTTPClient{
		t:         t,
		expectURL: "https://example.com/news/films",
		expect:    map[string]string{"User-Agent": "ua"},
		body:      listingPage,
	}
	src := Source{
		ID:        "films",
		Type:      TypeHTML,
		SourceURL: "https://example.com/news",
		Category:  "films",
		Config:    map[string]any{ConfigUserAgentKey: "ua"},
	}

	items, err := NewHTMLExtractor(client, nil).Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}

	first := items[0]
	if first.Title != "New release" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.URL != "https://example.com/films/new-release?utm_source=home" {
		t.Fatalf("unexpected url %q", first.URL)
	}
	if first.PublishedAt != "2024-05-02T10:30:00Z" {
		t.Fatalf("unexpected date %q", first.PublishedAt)
	}
	if len(first.Categories) != 2 || first.Categories[0] != "Films" || first.Categories[1] != "Reviews" {
		t.Fatalf("unexpected categories %v", first.Categories)
	}
	if items[1].URL != "https://cdn.example.org/films/old-classic" || items[1].PublishedAt != "1 May 2024" {
		t.Fatalf("unexpected second item %+v", items[1])
	}
}

func TestHTMLExtractorFallsBackToLaterStrategy(t *testing.T) {
	client := &mockHTTPClient{t: t, body: `<ul class="news">
<li><a href="a.html">Alpha</a> <span class="date">today</span></li>
<li><a href="b.html">Beta</a></li>
</ul>`}
	src := Source{ID: "s", Type: TypeHTML, SourceURL: "https://example.com/list/"}

	items, err := NewHTMLExtractor(client, nil).Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != 2 || items[0].Title != "Alpha" || items[0].URL != "https://example.com/list/a.html" {
		t.Fatalf("unexpected items %+v", items)
	}
	if items[0].PublishedAt != "today" {
		t.Fatalf("unexpected date %q", items[0].PublishedAt)
	}
}

func TestHTMLExtractorNoMatch(t *testing.T) {
	client := &mockHTTPClient{t: t, body: `<html><body><p>maintenance</p></body></html>`}
	src := Source{ID: "s", Type: TypeHTML, SourceURL: "https://example.com"}

	_, err := NewHTMLExtractor(client, nil).Extract(context.Background(), src)
	if !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
}

func TestHTMLExtractorStatusError(t *testing.T) {
	client := &mockHTTPClient{t: t, status: 503, body: "busy"}
	src := Source{ID: "s", Type: TypeHTML, SourceURL: "https://example.com"}

	_, err := NewHTMLExtractor(client, nil).Extract(context.Background(), src)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 503 || !statusErr.Retryable() {
		t.Fatalf("expected retryable status error, got %v", err)
	}
}

func TestXPathExtractor(t *testing.T) {
	client := &mockHTTPClient{t: t, body: `<html><body>
<div class="story"><a class="hl" href="/x/1">First story</a><span class="when">Mon</span><em>Politics</em></div>
<div class="story"><a class="hl" href="/x/2">Second story</a></div>
</body></html>`}
	src := Source{
		ID:        "xp",
		Type:      TypeXPath,
		SourceURL: "https://example.com/",
		Strategies: []Strategy{
			{Name: "broken", Item: "//div[", Title: "."},
			{
				Name:     "story",
				Item:     "//div[@class='story']",
				Title:    ".//a[@class='hl']",
				Link:     ".//a[@class='hl']/@href",
				Date:     ".//span[@class='when']",
				Category: ".//em",
			},
		},
	}

	items, err := NewXPathExtractor(client, nil).Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	if items[0].Title != "First story" || items[0].URL != "https://example.com/x/1" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[0].PublishedAt != "Mon" || len(items[0].Categories) != 1 || items[0].Categories[0] != "Politics" {
		t.Fatalf("unexpected first item metadata %+v", items[0])
	}
	if items[1].PublishedAt != "" || len(items[1].Categories) != 0 {
		t.Fatalf("unexpected second item metadata %+v", items[1])
	}
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Example</title>
<item><title>Budget passed</title><link>https://example.com/a</link>
<pubDate>Thu, 02 May 2024 10:30:00 +0000</pubDate><category>Politics</category></item>
<item><title>Match report</title><guid>https://example.com/b</guid></item>
</channel></rss>`

func TestFeedExtractor(t *testing.T) {
	client := &mockHTTPClient{t: t, expectURL: "https://example.com/rss/india.xml", body: sampleFeed}
	src := Source{ID: "feed", Type: TypeFeed, SourceURL: "https://example.com/rss/{category}.xml", Category: "india"}

	items, err := NewFeedExtractor(client, nil).Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Title != "Budget passed" || items[0].URL != "https://example.com/a" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[0].PublishedAt != "Thu, 02 May 2024 10:30:00 +0000" {
		t.Fatalf("unexpected date %q", items[0].PublishedAt)
	}
	if len(items[0].Categories) != 1 || items[0].Categories[0] != "Politics" {
		t.Fatalf("unexpected categories %v", items[0].Categories)
	}
	if items[1].URL != "https://example.com/b" {
		t.Fatalf("expected guid link fallback, got %q", items[1].URL)
	}
}

func TestFeedExtractorInvalidBody(t *testing.T) {
	client := &mockHTTPClient{t: t, body: "not a feed"}
	src := Source{ID: "feed", Type: TypeFeed, SourceURL: "https://example.com/rss"}

	if _, err := NewFeedExtractor(client, nil).Extract(context.Background(), src); err == nil {
		t.Fatalf("expected parse error")
	}
}
