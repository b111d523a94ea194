package sources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleRegistry = `
sources:
  - id: films
    name: Film News
    type: html
    source_url: https://example.com/news
    category: films
    request_delay_ms: 1500
    retention_cap: 50
  - id: " world-feed "
    type: FEED
    source_url: https://example.com/rss/{category}.xml
    category: world
    categories: ["Cricket", " ", "Elections"]
`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return path
}

func TestLoadRegistryYAML(t *testing.T) {
	reg, err := LoadRegistry(writeTemp(t, "sources.yaml", sampleRegistry))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(all))
	}
	if all[0].ID != "films" || all[1].ID != "world-feed" {
		t.Fatalf("unexpected order/ids: %q %q", all[0].ID, all[1].ID)
	}
	if all[1].Name != "world-feed" {
		t.Fatalf("expected name to default to id, got %q", all[1].Name)
	}
	if all[1].Type != TypeFeed || all[1].FetchMode != FetchModeHTTP {
		t.Fatalf("unexpected type/mode %q/%q", all[1].Type, all[1].FetchMode)
	}
	if got := all[1].Categories; len(got) != 2 || got[0] != "Cricket" || got[1] != "Elections" {
		t.Fatalf("unexpected categories %v", got)
	}
	if got := all[0].RequestDelay(); got != 1500*time.Millisecond {
		t.Fatalf("unexpected delay %v", got)
	}

	caps := reg.RetentionCaps()
	if caps["films"] != 50 || len(caps) != 1 {
		t.Fatalf("unexpected caps %v", caps)
	}

	if _, ok := reg.ByID("world-feed"); !ok {
		t.Fatalf("expected lookup by trimmed id")
	}
	if _, ok := reg.ByID("missing"); ok {
		t.Fatalf("unexpected source for unknown id")
	}
}

func TestLoadRegistryJSON(t *testing.T) {
	body := `{"sources":[{"id":"a","type":"html","source_url":"https://a.example/"}]}`
	reg, err := LoadRegistry(writeTemp(t, "sources.json", body))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	if len(reg.All()) != 1 {
		t.Fatalf("expected one source")
	}
}

func TestLoadRegistryErrors(t *testing.T) {
	cases := map[string]string{
		"empty":         "sources: []\n",
		"missing id":    "sources:\n  - type: html\n    source_url: https://a.example\n",
		"bad type":      "sources:\n  - id: a\n    type: pdf\n    source_url: https://a.example\n",
		"relative url":  "sources:\n  - id: a\n    type: html\n    source_url: /news\n",
		"duplicate id":  "sources:\n  - id: a\n    type: html\n    source_url: https://a.example\n  - id: a\n    type: feed\n    source_url: https://b.example\n",
		"xpath no rule": "sources:\n  - id: a\n    type: xpath\n    source_url: https://a.example\n",
		"bad mode":      "sources:\n  - id: a\n    type: html\n    fetch_mode: carrier-pigeon\n    source_url: https://a.example\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadRegistry(writeTemp(t, "sources.yaml", body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := LoadRegistry(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSourceEndpoint(t *testing.T) {
	cases := []struct {
		src  Source
		want string
	}{
		{Source{SourceURL: "https://example.com/news"}, "https://example.com/news"},
		{Source{SourceURL: "https://example.com/news/", Category: "films"}, "https://example.com/news/films"},
		{Source{SourceURL: "https://example.com/news", Category: "/arts/film reviews/"}, "https://example.com/news/arts/film%20reviews"},
		{Source{SourceURL: "https://example.com/rss/{category}.xml", Category: "world"}, "https://example.com/rss/world.xml"},
	}
	for _, tc := range cases {
		if got := tc.src.Endpoint(); got != tc.want {
			t.Fatalf("Endpoint(%+v) = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestHeadersFromConfig(t *testing.T) {
	src := Source{Config: map[string]any{
		ConfigUserAgentKey:      "newswatch-test",
		ConfigAcceptLanguageKey: " en-IN ",
		ConfigCookieKey:         "",
	}}
	headers := Headers(src)
	if headers["User-Agent"] != "newswatch-test" || headers["Accept-Language"] != "en-IN" {
		t.Fatalf("unexpected headers %v", headers)
	}
	if _, ok := headers["Cookie"]; ok {
		t.Fatalf("empty values must be skipped")
	}
	if got := ConfigInt(Source{Config: map[string]any{"n": 7.0}}, "n", 1); got != 7 {
		t.Fatalf("ConfigInt float = %d", got)
	}
	if got := ConfigInt(Source{}, "n", 3); got != 3 {
		t.Fatalf("ConfigInt fallback = %d", got)
	}
}

func TestResponseSnippetTruncates(t *testing.T) {
	long := strings.Repeat("x", 600)
	if got := responseSnippet([]byte(long)); len(got) != 515 {
		t.Fatalf("unexpected snippet length %d", len(got))
	}
	if got := responseSnippet(nil); got != "<empty>" {
		t.Fatalf("unexpected empty snippet %q", got)
	}
}
