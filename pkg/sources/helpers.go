package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const maxPageBytes = 4 << 20 // 4 MiB

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

func fetchPage(ctx context.Context, client HTTPClient, pageURL string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, pageURL, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode(), Snippet: responseSnippet(body)}
	}
	if len(body) > maxPageBytes {
		body = body[:maxPageBytes]
	}
	return body, nil
}

// resolveURL makes href absolute against base. Empty or unparsable input yields "".
func resolveURL(href, base string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// cleanText collapses internal whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		v = cleanText(v)
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range dst {
			if strings.EqualFold(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

func normalizedHTTP(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
