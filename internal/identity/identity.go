// Package identity derives stable dedup keys for extracted items.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/samvad-hq/newswatch/internal/domain"
)

// titleKeyPrefix marks keys derived from title+date rather than a URL.
const titleKeyPrefix = "th:"

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"yclid":   {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
	"ref":     {},
	"ref_src": {},
	"_ga":     {},
	"_gl":     {},
	"spm":     {},
	"cmpid":   {},
}

// Resolve maps an item to its dedup key. Items with a usable absolute URL are
// keyed by the normalized URL; anything else falls back to a hash of title and
// publication date.
func Resolve(item domain.Item) string {
	if key, ok := NormalizeURL(item.URL); ok {
		return key
	}
	return titleDateKey(item.Title, item.PublishedAt)
}

// NormalizeURL canonicalizes an absolute http(s) URL:
//   - lowercases scheme and host, drops default ports
//   - removes the fragment and known tracking parameters
//   - sorts the remaining query parameters; pairs that do not parse are
//     kept verbatim so distinct URLs never collapse
//   - strips trailing slashes from the path, keeping escaped separators
//
// ok is false when raw is not an absolute http(s) URL.
func NormalizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if port == "" || (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	} else {
		u.Host = host + ":" + port
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	u.RawQuery = canonicalQuery(u.RawQuery)
	u.ForceQuery = false

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")

	return u.String(), true
}

func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}

	parts := make([]string, 0, strings.Count(raw, "&")+1)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		if p, keep := canonicalPair(pair); keep {
			parts = append(parts, p)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// canonicalPair re-encodes one key=value pair. Tracking parameters are
// dropped; pairs with bad escapes or ';' separators are returned as is.
func canonicalPair(pair string) (string, bool) {
	k, v, _ := strings.Cut(pair, "=")
	key, keyErr := url.QueryUnescape(k)
	if keyErr == nil && isTrackingParam(key) {
		return "", false
	}
	val, valErr := url.QueryUnescape(v)
	if keyErr != nil || valErr != nil || strings.Contains(pair, ";") {
		return pair, true
	}
	return url.QueryEscape(key) + "=" + url.QueryEscape(val), true
}

func isTrackingParam(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "utm_") {
		return true
	}
	_, ok := trackingParams[name]
	return ok
}

func titleDateKey(title, publishedAt string) string {
	sum := sha256.Sum256([]byte(collapse(title) + "\x00" + collapse(publishedAt)))
	return titleKeyPrefix + hex.EncodeToString(sum[:])
}

func collapse(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
