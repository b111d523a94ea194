package sources

import (
	"strconv"
	"strings"
)

// ConfigString returns the trimmed string value for key from source.Config or a fallback.
func ConfigString(cfg Source, key, fallback string) string {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

// ConfigInt returns the integer value for key from source.Config or a fallback.
// YAML and JSON decoders produce different numeric types; both are accepted.
func ConfigInt(cfg Source, key string, fallback int) int {
	if cfg.Config == nil {
		return fallback
	}
	switch v := cfg.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCacheControlKey   = "cache_control"
	ConfigCookieKey         = "cookie"
	ConfigBackoffMsKey      = "retry_backoff_ms"
)

// Headers builds the common request headers from a source config (skips empty values).
func Headers(cfg Source) map[string]string {
	headers := make(map[string]string, 5)

	if v := ConfigString(cfg, ConfigUserAgentKey, ""); v != "" {
		headers["User-Agent"] = v
	}
	if v := ConfigString(cfg, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(cfg, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(cfg, ConfigCacheControlKey, ""); v != "" {
		headers["Cache-Control"] = v
	}
	if v := ConfigString(cfg, ConfigCookieKey, ""); v != "" {
		headers["Cookie"] = v
	}

	return headers
}
