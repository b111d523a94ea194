package sources

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/newswatch/pkg/httpclient"
	"github.com/samvad-hq/newswatch/pkg/retry"
)

// extractorRegistry implements ExtractorRegistry.
type extractorRegistry struct {
	byID      map[string]Extractor
	byType    map[string]Extractor
	byBrowser map[string]Extractor
	mu        sync.RWMutex
}

// NewExtractorRegistry builds a registry for the provided extractors keyed by source id.
func NewExtractorRegistry(extractors ...Extractor) ExtractorRegistry {
	return NewTypeExtractorRegistry(nil, nil, extractors...)
}

// NewTypeExtractorRegistry builds a registry with type-based extractors for
// plain HTTP and browser fetch modes, plus source-specific extractors.
func NewTypeExtractorRegistry(typeExtractors, browserExtractors map[string]Extractor, extractors ...Extractor) ExtractorRegistry {
	reg := &extractorRegistry{
		byID:      make(map[string]Extractor),
		byType:    make(map[string]Extractor),
		byBrowser: make(map[string]Extractor),
	}

	for _, e := range extractors {
		reg.register(reg.byID, e.ID(), e)
	}
	for typ, e := range typeExtractors {
		reg.register(reg.byType, typ, e)
	}
	for typ, e := range browserExtractors {
		reg.register(reg.byBrowser, typ, e)
	}

	return reg
}

func (r *extractorRegistry) register(into map[string]Extractor, key string, e Extractor) {
	if e == nil {
		return
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return
	}

	r.mu.Lock()
	into[key] = e
	r.mu.Unlock()
}

// ExtractorFor selects the extractor for the given source based on its id,
// then its type and fetch mode.
func (r *extractorRegistry) ExtractorFor(src Source) (Extractor, error) {
	if r == nil {
		return nil, fmt.Errorf("extractor registry is nil")
	}
	if strings.TrimSpace(src.ID) == "" {
		return nil, fmt.Errorf("source id is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byID[strings.ToLower(strings.TrimSpace(src.ID))]; ok {
		return e, nil
	}

	typeKey := strings.ToLower(strings.TrimSpace(src.Type))
	if src.FetchMode == FetchModeBrowser {
		if e, ok := r.byBrowser[typeKey]; ok {
			return e, nil
		}
		return nil, fmt.Errorf("no browser extractor registered for source %q (type %q)", src.ID, src.Type)
	}
	if e, ok := r.byType[typeKey]; ok {
		return e, nil
	}

	return nil, fmt.Errorf("no extractor registered for source %q (type %q)", src.ID, src.Type)
}

// DefaultHTTPClient returns the resty-backed client used for plain fetches.
func DefaultHTTPClient(timeout time.Duration) HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return httpclient.NewRestyClient(timeout)
}

// DefaultExtractorRegistry wires the html, xpath and feed extractors behind
// the retry policy. browser may be nil, in which case browser sources fail
// to resolve.
func DefaultExtractorRegistry(client, browser HTTPClient, policy retry.Policy, log Logger) ExtractorRegistry {
	if client == nil {
		client = DefaultHTTPClient(0)
	}

	build := func(c HTTPClient) map[string]Extractor {
		return map[string]Extractor{
			TypeHTML:  WithRetry(NewHTMLExtractor(c, log), policy, log),
			TypeXPath: WithRetry(NewXPathExtractor(c, log), policy, log),
			TypeFeed:  WithRetry(NewFeedExtractor(c, log), policy, log),
		}
	}

	var browserExtractors map[string]Extractor
	if browser != nil {
		browserExtractors = build(browser)
	}

	return NewTypeExtractorRegistry(build(client), browserExtractors)
}
