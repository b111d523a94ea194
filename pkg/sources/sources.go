package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Package sources loads tracked source definitions and extracts raw items from them.

const (
	TypeHTML  = "html"
	TypeXPath = "xpath"
	TypeFeed  = "feed"

	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"

	categoryPlaceholder = "{category}"
)

// Source describes one tracked endpoint. Its ID is the source key used for
// deduplication scoping.
type Source struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Type           string         `json:"type" yaml:"type"`
	SourceURL      string         `json:"source_url" yaml:"source_url"`
	Category       string         `json:"category" yaml:"category"`
	FetchMode      string         `json:"fetch_mode" yaml:"fetch_mode"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	RetentionCap   int            `json:"retention_cap" yaml:"retention_cap"`
	MaxAttempts    int            `json:"max_attempts" yaml:"max_attempts"`
	Enrich         bool           `json:"enrich" yaml:"enrich"`
	Categories     []string       `json:"categories" yaml:"categories"`
	Strategies     []Strategy     `json:"strategies" yaml:"strategies"`
	Config         map[string]any `json:"config" yaml:"config"`
}

type registryFile struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// Registry holds the validated sources in declaration order.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
	idx     map[string]Source
}

// LoadRegistry loads the source registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(reg.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	return NewRegistry(reg.Sources)
}

// NewRegistry validates srcs and builds a Registry preserving their order.
func NewRegistry(srcs []Source) (*Registry, error) {
	r := &Registry{
		sources: make([]Source, 0, len(srcs)),
		idx:     make(map[string]Source, len(srcs)),
	}
	for i := range srcs {
		s := sanitizeSource(srcs[i])
		if err := validateSource(s); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := r.idx[s.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", s.ID)
		}
		r.sources = append(r.sources, s)
		r.idx[s.ID] = s
	}
	return r, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s sources: %w", name, err)
	}
	return reg, nil
}

func sanitizeSource(s Source) Source {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		s.Name = s.ID
	}
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	s.SourceURL = strings.TrimSpace(s.SourceURL)
	s.Category = strings.TrimSpace(s.Category)
	s.FetchMode = strings.ToLower(strings.TrimSpace(s.FetchMode))
	if s.FetchMode == "" {
		s.FetchMode = FetchModeHTTP
	}

	labels := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		if c = strings.TrimSpace(c); c != "" {
			labels = append(labels, c)
		}
	}
	s.Categories = labels

	if s.Config == nil {
		s.Config = map[string]any{}
	}
	if s.RequestDelayMs < 0 {
		s.RequestDelayMs = 0
	}
	return s
}

func validateSource(s Source) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	switch s.Type {
	case TypeHTML, TypeXPath, TypeFeed:
	case "":
		return fmt.Errorf("type is required for source %q", s.ID)
	default:
		return fmt.Errorf("unsupported type %q for source %q", s.Type, s.ID)
	}
	if s.SourceURL == "" {
		return fmt.Errorf("source_url is required for source %q", s.ID)
	}
	u, err := url.Parse(strings.ReplaceAll(s.SourceURL, categoryPlaceholder, "x"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("source_url must be an absolute http(s) url for source %q", s.ID)
	}
	if s.FetchMode != FetchModeHTTP && s.FetchMode != FetchModeBrowser {
		return fmt.Errorf("unsupported fetch_mode %q for source %q", s.FetchMode, s.ID)
	}
	if s.Type == TypeXPath && len(s.Strategies) == 0 {
		return fmt.Errorf("xpath source %q requires at least one strategy", s.ID)
	}
	for i, st := range s.Strategies {
		if strings.TrimSpace(st.Item) == "" {
			return fmt.Errorf("strategies[%d].item is required for source %q", i, s.ID)
		}
	}
	if s.RetentionCap < 0 {
		return fmt.Errorf("retention_cap must not be negative for source %q", s.ID)
	}
	return nil
}

// All returns the sources in declaration order.
func (r *Registry) All() []Source {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// ByID returns the source with the given id.
func (r *Registry) ByID(id string) (Source, bool) {
	if r == nil {
		return Source{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Source{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.idx[id]
	return s, ok
}

// RetentionCaps returns the per-source retention overrides.
func (r *Registry) RetentionCaps() map[string]int {
	caps := make(map[string]int)
	for _, s := range r.All() {
		if s.RetentionCap > 0 {
			caps[s.ID] = s.RetentionCap
		}
	}
	return caps
}

// Endpoint returns the page to fetch: the category is substituted for a
// {category} placeholder or appended as a path segment.
func (s Source) Endpoint() string {
	if s.Category == "" {
		return strings.ReplaceAll(s.SourceURL, categoryPlaceholder, "")
	}
	parts := strings.Split(strings.Trim(s.Category, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	segment := strings.Join(parts, "/")
	if strings.Contains(s.SourceURL, categoryPlaceholder) {
		return strings.ReplaceAll(s.SourceURL, categoryPlaceholder, segment)
	}
	return strings.TrimRight(s.SourceURL, "/") + "/" + segment
}

// RequestDelay returns the pause to observe after this source, or zero to use
// the global default.
func (s Source) RequestDelay() time.Duration {
	if s.RequestDelayMs <= 0 {
		return 0
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}
