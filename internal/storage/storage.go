package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Package storage persists the seen-set state layout to a durable backend.

// SchemaVersion is written with every saved state.
const SchemaVersion = 2

// RecordedItem is one persisted seen record together with the item fields
// needed to project it back for status readers.
type RecordedItem struct {
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt string    `json:"published_at,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// SourceState holds the recent window for a single source, most recent first.
type SourceState struct {
	Items     []RecordedItem `json:"items"`
	LastReset time.Time      `json:"last_reset"`
}

// State is the full durable layout.
type State struct {
	Version int                    `json:"version"`
	SavedAt time.Time              `json:"saved_at"`
	Sources map[string]SourceState `json:"sources"`
}

// NewState returns an empty state at the current schema version.
func NewState() State {
	return State{Version: SchemaVersion, Sources: map[string]SourceState{}}
}

// Backend loads and saves whole State snapshots.
type Backend interface {
	Name() string
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	Close() error
}

// Options carries backend specific settings.
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

const (
	TypeFile   = "file"
	TypeBBolt  = "bbolt"
	TypeRedis  = "redis"
	TypeMemory = "memory"

	defaultRedisKey = "newswatch:seen"
)

// ErrBackendClosed is returned by operations on a closed backend.
var ErrBackendClosed = errors.New("storage backend closed")

// NewBackend creates the configured storage backend.
func NewBackend(typ, path string, opts Options) (Backend, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "none", TypeMemory:
		return NewMemoryBackend(), nil
	case TypeFile:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("file storage requires a path")
		}
		return NewFileBackend(path), nil
	case TypeBBolt:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	case TypeRedis:
		if strings.TrimSpace(opts.RedisAddr) == "" {
			return nil, fmt.Errorf("redis storage requires an address")
		}
		return openRedis(opts), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// DecodeState parses a persisted state document. Documents without a
// "sources" object are treated as the legacy layout, a plain map of source key
// to item list, and upgraded in place. Missing fields are left zero for the
// caller to default.
func DecodeState(raw []byte) (State, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return NewState(), nil
	}

	var topLevel map[string]json.RawMessage
	if err := json.Unmarshal(raw, &topLevel); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}

	if _, ok := topLevel["sources"]; ok {
		var st State
		if err := json.Unmarshal(raw, &st); err != nil {
			return State{}, fmt.Errorf("decode state: %w", err)
		}
		if st.Sources == nil {
			st.Sources = map[string]SourceState{}
		}
		return st, nil
	}

	st := NewState()
	st.Version = 1
	for source, body := range topLevel {
		var items []legacyItem
		if err := json.Unmarshal(body, &items); err != nil {
			// Unknown top-level fields from older writers are skipped.
			continue
		}
		ss := SourceState{Items: make([]RecordedItem, 0, len(items))}
		for _, it := range items {
			ss.Items = append(ss.Items, it.toRecorded())
		}
		st.Sources[source] = ss
	}
	return st, nil
}

// EncodeState serializes a state document.
func EncodeState(st State) ([]byte, error) {
	if st.Sources == nil {
		st.Sources = map[string]SourceState{}
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return raw, nil
}

// legacyItem is the per-item shape of the original flat cache file.
type legacyItem struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Link       string   `json:"link"`
	Date       string   `json:"date"`
	Categories []string `json:"categories"`
}

func (l legacyItem) toRecorded() RecordedItem {
	u := l.URL
	if u == "" {
		u = l.Link
	}
	return RecordedItem{
		Title:       l.Title,
		URL:         u,
		PublishedAt: l.Date,
		Categories:  l.Categories,
	}
}

func cloneState(st State) State {
	out := State{Version: st.Version, SavedAt: st.SavedAt, Sources: make(map[string]SourceState, len(st.Sources))}
	for k, ss := range st.Sources {
		items := make([]RecordedItem, len(ss.Items))
		for i, it := range ss.Items {
			it.Categories = append([]string(nil), it.Categories...)
			items[i] = it
		}
		out.Sources[k] = SourceState{Items: items, LastReset: ss.LastReset}
	}
	return out
}
