package domain

import "time"

// Domain contains core models shared by the watcher packages.

// Item is one candidate article record produced by an extraction pass.
type Item struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	PublishedAt string   `json:"published_at,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	SourceKey   string   `json:"source_key"`
}

// SeenRecord marks an item identity as already observed for a source.
type SeenRecord struct {
	Key         string    `json:"key"`
	SourceKey   string    `json:"source_key"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	Item        Item      `json:"item"`
}
