package crawler

import (
	"context"
	"time"

	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/pkg/notifiers"
	"github.com/samvad-hq/newswatch/pkg/sources"
)

// SeenStore is the subset of the seen-set the pipeline reads and commits to.
type SeenStore interface {
	Contains(sourceKey, key string) bool
	Insert(sourceKey, key string, item domain.Item, firstSeenAt time.Time) bool
}

// Notifier delivers one message and reports how many sinks accepted it.
// *notifiers.Fanout satisfies it.
type Notifier interface {
	Notify(ctx context.Context, msg notifiers.Message) (int, error)
}

// ItemEnricher fills in metadata missing from listing pages (e.g., OG tags).
type ItemEnricher interface {
	Enrich(ctx context.Context, src sources.Source, items []domain.Item) []domain.Item
}

// Recorder receives per-source pipeline counters.
type Recorder interface {
	ExtractFailed(sourceID string)
	ItemsDetected(sourceID string, n int)
	NotifyFailed(sourceID string)
}

type nopRecorder struct{}

func (nopRecorder) ExtractFailed(string)      {}
func (nopRecorder) ItemsDetected(string, int) {}
func (nopRecorder) NotifyFailed(string)       {}
