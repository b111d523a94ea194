package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/newswatch/internal/detector"
	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/internal/logger"
	"github.com/samvad-hq/newswatch/pkg/notifiers"
	"github.com/samvad-hq/newswatch/pkg/sources"
)

// Outcome summarizes one source sub-cycle.
type Outcome struct {
	SourceID     string `json:"source_id"`
	Extracted    int    `json:"extracted"`
	New          int    `json:"new"`
	Duplicates   int    `json:"duplicates"`
	Notified     int    `json:"notified"`
	NotifyFailed int    `json:"notify_failed"`
}

// Service runs the extract, detect, notify and commit steps for one source at a time.
type Service struct {
	registry sources.ExtractorRegistry
	store    SeenStore
	notifier Notifier
	enricher ItemEnricher
	recorder Recorder
	log      logger.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithEnricher enables metadata enrichment for sources that ask for it.
func WithEnricher(e ItemEnricher) Option {
	return func(s *Service) { s.enricher = e }
}

// WithRecorder routes pipeline counters to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the time source used for first-seen timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the pipeline with the extractor registry, the seen-set and the notifier.
func NewService(reg sources.ExtractorRegistry, store SeenStore, notifier Notifier, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		store:    store,
		notifier: notifier,
		recorder: nopRecorder{},
		log:      logger.Ensure(log),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessSource runs one sub-cycle for src. An extraction failure aborts the
// sub-cycle before anything is detected or committed and is returned.
// Notification failures are logged and counted; every detected item is
// committed regardless of delivery outcome, so each item is announced at
// most once.
func (s *Service) ProcessSource(ctx context.Context, src sources.Source) (Outcome, error) {
	out := Outcome{SourceID: src.ID}
	if s == nil || s.registry == nil || s.store == nil {
		return out, fmt.Errorf("crawler service is not initialized")
	}

	items, err := s.extract(ctx, src)
	if err != nil {
		s.recorder.ExtractFailed(src.ID)
		s.log.ErrorObj("source extraction failed", "source_error", map[string]any{
			"source_id": src.ID,
			"error":     err.Error(),
		})
		return out, err
	}
	out.Extracted = len(items)
	if len(items) == 0 {
		s.log.InfoObj("source returned no items", "source_result", map[string]any{
			"source_id": src.ID,
		})
		return out, nil
	}

	result := detector.Detect(s.store, src.ID, items)
	out.New = len(result.New)
	out.Duplicates = result.Duplicates
	if out.New == 0 {
		s.log.DebugObj("no new items", "source_result", map[string]any{
			"source_id": src.ID,
			"extracted": out.Extracted,
			"seen":      result.Seen,
		})
		return out, nil
	}
	s.recorder.ItemsDetected(src.ID, out.New)

	sent := s.notify(ctx, src, result.New, &out)
	s.commit(src, result.New, sent)

	s.log.InfoObj("source processed", "source_result", out)
	return out, nil
}

func (s *Service) extract(ctx context.Context, src sources.Source) ([]domain.Item, error) {
	ex, err := s.registry.ExtractorFor(src)
	if err != nil {
		return nil, fmt.Errorf("resolve extractor for source %s: %w", src.ID, err)
	}
	items, err := ex.Extract(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("extract source %s: %w", src.ID, err)
	}
	return items, nil
}

// notify delivers every candidate and returns the items as sent, enriched
// when the source asks for it.
func (s *Service) notify(ctx context.Context, src sources.Source, candidates []detector.Candidate, out *Outcome) []domain.Item {
	items := make([]domain.Item, len(candidates))
	for i, c := range candidates {
		items[i] = c.Item
	}
	if src.Enrich && s.enricher != nil {
		if enriched := s.enricher.Enrich(ctx, src, items); len(enriched) == len(items) {
			items = enriched
		}
	}

	for i, c := range candidates {
		if s.notifier == nil {
			break
		}
		msg := notifiers.NewMessage(src.ID, src.Name, c.Key, items[i])
		if _, err := s.notifier.Notify(ctx, msg); err != nil {
			out.NotifyFailed++
			s.recorder.NotifyFailed(src.ID)
			s.log.ErrorObj("notification failed; item still marked seen", "notify_error", map[string]any{
				"source_id": src.ID,
				"key":       c.Key,
				"title":     msg.Title,
				"error":     err.Error(),
			})
			continue
		}
		out.Notified++
	}
	return items
}

// commit inserts candidates in detection order with strictly increasing
// first-seen times so retention evicts in a stable order.
func (s *Service) commit(src sources.Source, candidates []detector.Candidate, items []domain.Item) {
	base := s.now().UTC()
	for i, c := range candidates {
		s.store.Insert(src.ID, c.Key, items[i], base.Add(time.Duration(i)*time.Microsecond))
	}
}
