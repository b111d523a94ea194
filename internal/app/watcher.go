package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/newswatch/internal/api"
	"github.com/samvad-hq/newswatch/internal/config"
	"github.com/samvad-hq/newswatch/internal/crawler"
	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/internal/logger"
	"github.com/samvad-hq/newswatch/internal/metrics"
	"github.com/samvad-hq/newswatch/internal/seenset"
	"github.com/samvad-hq/newswatch/internal/storage"
	"github.com/samvad-hq/newswatch/pkg/httpclient"
	"github.com/samvad-hq/newswatch/pkg/notifiers"
	"github.com/samvad-hq/newswatch/pkg/retry"
	"github.com/samvad-hq/newswatch/pkg/sources"
)

const shutdownTimeout = 10 * time.Second

// SourceProcessor runs one source sub-cycle.
type SourceProcessor interface {
	ProcessSource(ctx context.Context, src sources.Source) (crawler.Outcome, error)
}

// SeenSet is the persistence lifecycle of the seen-set the watcher drives.
type SeenSet interface {
	Load(ctx context.Context) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// CycleRecorder is told when a full cycle ends.
type CycleRecorder interface {
	CycleCompleted()
}

// CycleSummary aggregates the outcomes of one pass over all sources.
type CycleSummary struct {
	ID           string `json:"cycle_id"`
	Sources      int    `json:"sources"`
	Failed       int    `json:"failed"`
	Extracted    int    `json:"extracted"`
	New          int    `json:"new"`
	Notified     int    `json:"notified"`
	NotifyFailed int    `json:"notify_failed"`
	ElapsedMs    int64  `json:"elapsed_ms"`
}

// Watcher is the newswatch runtime. It visits every configured source in
// order on a fixed interval and persists the seen-set after each source.
type Watcher struct {
	sources   []sources.Source
	processor SourceProcessor
	store     SeenSet
	recorder  CycleRecorder
	server    *api.Server
	closers   []io.Closer
	interval  time.Duration
	pause     time.Duration
	log       logger.Logger

	newID func() string
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewWatcher builds the runtime from config files.
func NewWatcher(ctx context.Context, cfg *config.Config, log logger.Logger) (*Watcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	sourceReg, err := loadSources(cfg, log)
	if err != nil {
		return nil, err
	}
	srcs := sourceReg.All()

	notifierReg, err := notifiers.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}
	enabled := notifierReg.Enabled()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no notifiers configured")
	}

	notifierClients, err := notifiers.BuildAll(ctx, notifiers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}
	fanout := notifiers.NewFanout(notifierClients)
	notifierSummaries := make([]map[string]string, 0, len(enabled))
	for _, n := range enabled {
		notifierSummaries = append(notifierSummaries, map[string]string{
			"id":   n.ID,
			"type": n.Type,
		})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(notifierSummaries),
		"notifiers": notifierSummaries,
	})

	m := metrics.New()
	store := openSeenSet(cfg, sourceReg, m, log)

	client := sources.DefaultHTTPClient(cfg.HTTPTimeout)
	var browser *httpclient.BrowserClient
	closers := []io.Closer{fanout}
	if needsBrowser(srcs) {
		browser = httpclient.NewBrowserClient(2 * cfg.HTTPTimeout)
		closers = append(closers, browser)
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.InitialBackoff = cfg.RetryBackoff
	var extractors sources.ExtractorRegistry
	if browser != nil {
		extractors = sources.DefaultExtractorRegistry(client, browser, policy, log)
	} else {
		extractors = sources.DefaultExtractorRegistry(client, nil, policy, log)
	}

	service := crawler.NewService(extractors, store, fanout, log,
		crawler.WithEnricher(crawler.NewScraper(client, log)),
		crawler.WithRecorder(m),
	)

	w := newWatcher(srcs, service, store, m, log, cfg.PollInterval, cfg.SourcePause)
	w.closers = closers

	if cfg.HTTPAddr != "" {
		infos := make([]api.SourceInfo, 0, len(srcs))
		for _, s := range srcs {
			infos = append(infos, api.SourceInfo{ID: s.ID, Name: s.Name})
		}
		w.server = api.NewServer(cfg.HTTPAddr, store, infos, m.Handler(), log)
	}

	return w, nil
}

func newWatcher(srcs []sources.Source, processor SourceProcessor, store SeenSet, recorder CycleRecorder, log logger.Logger, interval, pause time.Duration) *Watcher {
	return &Watcher{
		sources:   srcs,
		processor: processor,
		store:     store,
		recorder:  recorder,
		interval:  interval,
		pause:     pause,
		log:       logger.Ensure(log),
		newID:     func() string { return uuid.NewString() },
		sleep:     sleepCtx,
	}
}

func loadSources(cfg *config.Config, log logger.Logger) (*sources.Registry, error) {
	reg, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	all := reg.All()
	ids := make([]string, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.ID)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(ids),
		"ids":   ids,
	})
	return reg, nil
}

// openSeenSet never fails: a store that cannot be opened is replaced by one
// that reports the open error on every access, leaving the seen-set degraded
// and in memory.
func openSeenSet(cfg *config.Config, sourceReg *sources.Registry, reporter seenset.FailureReporter, log logger.Logger) *seenset.Store {
	log = logger.Ensure(log)
	backend, err := newBackend(cfg)
	if err != nil {
		log.WarnObj("storage unavailable; seen-set runs in memory only", "storage_error", map[string]any{
			"type":  cfg.StoreType,
			"path":  cfg.StorePath,
			"error": err.Error(),
		})
		backend = storage.NewUnavailableBackend(cfg.StoreType, err)
	} else {
		log.InfoObj("storage initialized", "storage_config", map[string]any{
			"type":          cfg.StoreType,
			"path":          cfg.StorePath,
			"retention_cap": cfg.RetentionCap,
		})
	}

	return seenset.New(backend, seenset.Options{
		Cap:        cfg.RetentionCap,
		SourceCaps: sourceReg.RetentionCaps(),
		Logger:     log,
		Reporter:   reporter,
	})
}

func newBackend(cfg *config.Config) (storage.Backend, error) {
	backend, err := storage.NewBackend(cfg.StoreType, cfg.StorePath, storage.Options{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisKey:      cfg.RedisKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return backend, nil
}

func needsBrowser(srcs []sources.Source) bool {
	for _, s := range srcs {
		if s.FetchMode == sources.FetchModeBrowser {
			return true
		}
	}
	return false
}

// Run loads the seen-set, starts the status server when configured and runs
// cycles until ctx is cancelled. The next cycle starts one interval after the
// previous one finished.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.processor == nil || w.store == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	defer w.shutdown()
	w.load(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()
	if w.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.server.Run(ctx); err != nil {
				w.log.ErrorObj("status server failed", "error", err)
			}
		}()
	}

	if len(w.sources) == 0 {
		w.log.WarnObj("no sources configured; watcher idle", "sources_count", 0)
		<-ctx.Done()
		return nil
	}

	w.log.InfoObj("watcher loop starting", "watcher_state", map[string]any{
		"sources_count": len(w.sources),
		"poll_interval": w.interval.String(),
		"source_pause":  w.pause.String(),
	})

	for {
		w.RunCycle(ctx)

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.InfoObj("watcher loop exiting", "reason", ctx.Err())
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce loads the seen-set, runs a single cycle and shuts down.
func (w *Watcher) RunOnce(ctx context.Context) (CycleSummary, error) {
	if w == nil || w.processor == nil || w.store == nil {
		return CycleSummary{}, fmt.Errorf("watcher is not initialized")
	}
	defer w.shutdown()
	w.load(ctx)
	return w.RunCycle(ctx), nil
}

// RunCycle visits every source once in declaration order. A failing source
// never stops the cycle; cancellation stops it between sources.
func (w *Watcher) RunCycle(ctx context.Context) CycleSummary {
	start := time.Now()
	summary := CycleSummary{ID: w.newID()}
	w.log.InfoObj("cycle started", "cycle_meta", map[string]any{
		"cycle_id":      summary.ID,
		"sources_count": len(w.sources),
		"started_at":    start.UTC(),
	})

	for i, src := range w.sources {
		if ctx.Err() != nil {
			break
		}
		summary.Sources++

		out, err := w.processor.ProcessSource(ctx, src)
		if err != nil {
			summary.Failed++
			w.log.WarnObj("source sub-cycle failed", "cycle_source", map[string]any{
				"cycle_id":  summary.ID,
				"source_id": src.ID,
				"error":     err.Error(),
			})
		}
		summary.Extracted += out.Extracted
		summary.New += out.New
		summary.Notified += out.Notified
		summary.NotifyFailed += out.NotifyFailed

		// Commits from this source must survive a shutdown that arrives mid-cycle.
		if err := w.store.Flush(context.WithoutCancel(ctx)); err != nil {
			w.log.WarnObj("seen-set flush failed; continuing in memory", "cycle_source", map[string]any{
				"cycle_id":  summary.ID,
				"source_id": src.ID,
				"error":     err.Error(),
			})
		}

		if i == len(w.sources)-1 {
			break
		}
		pause := src.RequestDelay()
		if pause <= 0 {
			pause = w.pause
		}
		if !w.sleep(ctx, pause) {
			break
		}
	}

	summary.ElapsedMs = time.Since(start).Milliseconds()
	if w.recorder != nil {
		w.recorder.CycleCompleted()
	}
	w.log.InfoObj("cycle completed", "cycle_meta", summary)
	return summary
}

func (w *Watcher) load(ctx context.Context) {
	if err := w.store.Load(ctx); err != nil {
		w.log.WarnObj("seen-set load failed; starting empty", "error", err)
	}
}

// shutdown flushes and closes the seen-set, then releases notifiers and the browser.
func (w *Watcher) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.store.Close(ctx); err != nil {
		w.log.ErrorObj("seen-set close failed", "error", err)
	}
	for _, c := range w.closers {
		if err := c.Close(); err != nil {
			w.log.ErrorObj("resource close failed", "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// LoadRecent reads the recent window of one source from the configured store
// without building notifiers or touching the network. The store is not
// written back.
func LoadRecent(ctx context.Context, cfg *config.Config, sourceID string, log logger.Logger) ([]domain.Item, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	sourceReg, err := loadSources(cfg, log)
	if err != nil {
		return nil, err
	}
	if _, ok := sourceReg.ByID(sourceID); !ok {
		return nil, fmt.Errorf("unknown source %q", sourceID)
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	store := seenset.New(backend, seenset.Options{
		Cap:        cfg.RetentionCap,
		SourceCaps: sourceReg.RetentionCaps(),
		Logger:     log,
	})
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load seen-set: %w", err)
	}
	return store.Recent(sourceID), nil
}
