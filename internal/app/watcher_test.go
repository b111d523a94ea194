package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/samvad-hq/newswatch/internal/config"
	"github.com/samvad-hq/newswatch/internal/crawler"
	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/internal/seenset"
	"github.com/samvad-hq/newswatch/internal/storage"
	"github.com/samvad-hq/newswatch/pkg/sources"
)

// journal collects the order of calls made on the fakes below.
type journal struct {
	events []string
}

func (j *journal) add(e string) { j.events = append(j.events, e) }

type fakeProcessor struct {
	j       *journal
	fail    map[string]bool
	outcome crawler.Outcome
	onCall  func(id string)
}

func (f *fakeProcessor) ProcessSource(_ context.Context, src sources.Source) (crawler.Outcome, error) {
	f.j.add("process:" + src.ID)
	if f.onCall != nil {
		f.onCall(src.ID)
	}
	if f.fail[src.ID] {
		return crawler.Outcome{SourceID: src.ID}, errors.New("listing unreachable")
	}
	out := f.outcome
	out.SourceID = src.ID
	return out, nil
}

type fakeSeenSet struct {
	j        *journal
	loadErr  error
	flushErr error
}

func (f *fakeSeenSet) Load(context.Context) error  { f.j.add("load"); return f.loadErr }
func (f *fakeSeenSet) Flush(context.Context) error { f.j.add("flush"); return f.flushErr }
func (f *fakeSeenSet) Close(context.Context) error { f.j.add("close"); return nil }

type fakeCycles struct{ n int }

func (f *fakeCycles) CycleCompleted() { f.n++ }

type fakeCloser struct {
	j    *journal
	name string
}

func (f *fakeCloser) Close() error { f.j.add("closed:" + f.name); return nil }

func testSources(ids ...string) []sources.Source {
	out := make([]sources.Source, 0, len(ids))
	for _, id := range ids {
		out = append(out, sources.Source{ID: id, Name: id, Type: sources.TypeHTML, SourceURL: "https://example.com/" + id})
	}
	return out
}

func newTestWatcher(j *journal, srcs []sources.Source, proc SourceProcessor, store SeenSet, rec CycleRecorder) (*Watcher, *[]time.Duration) {
	w := newWatcher(srcs, proc, store, rec, nil, time.Hour, 2*time.Second)
	w.newID = func() string { return "cycle-1" }
	pauses := &[]time.Duration{}
	w.sleep = func(ctx context.Context, d time.Duration) bool {
		*pauses = append(*pauses, d)
		j.add("pause")
		return ctx.Err() == nil
	}
	return w, pauses
}

func TestRunCycleVisitsSourcesInOrderAndFlushesEach(t *testing.T) {
	j := &journal{}
	srcs := testSources("a", "b", "c")
	srcs[1].RequestDelayMs = 500
	proc := &fakeProcessor{j: j, outcome: crawler.Outcome{Extracted: 4, New: 2, Notified: 2}}
	cycles := &fakeCycles{}
	w, pauses := newTestWatcher(j, srcs, proc, &fakeSeenSet{j: j}, cycles)

	summary := w.RunCycle(context.Background())

	want := []string{
		"process:a", "flush", "pause",
		"process:b", "flush", "pause",
		"process:c", "flush",
	}
	if !reflect.DeepEqual(j.events, want) {
		t.Fatalf("unexpected call order\n got %v\nwant %v", j.events, want)
	}
	if !reflect.DeepEqual(*pauses, []time.Duration{2 * time.Second, 500 * time.Millisecond}) {
		t.Fatalf("unexpected pauses %v", *pauses)
	}
	if summary.ID != "cycle-1" || summary.Sources != 3 || summary.Extracted != 12 || summary.New != 6 || summary.Notified != 6 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if cycles.n != 1 {
		t.Fatalf("expected one completed cycle, got %d", cycles.n)
	}
}

func TestRunCycleContinuesPastFailingSource(t *testing.T) {
	j := &journal{}
	proc := &fakeProcessor{j: j, fail: map[string]bool{"a": true}, outcome: crawler.Outcome{New: 1}}
	store := &fakeSeenSet{j: j, flushErr: errors.New("disk full")}
	w, _ := newTestWatcher(j, testSources("a", "b"), proc, store, nil)

	summary := w.RunCycle(context.Background())

	if summary.Failed != 1 || summary.Sources != 2 || summary.New != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if j.events[len(j.events)-2] != "process:b" {
		t.Fatalf("second source was not processed: %v", j.events)
	}
}

func TestRunCycleStopsBetweenSourcesOnCancel(t *testing.T) {
	j := &journal{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &fakeProcessor{j: j, onCall: func(string) { cancel() }}
	w, _ := newTestWatcher(j, testSources("a", "b", "c"), proc, &fakeSeenSet{j: j}, nil)

	summary := w.RunCycle(ctx)

	want := []string{"process:a", "flush", "pause"}
	if !reflect.DeepEqual(j.events, want) {
		t.Fatalf("unexpected call order\n got %v\nwant %v", j.events, want)
	}
	if summary.Sources != 1 {
		t.Fatalf("expected one visited source, got %d", summary.Sources)
	}
}

func TestRunOnceLoadsRunsAndCloses(t *testing.T) {
	j := &journal{}
	proc := &fakeProcessor{j: j}
	store := &fakeSeenSet{j: j, loadErr: errors.New("corrupt state")}
	w, _ := newTestWatcher(j, testSources("a"), proc, store, nil)
	w.closers = append(w.closers, &fakeCloser{j: j, name: "fanout"})

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	want := []string{"load", "process:a", "flush", "close", "closed:fanout"}
	if !reflect.DeepEqual(j.events, want) {
		t.Fatalf("unexpected call order\n got %v\nwant %v", j.events, want)
	}
}

func TestRunExitsOnCancelWithFinalClose(t *testing.T) {
	j := &journal{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &fakeProcessor{j: j, onCall: func(string) { cancel() }}
	w, _ := newTestWatcher(j, testSources("a", "b"), proc, &fakeSeenSet{j: j}, nil)
	w.closers = append(w.closers, &fakeCloser{j: j, name: "browser"})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}

	want := []string{"load", "process:a", "flush", "pause", "close", "closed:browser"}
	if !reflect.DeepEqual(j.events, want) {
		t.Fatalf("unexpected call order\n got %v\nwant %v", j.events, want)
	}
}

func TestRunRejectsUninitializedWatcher(t *testing.T) {
	var w *Watcher
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for nil watcher")
	}
}

func TestSleepCtx(t *testing.T) {
	if !sleepCtx(context.Background(), 0) {
		t.Fatal("zero pause should not report cancellation")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepCtx(ctx, time.Hour) {
		t.Fatal("cancelled context should interrupt the pause")
	}
}

func TestLoadRecentReadsPersistedWindow(t *testing.T) {
	dir := t.TempDir()
	sourcesFile := filepath.Join(dir, "sources.yaml")
	yaml := "sources:\n  - id: films\n    type: html\n    source_url: https://news.example.com/films\n"
	if err := os.WriteFile(sourcesFile, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	storePath := filepath.Join(dir, "seen.json")

	store := seenset.New(storage.NewFileBackend(storePath), seenset.Options{Cap: 10})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.Insert("films", "https://news.example.com/a", domain.Item{Title: "A", URL: "https://news.example.com/a", SourceKey: "films"}, base)
	store.Insert("films", "https://news.example.com/b", domain.Item{Title: "B", URL: "https://news.example.com/b", SourceKey: "films"}, base.Add(time.Second))
	if err := store.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	cfg := &config.Config{SourcesFile: sourcesFile, StoreType: "file", StorePath: storePath, RetentionCap: 10}
	items, err := LoadRecent(context.Background(), cfg, "films", nil)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(items) != 2 || items[0].Title != "B" || items[1].Title != "A" {
		t.Fatalf("unexpected recent items %+v", items)
	}

	if _, err := LoadRecent(context.Background(), cfg, "missing", nil); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestOpenSeenSetDegradesWhenStoreCannotOpen(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	reg, err := sources.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	cfg := &config.Config{StoreType: "bbolt", StorePath: filepath.Join(blocker, "seen.db"), RetentionCap: 10}

	store := openSeenSet(cfg, reg, nil, nil)

	if store.Backend() != "bbolt" {
		t.Fatalf("unexpected backend %q", store.Backend())
	}
	if err := store.Load(context.Background()); err == nil {
		t.Fatal("expected load to report the open failure")
	}
	if !store.Degraded() {
		t.Fatal("expected degraded mode")
	}
	if !store.Insert("films", "https://news.example.com/a", domain.Item{Title: "A"}, time.Now()) {
		t.Fatal("in-memory insert should still work")
	}
	if !store.Contains("films", "https://news.example.com/a") {
		t.Fatal("in-memory state lost")
	}
	if err := store.Flush(context.Background()); err == nil {
		t.Fatal("flush must keep failing while the store is unavailable")
	}
	if _, err := os.Stat(filepath.Join(blocker, "seen.db")); err == nil {
		t.Fatal("nothing should have been written")
	}
}
