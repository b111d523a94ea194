package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleState() State {
	st := NewState()
	st.SavedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st.Sources["films"] = SourceState{
		LastReset: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Items: []RecordedItem{
			{Key: "https://example.com/b", Title: "B", URL: "https://example.com/b", FirstSeenAt: st.SavedAt},
			{Key: "https://example.com/a", Title: "A", URL: "https://example.com/a", Categories: []string{"drama"}, FirstSeenAt: st.SavedAt.Add(-time.Hour)},
		},
	}
	return st
}

func TestFileBackendMissingFileIsEmpty(t *testing.T) {
	backend := NewFileBackend(filepath.Join(t.TempDir(), "nested", "seen.json"))
	st, err := backend.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Sources) != 0 || st.Version != SchemaVersion {
		t.Fatalf("expected empty current-schema state, got %#v", st)
	}
}

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "seen.json")
	ctx := context.Background()

	if err := NewFileBackend(path).Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	st, err := NewFileBackend(path).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	films, ok := st.Sources["films"]
	if !ok || len(films.Items) != 2 {
		t.Fatalf("unexpected films state %#v", st.Sources)
	}
	if films.Items[0].Key != "https://example.com/b" {
		t.Fatalf("order not preserved: %#v", films.Items)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestFileBackendCorruptFileReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileBackend(path).Load(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDecodeStateUpgradesLegacyLayout(t *testing.T) {
	raw := []byte(`{
  "films": [
    {"title": "A", "url": "https://example.com/a", "date": "2024-05-01", "categories": ["drama"]},
    {"title": "B", "link": "https://example.com/b"}
  ],
  "lastReset": "2024-05-01T00:00:00Z"
}`)
	st, err := DecodeState(raw)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if st.Version != 1 {
		t.Fatalf("expected legacy version 1, got %d", st.Version)
	}
	films := st.Sources["films"]
	if len(films.Items) != 2 {
		t.Fatalf("expected 2 legacy items, got %#v", films)
	}
	if films.Items[1].URL != "https://example.com/b" || films.Items[0].PublishedAt != "2024-05-01" {
		t.Fatalf("legacy fields not mapped: %#v", films.Items)
	}
	if _, ok := st.Sources["lastReset"]; ok {
		t.Fatalf("non-list legacy fields must be skipped")
	}
}

func TestDecodeStateToleratesMissingFields(t *testing.T) {
	st, err := DecodeState([]byte(`{"sources": null}`))
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if st.Sources == nil {
		t.Fatalf("sources map must default to empty")
	}

	st, err = DecodeState([]byte(`{"sources": {"films": {"items": [{"url": "https://example.com/a"}]}}}`))
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if !st.Sources["films"].LastReset.IsZero() || st.Sources["films"].Items[0].Key != "" {
		t.Fatalf("missing fields must stay zero for the caller to default")
	}

	if _, err := DecodeState(nil); err != nil {
		t.Fatalf("empty document should decode: %v", err)
	}
}

func TestNewBackendTypes(t *testing.T) {
	backend, err := NewBackend("memory", "", Options{})
	if err != nil {
		t.Fatalf("NewBackend memory: %v", err)
	}
	if backend.Name() != TypeMemory {
		t.Fatalf("unexpected backend %s", backend.Name())
	}
	if _, err := NewBackend("file", " ", Options{}); err == nil {
		t.Fatalf("expected error for empty file path")
	}
	if _, err := NewBackend("redis", "", Options{}); err == nil {
		t.Fatalf("expected error for empty redis address")
	}
	if _, err := NewBackend("sqlite", "x", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestMemoryBackendIsolatesSnapshots(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	st := sampleState()
	if err := backend.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st.Sources["films"].Items[0].Categories = append(st.Sources["films"].Items[0].Categories, "mutated")

	loaded, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Sources["films"].Items[0].Categories) != 0 {
		t.Fatalf("saved snapshot must not alias caller memory")
	}

	backend.Close()
	if _, err := backend.Load(ctx); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestUnavailableBackendReportsCause(t *testing.T) {
	cause := errors.New("timeout")
	b := NewUnavailableBackend(TypeBBolt, cause)
	if b.Name() != TypeBBolt {
		t.Fatalf("unexpected name %q", b.Name())
	}
	if _, err := b.Load(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("Load error %v does not wrap cause", err)
	}
	if err := b.Save(context.Background(), sampleState()); !errors.Is(err, cause) {
		t.Fatalf("Save error %v does not wrap cause", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
