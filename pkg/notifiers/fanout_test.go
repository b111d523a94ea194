package notifiers

import (
	"context"
	"errors"
	"testing"
)

type stubNotifier struct {
	id     string
	typ    string
	err    error
	calls  int
	closed bool
}

func (s *stubNotifier) ID() string   { return s.id }
func (s *stubNotifier) Type() string { return s.typ }
func (s *stubNotifier) Notify(context.Context, Message) error {
	s.calls++
	return s.err
}
func (s *stubNotifier) Close() error {
	s.closed = true
	return nil
}

func TestFanoutNotifyAggregatesErrors(t *testing.T) {
	ok := &stubNotifier{id: "ok", typ: "http"}
	bad := &stubNotifier{id: "bad", typ: "http", err: errors.New("failed")}
	fanout := NewFanout([]Notifier{ok, nil, bad})

	if fanout.Size() != 2 {
		t.Fatalf("expected nil notifiers dropped, size=%d", fanout.Size())
	}
	count, err := fanout.Notify(context.Background(), Message{})
	if count != 1 {
		t.Fatalf("expected 1 success, got %d", count)
	}
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if ok.calls != 1 || bad.calls != 1 {
		t.Fatalf("every notifier must be attempted")
	}

	if err := fanout.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ok.closed || !bad.closed {
		t.Fatalf("expected closers invoked")
	}
}

func TestNilFanout(t *testing.T) {
	var f *Fanout
	if n, err := f.Notify(context.Background(), Message{}); n != 0 || err != nil {
		t.Fatalf("nil fanout should be a no-op")
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	ns, err := BuildAll(context.Background(), reg, []NotifierConfig{
		{ID: "http", Type: TypeHTTP, HTTP: &HTTPNotifierConfig{URL: "https://example.com", Method: "POST"}},
		{ID: "discord", Type: TypeDiscord, Discord: &DiscordConfig{WebhookURL: "https://discord.example/hook"}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(ns) != 2 || ns[1].Type() != TypeDiscord {
		t.Fatalf("unexpected notifiers %#v", ns)
	}

	if _, err := BuildAll(context.Background(), reg, []NotifierConfig{{ID: "x", Type: "fax"}}, nil); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
