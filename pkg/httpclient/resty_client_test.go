package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRestyClientGetSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept-Language"); got != "en" {
			t.Errorf("missing header, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("expected default user agent, got %q", got)
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	client := NewRestyClient(2 * time.Second)
	resp, err := client.Get(context.Background(), srv.URL, map[string]string{"Accept-Language": "en"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode() != http.StatusTeapot || string(resp.Body()) != "short and stout" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode(), resp.Body())
	}
}

func TestRestyClientFollowsRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		if got := r.Header.Get("Accept"); got != defaultAccept {
			t.Errorf("unexpected accept header %q", got)
		}
		_, _ = w.Write([]byte("<html>listing</html>"))
	}))
	defer srv.Close()

	resp, err := NewRestyClient(2*time.Second).Get(context.Background(), srv.URL+"/old", map[string]string{"Cookie": ""})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode() != http.StatusOK || string(resp.Body()) != "<html>listing</html>" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode(), resp.Body())
	}
}

func TestBrowserClientCloseWithoutLaunch(t *testing.T) {
	if err := NewBrowserClient(0).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
