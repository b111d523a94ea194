package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserClient renders pages in a shared headless Chromium. Only one page is
// open at a time; the browser is launched lazily on first use.
type BrowserClient struct {
	mu       sync.Mutex
	timeout  time.Duration
	settle   time.Duration
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowserClient builds a browser-backed Client. timeout bounds navigation
// and rendering of a single page.
func NewBrowserClient(timeout time.Duration) *BrowserClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserClient{timeout: timeout, settle: 300 * time.Millisecond}
}

func (b *BrowserClient) ensureBrowser() (*rod.Browser, error) {
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	b.launcher = l
	b.browser = browser
	return browser, nil
}

// Get navigates to url and returns the rendered document.
func (b *BrowserClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	browser, err := b.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("stealth page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)

	extra := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		if k == "User-Agent" {
			if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: v}); err != nil {
				return nil, fmt.Errorf("set user agent: %w", err)
			}
			continue
		}
		extra = append(extra, k, v)
	}
	if len(extra) > 0 {
		if _, err := page.SetExtraHeaders(extra); err != nil {
			return nil, fmt.Errorf("set headers: %w", err)
		}
	}

	if err := page.Timeout(b.timeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	// Late-loading listings are common; a stability timeout still yields usable HTML.
	_ = page.Timeout(b.timeout).WaitStable(b.settle)

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read rendered html: %w", err)
	}

	// Rod does not expose the document status code; a rendered page is treated as OK.
	return StaticResponse{Status: http.StatusOK, Content: []byte(html)}, nil
}

// Close shuts the browser down.
func (b *BrowserClient) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Kill()
	}
	b.browser = nil
	b.launcher = nil
	return err
}
