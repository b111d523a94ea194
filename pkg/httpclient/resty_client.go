package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultUserAgent is sent when a source does not configure its own.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 newswatch"

	defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	maxRedirects  = 10
)

// RestyClient fetches listing pages over plain HTTP.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient returns a page client with browser-like default headers.
// Per-request headers override the defaults.
func NewRestyClient(timeout time.Duration) *RestyClient {
	c := newRestyBaseClient(timeout)
	c.SetHeader("Accept", defaultAccept)
	c.SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))
	return &RestyClient{client: c}
}

// NewRestyHTTPClient exposes a configured resty.Client for notifiers posting JSON.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return newRestyBaseClient(timeout)
}

func newRestyBaseClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetHeader("User-Agent", DefaultUserAgent)
	return c
}

// Get fetches url. Non-2xx statuses are not errors; callers inspect StatusCode.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := r.client.R().SetContext(ctx)
	for k, v := range headers {
		if v != "" {
			req.SetHeader(k, v)
		}
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, err
	}
	return StaticResponse{Status: resp.StatusCode(), Content: resp.Body()}, nil
}
