package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client abstracts page retrieval so callers can inject mocks or different
// transports (plain HTTP, headless browser).
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}

// StaticResponse is a Response backed by fixed values.
type StaticResponse struct {
	Status  int
	Content []byte
}

func (s StaticResponse) Body() []byte    { return s.Content }
func (s StaticResponse) StatusCode() int { return s.Status }
