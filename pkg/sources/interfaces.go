package sources

import (
	"context"

	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/pkg/httpclient"
)

// Extractor retrieves a source page and returns its items in document order.
// Concrete implementations live in type-specific files (e.g., html.go).
type Extractor interface {
	ID() string
	Extract(ctx context.Context, src Source) ([]domain.Item, error)
}

// ExtractorRegistry resolves the extractor implementation for a given source.
type ExtractorRegistry interface {
	ExtractorFor(src Source) (Extractor, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within sources.
type HTTPClient = httpclient.Client

// Logger defines the logging surface extractors rely on.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) InfoObj(string, string, interface{})  {}
func (noopLogger) DebugObj(string, string, interface{}) {}
func (noopLogger) WarnObj(string, string, interface{})  {}
func (noopLogger) ErrorObj(string, string, interface{}) {}

func ensureLogger(log Logger) Logger {
	if log == nil {
		return noopLogger{}
	}
	return log
}
