package llm

import (
	"context"
	"errors"
)

// ErrMalformedResponse is wrapped by every backend when the model answered
// but the payload did not have a shape we know how to unwrap.
var ErrMalformedResponse = errors.New("malformed model response")

// Request is a single image + question pair sent to a vision-language model.
type Request struct {
	Image        []byte
	MimeType     string
	Prompt       string
	SystemPrompt string
	MaxNewTokens int
}

// Client abstracts a vision-language model backend used to write reports.
// Implementations must be concurrency-safe.
type Client interface {
	// GenerateReport returns the generated report text for the request.
	GenerateReport(ctx context.Context, req Request) (string, error)
	// SourceName returns a short backend label (e.g. "pipeline", "space").
	SourceName() string
}

// Prober is implemented by clients that can check their backend is
// reachable and serving the configured model before the first request.
type Prober interface {
	Probe(ctx context.Context) error
}

// Startup is the outcome of loading a backend at process start: exactly one
// of Client and Err is set.
type Startup struct {
	Client Client
	Err    error
}

// Loaded reports whether the backend is usable.
func (s Startup) Loaded() bool {
	return s.Err == nil && s.Client != nil
}
