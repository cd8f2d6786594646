package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"medreport/llm"
)

// Client runs reports against a model served by a local Ollama daemon.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates an Ollama client for host (e.g. http://localhost:11434).
func NewClient(host, model string) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q", host)
	}
	if model == "" {
		return nil, fmt.Errorf("no Ollama model configured")
	}
	return &Client{
		client: api.NewClient(u, &http.Client{}),
		model:  model,
	}, nil
}

func (c *Client) SourceName() string {
	return "ollama"
}

func (c *Client) GenerateReport(ctx context.Context, req llm.Request) (string, error) {
	stream := false
	genReq := &api.GenerateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Images: []api.ImageData{req.Image},
		Stream: &stream,
		Options: map[string]any{
			"num_predict": req.MaxNewTokens,
		},
	}

	var text strings.Builder
	err := c.client.Generate(ctx, genReq, func(gr api.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("%w: empty response from ollama", llm.ErrMalformedResponse)
	}
	return out, nil
}

// Probe checks the daemon is up and the model has been pulled.
func (c *Client) Probe(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama is not reachable: %w", err)
	}
	if _, err := c.client.Show(ctx, &api.ShowRequest{Model: c.model}); err != nil {
		return fmt.Errorf("model %q is not available in ollama: %w", c.model, err)
	}
	return nil
}
