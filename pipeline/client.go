package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/apex/log"

	"medreport/llm"
	"medreport/version"
)

// ErrMissingToken is returned when the gated model is requested without an
// access token.
var ErrMissingToken = errors.New("HF_TOKEN is not set; gated models need a token whose account accepted the model's terms of use")

type contentPart struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type pipelineInputs struct {
	Text []message `json:"text"`
}

type pipelineParameters struct {
	MaxNewTokens int `json:"max_new_tokens"`
}

type pipelineRequest struct {
	Inputs     pipelineInputs     `json:"inputs"`
	Parameters pipelineParameters `json:"parameters"`
}

// APIError is a non-2xx answer from the inference endpoint.
type APIError struct {
	StatusCode    int
	Message       string
	EstimatedTime float64
}

func (e *APIError) Error() string {
	if e.EstimatedTime > 0 {
		return fmt.Sprintf("API error (status %d): %s (model is loading, retry in ~%.0fs)", e.StatusCode, e.Message, e.EstimatedTime)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to a hosted image-text-to-text pipeline.
type Client struct {
	endpoint string
	token    string
	model    string
	http     *http.Client
}

// NewClient creates a pipeline client for the given endpoint.
func NewClient(endpoint, token, model string) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("invalid pipeline endpoint %q", endpoint)
	}
	return &Client{
		endpoint: endpoint,
		token:    token,
		model:    model,
		http:     &http.Client{},
	}, nil
}

func (c *Client) SourceName() string {
	return "pipeline"
}

// buildMessages lays out the conversation the way the model card does:
// a system turn, then the user's question followed by the image.
func buildMessages(req llm.Request) []message {
	dataURL := fmt.Sprintf("data:%s;base64,%s", req.MimeType, base64.StdEncoding.EncodeToString(req.Image))
	return []message{
		{
			Role:    "system",
			Content: []contentPart{{Type: "text", Text: req.SystemPrompt}},
		},
		{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image", Image: dataURL},
			},
		},
	}
}

func (c *Client) GenerateReport(ctx context.Context, req llm.Request) (string, error) {
	body := pipelineRequest{
		Inputs:     pipelineInputs{Text: buildMessages(req)},
		Parameters: pipelineParameters{MaxNewTokens: req.MaxNewTokens},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseAPIError(resp.StatusCode, raw)
	}

	log.WithField("model", c.model).Debugf("Raw pipeline output: %s", raw)

	return ExtractGeneratedText(raw)
}

func parseAPIError(status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(raw))}
	var body struct {
		Error         string  `json:"error"`
		EstimatedTime float64 `json:"estimated_time"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.EstimatedTime = body.EstimatedTime
	}
	return apiErr
}
