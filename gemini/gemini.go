package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"medreport/llm"
)

type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client backed by the genai SDK.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	return newClient(ctx, apiKey, model, genai.HTTPOptions{})
}

func newClient(ctx context.Context, apiKey, model string, httpOptions genai.HTTPOptions) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

func (c *Client) SourceName() string {
	return "gemini"
}

func (c *Client) GenerateReport(ctx context.Context, req llm.Request) (string, error) {
	systemInstruction := &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(req.SystemPrompt)},
	}

	userContent := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText(req.Prompt),
			genai.NewPartFromBytes(req.Image, req.MimeType),
		},
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		MaxOutputTokens:   int32(req.MaxNewTokens),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{userContent}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no response candidates returned", llm.ErrMalformedResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != "" {
			return "", fmt.Errorf("blocked by safety settings (%s)", candidate.FinishReason)
		}
		return "", fmt.Errorf("%w: empty response content", llm.ErrMalformedResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	if text.Len() == 0 {
		return "", fmt.Errorf("%w: no text in response", llm.ErrMalformedResponse)
	}

	return text.String(), nil
}
