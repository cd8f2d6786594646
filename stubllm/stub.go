package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"medreport/llm"
)

// Client is a deterministic, no-network model stub intended for CI and local
// end-to-end runs. The same image and prompt always produce the same report.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "stub" }

func (c *Client) GenerateReport(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sum := sha256.Sum256(append([]byte(req.Prompt), req.Image...))
	short := hex.EncodeToString(sum[:8])

	return fmt.Sprintf("Stub report (%s)\nQuestion: %s\nImage: %d bytes, %s\nFindings: no model was consulted.",
		short, truncate(req.Prompt, 120), len(req.Image), req.MimeType), nil
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
