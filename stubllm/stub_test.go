package stubllm

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"medreport/llm"
)

func TestGenerateReportDeterministic(t *testing.T) {
	c := NewClient()
	req := llm.Request{Image: []byte{1, 2, 3}, MimeType: "image/jpeg", Prompt: "Describe"}

	a, err := c.GenerateReport(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	b, _ := c.GenerateReport(context.Background(), req)
	if a != b {
		t.Errorf("stub output is not deterministic: %q vs %q", a, b)
	}
	if !strings.Contains(a, "Question: Describe") {
		t.Errorf("stub output %q does not echo the prompt", a)
	}

	req.Prompt = "Describe again"
	other, _ := c.GenerateReport(context.Background(), req)
	if other == a {
		t.Error("different prompts should give different stub reports")
	}
}

func TestGenerateReportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient().GenerateReport(ctx, llm.Request{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("ab", 0); got != "" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("rœntgen", 2); got != "rœ" || !utf8.ValidString(got) {
		t.Errorf("truncate() = %q, want %q", got, "rœ")
	}
	if got := truncate("éé", 2); got != "éé" {
		t.Errorf("truncate() = %q, want the whole string", got)
	}
}
