package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medreport/llm"
)

func TestGenerateReport(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Healed rib fracture."}}]}`))
	}))
	defer srv.Close()

	client, err := NewClient("sk-test", srv.URL+"/", "gpt-4o")
	require.NoError(t, err)

	text, err := client.GenerateReport(context.Background(), llm.Request{
		Image:        []byte("img"),
		MimeType:     "image/png",
		Prompt:       "Any fracture?",
		SystemPrompt: "You are an expert radiologist.",
		MaxNewTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Healed rib fracture.", text)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 100, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.True(t, strings.Contains(string(got.Messages[1].Content), "data:image/png;base64,"))
}

func TestGenerateReportNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, err := NewClient("sk-test", srv.URL, "gpt-4o")
	require.NoError(t, err)

	_, err = client.GenerateReport(context.Background(), llm.Request{Image: []byte("img"), Prompt: "x"})
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("", "", "gpt-4o")
	assert.Error(t, err)
}
