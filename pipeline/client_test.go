package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medreport/llm"
)

func testRequest() llm.Request {
	return llm.Request{
		Image:        []byte{0xff, 0xd8, 0xff},
		MimeType:     "image/jpeg",
		Prompt:       "Describe this chest X-ray",
		SystemPrompt: "You are an expert radiologist.",
		MaxNewTokens: 512,
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("https://example.com/models/x", "", "x")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = NewClient("example.com", "tok", "x")
	assert.Error(t, err)
}

func TestGenerateReport(t *testing.T) {
	var got pipelineRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`[{"generated_text":[{"role":"assistant","content":"Clear lungs."}]}]`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "hf_test", "google/medgemma-4b-it")
	require.NoError(t, err)

	text, err := client.GenerateReport(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Clear lungs.", text)

	assert.Equal(t, 512, got.Parameters.MaxNewTokens)
	require.Len(t, got.Inputs.Text, 2)
	assert.Equal(t, "system", got.Inputs.Text[0].Role)
	assert.Equal(t, "You are an expert radiologist.", got.Inputs.Text[0].Content[0].Text)
	user := got.Inputs.Text[1]
	assert.Equal(t, "user", user.Role)
	require.Len(t, user.Content, 2)
	assert.Equal(t, "Describe this chest X-ray", user.Content[0].Text)
	assert.Equal(t, "image", user.Content[1].Type)
	assert.True(t, strings.HasPrefix(user.Content[1].Image, "data:image/jpeg;base64,"))
}

func TestGenerateReportAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"Model google/medgemma-4b-it is currently loading","estimated_time":42.0}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "hf_test", "google/medgemma-4b-it")
	require.NoError(t, err)

	_, err = client.GenerateReport(context.Background(), testRequest())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "Model google/medgemma-4b-it is currently loading", apiErr.Message)
	assert.Contains(t, err.Error(), "retry in ~42s")
	assert.False(t, errors.Is(err, llm.ErrMalformedResponse))
}

func TestGenerateReportMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"generated_text":[]}]`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "hf_test", "m")
	require.NoError(t, err)

	_, err = client.GenerateReport(context.Background(), testRequest())
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
	assert.ErrorIs(t, err, ErrNoGeneratedText)
}
