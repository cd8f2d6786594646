package pipeline

import (
	"errors"
	"testing"

	"medreport/llm"
)

func TestExtractGeneratedText(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  error
	}{
		{
			name: "model card shape",
			response: `[{"generated_text": [
				{"role": "system", "content": [{"type": "text", "text": "You are an expert radiologist."}]},
				{"role": "user", "content": [{"type": "text", "text": "Describe this X-ray"}, {"type": "image"}]},
				{"role": "assistant", "content": "No acute cardiopulmonary abnormality."}
			]}]`,
			want: "No acute cardiopulmonary abnormality.",
		},
		{
			name:     "last message is a plain string",
			response: `[{"generated_text": ["Describe this X-ray", "Mild cardiomegaly."]}]`,
			want:     "Mild cardiomegaly.",
		},
		{
			name: "content as typed parts",
			response: `[{"generated_text": [
				{"role": "assistant", "content": [{"type": "text", "text": "Findings: clear lungs."}, {"type": "text", "text": "Impression: normal."}]}
			]}]`,
			want: "Findings: clear lungs.\nImpression: normal.",
		},
		{
			name:     "generated_text as string",
			response: `[{"generated_text": "Small left pleural effusion."}]`,
			want:     "Small left pleural effusion.",
		},
		{
			name:     "single object without list",
			response: `{"generated_text": [{"role": "assistant", "content": "Normal study."}]}`,
			want:     "Normal study.",
		},
		{
			name:     "empty list",
			response: `[]`,
			wantErr:  ErrEmptyOutput,
		},
		{
			name:     "null payload",
			response: `null`,
			wantErr:  ErrEmptyOutput,
		},
		{
			name:     "not JSON",
			response: `<html>Bad gateway</html>`,
			wantErr:  ErrEmptyOutput,
		},
		{
			name:     "missing generated_text",
			response: `[{"summary_text": "hello"}]`,
			wantErr:  ErrNoGeneratedText,
		},
		{
			name:     "empty generated_text list",
			response: `[{"generated_text": []}]`,
			wantErr:  ErrNoGeneratedText,
		},
		{
			name:     "generated_text is a number",
			response: `[{"generated_text": 42}]`,
			wantErr:  ErrNoGeneratedText,
		},
		{
			name:     "first element not an object",
			response: `["just text"]`,
			wantErr:  ErrNoGeneratedText,
		},
		{
			name:     "last message without content",
			response: `[{"generated_text": [{"role": "assistant"}]}]`,
			wantErr:  ErrUnexpectedMessage,
		},
		{
			name:     "last message is a number",
			response: `[{"generated_text": [7]}]`,
			wantErr:  ErrUnexpectedMessage,
		},
		{
			name:     "content parts without text",
			response: `[{"generated_text": [{"role": "assistant", "content": [{"type": "image"}]}]}]`,
			wantErr:  ErrUnexpectedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractGeneratedText([]byte(tt.response))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ExtractGeneratedText() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, llm.ErrMalformedResponse) {
					t.Errorf("error %v should wrap llm.ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractGeneratedText() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractGeneratedText() = %q, want %q", got, tt.want)
			}
		})
	}
}
