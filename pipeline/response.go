package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"medreport/llm"
)

// Shape failures of a pipeline payload. Each is returned wrapped together
// with llm.ErrMalformedResponse.
var (
	ErrEmptyOutput       = errors.New("model output is empty or not in the expected list format")
	ErrNoGeneratedText   = errors.New("'generated_text' is missing, empty or not a list")
	ErrUnexpectedMessage = errors.New("could not read 'content' from the model's last message; the output structure may have changed")
)

// ExtractGeneratedText unwraps the report from an image-text-to-text
// pipeline payload. The canonical shape is
//
//	[{"generated_text": [{"role": "...", "content": ...}, ..., {"role": "assistant", "content": "report"}]}]
//
// The last message may also be a bare string, its content may be a list of
// typed parts, generated_text may itself be a string, and some servers drop
// the outer list.
func ExtractGeneratedText(raw []byte) (string, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: %w: %v", llm.ErrMalformedResponse, ErrEmptyOutput, err)
	}

	var first any
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return "", malformed(ErrEmptyOutput)
		}
		first = v[0]
	case map[string]any:
		first = v
	default:
		return "", malformed(ErrEmptyOutput)
	}

	obj, ok := first.(map[string]any)
	if !ok {
		return "", malformed(ErrNoGeneratedText)
	}

	switch generated := obj["generated_text"].(type) {
	case string:
		if strings.TrimSpace(generated) == "" {
			return "", malformed(ErrNoGeneratedText)
		}
		return generated, nil
	case []any:
		if len(generated) == 0 {
			return "", malformed(ErrNoGeneratedText)
		}
		return lastMessageText(generated[len(generated)-1])
	default:
		return "", malformed(ErrNoGeneratedText)
	}
}

func lastMessageText(last any) (string, error) {
	switch msg := last.(type) {
	case string:
		return msg, nil
	case map[string]any:
		content, ok := msg["content"]
		if !ok {
			return "", malformed(ErrUnexpectedMessage)
		}
		switch c := content.(type) {
		case string:
			return c, nil
		case []any:
			if text, ok := joinTextParts(c); ok {
				return text, nil
			}
		}
	}
	return "", malformed(ErrUnexpectedMessage)
}

// joinTextParts concatenates the text of [{"type":"text","text":"..."}] parts.
func joinTextParts(parts []any) (string, bool) {
	var texts []string
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := part["type"].(string); t != "" && t != "text" {
			continue
		}
		if text, ok := part["text"].(string); ok {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, "\n"), true
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", llm.ErrMalformedResponse, err)
}
