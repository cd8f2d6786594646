package space

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"

	"medreport/llm"
	"medreport/version"
)

// ErrNonTextResult is returned when the remote function answered with
// something other than plain text.
var ErrNonTextResult = errors.New("remote function did not return plain text")

// fileData describes an uploaded file in a predict call. Both the Gradio 3
// (name/is_file) and Gradio 4 (path/meta) spellings are sent.
type fileData struct {
	Name     string            `json:"name"`
	Path     string            `json:"path"`
	OrigName string            `json:"orig_name"`
	IsFile   bool              `json:"is_file"`
	Data     any               `json:"data"`
	Meta     map[string]string `json:"meta"`
}

type predictRequest struct {
	Data        []any  `json:"data"`
	FnIndex     int    `json:"fn_index"`
	SessionHash string `json:"session_hash"`
}

type predictResponse struct {
	Data  []any  `json:"data"`
	Error string `json:"error"`
}

// Client invokes a function of a hosted Space by its fixed index.
type Client struct {
	baseURL string
	token   string
	fnIndex int
	tempDir string
	http    *http.Client
}

// ResolveSpaceURL turns "owner/name" into the Space's direct host URL.
func ResolveSpaceURL(name string) (string, error) {
	parts := strings.Split(strings.TrimSpace(name), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid Space name %q, expected owner/name", name)
	}
	sub := strings.ToLower(parts[0] + "-" + parts[1])
	sub = strings.NewReplacer(".", "-", "_", "-").Replace(sub)
	return "https://" + sub + ".hf.space", nil
}

// NewClient creates a client for the Space. spaceURL, when set, wins over
// the name; token may be empty for public Spaces.
func NewClient(name, spaceURL, token string, fnIndex int, tempDir string) (*Client, error) {
	baseURL := strings.TrimSuffix(spaceURL, "/")
	if baseURL == "" {
		resolved, err := ResolveSpaceURL(name)
		if err != nil {
			return nil, err
		}
		baseURL = resolved
	}
	if fnIndex < 0 {
		return nil, fmt.Errorf("invalid function index %d", fnIndex)
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		fnIndex: fnIndex,
		tempDir: tempDir,
		http:    &http.Client{},
	}, nil
}

func (c *Client) SourceName() string {
	return "space"
}

// GenerateReport stages the image in a temp file, uploads it and calls the
// remote function with the file and the prompt. The temp file is always
// removed before returning.
func (c *Client) GenerateReport(ctx context.Context, req llm.Request) (string, error) {
	path, err := writeTempImage(c.tempDir, req.Image, req.MimeType)
	if err != nil {
		return "", err
	}
	defer removeTempImage(path)

	remotePath, err := c.upload(ctx, path)
	if err != nil {
		return "", err
	}

	file := fileData{
		Name:     remotePath,
		Path:     remotePath,
		OrigName: filepath.Base(path),
		IsFile:   true,
		Meta:     map[string]string{"_type": "gradio.FileData"},
	}
	return c.predict(ctx, []any{file, req.Prompt})
}

// Probe checks the Space is up and exposes the configured function index.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach Space: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Space config error (status %d): %s", resp.StatusCode, string(body))
	}

	var cfg struct {
		Dependencies []json.RawMessage `json:"dependencies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return fmt.Errorf("failed to parse Space config: %w", err)
	}
	if c.fnIndex >= len(cfg.Dependencies) {
		return fmt.Errorf("Space exposes %d functions, fn_index %d is out of range", len(cfg.Dependencies), c.fnIndex)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open temp image: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to copy temp image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload error (status %d): %s", resp.StatusCode, string(raw))
	}

	var paths []string
	if err := json.Unmarshal(raw, &paths); err != nil || len(paths) == 0 {
		return "", fmt.Errorf("%w: unexpected upload response: %s", llm.ErrMalformedResponse, string(raw))
	}
	return paths[0], nil
}

func (c *Client) predict(ctx context.Context, data []any) (string, error) {
	reqBody := predictRequest{
		Data:        data,
		FnIndex:     c.fnIndex,
		SessionHash: uuid.NewString(),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run/predict", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call Space: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Space error (status %d): %s", resp.StatusCode, string(raw))
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	if pr.Error != "" {
		return "", fmt.Errorf("Space function failed: %s", pr.Error)
	}
	if len(pr.Data) == 0 {
		return "", fmt.Errorf("%w: %w", llm.ErrMalformedResponse, ErrNonTextResult)
	}
	text, ok := pr.Data[0].(string)
	if !ok {
		log.Warnf("Unexpected Space result type %T", pr.Data[0])
		return "", fmt.Errorf("%w: %w", llm.ErrMalformedResponse, ErrNonTextResult)
	}
	return text, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
