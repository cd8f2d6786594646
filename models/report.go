package models

import (
	"time"
)

// Outcome values stored with every history row
const (
	OutcomeOK = "ok"
)

// Report is a generated report returned to the caller
type Report struct {
	ID          string        `json:"id"`
	Backend     string        `json:"backend"`
	Model       string        `json:"model"`
	Prompt      string        `json:"prompt"`
	Text        string        `json:"report"`
	ImageSHA256 string        `json:"image_sha256"`
	ImageBytes  int           `json:"image_bytes"`
	Duration    time.Duration `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
}

// DurationMillis is the inference time in milliseconds
func (r *Report) DurationMillis() int64 {
	return r.Duration.Milliseconds()
}

// ReportRecord represents a row of the report_history table
type ReportRecord struct {
	ID           string    `json:"id"`
	Backend      string    `json:"backend"`
	Model        string    `json:"model"`
	Prompt       string    `json:"prompt"`
	Text         string    `json:"report"`
	ImageSHA256  string    `json:"image_sha256"`
	ImageBytes   int       `json:"image_bytes"`
	DurationMs   int64     `json:"duration_ms"`
	Outcome      string    `json:"outcome"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Status describes the loaded backend for the UI banner and status endpoint
type Status struct {
	Backend   string `json:"backend"`
	Model     string `json:"model"`
	Device    string `json:"device"`
	Precision string `json:"precision"`
	Loaded    bool   `json:"loaded"`
	LoadError string `json:"load_error,omitempty"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ReportEvent is published after each generation attempt
type ReportEvent struct {
	ID         string    `json:"id"`
	Backend    string    `json:"backend"`
	Model      string    `json:"model"`
	Outcome    string    `json:"outcome"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
