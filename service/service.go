package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"medreport/config"
	"medreport/imaging"
	"medreport/llm"
	"medreport/metrics"
	"medreport/models"
	"medreport/reporting"
)

// HistoryStore persists generation attempts.
type HistoryStore interface {
	SaveReport(ctx context.Context, r *models.ReportRecord) error
}

// EventPublisher announces generation attempts to other services.
type EventPublisher interface {
	PublishReportEvent(ctx context.Context, event models.ReportEvent) error
}

const sideEffectTimeout = 5 * time.Second

// Service turns an image and a question into a report using the backend
// loaded at startup.
type Service struct {
	cfg       *config.Config
	client    llm.Client
	initError *Error
	history   HistoryStore
	events    EventPublisher
	sem       *semaphore.Weighted
}

// NewService builds the service from the startup result. history and events
// may be nil.
func NewService(cfg *config.Config, startup llm.Startup, history HistoryStore, events EventPublisher) *Service {
	s := &Service{
		cfg:     cfg,
		history: history,
		events:  events,
		sem:     semaphore.NewWeighted(int64(max(cfg.MaxConcurrent, 1))),
	}
	if startup.Loaded() {
		s.client = startup.Client
	} else {
		err := startup.Err
		if err == nil {
			err = errors.New("no model backend configured")
		}
		// Built once so every request sees the same text.
		s.initError = newError(KindUnavailable, err,
			"Error: the model could not be loaded: %v. Check the service logs, the hardware settings, "+
				"that HF_TOKEN is set and that the model's terms of use were accepted.", err)
	}
	return s
}

// Generate validates the input, runs inference and returns the report.
// Every failure is a *Error.
func (s *Service) Generate(ctx context.Context, image []byte, prompt string) (*models.Report, error) {
	if s.initError != nil {
		metrics.ReportsTotal.WithLabelValues(string(KindUnavailable)).Inc()
		return nil, s.initError
	}
	if len(image) == 0 {
		return nil, s.reject(newError(KindValidation, nil, MsgMissingImage))
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, s.reject(newError(KindValidation, nil, MsgMissingPrompt))
	}

	img, err := imaging.Normalize(image, s.cfg.ImageMaxDimension)
	if err != nil {
		return nil, s.reject(newError(KindValidation, err, "Error: the uploaded file could not be read as an image."))
	}

	sum := sha256.Sum256(image)
	report := &models.Report{
		ID:          uuid.NewString(),
		Backend:     s.client.SourceName(),
		Model:       s.cfg.ModelID,
		Prompt:      prompt,
		ImageSHA256: hex.EncodeToString(sum[:]),
		ImageBytes:  len(image),
		CreatedAt:   time.Now().UTC(),
	}
	logger := log.WithFields(log.Fields{
		"report_id": report.ID,
		"backend":   report.Backend,
	})
	logger.Infof("New request received. Prompt: %q, image: %s %dx%d", prompt, img.MimeType, img.Width, img.Height)

	text, err := s.infer(ctx, llm.Request{
		Image:        img.Data,
		MimeType:     img.MimeType,
		Prompt:       prompt,
		SystemPrompt: s.cfg.SystemPrompt,
		MaxNewTokens: s.cfg.MaxNewTokens,
	}, report)
	if err != nil {
		svcErr := classify(err)
		logger.WithError(err).Error("Report generation failed")
		reporting.CaptureError(err, map[string]string{
			"backend":   report.Backend,
			"kind":      string(svcErr.Kind),
			"report_id": report.ID,
		})
		s.record(report, svcErr)
		return nil, s.reject(svcErr)
	}

	report.Text = text
	logger.WithField("duration", report.Duration).Infof("Report generated. First 100 characters: %q...", firstRunes(text, 100))
	metrics.ReportsTotal.WithLabelValues(models.OutcomeOK).Inc()
	s.record(report, nil)
	return report, nil
}

func (s *Service) infer(ctx context.Context, req llm.Request, report *models.Report) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for a free inference slot: %w", err)
	}
	defer s.sem.Release(1)

	metrics.InferenceInFlight.Inc()
	defer metrics.InferenceInFlight.Dec()

	start := time.Now()
	text, err := s.client.GenerateReport(ctx, req)
	report.Duration = time.Since(start)

	result := "ok"
	if err != nil {
		result = "error"
	} else if strings.TrimSpace(text) == "" {
		result = "error"
		err = fmt.Errorf("%w: model returned empty text", llm.ErrMalformedResponse)
	}
	metrics.InferenceDurationSeconds.WithLabelValues(report.Backend, result).Observe(report.Duration.Seconds())
	return text, err
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, llm.ErrMalformedResponse):
		return newError(KindMalformed, err, "Error while processing the model output: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindUpstream, err, "Error while generating the report: the model did not answer in time.")
	default:
		return newError(KindUpstream, err, "Error while generating the report: %v", err)
	}
}

func (s *Service) reject(e *Error) *Error {
	metrics.ReportsTotal.WithLabelValues(string(e.Kind)).Inc()
	return e
}

// record saves the attempt and announces it. Both are best effort: a
// failure here never changes what the caller gets back.
func (s *Service) record(report *models.Report, failure *Error) {
	outcome := models.OutcomeOK
	var errMsg string
	if failure != nil {
		outcome = string(failure.Kind)
		errMsg = failure.Message
	}

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if s.history != nil {
		err := s.history.SaveReport(ctx, &models.ReportRecord{
			ID:           report.ID,
			Backend:      report.Backend,
			Model:        report.Model,
			Prompt:       report.Prompt,
			Text:         report.Text,
			ImageSHA256:  report.ImageSHA256,
			ImageBytes:   report.ImageBytes,
			DurationMs:   report.DurationMillis(),
			Outcome:      outcome,
			ErrorMessage: errMsg,
			CreatedAt:    report.CreatedAt,
		})
		if err != nil {
			metrics.HistoryWriteErrors.Inc()
			log.WithError(err).WithField("report_id", report.ID).Warn("Failed to save report history")
		}
	}

	if s.events != nil {
		err := s.events.PublishReportEvent(ctx, models.ReportEvent{
			ID:         report.ID,
			Backend:    report.Backend,
			Model:      report.Model,
			Outcome:    outcome,
			DurationMs: report.DurationMillis(),
			CreatedAt:  report.CreatedAt,
		})
		if err != nil {
			metrics.EventPublishErrors.Inc()
			log.WithError(err).WithField("report_id", report.ID).Warn("Failed to publish report event")
		}
	}
}

// Status describes the backend for the page banner.
func (s *Service) Status() models.Status {
	st := models.Status{
		Backend:   s.cfg.Backend,
		Model:     s.cfg.ModelID,
		Device:    s.cfg.Device,
		Precision: s.cfg.Precision,
		Loaded:    s.initError == nil,
	}
	switch {
	case s.initError != nil:
		st.LoadError = s.initError.Err.Error()
		st.Level = "warning"
		st.Message = fmt.Sprintf("Warning: the model is not loaded or failed to load: %v", s.initError.Err)
	case s.cfg.Device == "cpu":
		st.Level = "info"
		st.Message = "Note: the model runs on CPU. Loading and report generation will be very slow and may use a lot of memory."
	default:
		st.Level = "success"
		st.Message = "The model loaded successfully on GPU and is ready to use."
	}
	return st
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
