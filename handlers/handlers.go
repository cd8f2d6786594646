package handlers

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"medreport/models"
	"medreport/service"
	"medreport/version"
)

//go:embed templates/*.html
var templateFS embed.FS

const pageTitle = "Medical Report Assistant (experimental)"

// ReportGenerator produces reports and describes the loaded backend
type ReportGenerator interface {
	Generate(ctx context.Context, image []byte, prompt string) (*models.Report, error)
	Status() models.Status
}

// HistoryReader reads saved generation attempts
type HistoryReader interface {
	GetReport(ctx context.Context, id string) (*models.ReportRecord, error)
	ListReports(ctx context.Context, limit int) ([]models.ReportRecord, error)
	CountByOutcome(ctx context.Context) (map[string]int, error)
	Ping(ctx context.Context) error
}

// EventsStatus reports whether the report event publisher holds a live
// broker connection
type EventsStatus interface {
	IsConnected() bool
}

// Handlers represents the HTTP handlers
type Handlers struct {
	svc     ReportGenerator
	history HistoryReader
	events  EventsStatus
}

// NewHandlers creates new HTTP handlers. history may be nil.
func NewHandlers(svc ReportGenerator, history HistoryReader) *Handlers {
	return &Handlers{
		svc:     svc,
		history: history,
	}
}

// WithEvents adds the event publisher to the health check
func (h *Handlers) WithEvents(events EventsStatus) *Handlers {
	h.events = events
	return h
}

// Templates parses the embedded page templates for gin's HTML renderer
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// HealthCheck handles health check requests. A backend that failed to load
// does not make the service unhealthy: the form still explains the failure.
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := h.svc.Status()
	resp := gin.H{
		"status":       "healthy",
		"service":      version.Service,
		"backend":      status.Backend,
		"model_loaded": status.Loaded,
	}

	if h.history != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.history.Ping(ctx); err != nil {
			log.WithError(err).Warn("History database ping failed")
			resp["database"] = "unreachable"
		} else {
			resp["database"] = "ok"
		}
	}

	if h.events != nil {
		if h.events.IsConnected() {
			resp["events"] = "connected"
		} else {
			resp["events"] = "disconnected"
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetStatus returns the backend status shown on the page banner
func (h *Handlers) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

// GetVersion returns build information
func (h *Handlers) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	case service.KindUpstream, service.KindMalformed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
