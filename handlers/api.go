package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"medreport/database"
	"medreport/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// GenerateReport handles multipart report requests from API clients
func (h *Handlers) GenerateReport(c *gin.Context) {
	image, prompt, uploadErr := readUpload(c)
	if uploadErr != nil {
		code := statusForKind(uploadErr.Kind)
		if isTooLarge(uploadErr) {
			code = http.StatusRequestEntityTooLarge
		}
		c.JSON(code, gin.H{"error": uploadErr.Message, "kind": uploadErr.Kind})
		return
	}

	report, err := h.svc.Generate(c.Request.Context(), image, prompt)
	if err != nil {
		var svcErr *service.Error
		if !errors.As(err, &svcErr) {
			log.WithError(err).Error("Unexpected error while generating report")
			svcErr = &service.Error{Kind: service.KindInternal, Message: "Error: an unexpected error occurred while generating the report."}
		}
		c.JSON(statusForKind(svcErr.Kind), gin.H{"error": svcErr.Message, "kind": svcErr.Kind})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          report.ID,
		"report":      report.Text,
		"backend":     report.Backend,
		"model":       report.Model,
		"duration_ms": report.DurationMillis(),
		"created_at":  report.CreatedAt,
	})
}

// ListReports returns recent history rows
func (h *Handlers) ListReports(c *gin.Context) {
	if !h.historyEnabled(c) {
		return
	}

	limit := defaultListLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, maxListLimit)
	}

	reports, err := h.history.ListReports(c.Request.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to list reports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// GetReport returns a single history row
func (h *Handlers) GetReport(c *gin.Context) {
	if !h.historyEnabled(c) {
		return
	}

	report, err := h.history.GetReport(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to get report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetStats returns history counts by outcome
func (h *Handlers) GetStats(c *gin.Context) {
	if !h.historyEnabled(c) {
		return
	}

	counts, err := h.history.CountByOutcome(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Failed to get report stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get report stats"})
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"by_outcome": counts, "total": total})
}

func (h *Handlers) historyEnabled(c *gin.Context) bool {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report history is disabled"})
		return false
	}
	return true
}
