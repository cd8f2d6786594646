package handlers

import (
	"encoding/base64"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"medreport/models"
	"medreport/service"
)

type pageData struct {
	Title      string
	Status     models.Status
	Prompt     string
	Output     string
	ReportID   string
	DurationMs int64
	// Preview is the submitted image as a data URL, kept on the page after
	// the form posts back.
	Preview template.URL
}

// previewURL returns a data URL for image, or "" when it does not sniff as
// an image.
func previewURL(image []byte) template.URL {
	if len(image) == 0 {
		return ""
	}
	mimeType := http.DetectContentType(image)
	if !strings.HasPrefix(mimeType, "image/") {
		return ""
	}
	return template.URL("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image))
}

// Index renders the empty form
func (h *Handlers) Index(c *gin.Context) {
	h.render(c, http.StatusOK, pageData{})
}

// SubmitForm generates a report from the form and renders it, or the error
// message, into the output field
func (h *Handlers) SubmitForm(c *gin.Context) {
	image, prompt, uploadErr := readUpload(c)
	data := pageData{Prompt: prompt, Preview: previewURL(image)}

	if uploadErr != nil {
		data.Output = uploadErr.Message
		h.render(c, http.StatusOK, data)
		return
	}

	report, err := h.svc.Generate(c.Request.Context(), image, prompt)
	if err != nil {
		var svcErr *service.Error
		if errors.As(err, &svcErr) {
			data.Output = svcErr.Message
		} else {
			log.WithError(err).Error("Unexpected error while generating report")
			data.Output = "Error: an unexpected error occurred while generating the report."
		}
		h.render(c, http.StatusOK, data)
		return
	}

	data.Output = report.Text
	data.ReportID = report.ID
	data.DurationMs = report.DurationMillis()
	h.render(c, http.StatusOK, data)
}

func (h *Handlers) render(c *gin.Context, code int, data pageData) {
	data.Title = pageTitle
	data.Status = h.svc.Status()

	c.HTML(code, "index.html", data)
}
