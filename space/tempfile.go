package space

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/google/uuid"

	"medreport/metrics"
)

const tempFilePrefix = "medreport-"

// extensionFor maps an image MIME type to the file extension used for the
// uploaded temp file.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// writeTempImage writes data to a new, uniquely-named file in dir.
func writeTempImage(dir string, data []byte, mimeType string) (string, error) {
	path := filepath.Join(dir, tempFilePrefix+uuid.NewString()+extensionFor(mimeType))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp image: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp image: %w", err)
	}
	metrics.TempFilesCreated.Inc()
	return path, nil
}

// removeTempImage deletes a temp image. Failures are logged and counted but
// never replace the result of the call that created the file.
func removeTempImage(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		metrics.TempFileCleanupErrors.Inc()
		log.WithError(err).WithField("path", path).Error("Failed to remove temp image")
		return
	}
	metrics.TempFilesRemoved.Inc()
}
