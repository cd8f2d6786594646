package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"medreport/service"
)

const multipartMemory = 8 << 20

// readUpload extracts the image and the prompt from a form submission.
// A missing image is not an error here: the service decides which message
// wins when several inputs are wrong.
func readUpload(c *gin.Context) (image []byte, prompt string, uploadErr *service.Error) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", &service.Error{
				Kind:    service.KindValidation,
				Message: fmt.Sprintf("Error: the upload is larger than %d MB.", tooLarge.Limit>>20),
				Err:     err,
			}
		}
		return nil, "", &service.Error{Kind: service.KindValidation, Message: "Error: the form could not be read.", Err: err}
	}

	prompt = c.PostForm("prompt")

	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, prompt, nil
	}
	if err != nil {
		return nil, prompt, &service.Error{Kind: service.KindValidation, Message: "Error: the uploaded image could not be read.", Err: err}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, prompt, &service.Error{Kind: service.KindInternal, Message: "Error: the uploaded image could not be opened.", Err: err}
	}
	defer f.Close()

	image, err = io.ReadAll(f)
	if err != nil {
		return nil, prompt, &service.Error{Kind: service.KindInternal, Message: "Error: the uploaded image could not be read.", Err: err}
	}
	return image, prompt, nil
}

func isTooLarge(err *service.Error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}
