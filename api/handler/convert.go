package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/strata/convert"
	"github.com/use-agent/strata/models"
)

// WordToPDF handles POST /api/convert/word-to-pdf. The upload is the
// multipart field "file"; bodies above maxBytes are refused with 413.
func WordToPDF(conv *convert.Converter, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if conv == nil {
			abort(c, http.StatusServiceUnavailable, models.ErrCodeUnavailable, "converter is not configured")
			return
		}
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
				abort(c, http.StatusRequestEntityTooLarge, models.ErrCodeInvalidInput,
					fmt.Sprintf("upload exceeds %d MB", maxBytes>>20))
				return
			}
			abort(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "no file sent, use form-data field 'file'")
			return
		}
		if fh.Filename == "" {
			abort(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "empty filename")
			return
		}
		if !convert.Allowed(fh.Filename) {
			abort(c, http.StatusUnsupportedMediaType, models.ErrCodeUnsupported, "unsupported format, use .doc or .docx")
			return
		}

		f, err := fh.Open()
		if err != nil {
			fail(c, models.NewScrapeError(models.ErrCodeInvalidInput, "read upload", err))
			return
		}
		defer f.Close()

		path, err := conv.Convert(c.Request.Context(), fh.Filename, f)
		if err != nil {
			fail(c, err)
			return
		}
		c.FileAttachment(path, convert.PDFName(fh.Filename))
	}
}
