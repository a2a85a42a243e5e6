package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/strata/models"
)

// fail answers with the status mapped from err's code.
func fail(c *gin.Context, err error) {
	code := models.ErrorCode(err)
	status := models.HTTPStatusFor(code)
	msg := err.Error()
	var se *models.ScrapeError
	if errors.As(err, &se) {
		msg = se.Message
	}
	if status >= http.StatusInternalServerError {
		slog.Warn("api: request failed", "path", c.Request.URL.Path, "code", code, "error", err)
	}
	abort(c, status, code, msg)
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Status:  models.StatusError,
		Code:    status,
		Error:   code,
		Message: msg,
	})
}

// NotFound answers unknown routes.
func NotFound(c *gin.Context) {
	abort(c, http.StatusNotFound, models.ErrCodeNotFound, "no route for "+c.Request.Method+" "+c.Request.URL.Path)
}
