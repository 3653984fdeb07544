package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maloquacious/taskflow/internal/store"
)

func writeJSONError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": msg,
	})
}

// fail maps a store error onto the HTTP status and error code.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		writeJSONError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, store.ErrProjectNotFound), errors.Is(err, store.ErrTaskNotFound):
		writeJSONError(c, http.StatusNotFound, "not_found", err.Error())
	default:
		s.log.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		writeJSONError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
