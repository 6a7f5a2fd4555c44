package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/mindbase/internal/auth"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/service"
	"github.com/raphaelgruber/mindbase/internal/storage"
)

// classify maps an error onto an HTTP status and a stable error code.
// Internal failures hide their message.
func classify(err error) (int, models.APIError) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, models.APIError{Message: err.Error(), Code: "not_found"}
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest, models.APIError{Message: err.Error(), Code: "invalid_input"}
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, models.APIError{Message: "request body too large", Code: "too_large"}
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, models.APIError{Message: err.Error(), Code: "unauthorized"}
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, models.APIError{Message: "storage unavailable", Code: "store_unavailable"}
	case errors.Is(err, service.ErrModelUnavailable):
		return http.StatusBadGateway, models.APIError{Message: "language model unavailable", Code: "model_unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, models.APIError{Message: "request timed out", Code: "timeout"}
	}
	return http.StatusInternalServerError, models.APIError{Message: "internal error", Code: "internal"}
}

// respondError writes the error envelope and records err for the request log.
func respondError(c *gin.Context, err error) {
	status, apiErr := classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, models.ErrorEnvelope{Error: apiErr})
}

func abortWithError(c *gin.Context, status int, code string, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, models.ErrorEnvelope{Error: models.APIError{Message: err.Error(), Code: code}})
}

// badRequest reports a malformed request body or query.
func badRequest(c *gin.Context, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		respondError(c, err)
		return
	}
	abortWithError(c, http.StatusBadRequest, "invalid_input", err)
}
