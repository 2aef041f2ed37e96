package rest

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields validation.Errors `json:"fields,omitempty"`
}

// statusFor maps the common error classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrorBadRequest), errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders every error returned by a handler as JSON. Unmapped
// errors are logged and hidden behind a generic 500.
func (h *Handler) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	ctx := c.Request().Context()
	var (
		status int
		body   errorResponse
		he     *echo.HTTPError
		verrs  validation.Errors
	)

	switch {
	case errors.As(err, &verrs):
		status = http.StatusBadRequest
		body = errorResponse{Error: common.ErrorValidation.Error(), Fields: verrs}
	case errors.As(err, &he):
		status = he.Code
		body = errorResponse{Error: http.StatusText(he.Code)}
	default:
		status = statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error(ctx, "request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
			body = errorResponse{Error: common.ErrorInternal.Error()}
		} else {
			body = errorResponse{Error: err.Error()}
		}
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		h.logger.Warn(ctx, "writing error response", "error", werr)
	}
}
