package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:           http.StatusBadRequest,
	domain.KindDuplicateAccount:     http.StatusConflict,
	domain.KindInvalidCredentials:   http.StatusUnauthorized,
	domain.KindInvalidToken:         http.StatusUnauthorized,
	domain.KindInvalidTwoFactorCode: http.StatusUnauthorized,
	domain.KindEmailNotVerified:     http.StatusForbidden,
	domain.KindConcurrencyConflict:  http.StatusConflict,
	domain.KindDependency:           http.StatusServiceUnavailable,
	domain.KindNotFound:             http.StatusNotFound,
}

// NewErrorHandler maps lifecycle errors to HTTP responses. It is installed as
// echo's HTTPErrorHandler so handlers can simply return the error.
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := describe(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Any("error", err),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.WarnContext(c.Request().Context(), "write error response", slog.Any("error", err))
		}
	}
}

func describe(err error) (int, errorBody) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		status, ok := kindStatus[derr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		message := derr.Detail
		// Storage and delivery causes stay in the logs.
		if derr.Kind == domain.KindDependency {
			message = "service temporarily unavailable"
		}
		return status, errorBody{Error: errorDetail{Code: string(derr.Kind), Message: message}}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
		return httpErr.Code, errorBody{Error: errorDetail{Code: "http_error", Message: message}}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable, errorBody{Error: errorDetail{Code: "timeout", Message: "request was cancelled"}}
	}

	return http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "internal_error", Message: "internal server error"}}
}
