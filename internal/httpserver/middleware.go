package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	apperrors "github.com/ToastWithCheddar/finance-tracker-sub003/internal/errors"
)

// errorHandlingMiddleware converts structured errors returned by handlers
// into JSON responses with the right status code. Echo's own HTTPErrors
// pass through untouched so built-in middleware keeps its semantics.
func errorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}

	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound:
		slog.Info("Request rejected", attrs...)
	case apperrors.TypeUnavailable, apperrors.TypeExternal:
		slog.Warn("Upstream failure", attrs...)
	default:
		slog.Error("Internal error", attrs...)
	}
}
