package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/middleware"
	"github.com/iliyamo/pixvault/internal/repository"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

// statusOf maps an error to its HTTP status and a stable error code.
func statusOf(err error) (int, string) {
	var rl *repository.RateLimitedError
	switch {
	case errors.As(err, &rl):
		return http.StatusTooManyRequests, "too_many_requests"
	case errors.Is(err, repository.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, repository.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrGone):
		return http.StatusGone, "gone"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError renders err. Client errors carry their message; anything
// unexpected is logged with its cause and answered with a generic body.
func writeError(c echo.Context, log zerolog.Logger, err error) error {
	status, code := statusOf(err)
	body := echo.Map{"error": code}
	switch status {
	case http.StatusInternalServerError:
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("request failed")
		body["message"] = "internal error"
	case http.StatusUnauthorized:
		// never say which half of the credential was wrong
		body["message"] = "invalid credentials"
	case http.StatusTooManyRequests:
		var rl *repository.RateLimitedError
		errors.As(err, &rl)
		body["message"] = "rate limit exceeded"
		body["retry_after"] = middleware.SetRetryAfter(c, rl.RetryAfter)
	default:
		body["message"] = err.Error()
	}
	return c.JSON(status, body)
}
