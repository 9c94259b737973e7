package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/notify"
	"github.com/iliyamo/pixvault/internal/service"
)

// ClientAddr is the subject every per-client limit is keyed on.
func ClientAddr(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// SetRetryAfter writes Retry-After in whole seconds, rounded up.
func SetRetryAfter(c echo.Context, d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 0 {
		secs = 0
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	return secs
}

// SetRateLimitHeaders exposes the window state of d to the client.
func SetRateLimitHeaders(c echo.Context, d service.Decision) {
	if d.Limit <= 0 {
		return
	}
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// RateLimit counts every request through it against p, keyed by client
// address. Blocked requests get a 429 with Retry-After and never reach the
// handler. A store failure lets the request through: the limiter deters
// abuse, it does not guard anything.
func RateLimit(l *service.RateLimiter, p service.Policy, log zerolog.Logger, n notify.Notifier) echo.MiddlewareFunc {
	if l == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if n == nil {
		n = notify.Nop{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			addr := ClientAddr(c)
			d, err := l.Hit(c.Request().Context(), p, addr)
			if err != nil {
				log.Warn().Err(err).Str("action", p.Action).Str("addr", addr).Msg("rate limit check failed, allowing")
				return next(c)
			}
			SetRateLimitHeaders(c, d)
			if d.Allowed {
				return next(c)
			}

			secs := SetRetryAfter(c, d.RetryAfter)
			ev := notify.NewEvent(notify.EventRateLimited)
			ev.ClientAddr = addr
			ev.UserID = UserID(c)
			ev.Metadata = map[string]any{"action": p.Action, "count": d.Count}
			n.Notify(ev)
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}
