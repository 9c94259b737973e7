package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/repository"
	"github.com/iliyamo/pixvault/internal/utils"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

// ContextUserID is the echo context key set by LoadSession.
const ContextUserID = "user_id"

// SessionToken returns the token presented by the client: the session cookie
// first, then an Authorization bearer for non-browser clients. Values that
// are not well-formed tokens are ignored.
func SessionToken(c echo.Context) string {
	if ck, err := c.Cookie(SessionCookie); err == nil && utils.IsSessionToken(ck.Value) {
		return ck.Value
	}
	if raw, ok := bearer(c); ok && utils.IsSessionToken(raw) {
		return raw
	}
	return ""
}

// LoadSession resolves the presented session, if any, and stores its user
// id under ContextUserID. It never rejects a request; routes that need an
// account check UserID themselves.
func LoadSession(sessions *repository.SessionRepo, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := SessionToken(c)
			if tok == "" {
				return next(c)
			}
			s, err := sessions.Resolve(c.Request().Context(), tok)
			switch {
			case err == nil:
				c.Set(ContextUserID, s.UserID)
			case errors.Is(err, repository.ErrUnauthorized):
				// unknown or expired: treat as anonymous
			default:
				log.Warn().Err(err).Msg("session lookup failed, continuing anonymously")
			}
			return next(c)
		}
	}
}

// UserID returns the account id LoadSession attached, or "" for anonymous
// requests.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ContextUserID).(string); ok {
		return s
	}
	return ""
}
