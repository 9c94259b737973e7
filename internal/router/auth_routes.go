package router

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/handler"
	"github.com/iliyamo/pixvault/internal/middleware"
	"github.com/iliyamo/pixvault/internal/repository"
)

// RegisterAuth registers the session endpoints under /v1/auth. Signup and
// login apply their own rate limits inside the handler because login only
// counts failures.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, sessions *repository.SessionRepo, log zerolog.Logger) {
	g := e.Group("/v1/auth")
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout, middleware.LoadSession(sessions, log))
	g.POST("/verify", a.Verify)
}
