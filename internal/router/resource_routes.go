package router

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/handler"
	"github.com/iliyamo/pixvault/internal/middleware"
)

// RegisterResources registers upload and fetch. Uploads accept an optional
// session so the resource records its owner; fetches are public.
func RegisterResources(e *echo.Echo, h *handler.ResourceHandler, d Deps, log zerolog.Logger) {
	upload := []echo.MiddlewareFunc{middleware.LoadSession(d.Sessions, log)}
	if d.Limits.Enabled {
		upload = append(upload, middleware.RateLimit(d.Limiter, d.Limits.Upload, log, d.Notifier))
	}
	e.POST("/v1/resources", h.Upload, upload...)
	e.GET("/i/:name", h.Fetch)
}
