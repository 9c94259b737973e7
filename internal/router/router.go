// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/config"
	"github.com/iliyamo/pixvault/internal/handler"
	"github.com/iliyamo/pixvault/internal/middleware"
	"github.com/iliyamo/pixvault/internal/notify"
	"github.com/iliyamo/pixvault/internal/repository"
	"github.com/iliyamo/pixvault/internal/service"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Cfg       config.Config
	Limits    config.RateLimitConfig
	Accounts  *repository.AccountRepo
	Sessions  *repository.SessionRepo
	Limiter   *service.RateLimiter
	Lifecycle *service.Lifecycle
	Notifier  notify.Notifier
	Store     handler.Pinger
	Log       zerolog.Logger
}

// New builds the echo instance with the shared middleware stack and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(requestLogger(d.Log))
	// Multipart framing on top of the largest accepted payload.
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dK", d.Cfg.MaxUploadBytes/1024+64)))

	RegisterRoutes(e, d.Store)
	RegisterAuth(e, handler.NewAuthHandler(d.Cfg, d.Limits, d.Accounts, d.Sessions, d.Limiter, d.Notifier, d.Log), d.Sessions, d.Log)
	RegisterResources(e, handler.NewResourceHandler(d.Lifecycle, d.Limiter, d.Limits, d.Notifier, d.Log), d, d.Log)
	RegisterInternal(e, handler.NewSweepHandler(d.Lifecycle, d.Log), d.Cfg.SchedulerSecret)
	return e
}

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, store handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if store != nil {
		e.GET("/readyz", handler.Ready(store))
	}
}

// RegisterInternal mounts maintenance endpoints. They are meant for an
// external scheduler and are guarded by a bearer token when a secret is set.
func RegisterInternal(e *echo.Echo, s *handler.SweepHandler, schedulerSecret string) {
	g := e.Group("/internal", middleware.SchedulerAuth(schedulerSecret))
	g.POST("/sweep", s.Run)
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency.Round(time.Microsecond)).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
