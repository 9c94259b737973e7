// Package app assembles the service from configuration. Both the HTTP
// server and the one-shot sweep command build on it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/config"
	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/notify"
	"github.com/iliyamo/pixvault/internal/repository"
	"github.com/iliyamo/pixvault/internal/router"
	"github.com/iliyamo/pixvault/internal/service"
	"github.com/iliyamo/pixvault/internal/utils"
)

// App holds the wired components.
type App struct {
	Cfg     config.Config
	Limits  config.RateLimitConfig
	Notify  config.NotifyConfig
	Storage config.StorageConfig
	Log     zerolog.Logger

	Redis      *redis.Client
	Store      *kv.RedisStore
	Accounts   *repository.AccountRepo
	Sessions   *repository.SessionRepo
	Limiter    *service.RateLimiter
	Lifecycle  *service.Lifecycle
	Dispatcher *notify.Dispatcher

	amqp *notify.AMQP
}

// New loads the per-concern configs, connects to Redis and wires the
// repositories and services.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Cfg:     cfg,
		Limits:  config.LoadRateLimitConfig(),
		Notify:  config.LoadNotifyConfig(),
		Storage: config.LoadStorageConfig(),
		Log:     log,
	}
	if err := a.Storage.Validate(); err != nil {
		return nil, err
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		return nil, err
	}
	a.Redis = rdb
	a.Store = kv.NewRedisStore(rdb, cfg.Namespace)

	payloads, err := a.payloadStore(ctx)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	a.Dispatcher = notify.NewDispatcher(a.sink(), a.Notify.Timeout, a.Notify.MaxInFlight, log.With().Str("component", "notify").Logger())
	a.Accounts = repository.NewAccountRepo(a.Store, utils.BcryptHasher{Cost: cfg.BcryptCost}, cfg.MinPasswordLen)
	a.Sessions = repository.NewSessionRepo(a.Store)
	a.Limiter = service.NewRateLimiter(a.Store)
	a.Lifecycle = service.NewLifecycle(
		repository.NewResourceRepo(a.Store),
		payloads,
		repository.NewExpiryIndex(a.Store),
		utils.UploadValidator{MaxBytes: cfg.MaxUploadBytes, AllowedPrefixes: []string{"image/"}},
		log.With().Str("component", "lifecycle").Logger(),
		a.Dispatcher,
	)
	a.Lifecycle.MaxTTL = cfg.MaxResourceTTL
	return a, nil
}

func (a *App) payloadStore(ctx context.Context) (repository.PayloadStore, error) {
	if a.Storage.Backend != config.BackendS3 {
		return repository.NewKVPayloads(a.Store), nil
	}
	p, err := repository.NewS3Payloads(ctx, a.Storage.S3)
	if err != nil {
		return nil, fmt.Errorf("payload backend: %w", err)
	}
	a.Log.Info().Str("bucket", a.Storage.S3.Bucket).Msg("payloads stored in s3")
	return p, nil
}

// sink combines the configured notification targets; nil when there are
// none.
func (a *App) sink() notify.Sink {
	var sinks []notify.Sink
	if a.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(a.Notify.WebhookURL, &http.Client{Timeout: a.Notify.Timeout}))
	}
	if a.Notify.AMQPURL != "" {
		a.amqp = notify.NewAMQP(a.Notify.AMQPURL, a.Notify.Queue)
		sinks = append(sinks, a.amqp)
	}
	if len(sinks) == 0 {
		return nil
	}
	return notify.Multi(sinks...)
}

// Router builds the HTTP surface.
func (a *App) Router() *echo.Echo {
	return router.New(router.Deps{
		Cfg:       a.Cfg,
		Limits:    a.Limits,
		Accounts:  a.Accounts,
		Sessions:  a.Sessions,
		Limiter:   a.Limiter,
		Lifecycle: a.Lifecycle,
		Notifier:  a.Dispatcher,
		Store:     a.Store,
		Log:       a.Log,
	})
}

// Close drains pending notifications and releases connections.
func (a *App) Close() {
	a.Dispatcher.Close()
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("close amqp sink")
		}
	}
	if err := a.Redis.Close(); err != nil {
		a.Log.Warn().Err(err).Msg("close redis")
	}
}
