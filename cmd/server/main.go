package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/pixvault/internal/app"
	"github.com/iliyamo/pixvault/internal/config"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	log := config.NewLogger(cfg, nil)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	// Closed once the sweeper has returned; Close must not run before that.
	sweepDone := make(chan struct{})
	if cfg.SweepInterval > 0 {
		go func() {
			defer close(sweepDone)
			a.Lifecycle.RunPeriodicSweep(ctx, cfg.SweepInterval, cfg.SweepTimeout)
		}()
		log.Info().Dur("every", cfg.SweepInterval).Msg("in-process sweep enabled")
	} else {
		close(sweepDone)
	}

	e := a.Router()
	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	select {
	case <-sweepDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("sweep still running at shutdown deadline")
	}
	log.Info().Msg("bye")
}
