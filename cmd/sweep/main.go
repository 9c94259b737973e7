// Command sweep runs one expiry sweep, for cron-style schedulers.
//
// By default it connects to Redis and sweeps in-process. With -trigger it
// instead POSTs to a running server's /internal/sweep, signing a short-lived
// bearer token when SCHEDULER_SECRET is set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/pixvault/internal/app"
	"github.com/iliyamo/pixvault/internal/config"
	"github.com/iliyamo/pixvault/internal/service"
	"github.com/iliyamo/pixvault/internal/utils"
)

func main() {
	trigger := flag.String("trigger", "", "base URL of a running server; sweep remotely instead of in-process")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := config.NewLogger(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SweepTimeout)
	defer cancel()

	var (
		res service.SweepResult
		err error
	)
	if *trigger != "" {
		res, err = remoteSweep(ctx, *trigger, cfg.SchedulerSecret)
	} else {
		res, err = localSweep(ctx, cfg)
	}
	if err != nil {
		log.Error().Err(err).Msg("sweep failed")
		os.Exit(1)
	}
	log.Info().
		Int("scanned", res.Scanned).
		Int("purged", res.Purged).
		Int("orphans", res.Orphans).
		Int("failed", res.Failed).
		Msg("sweep done")
}

func localSweep(ctx context.Context, cfg config.Config) (service.SweepResult, error) {
	a, err := app.New(ctx, cfg, config.NewLogger(cfg, nil))
	if err != nil {
		return service.SweepResult{}, err
	}
	defer a.Close()
	return a.Lifecycle.Sweep(ctx)
}

func remoteSweep(ctx context.Context, base, secret string) (service.SweepResult, error) {
	var res service.SweepResult
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+"/internal/sweep", nil)
	if err != nil {
		return res, err
	}
	if secret != "" {
		tok, err := utils.NewSchedulerToken(secret, time.Minute)
		if err != nil {
			return res, fmt.Errorf("sign scheduler token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("sweep endpoint returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("decode sweep result: %w", err)
	}
	return res, nil
}
