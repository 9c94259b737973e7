// Package config loads application configuration from environment variables.
// Each concern has its own Load* function; every variable has a default so a
// bare environment starts a working dev server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds the core runtime settings.
type Config struct {
	Env  string // application environment ("dev", "test", "prod")
	Port string // HTTP port to listen on
	// Namespace prefixes every key this deployment writes to the store.
	Namespace string

	BcryptCost     int
	MinPasswordLen int
	SessionTTL     time.Duration

	MaxUploadBytes int64
	// MaxResourceTTL caps the ttl of ephemeral uploads; zero disables the cap.
	MaxResourceTTL time.Duration

	// SweepInterval enables the in-process sweep ticker when positive.
	SweepInterval time.Duration
	SweepTimeout  time.Duration
	// SchedulerSecret, when set, requires an HS256 bearer on /internal/sweep.
	SchedulerSecret string

	ShutdownTimeout time.Duration
	LogLevel        string
}

// Load reads the core settings.
func Load() Config {
	return Config{
		Env:             envStr("APP_ENV", "dev"),
		Port:            envStr("APP_PORT", "8080"),
		Namespace:       envStr("KV_NAMESPACE", "pixvault"),
		BcryptCost:      envInt("BCRYPT_COST", bcrypt.DefaultCost),
		MinPasswordLen:  envInt("PASSWORD_MIN_LEN", 6),
		SessionTTL:      envDur("SESSION_TTL", 7*24*time.Hour),
		MaxUploadBytes:  int64(envInt("UPLOAD_MAX_BYTES", 10<<20)),
		MaxResourceTTL:  envDur("UPLOAD_MAX_TTL", 30*24*time.Hour),
		SweepInterval:   envDur("SWEEP_INTERVAL", 0),
		SweepTimeout:    envDur("SWEEP_TIMEOUT", 2*time.Minute),
		SchedulerSecret: envStr("SCHEDULER_SECRET", ""),
		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        envStr("LOG_LEVEL", "info"),
	}
}

// IsDev reports whether the service runs in a local development setup.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "", "dev", "development", "local":
		return true
	}
	return false
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("APP_PORT is empty"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d outside [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.MinPasswordLen < 1 {
		errs = append(errs, fmt.Errorf("PASSWORD_MIN_LEN must be positive, got %d", c.MinPasswordLen))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must not be negative, got %s", c.SweepInterval))
	}
	return errors.Join(errs...)
}
