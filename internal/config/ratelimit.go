package config

import (
	"time"

	"github.com/iliyamo/pixvault/internal/service"
)

// RateLimitConfig holds one fixed-window policy per limited action.
type RateLimitConfig struct {
	Enabled     bool
	AuthFailure service.Policy
	Upload      service.Policy
	Signup      service.Policy
	// NotFound is counted only; ProbeEscalateAt is the count at which a
	// probe_escalated notification fires. Zero disables escalation.
	NotFound        service.Policy
	ProbeEscalateAt int
}

func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		AuthFailure: service.Policy{
			Action: service.ActionAuthFailure,
			Limit:  envInt("RATE_LIMIT_AUTH_FAIL_LIMIT", 10),
			Window: positiveDur(envDur("RATE_LIMIT_AUTH_FAIL_WINDOW", 15*time.Minute), 15*time.Minute),
		},
		Upload: service.Policy{
			Action: service.ActionUpload,
			Limit:  envInt("RATE_LIMIT_UPLOAD_LIMIT", 50),
			Window: positiveDur(envDur("RATE_LIMIT_UPLOAD_WINDOW", time.Hour), time.Hour),
		},
		Signup: service.Policy{
			Action: service.ActionSignup,
			Limit:  envInt("RATE_LIMIT_SIGNUP_LIMIT", 10),
			Window: positiveDur(envDur("RATE_LIMIT_SIGNUP_WINDOW", time.Hour), time.Hour),
		},
		NotFound: service.Policy{
			Action: service.ActionNotFound,
			Limit:  0,
			Window: positiveDur(envDur("RATE_LIMIT_NOT_FOUND_WINDOW", 10*time.Minute), 10*time.Minute),
		},
		ProbeEscalateAt: envInt("RATE_LIMIT_NOT_FOUND_ESCALATE_AT", 20),
	}
}

func positiveDur(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
