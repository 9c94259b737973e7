package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/model"
	"github.com/iliyamo/pixvault/internal/repository"
)

const rateLimitPrefix = "rl:"

// Rate-limited actions. Each gets its own counter namespace.
const (
	ActionAuthFailure = "auth_fail"
	ActionUpload      = "upload"
	ActionNotFound    = "not_found"
	ActionSignup      = "signup"
)

// Policy is the (limit, window) pair for one action. A Limit of zero or
// less means the action is only counted, never blocked.
type Policy struct {
	Action string
	Limit  int
	Window time.Duration
}

// Unbounded reports whether the policy only observes.
func (p Policy) Unbounded() bool { return p.Limit <= 0 }

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed bool
	// Count is the effective count in the current window after this call.
	Count      int
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Remaining is how many more attempts the window allows.
func (d Decision) Remaining() int {
	if d.Limit <= 0 {
		return -1
	}
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// SubjectKey composes the counter key for an action and subject, e.g. a
// client address.
func SubjectKey(action, subject string) string {
	if subject == "" {
		subject = "unknown"
	}
	return rateLimitPrefix + action + ":" + subject
}

// RateLimiter keeps fixed-window counters in the store.
//
// Each check is a read followed by a separate write, with nothing in
// between to stop another request updating the same counter. Concurrent
// requests from one subject can therefore overwrite each other's increment
// and the counter undercounts; a burst of N parallel requests may exceed the
// limit by up to N-1. The limiter is an abuse deterrent, not a security
// boundary. Counters must not be cached in process memory: several server
// instances share them through the store.
type RateLimiter struct {
	Store kv.Store
	Now   func() time.Time
}

func NewRateLimiter(s kv.Store) *RateLimiter { return &RateLimiter{Store: s, Now: time.Now} }

func (l *RateLimiter) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

// load returns the counter as it applies at now: a missing or lapsed window
// reads as a zero count with no reset time yet.
func (l *RateLimiter) load(ctx context.Context, key string, now time.Time) (model.RateLimitCounter, error) {
	var c model.RateLimitCounter
	err := kv.GetJSON(ctx, l.Store, key, &c)
	if errors.Is(err, kv.ErrNotFound) {
		return model.RateLimitCounter{SubjectKey: key}, nil
	}
	if err != nil {
		return model.RateLimitCounter{}, fmt.Errorf("load counter %s: %w", key, err)
	}
	if !c.Open(now) {
		return model.RateLimitCounter{SubjectKey: key}, nil
	}
	return c, nil
}

// CheckAndIncrement counts one event against subjectKey.
//
// When the effective count has already reached limit the call is Blocked
// and nothing is written, so continued hammering neither grows the counter
// nor pushes the window out. Otherwise the count is incremented; the reset
// time is kept while the window is open and set to now+window when a new
// window starts.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, subjectKey string, limit int, window time.Duration) (Decision, error) {
	now := l.now()
	c, err := l.load(ctx, subjectKey, now)
	if err != nil {
		return Decision{}, err
	}
	if limit > 0 && c.Count >= limit {
		return Decision{
			Allowed:    false,
			Count:      c.Count,
			Limit:      limit,
			RetryAfter: c.WindowResetAt.Sub(now),
			ResetAt:    c.WindowResetAt,
		}, nil
	}
	if c.WindowResetAt.IsZero() {
		c.WindowResetAt = now.Add(window)
	}
	c.Count++
	if err := kv.SetJSON(ctx, l.Store, subjectKey, c); err != nil {
		return Decision{}, fmt.Errorf("write counter %s: %w", subjectKey, err)
	}
	return Decision{Allowed: true, Count: c.Count, Limit: limit, ResetAt: c.WindowResetAt}, nil
}

// Peek reports what CheckAndIncrement would decide without counting.
func (l *RateLimiter) Peek(ctx context.Context, subjectKey string, limit int) (Decision, error) {
	now := l.now()
	c, err := l.load(ctx, subjectKey, now)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Allowed: true, Count: c.Count, Limit: limit, ResetAt: c.WindowResetAt}
	if limit > 0 && c.Count >= limit {
		d.Allowed = false
		d.RetryAfter = c.WindowResetAt.Sub(now)
	}
	return d, nil
}

// Hit counts one event for subject under p.
func (l *RateLimiter) Hit(ctx context.Context, p Policy, subject string) (Decision, error) {
	return l.CheckAndIncrement(ctx, SubjectKey(p.Action, subject), p.Limit, p.Window)
}

// Check peeks at subject's counter under p.
func (l *RateLimiter) Check(ctx context.Context, p Policy, subject string) (Decision, error) {
	return l.Peek(ctx, SubjectKey(p.Action, subject), p.Limit)
}

// Err converts a blocked decision into a *repository.RateLimitedError.
func (d Decision) Err(action string) error {
	if d.Allowed {
		return nil
	}
	return &repository.RateLimitedError{Action: action, RetryAfter: d.RetryAfter}
}
