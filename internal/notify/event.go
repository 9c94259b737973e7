// Package notify delivers account, security and activity events to external
// sinks. Delivery is best-effort: a send that fails is logged and dropped,
// and no caller ever waits on one.
package notify

import (
	"context"
	"time"
)

// Category groups event types for downstream routing.
type Category string

const (
	CategoryAccount  Category = "account"
	CategorySecurity Category = "security"
	CategoryActivity Category = "activity"
)

// EventType names what happened.
type EventType string

const (
	EventSignup          EventType = "account.signup"
	EventLoginSuccess    EventType = "auth.login.success"
	EventLoginFailure    EventType = "auth.login.failure"
	EventLogout          EventType = "auth.logout"
	EventRateLimited     EventType = "security.rate_limited"
	EventProbeEscalated  EventType = "security.probe_escalated"
	EventResourceCreated EventType = "resource.uploaded"
	EventResourceExpired EventType = "resource.expired"
)

var categories = map[EventType]Category{
	EventSignup:          CategoryAccount,
	EventLoginSuccess:    CategoryAccount,
	EventLogout:          CategoryAccount,
	EventLoginFailure:    CategorySecurity,
	EventRateLimited:     CategorySecurity,
	EventProbeEscalated:  CategorySecurity,
	EventResourceCreated: CategoryActivity,
	EventResourceExpired: CategoryActivity,
}

// CategoryOf returns the category an event type belongs to.
func CategoryOf(t EventType) Category {
	if c, ok := categories[t]; ok {
		return c
	}
	return CategoryActivity
}

// Event is the payload handed to sinks.
type Event struct {
	Type       EventType      `json:"type"`
	Category   Category       `json:"category"`
	UserID     string         `json:"user_id,omitempty"`
	ClientAddr string         `json:"client_addr,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent stamps t with its category and the current time.
func NewEvent(t EventType) Event {
	return Event{Type: t, Category: CategoryOf(t), OccurredAt: time.Now().UTC()}
}

// Sink delivers one event.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Send(ctx context.Context, ev Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, ev)
}

// Notifier is what the rest of the service depends on: it never blocks and
// never fails.
type Notifier interface {
	Notify(ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(Event) {}
