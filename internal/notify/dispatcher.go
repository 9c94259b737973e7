package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 3 * time.Second

// DefaultMaxInFlight caps concurrent deliveries. Events arriving while the
// cap is reached are dropped.
const DefaultMaxInFlight = 64

// Dispatcher is the fire-and-forget front of a Sink. Notify returns
// immediately; the send runs on its own goroutine under a timeout and its
// outcome is only logged.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	log     zerolog.Logger
	slots   chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher wraps sink. A nil sink yields a dispatcher that drops
// everything.
func NewDispatcher(sink Sink, timeout time.Duration, maxInFlight int, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Dispatcher{
		sink:    sink,
		timeout: timeout,
		log:     log,
		slots:   make(chan struct{}, maxInFlight),
	}
}

func (d *Dispatcher) Notify(ev Event) {
	if d == nil || d.sink == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.Category == "" {
		ev.Category = CategoryOf(ev.Type)
	}
	// wg.Add happens under mu so it never races the Wait in Close.
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Debug().Str("event", string(ev.Type)).Msg("notification dropped: dispatcher closed")
		return
	}
	select {
	case d.slots <- struct{}{}:
	default:
		d.mu.Unlock()
		d.log.Warn().Str("event", string(ev.Type)).Msg("notification dropped: too many in flight")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("notification sink panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.sink.Send(ctx, ev); err != nil {
			d.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("notification delivery failed")
		}
	}()
}

// Wait blocks until every in-flight delivery has finished without closing
// the dispatcher. Only call it when no Notify can run concurrently.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Close stops accepting events and blocks until every in-flight delivery
// has finished. Events notified afterwards are dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
