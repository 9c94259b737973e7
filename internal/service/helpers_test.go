package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/kv/kvtest"
	"github.com/iliyamo/pixvault/internal/notify"
	"github.com/iliyamo/pixvault/internal/repository"
	"github.com/iliyamo/pixvault/internal/utils"
)

var errBoom = errors.New("boom")

// pngBytes is enough of a PNG for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// faultyStore fails operations on keys with a configured prefix.
type faultyStore struct {
	kv.Store
	failGet    string
	failSet    string
	failDelete string
	failList   bool
	setNXLoses string
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet != "" && strings.HasPrefix(key, f.failGet) {
		return nil, errBoom
	}
	return f.Store.Get(ctx, key)
}

func (f *faultyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet != "" && strings.HasPrefix(key, f.failSet) {
		return errBoom
	}
	return f.Store.Set(ctx, key, value)
}

func (f *faultyStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	if f.setNXLoses != "" && strings.HasPrefix(key, f.setNXLoses) {
		return false, nil
	}
	return f.Store.SetNX(ctx, key, value)
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	if f.failDelete != "" && strings.HasPrefix(key, f.failDelete) {
		return errBoom
	}
	return f.Store.Delete(ctx, key)
}

func (f *faultyStore) List(ctx context.Context, prefix string) ([]string, error) {
	if f.failList {
		return nil, errBoom
	}
	return f.Store.List(ctx, prefix)
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store  *faultyStore
	clock  *clock
	events *recorder
	lc     *Lifecycle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base, _ := kvtest.New(t)
	fs := &faultyStore{Store: base}
	c := newClock()
	rec := &recorder{}
	lc := NewLifecycle(
		repository.NewResourceRepo(fs),
		repository.NewKVPayloads(fs),
		repository.NewExpiryIndex(fs),
		utils.UploadValidator{MaxBytes: 1 << 20, AllowedPrefixes: []string{"image/"}},
		zerolog.Nop(),
		rec,
	)
	lc.Now = c.Now
	return &fixture{store: fs, clock: c, events: rec, lc: lc}
}

func (f *fixture) keys(t *testing.T, prefix string) []string {
	t.Helper()
	keys, err := f.store.Store.List(context.Background(), prefix)
	if err != nil {
		t.Fatalf("list %s: %v", prefix, err)
	}
	return keys
}
