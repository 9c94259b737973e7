package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/kv/kvtest"
	"github.com/iliyamo/pixvault/internal/utils"
)

var errBoom = errors.New("boom")

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// faultyStore fails selected operations whose key has the given prefix.
type faultyStore struct {
	kv.Store
	failSetNX  string
	failDelete string
	failList   bool
	setNXLoses string
}

func (f *faultyStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	if f.failSetNX != "" && strings.HasPrefix(key, f.failSetNX) {
		return false, errBoom
	}
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

func newAccountRepo(t *testing.T, s kv.Store) (*AccountRepo, *clock) {
	t.Helper()
	c := newClock()
	r := NewAccountRepo(s, utils.BcryptHasher{Cost: bcrypt.MinCost}, 6)
	r.Now = c.Now
	return r, c
}

func newStore(t *testing.T) kv.Store {
	t.Helper()
	s, _ := kvtest.New(t)
	return s
}
