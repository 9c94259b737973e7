package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/model"
)

// ExpiryIndex is the secondary index of ephemeral resources. Each entry is a
// key of the form "expiry:<unix millis, 13 digits>:<name>". The store offers
// no range queries, so finding due entries means enumerating all of them.
type ExpiryIndex struct {
	Store kv.Store
}

func NewExpiryIndex(s kv.Store) *ExpiryIndex { return &ExpiryIndex{Store: s} }

// ExpiryKey encodes an index key. Zero padding keeps lexicographic order
// equal to chronological order for any timestamp this service will see.
func ExpiryKey(expiresAt time.Time, name string) string {
	return fmt.Sprintf("%s%013d:%s", ExpiryPrefix, expiresAt.UnixMilli(), name)
}

// ParseExpiryKey decodes a key produced by ExpiryKey.
func ParseExpiryKey(key string) (model.ExpiryEntry, error) {
	rest, ok := strings.CutPrefix(key, ExpiryPrefix)
	if !ok {
		return model.ExpiryEntry{}, fmt.Errorf("expiry key %q: missing prefix", key)
	}
	ms, name, ok := strings.Cut(rest, ":")
	if !ok || name == "" {
		return model.ExpiryEntry{}, fmt.Errorf("expiry key %q: missing resource name", key)
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return model.ExpiryEntry{}, fmt.Errorf("expiry key %q: bad timestamp: %w", key, err)
	}
	return model.ExpiryEntry{
		Key:          key,
		ExpiresAt:    time.UnixMilli(millis).UTC(),
		ResourceName: name,
	}, nil
}

// Add records that name expires at expiresAt.
func (x *ExpiryIndex) Add(ctx context.Context, expiresAt time.Time, name string) error {
	return x.Store.Set(ctx, ExpiryKey(expiresAt, name), []byte(name))
}

// Remove deletes the entry for (expiresAt, name); absent entries are fine.
func (x *ExpiryIndex) Remove(ctx context.Context, expiresAt time.Time, name string) error {
	return x.Store.Delete(ctx, ExpiryKey(expiresAt, name))
}

// RemoveKey deletes an entry by its raw key.
func (x *ExpiryIndex) RemoveKey(ctx context.Context, key string) error {
	return x.Store.Delete(ctx, key)
}

// Entries enumerates the whole index in key order. Keys that fail to decode
// are returned with Malformed set rather than dropped, so the caller can
// reclaim them.
func (x *ExpiryIndex) Entries(ctx context.Context) ([]model.ExpiryEntry, error) {
	keys, err := x.Store.List(ctx, ExpiryPrefix)
	if err != nil {
		return nil, fmt.Errorf("list expiry index: %w", err)
	}
	out := make([]model.ExpiryEntry, 0, len(keys))
	for _, k := range keys {
		e, err := ParseExpiryKey(k)
		if err != nil {
			out = append(out, model.ExpiryEntry{Key: k, Malformed: true})
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
