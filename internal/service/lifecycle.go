package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/model"
	"github.com/iliyamo/pixvault/internal/notify"
	"github.com/iliyamo/pixvault/internal/repository"
	"github.com/iliyamo/pixvault/internal/utils"
)

// MaxNameLength bounds a sanitized resource name.
const MaxNameLength = 64

// ExpiryState is the outcome of a lazy expiry check.
type ExpiryState int

const (
	// Live resources are served normally.
	Live ExpiryState = iota
	// Expired means the resource is past its expiry but the purge did not
	// complete; the remaining keys are left for a later attempt.
	Expired
	// ExpiredAndPurged means every key of the resource has been removed.
	ExpiredAndPurged
)

func (s ExpiryState) String() string {
	switch s {
	case Live:
		return "live"
	case Expired:
		return "expired"
	case ExpiredAndPurged:
		return "expired_and_purged"
	}
	return fmt.Sprintf("ExpiryState(%d)", int(s))
}

// NewResource is an upload request.
type NewResource struct {
	Name     string
	Data     []byte
	OwnerID  string
	Metadata map[string]string
	// TTL makes the resource ephemeral when positive.
	TTL time.Duration
}

// SweepResult summarises one sweep run.
type SweepResult struct {
	// Scanned counts every index entry enumerated, due or not.
	Scanned int `json:"scanned"`
	Purged  int `json:"purged"`
	// Orphans counts index entries removed because they no longer pointed
	// at a matching resource, including entries that failed to decode.
	Orphans int `json:"orphans"`
	Failed  int `json:"failed"`
}

// Lifecycle creates resources and garbage-collects the ephemeral ones,
// lazily on access and eventually through Sweep.
//
// Metadata, payload and index entry are three separate keys with no
// transaction across them. Concurrent purges of the same resource are
// harmless because every delete is idempotent. One window is not covered:
// a sweep that loaded an expired resource just before a lazy purge removed
// it and the name was claimed again can delete the new owner's metadata.
type Lifecycle struct {
	Resources *repository.ResourceRepo
	Payloads  repository.PayloadStore
	Index     *repository.ExpiryIndex
	Validator utils.UploadValidator
	// MaxTTL caps the lifetime of ephemeral uploads; zero means no cap.
	MaxTTL   time.Duration
	Now      func() time.Time
	Log      zerolog.Logger
	Notifier notify.Notifier
}

func NewLifecycle(resources *repository.ResourceRepo, payloads repository.PayloadStore, index *repository.ExpiryIndex, v utils.UploadValidator, log zerolog.Logger, n notify.Notifier) *Lifecycle {
	return &Lifecycle{
		Resources: resources,
		Payloads:  payloads,
		Index:     index,
		Validator: v,
		Now:       time.Now,
		Log:       log,
		Notifier:  n,
	}
}

func (l *Lifecycle) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

func (l *Lifecycle) notify(ev notify.Event) {
	if l.Notifier == nil {
		return
	}
	l.Notifier.Notify(ev)
}

// SanitizeName turns a user-chosen name into a slug: lower-cased, runs of
// characters outside [a-z0-9_-] collapsed to a single '-', with leading and
// trailing dashes trimmed and the result cut to MaxNameLength. An empty
// result is ErrInvalidName.
func SanitizeName(raw string) (string, error) {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
			dash = r == '-'
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	name := strings.Trim(b.String(), "-")
	if len(name) > MaxNameLength {
		name = strings.TrimRight(name[:MaxNameLength], "-")
	}
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// ErrEmptyName is returned when nothing usable is left after sanitizing.
var ErrEmptyName = fmt.Errorf("%w: name is empty after sanitizing", repository.ErrInvalidName)

// Create stores a new resource under its sanitized name.
//
// The existence check gives an early conflict; the metadata claim itself is
// a SETNX, so two concurrent uploads of one name cannot both win. The loser
// deletes the payload it wrote. For an ephemeral resource the index entry is
// written last; if that fails the metadata and payload are removed again so
// no resource is left that only an access could ever reclaim.
func (l *Lifecycle) Create(ctx context.Context, in NewResource) (*model.Resource, error) {
	name, err := SanitizeName(in.Name)
	if err != nil {
		return nil, err
	}
	if in.TTL < 0 || (l.MaxTTL > 0 && in.TTL > l.MaxTTL) {
		return nil, fmt.Errorf("%w: %s", repository.ErrInvalidTTL, in.TTL)
	}
	contentType, err := l.Validator.Validate(in.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrInvalidUpload, err)
	}
	taken, err := l.Resources.Exists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check resource %s: %w", name, err)
	}
	if taken {
		return nil, repository.ErrDuplicateName
	}

	now := l.now()
	res := &model.Resource{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(in.Data)),
		Metadata:    in.Metadata,
		OwnerID:     in.OwnerID,
		CreatedAt:   now,
		PayloadKey:  repository.NewPayloadKey(now),
	}
	if in.TTL > 0 {
		exp := ceilMillis(now.Add(in.TTL))
		res.Ephemeral = true
		res.ExpiresAt = &exp
	}

	if err := l.Payloads.Put(ctx, res.PayloadKey, in.Data, contentType); err != nil {
		return nil, fmt.Errorf("store payload %s: %w", name, err)
	}
	if err := l.Resources.Claim(ctx, res); err != nil {
		l.discardPayload(ctx, res)
		return nil, err
	}
	if res.Ephemeral {
		if err := l.Index.Add(ctx, *res.ExpiresAt, name); err != nil {
			if derr := l.Resources.Delete(ctx, name); derr != nil {
				l.Log.Error().Err(derr).Str("resource", name).Msg("rollback metadata after index failure")
			}
			l.discardPayload(ctx, res)
			return nil, fmt.Errorf("index resource %s: %w", name, err)
		}
	}

	ev := notify.NewEvent(notify.EventResourceCreated)
	ev.UserID = res.OwnerID
	ev.Resource = name
	ev.Metadata = map[string]any{"content_type": contentType, "size": res.Size, "ephemeral": res.Ephemeral}
	l.notify(ev)
	return res, nil
}

// ceilMillis rounds t up to the next whole millisecond so the stored expiry
// matches its index key and never falls before now+ttl.
func ceilMillis(t time.Time) time.Time {
	r := t.Truncate(time.Millisecond)
	if r.Before(t) {
		r = r.Add(time.Millisecond)
	}
	return r
}

// CreateEphemeral is Create with a lifetime of ttl.
func (l *Lifecycle) CreateEphemeral(ctx context.Context, in NewResource, ttl time.Duration) (*model.Resource, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ephemeral resources need a positive ttl", repository.ErrInvalidTTL)
	}
	in.TTL = ttl
	return l.Create(ctx, in)
}

func (l *Lifecycle) discardPayload(ctx context.Context, res *model.Resource) {
	if err := l.Payloads.Delete(ctx, res.PayloadKey); err != nil {
		l.Log.Error().Err(err).Str("resource", res.Name).Str("payload_key", res.PayloadKey).Msg("discard payload")
	}
}

// LazyExpireCheck purges res if it is past its expiry. A failed purge
// reports Expired together with the error of the first delete that failed.
func (l *Lifecycle) LazyExpireCheck(ctx context.Context, res *model.Resource) (ExpiryState, error) {
	if !res.ExpiredAt(l.now()) {
		return Live, nil
	}
	if err := l.purge(ctx, res); err != nil {
		return Expired, err
	}
	return ExpiredAndPurged, nil
}

// purge removes payload, metadata and index entry, in that order, stopping
// at the first failure.
func (l *Lifecycle) purge(ctx context.Context, res *model.Resource) error {
	if err := l.Payloads.Delete(ctx, res.PayloadKey); err != nil {
		return fmt.Errorf("purge payload %s: %w", res.Name, err)
	}
	if err := l.Resources.Delete(ctx, res.Name); err != nil {
		return fmt.Errorf("purge metadata %s: %w", res.Name, err)
	}
	if res.ExpiresAt != nil {
		if err := l.Index.Remove(ctx, *res.ExpiresAt, res.Name); err != nil {
			return fmt.Errorf("purge index entry %s: %w", res.Name, err)
		}
	}
	ev := notify.NewEvent(notify.EventResourceExpired)
	ev.UserID = res.OwnerID
	ev.Resource = res.Name
	l.notify(ev)
	return nil
}

// Fetch returns a live resource and its payload.
func (l *Lifecycle) Fetch(ctx context.Context, name string) (*model.Resource, []byte, error) {
	if name == "" {
		return nil, nil, repository.ErrResourceNotFound
	}
	res, err := l.Resources.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	state, err := l.LazyExpireCheck(ctx, res)
	if err != nil {
		l.Log.Warn().Err(err).Str("resource", name).Msg("lazy purge incomplete")
	}
	if state != Live {
		return nil, nil, repository.ErrResourceExpired
	}
	data, err := l.Payloads.Get(ctx, res.PayloadKey)
	if err != nil {
		return nil, nil, err
	}
	return res, data, nil
}

// Sweep enumerates the whole expiry index and purges every resource whose
// entry is due. Only a failure to enumerate the index is returned as an
// error; a failing entry is logged, counted and left in place for the next
// run. A cancelled context stops the run between entries.
//
// Sweep is safe to run concurrently with itself and with lazy expiry.
func (l *Lifecycle) Sweep(ctx context.Context) (SweepResult, error) {
	var out SweepResult
	entries, err := l.Index.Entries(ctx)
	if err != nil {
		return out, err
	}
	now := l.now()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Scanned++
		if e.Malformed {
			l.removeOrphan(ctx, e, &out, "malformed")
			continue
		}
		if e.ExpiresAt.After(now) {
			continue
		}
		res, err := l.Resources.Get(ctx, e.ResourceName)
		if errors.Is(err, repository.ErrResourceNotFound) {
			l.removeOrphan(ctx, e, &out, "resource missing")
			continue
		}
		if err != nil {
			out.Failed++
			l.Log.Error().Err(err).Str("entry", e.Key).Msg("sweep: load resource")
			continue
		}
		if !res.Ephemeral || res.ExpiresAt == nil || res.ExpiresAt.UnixMilli() != e.ExpiresAt.UnixMilli() {
			l.removeOrphan(ctx, e, &out, "resource replaced")
			continue
		}
		if err := l.purge(ctx, res); err != nil {
			out.Failed++
			l.Log.Error().Err(err).Str("entry", e.Key).Msg("sweep: purge")
			continue
		}
		out.Purged++
	}
	return out, nil
}

func (l *Lifecycle) removeOrphan(ctx context.Context, e model.ExpiryEntry, out *SweepResult, reason string) {
	if err := l.Index.RemoveKey(ctx, e.Key); err != nil {
		out.Failed++
		l.Log.Error().Err(err).Str("entry", e.Key).Msg("sweep: remove orphan entry")
		return
	}
	out.Orphans++
	l.Log.Debug().Str("entry", e.Key).Str("reason", reason).Msg("sweep: orphan entry removed")
}

// RunPeriodicSweep runs Sweep every interval until ctx is done. Each run gets
// its own timeout so a slow store cannot stack runs on top of each other.
func (l *Lifecycle) RunPeriodicSweep(ctx context.Context, every, timeout time.Duration) {
	if every <= 0 {
		return
	}
	if timeout <= 0 {
		timeout = every
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			res, err := l.Sweep(runCtx)
			cancel()
			if err != nil {
				l.Log.Error().Err(err).Msg("periodic sweep failed")
				continue
			}
			l.Log.Info().
				Int("scanned", res.Scanned).
				Int("purged", res.Purged).
				Int("orphans", res.Orphans).
				Int("failed", res.Failed).
				Msg("periodic sweep done")
		}
	}
}
