package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/config"
	"github.com/iliyamo/pixvault/internal/middleware"
	"github.com/iliyamo/pixvault/internal/model"
	"github.com/iliyamo/pixvault/internal/notify"
	"github.com/iliyamo/pixvault/internal/repository"
	"github.com/iliyamo/pixvault/internal/service"
)

// ResourceHandler serves uploads and fetches.
type ResourceHandler struct {
	Lifecycle *service.Lifecycle
	Limiter   *service.RateLimiter
	Limits    config.RateLimitConfig
	Notifier  notify.Notifier
	Log       zerolog.Logger
}

func NewResourceHandler(lc *service.Lifecycle, l *service.RateLimiter, limits config.RateLimitConfig, n notify.Notifier, log zerolog.Logger) *ResourceHandler {
	if n == nil {
		n = notify.Nop{}
	}
	return &ResourceHandler{Lifecycle: lc, Limiter: l, Limits: limits, Notifier: n, Log: log}
}

type resourceResp struct {
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	Ephemeral   bool       `json:"is_ephemeral"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toResourceResp(r *model.Resource) resourceResp {
	return resourceResp{
		Name:        r.Name,
		URL:         "/i/" + r.Name,
		ContentType: r.ContentType,
		Size:        r.Size,
		Ephemeral:   r.Ephemeral,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
	}
}

// parseTTL accepts a Go duration ("90m") or a bare number of seconds. An
// empty value means the resource is permanent.
func parseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%w: %q", repository.ErrInvalidTTL, s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", repository.ErrInvalidTTL, s)
	}
	return d, nil
}

// Upload stores a multipart upload with fields file, name and ttl. When name
// is empty the file name without its extension is used.
func (h *ResourceHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, h.Log, fmt.Errorf("%w: file is required", repository.ErrMissingField))
	}
	ttl, err := parseTTL(c.FormValue("ttl"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	name := c.FormValue("name")
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(fh.Filename, path.Ext(fh.Filename))
	}

	f, err := fh.Open()
	if err != nil {
		return writeError(c, h.Log, fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()
	// One byte past the limit is enough for the validator to reject it.
	limit := h.Lifecycle.Validator.MaxBytes
	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return writeError(c, h.Log, fmt.Errorf("read upload: %w", err))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Lifecycle.Create(ctx, service.NewResource{
		Name:     name,
		Data:     data,
		OwnerID:  middleware.UserID(c),
		Metadata: map[string]string{"filename": fh.Filename},
		TTL:      ttl,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toResourceResp(res))
}

// Fetch serves the raw payload of a live resource. Misses are counted per
// client address; crossing the escalation threshold raises a security
// notification once per window.
func (h *ResourceHandler) Fetch(c echo.Context) error {
	name := c.Param("name")

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, data, err := h.Lifecycle.Fetch(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.countProbe(ctx, middleware.ClientAddr(c), name)
		}
		return writeError(c, h.Log, err)
	}
	hdr := c.Response().Header()
	hdr.Set("X-Content-Type-Options", "nosniff")
	if res.Ephemeral {
		hdr.Set(echo.HeaderCacheControl, "no-store")
	} else {
		hdr.Set(echo.HeaderCacheControl, "public, max-age=3600")
	}
	return c.Blob(http.StatusOK, res.ContentType, data)
}

func (h *ResourceHandler) countProbe(ctx context.Context, addr, name string) {
	if !h.Limits.Enabled || h.Limiter == nil {
		return
	}
	d, err := h.Limiter.Hit(ctx, h.Limits.NotFound, addr)
	if err != nil {
		h.Log.Warn().Err(err).Str("addr", addr).Msg("count not-found probe")
		return
	}
	if h.Limits.ProbeEscalateAt > 0 && d.Count == h.Limits.ProbeEscalateAt {
		ev := notify.NewEvent(notify.EventProbeEscalated)
		ev.ClientAddr = addr
		ev.Resource = name
		ev.Metadata = map[string]any{"misses": d.Count, "window_reset_at": d.ResetAt}
		h.Notifier.Notify(ev)
	}
}
