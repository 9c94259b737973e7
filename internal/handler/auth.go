package handler

import (
	"context"
	"errors"
	"net/http"
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

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Limits   config.RateLimitConfig
	Accounts *repository.AccountRepo
	Sessions *repository.SessionRepo
	Limiter  *service.RateLimiter
	Notifier notify.Notifier
	Log      zerolog.Logger
}

func NewAuthHandler(cfg config.Config, limits config.RateLimitConfig, a *repository.AccountRepo, s *repository.SessionRepo, l *service.RateLimiter, n notify.Notifier, log zerolog.Logger) *AuthHandler {
	if n == nil {
		n = notify.Nop{}
	}
	return &AuthHandler{Cfg: cfg, Limits: limits, Accounts: a, Sessions: s, Limiter: l, Notifier: n, Log: log}
}

// ----- DTOs -----

type signupReq struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type loginReq struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type verifyReq struct {
	Token string `json:"token" form:"token"`
}

type authResp struct {
	User      model.PublicAccount `json:"user"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
}

type verifyResp struct {
	Authenticated bool                 `json:"authenticated"`
	User          *model.PublicAccount `json:"user,omitempty"`
}

// Signup creates an account and signs it in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "invalid body"})
	}
	addr := middleware.ClientAddr(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.gate(ctx, h.Limits.Signup, addr); err != nil {
		return writeError(c, h.Log, err)
	}

	acct, err := h.Accounts.Register(ctx, strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	sess, err := h.Sessions.Issue(ctx, acct.ID, h.Cfg.SessionTTL)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.setSessionCookie(c, sess)

	ev := notify.NewEvent(notify.EventSignup)
	ev.UserID = acct.ID
	ev.ClientAddr = addr
	ev.Metadata = map[string]any{"username": acct.Username}
	h.Notifier.Notify(ev)

	return c.JSON(http.StatusCreated, authResp{User: acct.Public(), Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

// Login verifies a credential and issues a session. Every failed attempt is
// counted against the client address; once the budget is spent further
// attempts are refused before the password is checked.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return writeError(c, h.Log, repository.ErrMissingField)
	}
	addr := middleware.ClientAddr(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if h.Limits.Enabled && h.Limiter != nil {
		d, err := h.Limiter.Check(ctx, h.Limits.AuthFailure, addr)
		if err != nil {
			h.Log.Warn().Err(err).Str("addr", addr).Msg("auth failure budget check failed, allowing")
		} else if !d.Allowed {
			h.notifyRateLimited(addr, h.Limits.AuthFailure.Action, d)
			return writeError(c, h.Log, d.Err(h.Limits.AuthFailure.Action))
		}
	}

	acct, err := h.Accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) {
			h.countFailure(ctx, addr)
		}
		return writeError(c, h.Log, err)
	}

	if err := h.Accounts.TouchLogin(ctx, acct.ID); err != nil {
		h.Log.Warn().Err(err).Str("account", acct.ID).Msg("update last login")
	}
	sess, err := h.Sessions.Issue(ctx, acct.ID, h.Cfg.SessionTTL)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.setSessionCookie(c, sess)

	ev := notify.NewEvent(notify.EventLoginSuccess)
	ev.UserID = acct.ID
	ev.ClientAddr = addr
	h.Notifier.Notify(ev)

	return c.JSON(http.StatusOK, authResp{User: acct.Public(), Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

func (h *AuthHandler) countFailure(ctx context.Context, addr string) {
	ev := notify.NewEvent(notify.EventLoginFailure)
	ev.ClientAddr = addr
	if h.Limits.Enabled && h.Limiter != nil {
		d, err := h.Limiter.Hit(ctx, h.Limits.AuthFailure, addr)
		if err != nil {
			h.Log.Warn().Err(err).Str("addr", addr).Msg("count auth failure")
		} else {
			ev.Metadata = map[string]any{"failures": d.Count}
		}
	}
	h.Notifier.Notify(ev)
}

// Logout revokes the presented session and clears the cookie. It always
// succeeds from the client's point of view.
func (h *AuthHandler) Logout(c echo.Context) error {
	if tok := middleware.SessionToken(c); tok != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
		defer cancel()
		if err := h.Sessions.Revoke(ctx, tok); err != nil {
			h.Log.Error().Err(err).Msg("revoke session")
		}
		ev := notify.NewEvent(notify.EventLogout)
		ev.UserID = middleware.UserID(c)
		ev.ClientAddr = middleware.ClientAddr(c)
		h.Notifier.Notify(ev)
	}
	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Verify reports whether a session token is valid. It never fails: every
// problem, including store errors, degrades to authenticated=false.
func (h *AuthHandler) Verify(c echo.Context) error {
	var req verifyReq
	_ = c.Bind(&req)
	tok := strings.TrimSpace(req.Token)
	if tok == "" {
		tok = middleware.SessionToken(c)
	}
	if tok == "" {
		return c.JSON(http.StatusOK, verifyResp{})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Sessions.Resolve(ctx, tok)
	if err != nil {
		if !errors.Is(err, repository.ErrUnauthorized) {
			h.Log.Warn().Err(err).Msg("verify: resolve session")
		}
		return c.JSON(http.StatusOK, verifyResp{})
	}
	acct, err := h.Accounts.GetByID(ctx, sess.UserID)
	if err != nil {
		h.Log.Warn().Err(err).Str("account", sess.UserID).Msg("verify: load account")
		return c.JSON(http.StatusOK, verifyResp{})
	}
	pub := acct.Public()
	return c.JSON(http.StatusOK, verifyResp{Authenticated: true, User: &pub})
}

// gate counts one attempt under p and turns a block into a
// RateLimitedError. Store failures let the attempt through.
func (h *AuthHandler) gate(ctx context.Context, p service.Policy, addr string) error {
	if !h.Limits.Enabled || h.Limiter == nil {
		return nil
	}
	d, err := h.Limiter.Hit(ctx, p, addr)
	if err != nil {
		h.Log.Warn().Err(err).Str("action", p.Action).Str("addr", addr).Msg("rate limit check failed, allowing")
		return nil
	}
	if !d.Allowed {
		h.notifyRateLimited(addr, p.Action, d)
		return d.Err(p.Action)
	}
	return nil
}

func (h *AuthHandler) notifyRateLimited(addr, action string, d service.Decision) {
	ev := notify.NewEvent(notify.EventRateLimited)
	ev.ClientAddr = addr
	ev.Metadata = map[string]any{"action": action, "count": d.Count}
	h.Notifier.Notify(ev)
}

func (h *AuthHandler) setSessionCookie(c echo.Context, s *model.Session) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.Token,
		Path:     "/",
		MaxAge:   int(s.ExpiresAt.Sub(s.CreatedAt).Seconds()),
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   !h.Cfg.IsDev(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.Cfg.IsDev(),
		SameSite: http.SameSiteStrictMode,
	})
}
