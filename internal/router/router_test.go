package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/pixvault/internal/config"
	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/kv/kvtest"
	"github.com/iliyamo/pixvault/internal/model"
	"github.com/iliyamo/pixvault/internal/notify"
	"github.com/iliyamo/pixvault/internal/repository"
	"github.com/iliyamo/pixvault/internal/service"
	"github.com/iliyamo/pixvault/internal/utils"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
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

func (r *recorder) has(t notify.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

type app struct {
	e      *echo.Echo
	store  kv.Store
	clock  *clock
	events *recorder
}

func newApp(t *testing.T, mutate func(*Deps)) *app {
	t.Helper()
	store, _ := kvtest.New(t)
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rec := &recorder{}

	accounts := repository.NewAccountRepo(store, utils.BcryptHasher{Cost: bcrypt.MinCost}, 6)
	accounts.Now = c.Now
	sessions := repository.NewSessionRepo(store)
	sessions.Now = c.Now
	limiter := service.NewRateLimiter(store)
	limiter.Now = c.Now
	lc := service.NewLifecycle(
		repository.NewResourceRepo(store),
		repository.NewKVPayloads(store),
		repository.NewExpiryIndex(store),
		utils.UploadValidator{MaxBytes: 1 << 20, AllowedPrefixes: []string{"image/"}},
		zerolog.Nop(),
		rec,
	)
	lc.Now = c.Now

	d := Deps{
		Cfg: config.Config{
			Env:            "test",
			SessionTTL:     7 * 24 * time.Hour,
			MaxUploadBytes: 1 << 20,
		},
		Limits: config.RateLimitConfig{
			Enabled:         true,
			AuthFailure:     service.Policy{Action: service.ActionAuthFailure, Limit: 10, Window: 15 * time.Minute},
			Upload:          service.Policy{Action: service.ActionUpload, Limit: 50, Window: time.Hour},
			Signup:          service.Policy{Action: service.ActionSignup, Limit: 10, Window: time.Hour},
			NotFound:        service.Policy{Action: service.ActionNotFound, Window: 10 * time.Minute},
			ProbeEscalateAt: 3,
		},
		Accounts:  accounts,
		Sessions:  sessions,
		Limiter:   limiter,
		Lifecycle: lc,
		Notifier:  rec,
		Store:     store,
		Log:       zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&d)
	}
	return &app{e: New(d), store: store, clock: c, events: rec}
}

func (a *app) do(req *http.Request) *httptest.ResponseRecorder {
	if req.Header.Get(echo.HeaderXRealIP) == "" {
		req.Header.Set(echo.HeaderXRealIP, "1.2.3.4")
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func jsonReq(method, target string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func uploadReq(t *testing.T, name, ttl string, data []byte, cookie *http.Cookie) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", name+".png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("name", name))
	if ttl != "" {
		require.NoError(t, w.WriteField("ttl", ttl))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/resources", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func signup(t *testing.T, a *app) *http.Cookie {
	t.Helper()
	rec := a.do(jsonReq(http.MethodPost, "/v1/auth/signup", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "secret1",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func TestAliceScenario(t *testing.T) {
	a := newApp(t, nil)
	cookie := signup(t, a)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 7*24*60*60, cookie.MaxAge)
	assert.True(t, cookie.Secure)

	for i := 0; i < 3; i++ {
		rec := a.do(jsonReq(http.MethodPost, "/v1/auth/login", map[string]string{
			"email": "alice@x.com", "password": "wrong-password",
		}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	var counter model.RateLimitCounter
	require.NoError(t, kv.GetJSON(context.Background(), a.store, "rl:auth_fail:1.2.3.4", &counter))
	assert.Equal(t, 3, counter.Count)

	rec := a.do(uploadReq(t, "cat", "", pngBytes, cookie))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Name        string `json:"name"`
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		Ephemeral   bool   `json:"is_ephemeral"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "cat", created.Name)
	assert.Equal(t, "/i/cat", created.URL)
	assert.Equal(t, "image/png", created.ContentType)
	assert.False(t, created.Ephemeral)

	var stored model.Resource
	require.NoError(t, kv.GetJSON(context.Background(), a.store, "resource:cat", &stored))
	assert.NotEmpty(t, stored.OwnerID, "upload with a session records its owner")

	rec = a.do(httptest.NewRequest(http.MethodGet, "/i/cat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	rec = a.do(uploadReq(t, "cat", "", pngBytes, cookie))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignupErrors(t *testing.T) {
	a := newApp(t, nil)
	signup(t, a)

	rec := a.do(jsonReq(http.MethodPost, "/v1/auth/signup", map[string]string{
		"username": "bob", "email": "ALICE@x.com", "password": "secret1",
	}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(jsonReq(http.MethodPost, "/v1/auth/signup", map[string]string{
		"username": "bob", "email": "bob@x.com", "password": "123",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(jsonReq(http.MethodPost, "/v1/auth/signup", map[string]string{"username": "bob"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(jsonReq(http.MethodPost, "/v1/auth/signup", map[string]string{
		"username": "carol", "email": "carol@x.com", "password": strings.Repeat("x", 80),
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestSignupRateLimited(t *testing.T) {
	a := newApp(t, func(d *Deps) { d.Limits.Signup.Limit = 1 })
	signup(t, a)

	rec := a.do(jsonReq(http.MethodPost, "/v1/auth/signup", map[string]string{
		"username": "bob", "email": "bob@x.com", "password": "secret1",
	}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLoginLifecycle(t *testing.T) {
	a := newApp(t, nil)
	signup(t, a)

	rec := a.do(jsonReq(http.MethodPost, "/v1/auth/login", map[string]string{"email": "alice@x.com"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(jsonReq(http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "nobody@x.com", "password": "secret1",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(jsonReq(http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "alice@x.com", "password": "secret1",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
		User  struct {
			Username    string     `json:"username"`
			LastLoginAt *time.Time `json:"last_login_at"`
		} `json:"user"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "alice", body.User.Username)
	assert.Len(t, body.Token, 64)
	cookie := sessionCookie(t, rec)
	assert.Equal(t, body.Token, cookie.Value)

	verify := func(req *http.Request) bool {
		rec := a.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
		var v struct {
			Authenticated bool `json:"authenticated"`
		}
		decode(t, rec, &v)
		return v.Authenticated
	}

	req := jsonReq(http.MethodPost, "/v1/auth/verify", map[string]string{})
	req.AddCookie(cookie)
	assert.True(t, verify(req))
	assert.True(t, verify(jsonReq(http.MethodPost, "/v1/auth/verify", map[string]string{"token": body.Token})))
	assert.False(t, verify(jsonReq(http.MethodPost, "/v1/auth/verify", map[string]string{"token": "bogus"})))
	assert.False(t, verify(jsonReq(http.MethodPost, "/v1/auth/verify", map[string]string{})))

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.AddCookie(cookie)
	rec = a.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	assert.True(t, a.events.has(notify.EventLogout))

	assert.False(t, verify(jsonReq(http.MethodPost, "/v1/auth/verify", map[string]string{"token": body.Token})))

	// Logging out again, or without any session, still succeeds.
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusOK, a.do(req).Code)
	assert.Equal(t, http.StatusOK, a.do(httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)).Code)
}

func TestSessionExpires(t *testing.T) {
	a := newApp(t, nil)
	cookie := signup(t, a)

	a.clock.Advance(7*24*time.Hour + time.Second)
	rec := a.do(jsonReq(http.MethodPost, "/v1/auth/verify", map[string]string{"token": cookie.Value}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	_, err := a.store.Get(context.Background(), "session:"+cookie.Value)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestLoginLockout(t *testing.T) {
	a := newApp(t, nil)
	signup(t, a)
	wrong := map[string]string{"email": "alice@x.com", "password": "nope-nope"}

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusUnauthorized, a.do(jsonReq(http.MethodPost, "/v1/auth/login", wrong)).Code)
	}
	right := map[string]string{"email": "alice@x.com", "password": "secret1"}
	rec := a.do(jsonReq(http.MethodPost, "/v1/auth/login", right))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))
	assert.True(t, a.events.has(notify.EventRateLimited))

	other := jsonReq(http.MethodPost, "/v1/auth/login", right)
	other.Header.Set(echo.HeaderXRealIP, "5.6.7.8")
	assert.Equal(t, http.StatusOK, a.do(other).Code)

	a.clock.Advance(15 * time.Minute)
	assert.Equal(t, http.StatusOK, a.do(jsonReq(http.MethodPost, "/v1/auth/login", right)).Code)
}

func TestUploadValidation(t *testing.T) {
	a := newApp(t, nil)

	rec := a.do(uploadReq(t, "notes", "", []byte("plain text is not an image"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(uploadReq(t, "cat", "soon", pngBytes, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(uploadReq(t, "!!!", "", pngBytes, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)
	rec = a.do(uploadReq(t, "vector", "", svg, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusNotFound, a.do(httptest.NewRequest(http.MethodGet, "/i/vector", nil)).Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/resources", strings.NewReader("x"))
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=nothing")
	assert.Equal(t, http.StatusBadRequest, a.do(req).Code)
}

func TestUploadRateLimited(t *testing.T) {
	a := newApp(t, func(d *Deps) { d.Limits.Upload.Limit = 1 })

	assert.Equal(t, http.StatusCreated, a.do(uploadReq(t, "one", "", pngBytes, nil)).Code)
	rec := a.do(uploadReq(t, "two", "", pngBytes, nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
}

func TestEphemeralUploadExpires(t *testing.T) {
	a := newApp(t, nil)

	rec := a.do(uploadReq(t, "flash", "60", pngBytes, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	a.clock.Advance(59 * time.Second)
	rec = a.do(httptest.NewRequest(http.MethodGet, "/i/flash", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))

	a.clock.Advance(2 * time.Second)
	assert.Equal(t, http.StatusGone, a.do(httptest.NewRequest(http.MethodGet, "/i/flash", nil)).Code)
	assert.Equal(t, http.StatusNotFound, a.do(httptest.NewRequest(http.MethodGet, "/i/flash", nil)).Code)

	keys, err := a.store.List(context.Background(), repository.ExpiryPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestProbeEscalation(t *testing.T) {
	a := newApp(t, nil)
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNotFound, a.do(httptest.NewRequest(http.MethodGet, "/i/missing", nil)).Code)
	}
	assert.False(t, a.events.has(notify.EventProbeEscalated))

	assert.Equal(t, http.StatusNotFound, a.do(httptest.NewRequest(http.MethodGet, "/i/missing", nil)).Code)
	assert.True(t, a.events.has(notify.EventProbeEscalated))
}

func TestSweepEndpoint(t *testing.T) {
	a := newApp(t, nil)
	require.Equal(t, http.StatusCreated, a.do(uploadReq(t, "a", "1m", pngBytes, nil)).Code)
	require.Equal(t, http.StatusCreated, a.do(uploadReq(t, "b", "2h", pngBytes, nil)).Code)
	a.clock.Advance(time.Hour)

	rec := a.do(httptest.NewRequest(http.MethodPost, "/internal/sweep", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var res service.SweepResult
	decode(t, rec, &res)
	assert.Equal(t, service.SweepResult{Scanned: 2, Purged: 1}, res)

	rec = a.do(httptest.NewRequest(http.MethodPost, "/internal/sweep", nil))
	decode(t, rec, &res)
	assert.Equal(t, service.SweepResult{Scanned: 1}, res)
}

func TestSweepEndpointRequiresToken(t *testing.T) {
	a := newApp(t, func(d *Deps) { d.Cfg.SchedulerSecret = "cron-secret" })

	assert.Equal(t, http.StatusUnauthorized, a.do(httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)).Code)

	tok, err := utils.NewSchedulerToken("cron-secret", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	assert.Equal(t, http.StatusOK, a.do(req).Code)
}

func TestHealth(t *testing.T) {
	a := newApp(t, nil)
	rec := a.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, http.StatusOK, a.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)
}
