package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"wrdms.org/internal/auth"
	"wrdms.org/internal/obs"
)

// ReadyProbe pings backing services for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. It translates requests into typed auth.Service
// calls and error kinds back into status codes; no auth logic lives here.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	auth       *auth.Service

	cookies         CookieSettings
	frontendBaseURL string
	debugReset      bool

	rateBurst  int
	ratePerSec int
}

// Option configures the API.
type Option func(*API)

// WithCookieSettings controls the refresh cookie attributes.
func WithCookieSettings(cs CookieSettings) Option {
	return func(a *API) { a.cookies = cs }
}

// WithFrontendBaseURL sets the base used for reset links in debug responses.
func WithFrontendBaseURL(u string) Option {
	return func(a *API) {
		if u != "" {
			a.frontendBaseURL = u
		}
	}
}

// WithDebugReset exposes reset token material in the forgot-password
// response. Never enable in production.
func WithDebugReset(enabled bool) Option {
	return func(a *API) { a.debugReset = enabled }
}

// WithRateLimit tunes the per-IP token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
	}
}

func New(rp ReadyProbe, version string, svc *auth.Service, opts ...Option) *API {
	a := &API{
		mux:             http.NewServeMux(),
		readyProbe:      rp,
		version:         version,
		auth:            svc,
		frontendBaseURL: "http://localhost:3000",
		rateBurst:       20,
		ratePerSec:      10,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/reset-state", a.handleResetState)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = Logging(h)
	h = RequestID(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, []string{a.frontendBaseURL})
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- health/info handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "wrdms-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "wrdms-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
