package testutil

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carportal/carportal/internal/portal/backend"
	"github.com/carportal/carportal/internal/portal/drafts"
	"github.com/carportal/carportal/internal/portal/httpserver"
	"github.com/carportal/carportal/internal/portal/session"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithDraftStore overrides the in-memory draft store.
func WithDraftStore(store drafts.Store) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Drafts = store
	}
}

// WithUploadLimit caps request bodies on dashboard posts.
func WithUploadLimit(n int64) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.UploadMaxBytes = n
	}
}

// WithPaths overrides the login and dashboard paths.
func WithPaths(login, dashboard string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.LoginPath = login
		cfg.DashboardPath = dashboard
	}
}

// NewServer runs the portal HTTP stack against upstream with sensible defaults.
func NewServer(t testing.TB, upstream *Upstream, opts ...ServerOption) *httptest.Server {
	t.Helper()

	sessions, err := session.NewManager(session.Config{
		CookieName: "carportal_session",
		HashKey:    []byte("0123456789abcdef0123456789abcdef"),
		Lifetime:   time.Hour,
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	client, err := backend.NewClient(upstream.URL, upstream.Client())
	if err != nil {
		t.Fatalf("backend client: %v", err)
	}

	cfg := httpserver.Config{
		Address:        ":0",
		LoginPath:      "/",
		DashboardPath:  "/dashboard",
		Sessions:       sessions,
		Drafts:         drafts.NewMemoryStore(time.Hour, nil),
		Authenticator:  client,
		Submitter:      client,
		CSRFCookieName: "carportal_csrf",
		CSRFHeaderName: "X-CSRF-Token",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ts := httptest.NewServer(httpserver.NewRouter(cfg))
	t.Cleanup(ts.Close)
	return ts
}

// NewBrowser returns a client that keeps cookies and does not follow redirects.
func NewBrowser(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
