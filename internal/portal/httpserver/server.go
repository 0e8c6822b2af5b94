package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/carportal/carportal/internal/portal/carform"
	"github.com/carportal/carportal/internal/portal/drafts"
	custommw "github.com/carportal/carportal/internal/portal/httpserver/middleware"
	"github.com/carportal/carportal/internal/portal/loginform"
	"github.com/carportal/carportal/internal/portal/metrics"
	"github.com/carportal/carportal/internal/portal/observability"
	"github.com/carportal/carportal/public"
)

const defaultUploadLimit = 32 << 20

// Config holds runtime options for the portal HTTP server.
type Config struct {
	Address       string
	LoginPath     string
	DashboardPath string
	MetricsPath   string

	Sessions      custommw.SessionStore
	Drafts        drafts.Store
	Authenticator loginform.Authenticator
	Submitter     carform.Submitter
	Logger        *zap.Logger

	CSRFCookieName   string
	CSRFCookieSecure bool
	CSRFHeaderName   string

	UploadMaxBytes int64
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       durationOr(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       durationOr(cfg.IdleTimeout, 60*time.Second),
	}
}

// NewRouter builds the routing tree. Sessions, Drafts, Authenticator and Submitter are required.
func NewRouter(cfg Config) http.Handler {
	if cfg.Sessions == nil || cfg.Drafts == nil || cfg.Authenticator == nil || cfg.Submitter == nil {
		panic("httpserver: sessions, drafts, authenticator and submitter are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.RequestLogger(logger))
	router.Use(observability.TraceMiddleware())
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(durationOr(cfg.RequestTimeout, 60*time.Second)))

	staticContent, err := public.StaticFS()
	if err != nil {
		logger.Fatal("embed static", zap.Error(err))
	}
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle(normalizePath(cfg.MetricsPath, "/metrics"), metrics.Handler())

	loginPath := normalizePath(cfg.LoginPath, "/")
	dashboardPath := normalizePath(cfg.DashboardPath, "/dashboard")
	loginAction := "/login"
	if loginPath != "/" {
		loginAction = loginPath
	}

	uploadLimit := cfg.UploadMaxBytes
	if uploadLimit <= 0 {
		uploadLimit = defaultUploadLimit
	}

	authH := newAuthHandlers(cfg.Authenticator, loginAction, dashboardPath)
	dashH := newDashboardHandlers(cfg.Drafts, cfg.Submitter, dashboardPath, uploadLimit)

	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.Session(cfg.Sessions))
		r.Use(custommw.CSRF(custommw.CSRFConfig{
			CookieName: cfg.CSRFCookieName,
			HeaderName: cfg.CSRFHeaderName,
			Secure:     cfg.CSRFCookieSecure,
		}))

		r.With(custommw.RedirectIfToken(dashboardPath)).Get(loginPath, authH.LoginForm)
		r.Post(loginAction, authH.LoginSubmit)

		r.Route(dashboardPath, func(r chi.Router) {
			r.Use(custommw.RequireToken(loginPath))
			r.Get("/", dashH.Page)
			r.Post("/fields", dashH.UpdateFields)
			r.Post("/images", dashH.AddImages)
			r.Post("/images/{index}/remove", dashH.RemoveImage)
			r.Get("/images/{id}", dashH.Preview)
			r.Post("/submit", dashH.Submit)
		})
	})

	return router
}

func normalizePath(path, fallback string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return fallback
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
