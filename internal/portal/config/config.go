package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultEnvFile        = ".env"
	defaultAddress        = ":8080"
	defaultEnvironment    = "development"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultLoginPath      = "/"
	defaultDashboardPath  = "/dashboard"
	defaultAPIBaseURL     = "http://localhost:8000"
	defaultAPITimeout     = 15 * time.Second
	defaultSessionCookie  = "carportal_session"
	defaultSessionLife    = 30 * 24 * time.Hour
	defaultCSRFCookie     = "carportal_csrf"
	defaultCSRFHeader     = "X-CSRF-Token"
	defaultDraftBackend   = "memory"
	defaultDraftTTL       = 24 * time.Hour
	defaultSweepSchedule  = "@every 10m"
	defaultRedisAddr      = "localhost:6379"
	defaultUploadMaxBytes = 32 << 20
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultMetricsPath    = "/metrics"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Paths   PathConfig
	API     APIConfig
	Session SessionConfig
	CSRF    CSRFConfig
	Drafts  DraftConfig
	Uploads UploadConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Address      string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PathConfig holds the two page locations the guards redirect between.
type PathConfig struct {
	Login     string
	Dashboard string
}

// APIConfig points at the external authentication and submission API.
type APIConfig struct {
	BaseURL    string
	Timeout    time.Duration
	AuthScheme string
}

// SessionConfig controls the signed cookie that persists the auth token.
type SessionConfig struct {
	CookieName string
	HashKey    []byte
	BlockKey   []byte
	Lifetime   time.Duration
	Secure     bool
	// EphemeralKeys reports that no keys were configured and random ones were generated.
	EphemeralKeys bool
}

// CSRFConfig controls double-submit cookie naming.
type CSRFConfig struct {
	CookieName string
	HeaderName string
}

// DraftConfig selects where in-progress car forms and staged images live.
type DraftConfig struct {
	Backend       string
	TTL           time.Duration
	SweepSchedule string
	Redis         RedisConfig
}

// RedisConfig holds connection settings for the redis draft backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// UploadConfig bounds multipart request bodies.
type UploadConfig struct {
	MaxBytes int64
}

// LogConfig configures the zap logger and optional rolling file sink.
type LogConfig struct {
	Level      string
	Format     string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Path string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over system
// environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithSystemEnv toggles whether process environment variables are consulted.
func WithSystemEnv(enabled bool) Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = enabled
	}
}

// Load resolves configuration from defaults, an optional .env file, the process environment and
// any explicit overrides, in that order of precedence.
func Load(opts ...Option) (*Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.envFile != "" {
		if err := godotenv.Load(options.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", options.envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	if options.useSystemEnv {
		v.AutomaticEnv()
	}
	for key, value := range options.envMap {
		v.Set(key, value)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:      strings.TrimSpace(v.GetString("HTTP_ADDR")),
			Environment:  strings.TrimSpace(v.GetString("ENVIRONMENT")),
			ReadTimeout:  v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("HTTP_WRITE_TIMEOUT"),
			IdleTimeout:  v.GetDuration("HTTP_IDLE_TIMEOUT"),
		},
		Paths: PathConfig{
			Login:     normalisePath(v.GetString("LOGIN_PATH")),
			Dashboard: normalisePath(v.GetString("DASHBOARD_PATH")),
		},
		API: APIConfig{
			BaseURL:    strings.TrimRight(strings.TrimSpace(v.GetString("API_BASE_URL")), "/"),
			Timeout:    v.GetDuration("API_TIMEOUT"),
			AuthScheme: strings.TrimSpace(v.GetString("API_AUTH_SCHEME")),
		},
		Session: SessionConfig{
			CookieName: strings.TrimSpace(v.GetString("SESSION_COOKIE_NAME")),
			HashKey:    []byte(v.GetString("SESSION_HASH_KEY")),
			BlockKey:   []byte(v.GetString("SESSION_BLOCK_KEY")),
			Lifetime:   v.GetDuration("SESSION_LIFETIME"),
			Secure:     v.GetBool("SESSION_SECURE"),
		},
		CSRF: CSRFConfig{
			CookieName: strings.TrimSpace(v.GetString("CSRF_COOKIE_NAME")),
			HeaderName: strings.TrimSpace(v.GetString("CSRF_HEADER_NAME")),
		},
		Drafts: DraftConfig{
			Backend:       strings.ToLower(strings.TrimSpace(v.GetString("DRAFT_STORE"))),
			TTL:           v.GetDuration("DRAFT_TTL"),
			SweepSchedule: strings.TrimSpace(v.GetString("DRAFT_SWEEP_SCHEDULE")),
			Redis: RedisConfig{
				Addr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
				Password: v.GetString("REDIS_PASSWORD"),
				DB:       v.GetInt("REDIS_DB"),
			},
		},
		Uploads: UploadConfig{
			MaxBytes: v.GetInt64("UPLOAD_MAX_BYTES"),
		},
		Log: LogConfig{
			Level:      strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
			Format:     strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
			Path:       strings.TrimSpace(v.GetString("LOG_PATH")),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
			Compress:   v.GetBool("LOG_COMPRESS"),
		},
		Metrics: MetricsConfig{
			Path: normalisePath(v.GetString("METRICS_PATH")),
		},
	}

	if len(cfg.Session.HashKey) == 0 {
		cfg.Session.HashKey = securecookie.GenerateRandomKey(32)
		cfg.Session.BlockKey = securecookie.GenerateRandomKey(32)
		cfg.Session.EphemeralKeys = true
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the deployment environment is production.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Server.Environment) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", defaultAddress)
	v.SetDefault("ENVIRONMENT", defaultEnvironment)
	v.SetDefault("HTTP_READ_TIMEOUT", defaultReadTimeout)
	v.SetDefault("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	v.SetDefault("HTTP_IDLE_TIMEOUT", defaultIdleTimeout)
	v.SetDefault("LOGIN_PATH", defaultLoginPath)
	v.SetDefault("DASHBOARD_PATH", defaultDashboardPath)
	v.SetDefault("API_BASE_URL", defaultAPIBaseURL)
	v.SetDefault("API_TIMEOUT", defaultAPITimeout)
	v.SetDefault("API_AUTH_SCHEME", "")
	v.SetDefault("SESSION_COOKIE_NAME", defaultSessionCookie)
	v.SetDefault("SESSION_HASH_KEY", "")
	v.SetDefault("SESSION_BLOCK_KEY", "")
	v.SetDefault("SESSION_LIFETIME", defaultSessionLife)
	v.SetDefault("SESSION_SECURE", false)
	v.SetDefault("CSRF_COOKIE_NAME", defaultCSRFCookie)
	v.SetDefault("CSRF_HEADER_NAME", defaultCSRFHeader)
	v.SetDefault("DRAFT_STORE", defaultDraftBackend)
	v.SetDefault("DRAFT_TTL", defaultDraftTTL)
	v.SetDefault("DRAFT_SWEEP_SCHEDULE", defaultSweepSchedule)
	v.SetDefault("REDIS_ADDR", defaultRedisAddr)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("UPLOAD_MAX_BYTES", defaultUploadMaxBytes)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("LOG_FORMAT", defaultLogFormat)
	v.SetDefault("LOG_PATH", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE_DAYS", 7)
	v.SetDefault("LOG_COMPRESS", false)
	v.SetDefault("METRICS_PATH", defaultMetricsPath)
}

func (c *Config) validate() error {
	var fields []string

	if c.Server.Address == "" {
		fields = append(fields, "HTTP_ADDR")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fields = append(fields, "API_BASE_URL")
	}
	if c.API.Timeout <= 0 {
		fields = append(fields, "API_TIMEOUT")
	}
	if c.Paths.Login == c.Paths.Dashboard {
		fields = append(fields, "LOGIN_PATH", "DASHBOARD_PATH")
	}
	if n := len(c.Session.HashKey); n < 32 {
		fields = append(fields, "SESSION_HASH_KEY")
	}
	switch len(c.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		fields = append(fields, "SESSION_BLOCK_KEY")
	}
	if c.Session.Lifetime <= 0 {
		fields = append(fields, "SESSION_LIFETIME")
	}
	switch c.Drafts.Backend {
	case "memory":
	case "redis":
		if c.Drafts.Redis.Addr == "" {
			fields = append(fields, "REDIS_ADDR")
		}
	default:
		fields = append(fields, "DRAFT_STORE")
	}
	if c.Drafts.TTL <= 0 {
		fields = append(fields, "DRAFT_TTL")
	}
	if c.Uploads.MaxBytes <= 0 {
		fields = append(fields, "UPLOAD_MAX_BYTES")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		fields = append(fields, "LOG_FORMAT")
	}

	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func normalisePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}
