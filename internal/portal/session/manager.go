package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	defaultCookieName = "carportal_session"
	defaultCookiePath = "/"
	defaultLifetime   = 30 * 24 * time.Hour
)

// TokenKey is the key under which the upstream auth token is persisted.
const TokenKey = "token"

// ErrExpired indicates the stored session is no longer valid due to idle or absolute expiry.
var ErrExpired = errors.New("session expired")

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// Data represents the full persisted session payload.
type Data struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"createdAt"`
	LastActive time.Time         `json:"lastActive"`
	ExpiresAt  time.Time         `json:"expiresAt,omitempty"`
	Values     map[string]string `json:"values,omitempty"`
	Flash      string            `json:"flash,omitempty"`
}

// Session holds mutable state for the current request lifecycle.
type Session struct {
	data      Data
	dirty     bool
	destroyed bool
}

// Config controls cookie encoding and lifecycle limits for the session manager.
type Config struct {
	CookieName     string
	HashKey        []byte
	BlockKey       []byte
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// IdleTimeout expires sessions that have not been seen for this long. Zero disables it.
	IdleTimeout time.Duration
	Lifetime    time.Duration
	Now         func() time.Time
}

// Manager decodes and persists session state via signed (and optionally encrypted) cookies.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
	now   func() time.Time
}

// NewManager constructs a Manager using the provided configuration.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}

	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = defaultCookiePath
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.Lifetime.Seconds()))

	return &Manager{
		cfg:   cfg,
		codec: codec,
		now:   nowFn,
	}, nil
}

// Load retrieves the session from the incoming request or creates a new one.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.New(), nil
	}

	var stored Data
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &stored); err != nil {
		return m.New(), nil
	}

	sess := m.sessionFromData(stored)
	if m.isExpired(sess, m.now()) {
		return nil, ErrExpired
	}
	return sess, nil
}

// Save writes the session back to the response as a cookie. Destroyed sessions clear the cookie.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}

	if sess.destroyed {
		http.SetCookie(w, m.expiredCookie())
		return nil
	}

	sess.Touch(m.now())
	if !sess.dirty {
		return nil
	}

	data := sess.snapshot()
	encoded, err := m.codec.Encode(m.cfg.CookieName, data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	cookie := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     m.cfg.CookiePath,
		Domain:   m.cfg.CookieDomain,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: m.cfg.CookieSameSite,
	}

	if !data.ExpiresAt.IsZero() {
		expiry := data.ExpiresAt.UTC()
		cookie.Expires = expiry
		remaining := expiry.Sub(m.now())
		if remaining <= 0 {
			cookie.MaxAge = -1
		} else {
			cookie.MaxAge = int(remaining.Round(time.Second).Seconds())
		}
	}

	http.SetCookie(w, cookie)
	sess.dirty = false
	return nil
}

// Destroy invalidates the session cookie immediately.
func (m *Manager) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, m.expiredCookie())
}

// New returns a pristine session with a generated identifier.
func (m *Manager) New() *Session {
	now := m.now().UTC()
	return &Session{
		data: Data{
			ID:         uuid.NewString(),
			CreatedAt:  now,
			LastActive: now,
			ExpiresAt:  now.Add(m.cfg.Lifetime),
			Values:     make(map[string]string),
		},
		dirty: true,
	}
}

func (m *Manager) sessionFromData(d Data) *Session {
	if d.Values == nil {
		d.Values = make(map[string]string)
	}
	if d.ID == "" {
		now := m.now().UTC()
		d.ID = uuid.NewString()
		d.CreatedAt = now
		d.LastActive = now
		d.ExpiresAt = now.Add(m.cfg.Lifetime)
		return &Session{data: d, dirty: true}
	}
	return &Session{data: d}
}

func (m *Manager) isExpired(sess *Session, now time.Time) bool {
	if sess == nil {
		return true
	}
	now = now.UTC()

	if !sess.data.ExpiresAt.IsZero() && now.After(sess.data.ExpiresAt.UTC()) {
		return true
	}

	if m.cfg.IdleTimeout > 0 {
		last := sess.data.LastActive
		if last.IsZero() {
			last = sess.data.CreatedAt
		}
		if !last.IsZero() && now.Sub(last) > m.cfg.IdleTimeout {
			return true
		}
	}
	return false
}

func (m *Manager) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     m.cfg.CookiePath,
		Domain:   m.cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: m.cfg.CookieSameSite,
	}
}

// ID returns the stable session identifier.
func (s *Session) ID() string {
	return s.data.ID
}

// CreatedAt returns the session creation timestamp.
func (s *Session) CreatedAt() time.Time {
	return s.data.CreatedAt
}

// ExpiresAt returns the absolute expiry timestamp for the session.
func (s *Session) ExpiresAt() time.Time {
	return s.data.ExpiresAt
}

// Get returns the value persisted under key, or "" when absent.
func (s *Session) Get(key string) string {
	return s.data.Values[key]
}

// Set persists value under key. Last writer wins.
func (s *Session) Set(key, value string) {
	if s.data.Values == nil {
		s.data.Values = make(map[string]string)
	}
	if current, ok := s.data.Values[key]; ok && current == value {
		return
	}
	s.data.Values[key] = value
	s.dirty = true
}

// Token returns the persisted auth token.
func (s *Session) Token() string {
	return s.Get(TokenKey)
}

// SetToken persists the auth token under TokenKey.
func (s *Session) SetToken(token string) {
	s.Set(TokenKey, token)
}

// SetFlash stores a one-shot notice shown on the next rendered page.
func (s *Session) SetFlash(message string) {
	if s.data.Flash == message {
		return
	}
	s.data.Flash = message
	s.dirty = true
}

// PopFlash returns and clears the pending notice.
func (s *Session) PopFlash() string {
	msg := s.data.Flash
	if msg != "" {
		s.data.Flash = ""
		s.dirty = true
	}
	return msg
}

// Destroy marks the session for deletion at the end of the request.
func (s *Session) Destroy() {
	s.destroyed = true
	s.dirty = true
}

// Destroyed exposes the destroy marker.
func (s *Session) Destroyed() bool {
	return s.destroyed
}

// Touch updates the last active timestamp.
func (s *Session) Touch(now time.Time) {
	now = now.UTC()
	if now.After(s.data.LastActive) {
		s.data.LastActive = now
		s.dirty = true
	}
}

// Dirty indicates whether the session contents have changed during this request.
func (s *Session) Dirty() bool {
	return s.dirty
}

func (s *Session) snapshot() Data {
	data := s.data
	data.Values = make(map[string]string, len(s.data.Values))
	for k, v := range s.data.Values {
		data.Values[k] = v
	}
	return data
}
