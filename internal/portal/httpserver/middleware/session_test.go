package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appsession "github.com/carportal/carportal/internal/portal/session"
)

type sessionTestClock struct {
	now time.Time
}

func (c *sessionTestClock) Now() time.Time {
	return c.now
}

func newSessionStoreForTest(t *testing.T, clock *sessionTestClock) *appsession.Manager {
	t.Helper()
	store, err := appsession.NewManager(appsession.Config{
		CookieName:  "test_session",
		HashKey:     []byte("12345678901234567890123456789012"),
		BlockKey:    []byte("abcdefghijklmnopqrstuvwxyzABCDEF"),
		IdleTimeout: 5 * time.Minute,
		Lifetime:    time.Hour,
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("session manager init: %v", err)
	}
	return store
}

func TestSessionMiddlewareLifecycle(t *testing.T) {
	clock := &sessionTestClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	store := newSessionStoreForTest(t, clock)

	var ids []string
	handler := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			t.Fatalf("session missing in context")
		}
		ids = append(ids, sess.ID())
		w.WriteHeader(http.StatusOK)
	}))

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := findCookie(rec1.Result().Cookies(), "test_session")
	if cookie == nil {
		t.Fatalf("expected session cookie on first response")
	}

	clock.now = clock.now.Add(2 * time.Minute)
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req2)
	if len(ids) != 2 || ids[1] != ids[0] {
		t.Fatalf("expected same session id between active requests, got %v", ids)
	}

	clock.now = clock.now.Add(15 * time.Minute)
	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	req3.AddCookie(cookie)
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req3)
	if ids[2] == ids[1] {
		t.Fatalf("expected new session id after idle timeout")
	}
	if len(rec3.Result().Cookies()) == 0 {
		t.Fatalf("expected refreshed session cookie after timeout")
	}
}

func TestSessionMiddlewareSavesBeforeBodyIsWritten(t *testing.T) {
	clock := &sessionTestClock{now: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	store := newSessionStoreForTest(t, clock)

	login := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		sess.Set(appsession.TokenKey, "abc123")
		_, _ = w.Write([]byte("welcome"))
	}))

	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	cookie := findCookie(rec.Result().Cookies(), "test_session")
	if cookie == nil {
		t.Fatalf("expected cookie to be sent with the body")
	}

	var seen string
	read := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TokenFromRequest(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	read.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc123" {
		t.Fatalf("expected token to persist, got %q", seen)
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
