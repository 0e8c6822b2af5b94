package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	appsession "github.com/carportal/carportal/internal/portal/session"
)

func withToken(t *testing.T, token string, next http.Handler) http.Handler {
	t.Helper()
	clock := &sessionTestClock{now: time.Now()}
	store := newSessionStoreForTest(t, clock)
	return Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			sess, _ := SessionFromContext(r.Context())
			sess.Set(appsession.TokenKey, token)
		}
		next.ServeHTTP(w, r)
	}))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireToken(t *testing.T) {
	t.Run("missing token redirects to login", func(t *testing.T) {
		handler := withToken(t, "", HTMX()(RequireToken("/")(okHandler())))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}
		if location := rr.Header().Get("Location"); location != "/" {
			t.Fatalf("expected redirect to /, got %s", location)
		}
	})

	t.Run("htmx request gets 401 with HX-Redirect", func(t *testing.T) {
		handler := HTMX()(withToken(t, "", RequireToken("/")(okHandler())))
		req := httptest.NewRequest(http.MethodPost, "/dashboard/fields", nil)
		req.Header.Set("HX-Request", "true")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
		if rr.Header().Get("HX-Redirect") != "/" {
			t.Fatalf("expected HX-Redirect header to /")
		}
	})

	t.Run("any non-empty token passes", func(t *testing.T) {
		handler := withToken(t, "whatever", RequireToken("/")(okHandler()))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})
}

func TestRedirectIfToken(t *testing.T) {
	t.Run("token present redirects to dashboard", func(t *testing.T) {
		handler := withToken(t, "abc", RedirectIfToken("/dashboard")(okHandler()))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}
		if location := rr.Header().Get("Location"); location != "/dashboard" {
			t.Fatalf("expected redirect to /dashboard, got %s", location)
		}
	})

	t.Run("no token renders login", func(t *testing.T) {
		handler := withToken(t, "", RedirectIfToken("/dashboard")(okHandler()))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})
}

func TestCSRFMiddleware(t *testing.T) {
	mw := CSRF(CSRFConfig{CookieName: "csrf", HeaderName: "X-CSRF-Token"})
	next := okHandler()

	t.Run("issues cookie on GET", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CSRFTokenFromContext(r.Context()) == "" {
				t.Fatalf("expected token in context")
			}
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if findCookie(rr.Result().Cookies(), "csrf") == nil {
			t.Fatalf("expected csrf cookie")
		}
	})

	t.Run("rejects POST without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: "tok"})
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("accepts header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: "tok"})
		req.Header.Set("X-CSRF-Token", "tok")
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("accepts form field", func(t *testing.T) {
		body := url.Values{CSRFFormField: {"tok"}, "email": {"a@b.co"}}.Encode()
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: "csrf", Value: "tok"})
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("rejects mismatched query token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/dashboard/images?_csrf=other", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: "tok"})
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})
}

func TestHTMXRedirect(t *testing.T) {
	handler := HTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("HX-Request", "true")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("HX-Redirect") != "/dashboard" {
		t.Fatalf("expected HX-Redirect header")
	}
	if rr.Header().Get("Vary") != "HX-Request" {
		t.Fatalf("expected Vary header on htmx response")
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected 303 to /dashboard, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
}
