package middleware

import (
	"net/http"
)

// RequireToken sends visitors without a stored token to loginPath. The token
// is only checked for presence.
func RequireToken(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasToken(r) {
				next.ServeHTTP(w, r)
				return
			}
			if IsHTMXRequest(r.Context()) {
				w.Header().Set("HX-Redirect", loginPath)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, loginPath, http.StatusFound)
		})
	}
}

// RedirectIfToken sends visitors that already hold a token to dashboardPath.
func RedirectIfToken(dashboardPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasToken(r) {
				next.ServeHTTP(w, r)
				return
			}
			Redirect(w, r, dashboardPath, http.StatusFound)
		})
	}
}

// TokenFromRequest returns the stored token, or "" when there is none.
func TokenFromRequest(r *http.Request) string {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		return ""
	}
	return sess.Token()
}

func hasToken(r *http.Request) bool {
	return TokenFromRequest(r) != ""
}
