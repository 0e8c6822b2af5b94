package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/carportal/carportal/internal/portal/observability"
	appsession "github.com/carportal/carportal/internal/portal/session"
)

type sessionContextKey string

const requestSessionKey sessionContextKey = "portal.session"

// SessionStore abstracts the session manager for middleware integration.
type SessionStore interface {
	Load(*http.Request) (*appsession.Session, error)
	New() *appsession.Session
	Save(http.ResponseWriter, *appsession.Session) error
	Destroy(http.ResponseWriter)
}

// Session attaches the decoded session to the request context. Changes are
// written back as a cookie just before the response headers go out.
func Session(store SessionStore) func(http.Handler) http.Handler {
	if store == nil {
		panic("session store is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())

			sess, err := store.Load(r)
			if errors.Is(err, appsession.ErrExpired) {
				logger.Debug("session expired; resetting")
				store.Destroy(w)
				sess = store.New()
			} else if err != nil || sess == nil {
				if err != nil {
					logger.Warn("session load failed", zap.Error(err))
				}
				sess = store.New()
			}

			sw := &sessionWriter{ResponseWriter: w, save: func() {
				if err := store.Save(w, sess); err != nil {
					logger.Error("session save failed", zap.Error(err))
				}
			}}

			ctx := context.WithValue(r.Context(), requestSessionKey, sess)
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.flushSession()
		})
	}
}

// SessionFromContext retrieves the session attached to this request.
func SessionFromContext(ctx context.Context) (*appsession.Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(requestSessionKey).(*appsession.Session)
	return sess, ok && sess != nil
}

type sessionWriter struct {
	http.ResponseWriter
	save  func()
	saved bool
}

func (w *sessionWriter) flushSession() {
	if w.saved {
		return
	}
	w.saved = true
	w.save()
}

func (w *sessionWriter) WriteHeader(status int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	w.flushSession()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
