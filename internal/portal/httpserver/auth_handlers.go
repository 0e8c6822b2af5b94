package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	custommw "github.com/carportal/carportal/internal/portal/httpserver/middleware"
	"github.com/carportal/carportal/internal/portal/loginform"
	"github.com/carportal/carportal/internal/portal/metrics"
	"github.com/carportal/carportal/internal/portal/observability"
	"github.com/carportal/carportal/internal/portal/templates"
	"github.com/carportal/carportal/internal/portal/templates/auth"
)

type authHandlers struct {
	authenticator loginform.Authenticator
	loginAction   string
	dashboardPath string
}

func newAuthHandlers(authenticator loginform.Authenticator, loginAction, dashboardPath string) *authHandlers {
	if authenticator == nil {
		panic("auth: authenticator is required")
	}
	return &authHandlers{
		authenticator: authenticator,
		loginAction:   loginAction,
		dashboardPath: dashboardPath,
	}
}

func (h *authHandlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, &loginform.Form{}, http.StatusOK)
}

func (h *authHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, &loginform.Form{Error: loginform.FallbackError}, http.StatusBadRequest)
		return
	}

	form := &loginform.Form{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	_, err := form.Submit(r.Context(), h.authenticator, sess, func() {
		custommw.Redirect(w, r, h.dashboardPath, http.StatusSeeOther)
	})
	if err != nil {
		logger.Warn("login failed", zap.Error(err))
		metrics.LoginAttempt(metrics.OutcomeFailed)
		form.Password = ""
		h.renderLogin(w, r, form, http.StatusUnauthorized)
		return
	}

	metrics.LoginAttempt(metrics.OutcomeSuccess)
}

func (h *authHandlers) renderLogin(w http.ResponseWriter, r *http.Request, form *loginform.Form, status int) {
	data := auth.LoginPageData{
		Email:     form.Email,
		Error:     form.Error,
		LoginPath: h.loginAction,
		CSRFToken: custommw.CSRFTokenFromContext(r.Context()),
	}
	if custommw.IsHTMXRequest(r.Context()) {
		// htmx ignores non-2xx bodies by default; keep the swap working.
		render(w, r, templates.LoginForm(data), http.StatusOK)
		return
	}
	render(w, r, templates.LoginPage(data), status)
}
