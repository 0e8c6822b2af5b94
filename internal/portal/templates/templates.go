// Package templates renders the portal pages. Pages are html/template sets
// exposed as templ components so handlers can serve them with templ.Handler.
package templates

import (
	"embed"
	"fmt"
	"html/template"

	"github.com/a-h/templ"

	"github.com/carportal/carportal/internal/portal/templates/auth"
	"github.com/carportal/carportal/internal/portal/templates/dashboard"
)

//go:embed views/*.tmpl
var views embed.FS

var (
	loginSet     = mustParse("views/layout.tmpl", "views/login.tmpl")
	dashboardSet = mustParse("views/layout.tmpl", "views/dashboard.tmpl")
)

func mustParse(files ...string) *template.Template {
	t, err := template.New("").ParseFS(views, files...)
	if err != nil {
		panic(fmt.Sprintf("templates: parse %v: %v", files, err))
	}
	return t
}

// LoginPage renders the full login screen.
func LoginPage(data auth.LoginPageData) templ.Component {
	return templ.FromGoHTML(loginSet.Lookup("base"), data)
}

// LoginForm renders only the form, for htmx swaps.
func LoginForm(data auth.LoginPageData) templ.Component {
	return templ.FromGoHTML(loginSet.Lookup("login_form"), data)
}

// DashboardPage renders the full car form screen.
func DashboardPage(data dashboard.PageData) templ.Component {
	return templ.FromGoHTML(dashboardSet.Lookup("base"), data)
}

// CarForm renders only the car form, for htmx swaps.
func CarForm(data dashboard.PageData) templ.Component {
	return templ.FromGoHTML(dashboardSet.Lookup("car_form"), data)
}
