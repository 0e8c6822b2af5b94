package httpserver

import (
	"net/http"

	"github.com/a-h/templ"
)

func render(w http.ResponseWriter, r *http.Request, c templ.Component, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(c, templ.WithStatus(status)).ServeHTTP(w, r)
}
