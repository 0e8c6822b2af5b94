package dashboard

import (
	"fmt"
	"net/url"

	"github.com/carportal/carportal/internal/portal/carform"
)

// PageData is the view model for the car form screen.
type PageData struct {
	Fields       carform.Fields
	Images       []ImageView
	Error        string
	Notice       string
	CanAddImages bool
	CSRFToken    string
	Paths        Paths
}

// ImageView is one preview tile.
type ImageView struct {
	Index      int
	Number     int
	Filename   string
	PreviewURL string
	RemoveURL  string
}

// Paths are the form actions, with the CSRF token carried in the query string
// because multipart bodies are not inspected by the CSRF check.
type Paths struct {
	Dashboard string
	Fields    string
	Images    string
	Submit    string
}

// Build assembles the view model from a draft.
func Build(base string, form *carform.Form, notice, csrfToken string) PageData {
	paths := Paths{
		Dashboard: base,
		Fields:    withCSRF(base+"/fields", csrfToken),
		Images:    withCSRF(base+"/images", csrfToken),
		Submit:    withCSRF(base+"/submit", csrfToken),
	}
	views := make([]ImageView, 0, len(form.Images))
	for i, img := range form.Images {
		views = append(views, ImageView{
			Index:      i,
			Number:     i + 1,
			Filename:   img.Filename,
			PreviewURL: fmt.Sprintf("%s/images/%s", base, url.PathEscape(img.ID)),
			RemoveURL:  withCSRF(fmt.Sprintf("%s/images/%d/remove", base, i), csrfToken),
		})
	}
	return PageData{
		Fields:       form.Fields,
		Images:       views,
		Error:        form.Error,
		Notice:       notice,
		CanAddImages: form.CanAddImages(),
		CSRFToken:    csrfToken,
		Paths:        paths,
	}
}

func withCSRF(path, token string) string {
	if token == "" {
		return path
	}
	return path + "?_csrf=" + url.QueryEscape(token)
}
