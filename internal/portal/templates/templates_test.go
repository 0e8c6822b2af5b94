package templates

import (
	"bytes"
	"context"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"github.com/carportal/carportal/internal/portal/carform"
	"github.com/carportal/carportal/internal/portal/templates/auth"
	"github.com/carportal/carportal/internal/portal/templates/dashboard"
)

func render(t *testing.T, c templ.Component) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return doc
}

func TestLoginPageShowsError(t *testing.T) {
	doc := render(t, LoginPage(auth.LoginPageData{
		Email:     "a@b.co",
		Error:     "Invalid <credentials>",
		LoginPath: "/login",
		CSRFToken: "tok",
	}))

	require.Equal(t, "Login", doc.Find("title").Text())
	require.Equal(t, "Invalid <credentials>", doc.Find("#login-form .error").Text())
	require.Equal(t, "/login", doc.Find("#login-form").AttrOr("action", ""))
	require.Equal(t, "a@b.co", doc.Find(`input[name="email"]`).AttrOr("value", ""))
	require.Equal(t, "tok", doc.Find(`input[name="_csrf"]`).AttrOr("value", ""))
	require.Empty(t, doc.Find(`input[name="password"]`).AttrOr("value", ""))
}

func TestDashboardPageDisablesUploadWithoutMax(t *testing.T) {
	data := dashboard.Build("/dashboard", &carform.Form{}, "", "tok")
	doc := render(t, DashboardPage(data))

	_, disabled := doc.Find(`input[name="images"]`).Attr("disabled")
	require.True(t, disabled)
	require.Equal(t, "/dashboard/submit?_csrf=tok", doc.Find("#car-form").AttrOr("action", ""))
	require.Zero(t, doc.Find(".preview").Length())
}

func TestCarFormRendersPreviewsInOrder(t *testing.T) {
	form := &carform.Form{
		Fields: carform.Fields{CarModel: "Civic", MaxPictures: "3"},
		Images: []carform.Image{{ID: "a1", Filename: "front.png"}, {ID: "b2", Filename: "back.png"}},
		Error:  "You can only upload up to 3 images.",
	}
	doc := render(t, CarForm(dashboard.Build("/dashboard", form, "", "")))

	require.Equal(t, "Civic", doc.Find(`input[name="carModel"]`).AttrOr("value", ""))
	require.Equal(t, form.Error, doc.Find(".error").Text())

	_, disabled := doc.Find(`input[name="images"]`).Attr("disabled")
	require.False(t, disabled)

	previews := doc.Find(".preview")
	require.Equal(t, 2, previews.Length())
	require.Equal(t, "/dashboard/images/a1", previews.Eq(0).Find("img").AttrOr("src", ""))
	require.Equal(t, "Preview 2", previews.Eq(1).Find("img").AttrOr("alt", ""))
	require.Equal(t, "/dashboard/images/1/remove", previews.Eq(1).Find("button").AttrOr("formaction", ""))
}

func TestDashboardPageShowsNotice(t *testing.T) {
	doc := render(t, DashboardPage(dashboard.Build("/dashboard", &carform.Form{}, carform.SuccessNotice, "")))
	require.Equal(t, carform.SuccessNotice, doc.Find(".notice").Text())
}
