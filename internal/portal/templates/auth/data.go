package auth

// LoginPageData encapsulates rendering state for the login screen.
type LoginPageData struct {
	Email     string
	Error     string
	LoginPath string
	CSRFToken string
}
