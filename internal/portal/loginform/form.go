// Package loginform holds the login screen state and the credential submission flow.
package loginform

import (
	"context"
	"errors"
	"strings"
)

// FallbackError is shown when the server does not supply a usable message.
const FallbackError = "Login failed"

// ErrNoToken is returned by Submit when the server reported success without a token.
var ErrNoToken = errors.New("loginform: response missing token")

// Authenticator exchanges credentials for an opaque token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// TokenStore persists the token across page loads. The store decides the key
// it lives under.
type TokenStore interface {
	SetToken(token string)
}

// MessageError is implemented by errors that carry a server-supplied message.
type MessageError interface {
	error
	UserMessage() string
}

// Form is the transient login form state.
type Form struct {
	Email    string
	Password string
	Error    string
}

// Submit sends the credentials as entered. On success the token is stored
// and onSuccess runs; on failure Error is populated and false is returned.
func (f *Form) Submit(ctx context.Context, auth Authenticator, store TokenStore, onSuccess func()) (bool, error) {
	token, err := auth.Login(ctx, f.Email, f.Password)
	if err == nil && strings.TrimSpace(token) == "" {
		err = ErrNoToken
	}
	if err != nil {
		f.Error = messageFor(err)
		return false, err
	}

	f.Error = ""
	store.SetToken(token)
	if onSuccess != nil {
		onSuccess()
	}
	return true, nil
}

func messageFor(err error) string {
	var msgErr MessageError
	if errors.As(err, &msgErr) {
		if msg := strings.TrimSpace(msgErr.UserMessage()); msg != "" {
			return msg
		}
	}
	return FallbackError
}
