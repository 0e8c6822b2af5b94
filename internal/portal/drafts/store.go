// Package drafts persists per-session car form drafts and the image bytes
// staged for them.
package drafts

import (
	"context"
	"errors"

	"github.com/carportal/carportal/internal/portal/carform"
)

// ErrNotFound is returned when a draft or image does not exist or has expired.
var ErrNotFound = errors.New("drafts: not found")

// Store keeps drafts keyed by session ID. Implementations must be safe for concurrent use.
type Store interface {
	Load(ctx context.Context, sessionID string) (*carform.Form, error)
	Save(ctx context.Context, sessionID string, form *carform.Form) error
	Delete(ctx context.Context, sessionID string) error

	PutImage(ctx context.Context, sessionID, imageID string, data []byte) error
	Image(ctx context.Context, sessionID, imageID string) ([]byte, error)
	DeleteImages(ctx context.Context, sessionID string, imageIDs ...string) error
}

// LoadOrNew returns the stored draft, or an empty one when none exists.
func LoadOrNew(ctx context.Context, store Store, sessionID string) (*carform.Form, error) {
	form, err := store.Load(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return &carform.Form{}, nil
	}
	if err != nil {
		return nil, err
	}
	return form, nil
}

// Release frees the blobs of the given images.
func Release(ctx context.Context, store Store, sessionID string, images []carform.Image) error {
	if len(images) == 0 {
		return nil
	}
	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.ID)
	}
	return store.DeleteImages(ctx, sessionID, ids...)
}

// Images binds a store to one session so it can feed carform.Submit.
func Images(store Store, sessionID string) carform.ImageSource {
	return sessionImages{store: store, sessionID: sessionID}
}

type sessionImages struct {
	store     Store
	sessionID string
}

func (s sessionImages) Image(ctx context.Context, id string) ([]byte, error) {
	return s.store.Image(ctx, s.sessionID, id)
}
