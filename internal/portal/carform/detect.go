package carform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotImage is returned when an upload's content is not an image.
var ErrNotImage = errors.New("carform: upload is not an image")

// DetectImage sniffs data and returns its media type when it is an image.
func DetectImage(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return mt.String(), nil
		}
	}
	return "", fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
}
