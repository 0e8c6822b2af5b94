// Package carform implements the car listing draft: five required fields plus a
// bounded, ordered list of staged images.
package carform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field names as they appear in forms and in the upstream multipart payload.
const (
	FieldCarModel    = "carModel"
	FieldPrice       = "price"
	FieldPhone       = "phone"
	FieldCity        = "city"
	FieldMaxPictures = "maxPictures"
)

// FieldOrder is the order fields are written to the submission payload.
var FieldOrder = []string{FieldCarModel, FieldPrice, FieldPhone, FieldCity, FieldMaxPictures}

const (
	MissingFieldsMessage = "All fields are required."
	SubmitFailedMessage  = "Submission failed."
	SuccessNotice        = "Car data submitted successfully!"
)

var (
	ErrMissingFields = errors.New("carform: missing required fields")
	ErrTooManyImages = errors.New("carform: image limit exceeded")
	ErrUnknownField  = errors.New("carform: unknown field")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Fields are the raw text inputs. Values are kept exactly as typed.
type Fields struct {
	CarModel    string `json:"carModel" validate:"required"`
	Price       string `json:"price" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	City        string `json:"city" validate:"required"`
	MaxPictures string `json:"maxPictures" validate:"required"`
}

// Value returns the field registered under name.
func (f Fields) Value(name string) string {
	switch name {
	case FieldCarModel:
		return f.CarModel
	case FieldPrice:
		return f.Price
	case FieldPhone:
		return f.Phone
	case FieldCity:
		return f.City
	case FieldMaxPictures:
		return f.MaxPictures
	}
	return ""
}

// Image is a staged upload. The bytes live in the draft store under ID.
type Image struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Form is the persisted draft for one session.
type Form struct {
	Fields Fields  `json:"fields"`
	Images []Image `json:"images,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// SetField updates a single field. Unknown names are rejected.
func (f *Form) SetField(name, value string) error {
	switch name {
	case FieldCarModel:
		f.Fields.CarModel = value
	case FieldPrice:
		f.Fields.Price = value
	case FieldPhone:
		f.Fields.Phone = value
	case FieldCity:
		f.Fields.City = value
	case FieldMaxPictures:
		f.Fields.MaxPictures = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return nil
}

// MaxPictures reads the leading integer of the maxPictures field. Anything
// unparsable counts as zero.
func (f *Form) MaxPictures() int {
	return leadingInt(f.Fields.MaxPictures)
}

// CanAddImages reports whether the upload control should accept another file.
// A non-numeric maxPictures leaves the control enabled; AddImages still caps
// such a batch at zero.
func (f *Form) CanAddImages() bool {
	if f.Fields.MaxPictures == "" {
		return false
	}
	n, ok := parseLeadingInt(f.Fields.MaxPictures)
	if !ok {
		return true
	}
	return n > len(f.Images)
}

// AddImages appends batch in order, or rejects the whole batch when it would
// exceed the cap.
func (f *Form) AddImages(batch []Image) error {
	limit := f.MaxPictures()
	if len(batch)+len(f.Images) > limit {
		f.Error = fmt.Sprintf("You can only upload up to %d images.", limit)
		return fmt.Errorf("%w: %d", ErrTooManyImages, limit)
	}
	f.Error = ""
	f.Images = append(f.Images, batch...)
	return nil
}

// RemoveImage drops the image at index and returns it. Out-of-range indexes are ignored.
func (f *Form) RemoveImage(index int) (Image, bool) {
	if index < 0 || index >= len(f.Images) {
		return Image{}, false
	}
	removed := f.Images[index]
	images := make([]Image, 0, len(f.Images)-1)
	images = append(images, f.Images[:index]...)
	images = append(images, f.Images[index+1:]...)
	f.Images = images
	return removed, true
}

// Validate checks that every field is filled in.
func (f *Form) Validate() error {
	if err := validate.Struct(f.Fields); err != nil {
		f.Error = MissingFieldsMessage
		return fmt.Errorf("%w: %s", ErrMissingFields, missingNames(err))
	}
	return nil
}

// Reset returns the form to its pristine state and hands back the images it held.
func (f *Form) Reset() []Image {
	released := f.Images
	*f = Form{}
	return released
}

// Attachment is an image ready for transmission.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Listing is the payload handed to a Submitter.
type Listing struct {
	Fields      Fields
	Attachments []Attachment
}

// Submitter posts a listing on behalf of the token holder.
type Submitter interface {
	SubmitCar(ctx context.Context, token string, listing Listing) error
}

// ImageSource loads staged image bytes.
type ImageSource interface {
	Image(ctx context.Context, id string) ([]byte, error)
}

// MessageError is implemented by errors that carry a displayable message.
type MessageError interface {
	error
	UserMessage() string
}

// Submit validates, uploads and resets the form on success. The returned images
// are the ones released by the reset.
func (f *Form) Submit(ctx context.Context, submitter Submitter, token string, source ImageSource) ([]Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	listing := Listing{Fields: f.Fields, Attachments: make([]Attachment, 0, len(f.Images))}
	for _, img := range f.Images {
		data, err := source.Image(ctx, img.ID)
		if err != nil {
			f.Error = SubmitFailedMessage
			return nil, fmt.Errorf("carform: load image %s: %w", img.ID, err)
		}
		listing.Attachments = append(listing.Attachments, Attachment{
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Data:        data,
		})
	}

	if err := submitter.SubmitCar(ctx, token, listing); err != nil {
		f.Error = submitMessage(err)
		return nil, err
	}
	return f.Reset(), nil
}

func submitMessage(err error) string {
	var msgErr MessageError
	if errors.As(err, &msgErr) {
		if msg := strings.TrimSpace(msgErr.UserMessage()); msg != "" {
			return msg
		}
		return SubmitFailedMessage
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return SubmitFailedMessage
}

func missingNames(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return strings.Join(names, ", ")
}

// leadingInt mirrors parseInt(s, 10): optional leading whitespace and sign,
// then as many decimal digits as are present.
func leadingInt(s string) int {
	n, _ := parseLeadingInt(s)
	return n
}

// parseLeadingInt reads an optionally signed run of leading digits. ok is
// false when there are none.
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		if n > (1<<31)/10 {
			break
		}
		n = n*10 + int(r-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		return -n, true
	}
	return n, true
}
