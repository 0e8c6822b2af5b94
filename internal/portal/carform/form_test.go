package carform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func filledFields() Fields {
	return Fields{CarModel: "Civic", Price: "9000", Phone: "555-0100", City: "Lahore", MaxPictures: "3"}
}

func images(ids ...string) []Image {
	out := make([]Image, 0, len(ids))
	for _, id := range ids {
		out = append(out, Image{ID: id, Filename: id + ".png", ContentType: "image/png", Size: 4})
	}
	return out
}

func imageIDs(list []Image) []string {
	ids := make([]string, 0, len(list))
	for _, img := range list {
		ids = append(ids, img.ID)
	}
	return ids
}

func TestMaxPicturesLeadingInteger(t *testing.T) {
	cases := map[string]int{
		"":     0,
		"3":    3,
		"3abc": 3,
		"abc":  0,
		"-1":   -1,
		" 4":   4,
		"2.9":  2,
		"+5":   5,
		"-":    0,
	}
	for input, want := range cases {
		form := &Form{Fields: Fields{MaxPictures: input}}
		require.Equal(t, want, form.MaxPictures(), "input %q", input)
	}
}

func TestAddImagesRejectsWholeBatchOverCap(t *testing.T) {
	form := &Form{Fields: Fields{MaxPictures: "3"}, Images: images("a", "b")}

	err := form.AddImages(images("c", "d"))
	require.ErrorIs(t, err, ErrTooManyImages)
	require.Equal(t, "You can only upload up to 3 images.", form.Error)
	require.Len(t, form.Images, 2)
}

func TestAddImagesAppendsInOrderAndClearsError(t *testing.T) {
	form := &Form{Fields: Fields{MaxPictures: "3"}, Images: images("a"), Error: "old"}

	require.NoError(t, form.AddImages(images("b", "c")))
	require.Empty(t, form.Error)
	require.Equal(t, []string{"a", "b", "c"}, imageIDs(form.Images))
}

func TestAddImagesWithUnparsableMax(t *testing.T) {
	form := &Form{Fields: Fields{MaxPictures: "many"}}
	require.ErrorIs(t, form.AddImages(images("a")), ErrTooManyImages)
	require.Equal(t, "You can only upload up to 0 images.", form.Error)
}

func TestLoweringMaxDoesNotEvict(t *testing.T) {
	form := &Form{Fields: Fields{MaxPictures: "3"}}
	require.NoError(t, form.AddImages(images("a", "b", "c")))
	require.NoError(t, form.SetField(FieldMaxPictures, "1"))
	require.Len(t, form.Images, 3)
	require.False(t, form.CanAddImages())
}

func TestCanAddImages(t *testing.T) {
	require.False(t, (&Form{}).CanAddImages())
	require.True(t, (&Form{Fields: Fields{MaxPictures: "2"}, Images: images("a")}).CanAddImages())
	require.False(t, (&Form{Fields: Fields{MaxPictures: "1"}, Images: images("a")}).CanAddImages())
	require.False(t, (&Form{Fields: Fields{MaxPictures: "0"}}).CanAddImages())
}

func TestNonNumericMaxPicturesKeepsUploadEnabled(t *testing.T) {
	form := &Form{Fields: Fields{MaxPictures: "abc"}, Images: images("a")}
	require.True(t, form.CanAddImages())

	err := form.AddImages(images("b"))
	require.ErrorIs(t, err, ErrTooManyImages)
	require.Equal(t, "You can only upload up to 0 images.", form.Error)
	require.Len(t, form.Images, 1)
}

func TestRemoveImageKeepsOrder(t *testing.T) {
	form := &Form{Images: images("A", "B", "C")}

	removed, ok := form.RemoveImage(1)
	require.True(t, ok)
	require.Equal(t, "B", removed.ID)
	require.Equal(t, []string{"A", "C"}, imageIDs(form.Images))

	_, ok = form.RemoveImage(5)
	require.False(t, ok)
	_, ok = form.RemoveImage(-1)
	require.False(t, ok)
	require.Len(t, form.Images, 2)
}

func TestSetFieldRejectsUnknownNames(t *testing.T) {
	form := &Form{}
	require.ErrorIs(t, form.SetField("colour", "red"), ErrUnknownField)
	for _, name := range FieldOrder {
		require.NoError(t, form.SetField(name, "x"))
		require.Equal(t, "x", form.Fields.Value(name))
	}
}

type recordingSubmitter struct {
	calls   int
	token   string
	listing Listing
	err     error
}

func (r *recordingSubmitter) SubmitCar(_ context.Context, token string, listing Listing) error {
	r.calls++
	r.token = token
	r.listing = listing
	return r.err
}

type blobs map[string][]byte

func (b blobs) Image(_ context.Context, id string) ([]byte, error) {
	data, ok := b[id]
	if !ok {
		return nil, errors.New("missing")
	}
	return data, nil
}

func TestSubmitRequiresEveryField(t *testing.T) {
	for _, name := range FieldOrder {
		t.Run(name, func(t *testing.T) {
			form := &Form{Fields: filledFields()}
			require.NoError(t, form.SetField(name, ""))

			sub := &recordingSubmitter{}
			released, err := form.Submit(context.Background(), sub, "tok", blobs{})
			require.ErrorIs(t, err, ErrMissingFields)
			require.Nil(t, released)
			require.Equal(t, MissingFieldsMessage, form.Error)
			require.Zero(t, sub.calls)
		})
	}
}

func TestSubmitSuccessResetsForm(t *testing.T) {
	form := &Form{Fields: filledFields(), Images: images("a", "b"), Error: "old"}
	sub := &recordingSubmitter{}
	source := blobs{"a": []byte("AAAA"), "b": []byte("BBBB")}

	released, err := form.Submit(context.Background(), sub, "tok", source)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, imageIDs(released))

	require.Equal(t, 1, sub.calls)
	require.Equal(t, "tok", sub.token)
	require.Equal(t, filledFields(), sub.listing.Fields)
	require.Len(t, sub.listing.Attachments, 2)
	require.Equal(t, "a.png", sub.listing.Attachments[0].Filename)
	require.Equal(t, []byte("BBBB"), sub.listing.Attachments[1].Data)

	require.Equal(t, Fields{}, form.Fields)
	require.Empty(t, form.Images)
	require.Empty(t, form.Error)
}

type displayErr struct{ msg string }

func (e displayErr) Error() string       { return "status 500: " + e.msg }
func (e displayErr) UserMessage() string { return e.msg }

func TestSubmitFailureKeepsDraft(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"message", displayErr{msg: "Price must be numeric"}, "Price must be numeric"},
		{"empty message", displayErr{}, SubmitFailedMessage},
		{"plain error", errors.New("Network Error"), "Network Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := &Form{Fields: filledFields(), Images: images("a")}
			sub := &recordingSubmitter{err: tc.err}

			released, err := form.Submit(context.Background(), sub, "tok", blobs{"a": []byte("x")})
			require.Error(t, err)
			require.Nil(t, released)
			require.Equal(t, tc.want, form.Error)
			require.Equal(t, filledFields(), form.Fields)
			require.Len(t, form.Images, 1)
		})
	}
}

func TestSubmitMissingBlob(t *testing.T) {
	form := &Form{Fields: filledFields(), Images: images("gone")}
	sub := &recordingSubmitter{}
	_, err := form.Submit(context.Background(), sub, "tok", blobs{})
	require.Error(t, err)
	require.Equal(t, SubmitFailedMessage, form.Error)
	require.Zero(t, sub.calls)
}
