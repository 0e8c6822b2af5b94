package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/carportal/carportal/internal/portal/backend"
	"github.com/carportal/carportal/internal/portal/carform"
	"github.com/carportal/carportal/internal/portal/drafts"
	custommw "github.com/carportal/carportal/internal/portal/httpserver/middleware"
	"github.com/carportal/carportal/internal/portal/metrics"
	"github.com/carportal/carportal/internal/portal/observability"
	appsession "github.com/carportal/carportal/internal/portal/session"
	"github.com/carportal/carportal/internal/portal/templates"
	"github.com/carportal/carportal/internal/portal/templates/dashboard"
)

const (
	notImageMessage  = "Only image files can be uploaded."
	tooLargeMessage  = "The selected images are too large."
	badUploadMessage = "The upload could not be read."
	multipartMemory  = 8 << 20
)

type dashboardHandlers struct {
	drafts      drafts.Store
	submitter   carform.Submitter
	basePath    string
	uploadLimit int64
	locks       *draftLocks
}

func newDashboardHandlers(store drafts.Store, submitter carform.Submitter, basePath string, uploadLimit int64) *dashboardHandlers {
	return &dashboardHandlers{
		drafts:      store,
		submitter:   submitter,
		basePath:    basePath,
		uploadLimit: uploadLimit,
		locks:       newDraftLocks(),
	}
}

// Page renders the car form with the stored draft.
func (h *dashboardHandlers) Page(w http.ResponseWriter, r *http.Request) {
	sess, form, ok := h.loadDraft(w, r)
	if !ok {
		return
	}
	h.renderForm(w, r, form, sess.PopFlash(), http.StatusOK)
}

// UpdateFields applies the posted field values.
func (h *dashboardHandlers) UpdateFields(w http.ResponseWriter, r *http.Request) {
	defer h.lockDraft(r)()
	sess, form, ok := h.loadPosted(w, r)
	if !ok {
		return
	}
	if !h.saveDraft(w, r, sess, form) {
		return
	}
	h.respond(w, r, form, http.StatusOK)
}

// AddImages stages a batch of uploaded images, all or nothing.
func (h *dashboardHandlers) AddImages(w http.ResponseWriter, r *http.Request) {
	defer h.lockDraft(r)()
	logger := observability.FromContext(r.Context())
	sess, form, ok := h.loadPosted(w, r)
	if !ok {
		return
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["images"]
	}
	if len(files) == 0 {
		h.respond(w, r, form, http.StatusOK)
		return
	}

	batch, blobs, err := readImages(files)
	status := http.StatusOK
	switch {
	case errors.Is(err, carform.ErrNotImage):
		form.Error = notImageMessage
		status = http.StatusUnprocessableEntity
	case err != nil:
		logger.Warn("read upload failed", zap.Error(err))
		form.Error = badUploadMessage
		status = http.StatusBadRequest
	default:
		if addErr := form.AddImages(batch); addErr != nil {
			status = http.StatusUnprocessableEntity
			break
		}
		for i, img := range batch {
			if putErr := h.drafts.PutImage(r.Context(), sess.ID(), img.ID, blobs[i]); putErr != nil {
				logger.Error("stage image failed", zap.Error(putErr))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}
	}

	if status == http.StatusOK {
		metrics.ImageBatch(metrics.OutcomeSuccess)
	} else {
		metrics.ImageBatch(metrics.OutcomeRejected)
	}
	if !h.saveDraft(w, r, sess, form) {
		return
	}
	h.respond(w, r, form, status)
}

// RemoveImage drops the image at the given position and frees its blob.
func (h *dashboardHandlers) RemoveImage(w http.ResponseWriter, r *http.Request) {
	defer h.lockDraft(r)()
	logger := observability.FromContext(r.Context())
	sess, form, ok := h.loadPosted(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err == nil {
		if removed, ok := form.RemoveImage(index); ok {
			if err := drafts.Release(r.Context(), h.drafts, sess.ID(), []carform.Image{removed}); err != nil {
				logger.Warn("release image failed", zap.Error(err))
			}
		}
	}

	if !h.saveDraft(w, r, sess, form) {
		return
	}
	h.respond(w, r, form, http.StatusOK)
}

// Preview serves the bytes of a staged image.
func (h *dashboardHandlers) Preview(w http.ResponseWriter, r *http.Request) {
	sess, form, ok := h.loadDraft(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var image *carform.Image
	for i := range form.Images {
		if form.Images[i].ID == id {
			image = &form.Images[i]
			break
		}
	}
	if image == nil {
		http.NotFound(w, r)
		return
	}

	data, err := h.drafts.Image(r.Context(), sess.ID(), id)
	if errors.Is(err, drafts.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).Error("load preview failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", image.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}

// Submit sends the listing upstream and resets the draft on success.
func (h *dashboardHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	defer h.lockDraft(r)()
	logger := observability.FromContext(r.Context())
	sess, form, ok := h.loadPosted(w, r)
	if !ok {
		return
	}

	released, err := form.Submit(r.Context(), h.submitter, sess.Token(), drafts.Images(h.drafts, sess.ID()))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, carform.ErrMissingFields) {
			status = http.StatusUnprocessableEntity
			metrics.CarSubmission(metrics.OutcomeRejected)
		} else {
			var apiErr *backend.Error
			if errors.As(err, &apiErr) {
				logger.Warn("car submission rejected upstream", zap.Int("status", apiErr.Status), zap.Error(err))
			} else {
				logger.Error("car submission failed", zap.Error(err))
			}
			metrics.CarSubmission(metrics.OutcomeFailed)
		}
		if !h.saveDraft(w, r, sess, form) {
			return
		}
		h.respond(w, r, form, status)
		return
	}

	metrics.CarSubmission(metrics.OutcomeSuccess)
	if err := drafts.Release(r.Context(), h.drafts, sess.ID(), released); err != nil {
		logger.Warn("release images failed", zap.Error(err))
	}
	if err := h.drafts.Delete(r.Context(), sess.ID()); err != nil {
		logger.Warn("delete draft failed, storing the reset form instead", zap.Error(err))
		if !h.saveDraft(w, r, sess, form) {
			return
		}
	}

	if custommw.IsHTMXRequest(r.Context()) {
		h.renderForm(w, r, form, carform.SuccessNotice, http.StatusOK)
		return
	}
	sess.SetFlash(carform.SuccessNotice)
	http.Redirect(w, r, h.basePath, http.StatusSeeOther)
}

// lockDraft holds the session's draft until the returned func runs, so
// overlapping posts from one page cannot overwrite each other's changes.
func (h *dashboardHandlers) lockDraft(r *http.Request) func() {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		return func() {}
	}
	return h.locks.Lock(sess.ID())
}

func (h *dashboardHandlers) loadDraft(w http.ResponseWriter, r *http.Request) (*appsession.Session, *carform.Form, bool) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, nil, false
	}
	form, err := drafts.LoadOrNew(r.Context(), h.drafts, sess.ID())
	if err != nil {
		observability.FromContext(r.Context()).Error("load draft failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, nil, false
	}
	return sess, form, true
}

// loadPosted loads the draft and applies any field values carried by the request.
func (h *dashboardHandlers) loadPosted(w http.ResponseWriter, r *http.Request) (*appsession.Session, *carform.Form, bool) {
	sess, form, ok := h.loadDraft(w, r)
	if !ok {
		return nil, nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)
	if err := parseBody(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			form.Error = tooLargeMessage
			h.respond(w, r, form, http.StatusRequestEntityTooLarge)
			return nil, nil, false
		}
		form.Error = badUploadMessage
		h.respond(w, r, form, http.StatusBadRequest)
		return nil, nil, false
	}

	for _, name := range carform.FieldOrder {
		if values, present := r.PostForm[name]; present && len(values) > 0 {
			_ = form.SetField(name, values[0])
		}
	}
	return sess, form, true
}

func (h *dashboardHandlers) saveDraft(w http.ResponseWriter, r *http.Request, sess *appsession.Session, form *carform.Form) bool {
	if err := h.drafts.Save(r.Context(), sess.ID(), form); err != nil {
		observability.FromContext(r.Context()).Error("save draft failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// respond re-renders the form. Plain form posts get the full page; htmx swaps
// get the fragment with a 200 so the swap happens.
func (h *dashboardHandlers) respond(w http.ResponseWriter, r *http.Request, form *carform.Form, status int) {
	if custommw.IsHTMXRequest(r.Context()) {
		status = http.StatusOK
	}
	h.renderForm(w, r, form, "", status)
}

func (h *dashboardHandlers) renderForm(w http.ResponseWriter, r *http.Request, form *carform.Form, notice string, status int) {
	data := dashboard.Build(h.basePath, form, notice, custommw.CSRFTokenFromContext(r.Context()))
	if custommw.IsHTMXRequest(r.Context()) {
		render(w, r, templates.CarForm(data), status)
		return
	}
	render(w, r, templates.DashboardPage(data), status)
}

func parseBody(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func readImages(files []*multipart.FileHeader) ([]carform.Image, [][]byte, error) {
	batch := make([]carform.Image, 0, len(files))
	blobs := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			return nil, nil, err
		}
		contentType, err := carform.DetectImage(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		batch = append(batch, carform.Image{
			ID:          ulid.Make().String(),
			Filename:    fh.Filename,
			ContentType: contentType,
			Size:        int64(len(data)),
		})
		blobs = append(blobs, data)
	}
	return batch, blobs, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return data, nil
}
