package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/inkpad/service/internal/metrics"
	"github.com/inkpad/service/internal/middleware"
	"github.com/inkpad/service/internal/response"
	"github.com/inkpad/service/internal/storage"
)

// PathPrefix is where images are served; upload responses point below it.
const PathPrefix = "/api/v1/images/"

// sniffLen is how many leading bytes are inspected to detect the media type.
const sniffLen = 3072

// SecretValidator checks a document's modification secret.
type SecretValidator interface {
	IsValidModificationSecret(ctx context.Context, id, secret string) (bool, error)
}

// Handler holds HTTP handlers for image endpoints.
type Handler struct {
	svc          *Service
	docs         SecretValidator
	allowedTypes []string
	maxBytes     int64
}

// NewHandler creates a new image Handler accepting uploads of allowedTypes
// up to maxBytes each.
func NewHandler(svc *Service, docs SecretValidator, allowedTypes []string, maxBytes int64) *Handler {
	return &Handler{svc: svc, docs: docs, allowedTypes: allowedTypes, maxBytes: maxBytes}
}

type uploadData struct {
	ID   string `json:"id"   example:"5f0c7a8e-6a43-4bb4-9d59-0f7f0d2b8a11"`
	Name string `json:"name" example:"image.png"`
	Path string `json:"path" example:"/api/v1/images/5f0c7a8e-6a43-4bb4-9d59-0f7f0d2b8a11"`
}

// Upload godoc
//
//	@Summary		Upload image
//	@Description	Attach an image to a document. The modification secret is checked before the body is read. The stored name is anonymized.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id					path		string	true	"Document ID"
//	@Param			modificationSecret	query		string	true	"Document modification secret"
//	@Param			file				formData	file	true	"Image file"
//	@Success		200					{object}	response.Envelope{data=uploadData}
//	@Failure		400					{object}	response.Envelope
//	@Failure		403					{object}	response.Envelope
//	@Failure		413					{object}	response.Envelope
//	@Failure		415					{object}	response.Envelope
//	@Failure		500					{object}	response.Envelope
//	@Router			/documents/{id}/images [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	docID := chi.URLParam(r, "id")

	valid, err := h.docs.IsValidModificationSecret(r.Context(), docID, middleware.ModificationSecret(r))
	if err != nil {
		log.Error().Err(err).Str("document_id", docID).Msg("image upload: secret check failed")
		response.InternalError(w)
		return
	}
	if !valid {
		metrics.ImageUploadsRejected.WithLabelValues("secret").Inc()
		// Close the connection instead of draining an upload we will not store.
		w.Header().Set("Connection", "close")
		response.Forbidden(w, "invalid modification secret")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		response.BadRequest(w, "expected multipart/form-data body")
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			response.BadRequest(w, "missing file")
			return
		}
		if err != nil {
			h.uploadError(w, r, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		defer func() { _ = part.Close() }()

		head := make([]byte, sniffLen)
		n, err := io.ReadFull(part, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			h.uploadError(w, r, err)
			return
		}
		head = head[:n]

		mediaType, ok := h.detect(head)
		if !ok {
			metrics.ImageUploadsRejected.WithLabelValues("media_type").Inc()
			response.UnsupportedMediaType(w, "unsupported image type")
			return
		}

		img, err := h.svc.Upload(r.Context(), docID, mediaType, part.FileName(),
			io.MultiReader(bytes.NewReader(head), part), -1)
		if err != nil {
			h.uploadError(w, r, err)
			return
		}

		log.Info().Str("document_id", img.DocumentID).Str("image_id", img.ID).Msg("image stored")
		response.OK(w, uploadData{ID: img.ID, Name: img.Name, Path: PathPrefix + img.ID})
		return
	}
}

// detect sniffs the media type of head and returns the matching allowed type.
func (h *Handler) detect(head []byte) (string, bool) {
	detected := mimetype.Detect(head)
	for _, allowed := range h.allowedTypes {
		if detected.Is(allowed) {
			return allowed, true
		}
	}
	return "", false
}

func (h *Handler) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		metrics.ImageUploadsRejected.WithLabelValues("too_large").Inc()
		response.RequestEntityTooLarge(w, "image too large")
	case errors.Is(err, ErrDocumentNotFound):
		response.NotFound(w, "document not found")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("image upload failed")
		response.InternalError(w)
	}
}

// Get godoc
//
//	@Summary		Get image
//	@Description	Returns the decrypted image bytes with the stored media type.
//	@Tags			images
//	@Produce		octet-stream
//	@Param			id	path		string	true	"Image ID"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/images/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	img, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "image not found")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("get image failed")
		response.InternalError(w)
		return
	}

	rc, err := h.svc.Open(r.Context(), img)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.NotFound(w, "image not found")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("image_id", img.ID).Msg("read image object failed")
		response.BadGateway(w, "storage error")
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", img.Mimetype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", img.Name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// Delete godoc
//
//	@Summary		Delete image
//	@Description	Deletes an image and its stored bytes. Requires the owning document's modification secret.
//	@Tags			images
//	@Param			id					path	string	true	"Image ID"
//	@Param			modificationSecret	query	string	true	"Owning document's modification secret"
//	@Success		204
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/images/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	img, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "image not found")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("get image failed")
		response.InternalError(w)
		return
	}

	valid, err := h.docs.IsValidModificationSecret(r.Context(), img.DocumentID, middleware.ModificationSecret(r))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("image delete: secret check failed")
		response.InternalError(w)
		return
	}
	if !valid {
		response.Forbidden(w, "invalid modification secret")
		return
	}

	if err := h.svc.Remove(r.Context(), img.DocumentID, img.ID); err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "image not found")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("image_id", img.ID).Msg("delete image failed")
		response.InternalError(w)
		return
	}

	response.NoContent(w)
}
