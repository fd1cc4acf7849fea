package document

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/inkpad/service/internal/middleware"
	"github.com/inkpad/service/internal/response"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 8 << 20

// Handler holds HTTP handlers for document endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new document Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	OwnerExternalID *string `json:"ownerExternalId,omitempty" example:"user-123"`
}

type updateRequest struct {
	Data json.RawMessage `json:"data" swaggertype:"object"`
}

type deleteData struct {
	ID      string `json:"id"      example:"0b8f3a52-4a8c-4c1a-9d57-3c5a9e2f1d10"`
	Deleted bool   `json:"deleted" example:"true"`
}

// Create godoc
//
//	@Summary		Create document
//	@Description	Creates an empty document. The response carries the modification secret; it is never returned again. A bearer token's subject overrides ownerExternalId.
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			request	body		createRequest	false	"Optional owner"
//	@Success		200		{object}	response.Envelope{data=Document}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/documents [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "invalid request body")
		return
	}

	owner := req.OwnerExternalID
	if sub, ok := middleware.OwnerFromContext(r.Context()); ok {
		owner = &sub
	}
	if owner != nil && *owner == "" {
		owner = nil
	}

	d, err := h.svc.Create(r.Context(), owner)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("create document failed")
		response.InternalError(w)
		return
	}

	hlog.FromRequest(r).Info().Str("document_id", d.ID).Msg("document created")
	response.OK(w, d)
}

// List godoc
//
//	@Summary		List documents by owner
//	@Description	Returns the documents of an owner, oldest first, without modification secrets. Without an owner the list is empty.
//	@Tags			documents
//	@Produce		json
//	@Param			ownerExternalId	query		string	false	"Owner external id"
//	@Success		200				{object}	response.Envelope{data=[]Document}
//	@Failure		500				{object}	response.Envelope
//	@Router			/documents [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var owner *string
	if sub, ok := middleware.OwnerFromContext(r.Context()); ok {
		owner = &sub
	} else if q := r.URL.Query().Get("ownerExternalId"); q != "" {
		owner = &q
	}

	docs, err := h.svc.ListByOwner(r.Context(), owner)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list documents failed")
		response.InternalError(w)
		return
	}

	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Public())
	}
	response.OK(w, out)
}

// Get godoc
//
//	@Summary		Get document
//	@Description	Returns a document with its images and refreshes its last access time. The modification secret is omitted.
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	response.Envelope{data=Document}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/documents/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.TouchLastAccessed(r.Context(), id); err != nil {
		h.fail(w, r, err, "touch document failed")
		return
	}

	d, err := h.svc.Fetch(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "fetch document failed")
		return
	}

	response.OK(w, d.Public())
}

// Update godoc
//
//	@Summary		Update document
//	@Description	Replaces the document data. Last write wins.
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			id					path		string			true	"Document ID"
//	@Param			modificationSecret	query		string			true	"Modification secret"
//	@Param			request				body		updateRequest	true	"New data"
//	@Success		200					{object}	response.Envelope{data=Document}
//	@Failure		400					{object}	response.Envelope
//	@Failure		403					{object}	response.Envelope
//	@Failure		404					{object}	response.Envelope
//	@Failure		500					{object}	response.Envelope
//	@Router			/documents/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exists, err := h.svc.Exists(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "check document failed")
		return
	}
	if !exists {
		response.NotFound(w, "document not found")
		return
	}

	valid, err := h.svc.IsValidModificationSecret(r.Context(), id, middleware.ModificationSecret(r))
	if err != nil {
		h.fail(w, r, err, "check modification secret failed")
		return
	}
	if !valid {
		response.Forbidden(w, "invalid modification secret")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if len(req.Data) == 0 || !json.Valid(req.Data) {
		response.BadRequest(w, "data is required")
		return
	}

	d, err := h.svc.Update(r.Context(), id, req.Data)
	if err != nil {
		h.fail(w, r, err, "update document failed")
		return
	}

	response.OK(w, d.Public())
}

// Delete godoc
//
//	@Summary		Delete document
//	@Description	Deletes a document with all its images. Unknown ids and wrong secrets both yield 404.
//	@Tags			documents
//	@Produce		json
//	@Param			id					path		string	true	"Document ID"
//	@Param			modificationSecret	query		string	true	"Modification secret"
//	@Success		200					{object}	response.Envelope{data=deleteData}
//	@Failure		404					{object}	response.Envelope
//	@Failure		500					{object}	response.Envelope
//	@Router			/documents/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.svc.Delete(r.Context(), id, middleware.ModificationSecret(r))
	if err != nil {
		h.fail(w, r, err, "delete document failed")
		return
	}
	if !deleted {
		response.NotFound(w, "document not found")
		return
	}

	hlog.FromRequest(r).Info().Str("document_id", id).Msg("document deleted")
	response.OK(w, deleteData{ID: id, Deleted: true})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if h.svc.IsNotFound(err) {
		response.NotFound(w, "document not found")
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg(msg)
	response.InternalError(w)
}
