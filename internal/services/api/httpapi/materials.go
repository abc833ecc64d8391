package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	domainmaterial "github.com/NordCoder/greensteps/internal/domain/material"
	"github.com/NordCoder/greensteps/internal/domain/user"
)

type createMaterialRequest struct {
	Title          string `json:"title"`
	TurnstileToken string `json:"turnstile_token"`
}

func (h *Handler) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, badRequest{err})
		return
	}
	if h.captcha != nil {
		if err := h.captcha.Verify(r.Context(), req.TurnstileToken, clientIP(r)); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	owner, _ := UserIDFromCtx(r.Context())
	m, err := h.materials.Create(r.Context(), owner, req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusAccepted, m)
}

type renameMaterialRequest struct {
	Title string `json:"title"`
}

type materialStatusResponse struct {
	ID           uuid.UUID             `json:"id"`
	Status       domainmaterial.Status `json:"status"`
	ErrorMessage *string               `json:"error_message"`
}

func (h *Handler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	var verr user.ValidationError
	skip := queryInt(r, "skip", 0, &verr)
	limit := queryInt(r, "limit", 0, &verr)
	if err := verr.OrNil(); err != nil {
		h.fail(w, r, err)
		return
	}
	owner, _ := UserIDFromCtx(r.Context())
	items, err := h.materials.List(r.Context(), owner, skip, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domainmaterial.Material{}
	}
	writeOK(w, http.StatusOK, items)
}

func (h *Handler) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.materialRef(w, r)
	if !ok {
		return
	}
	m, err := h.materials.Get(r.Context(), owner, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, m)
}

func (h *Handler) handleRenameMaterial(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.materialRef(w, r)
	if !ok {
		return
	}
	var req renameMaterialRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, badRequest{err})
		return
	}
	m, err := h.materials.Rename(r.Context(), owner, id, req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, m)
}

func (h *Handler) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.materialRef(w, r)
	if !ok {
		return
	}
	if err := h.materials.Delete(r.Context(), owner, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMaterialStatus(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.materialRef(w, r)
	if !ok {
		return
	}
	m, err := h.materials.Get(r.Context(), owner, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, materialStatusResponse{ID: m.ID, Status: m.Status, ErrorMessage: m.Error})
}

// materialRef reads the caller and the {id} path parameter. A malformed id
// is answered like a missing material.
func (h *Handler) materialRef(w http.ResponseWriter, r *http.Request) (owner, id uuid.UUID, ok bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, domainmaterial.ErrNotFound)
		return uuid.Nil, uuid.Nil, false
	}
	owner, _ = UserIDFromCtx(r.Context())
	return owner, id, true
}

// queryInt returns def when the parameter is absent and records a field
// error when it is not an integer.
func queryInt(r *http.Request, name string, def int, verr *user.ValidationError) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		verr.Add(name, "must be an integer")
		return def
	}
	return n
}
