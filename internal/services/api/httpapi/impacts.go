package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	domainimpact "github.com/NordCoder/greensteps/internal/domain/impact"
)

type generateImpactRequest struct {
	Topic string `json:"topic"`
}

type impactIDsResponse struct {
	ImpactIDs []uuid.UUID `json:"impact_ids"`
}

type impactDeletedResponse struct {
	ImpactID uuid.UUID `json:"impact_id"`
}

func (h *Handler) handleGenerateImpact(w http.ResponseWriter, r *http.Request) {
	var req generateImpactRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, badRequest{err})
		return
	}
	owner, _ := UserIDFromCtx(r.Context())
	im, err := h.impacts.Generate(r.Context(), owner, req.Topic)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, im)
}

func (h *Handler) handleListImpacts(w http.ResponseWriter, r *http.Request) {
	owner, _ := UserIDFromCtx(r.Context())
	ids, err := h.impacts.List(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	writeOK(w, http.StatusOK, impactIDsResponse{ImpactIDs: ids})
}

func (h *Handler) handleGetImpact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, domainimpact.ErrNotFound)
		return
	}
	owner, _ := UserIDFromCtx(r.Context())
	im, err := h.impacts.Get(r.Context(), owner, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, im)
}

func (h *Handler) handleDeleteImpact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, domainimpact.ErrNotFound)
		return
	}
	owner, _ := UserIDFromCtx(r.Context())
	if err := h.impacts.Delete(r.Context(), owner, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, impactDeletedResponse{ImpactID: id})
}
