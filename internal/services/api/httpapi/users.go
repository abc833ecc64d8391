package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/NordCoder/greensteps/internal/services/api/profile"
)

type updateMeRequest struct {
	FullName  *string   `json:"full_name"`
	Age       *int      `json:"age"`
	Interests *[]string `json:"interests"`
}

type userDataRequest struct {
	Item json.RawMessage `json:"item"`
}

type userDataResponse struct {
	UserData []json.RawMessage `json:"user_data"`
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromCtx(r.Context())
	u, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, u)
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, badRequest{err})
		return
	}
	id, _ := UserIDFromCtx(r.Context())
	u, err := h.profiles.Update(r.Context(), id, profile.UpdateInput{
		FullName:  req.FullName,
		Age:       req.Age,
		Interests: req.Interests,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, u)
}

func (h *Handler) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromCtx(r.Context())
	if err := h.sessions.DeleteAccount(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	writeOK(w, http.StatusOK, nil)
}

func (h *Handler) handleAppendUserData(w http.ResponseWriter, r *http.Request) {
	var req userDataRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, badRequest{err})
		return
	}
	id, _ := UserIDFromCtx(r.Context())
	data, err := h.profiles.AppendUserData(r.Context(), id, req.Item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, userDataResponse{UserData: data})
}

func (h *Handler) handleRemoveUserData(w http.ResponseWriter, r *http.Request) {
	var req userDataRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, badRequest{err})
		return
	}
	id, _ := UserIDFromCtx(r.Context())
	data, err := h.profiles.RemoveUserData(r.Context(), id, req.Item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, userDataResponse{UserData: data})
}
