package httpapi

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	domainauth "github.com/NordCoder/greensteps/internal/domain/auth"
	"github.com/NordCoder/greensteps/internal/services/api/session"
)

type registerRequest struct {
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	FullName       string   `json:"full_name"`
	Age            int      `json:"age"`
	Interests      []string `json:"interests"`
	TurnstileToken string   `json:"turnstile_token,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type protectedResponse struct {
	UserID string `json:"user_id"`
}

func toTokenResponse(p *domainauth.Pair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "bearer",
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, badRequest{err})
		return
	}
	if h.cfg.RequireCaptchaOnRegister && h.captcha != nil {
		if err := h.captcha.Verify(r.Context(), req.TurnstileToken, clientIP(r)); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	u, err := h.sessions.Register(r.Context(), session.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		Age:       req.Age,
		Interests: req.Interests,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, u)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, badRequest{err})
		return
	}
	pair, err := h.sessions.Login(r.Context(), req.Email, req.Password, h.meta(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeOK(w, http.StatusOK, toTokenResponse(pair))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.fail(w, r, badRequest{err})
		return
	}
	raw := h.refreshToken(r, req.RefreshToken)
	if raw == "" {
		h.clearRefreshCookie(w)
		h.fail(w, r, domainauth.ErrInvalidRefreshToken)
		return
	}
	pair, err := h.sessions.Refresh(r.Context(), raw, h.meta(r))
	if err != nil {
		if errors.Is(err, domainauth.ErrSecurityBreach) || errors.Is(err, domainauth.ErrInvalidRefreshToken) {
			h.clearRefreshCookie(w)
		}
		h.fail(w, r, err)
		return
	}
	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeOK(w, http.StatusOK, toTokenResponse(pair))
}

// handleLogout always answers ok so callers cannot tell which tokens exist.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.fail(w, r, badRequest{err})
		return
	}
	if err := h.sessions.Logout(r.Context(), h.refreshToken(r, req.RefreshToken)); err != nil {
		h.logger(r).Error("auth.logout_failed", zap.Error(err))
	}
	h.clearRefreshCookie(w)
	writeOK(w, http.StatusOK, nil)
}

func (h *Handler) handleProtected(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromCtx(r.Context())
	writeOK(w, http.StatusOK, protectedResponse{UserID: id.String()})
}
