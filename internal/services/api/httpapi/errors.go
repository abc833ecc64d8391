package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	domainauth "github.com/NordCoder/greensteps/internal/domain/auth"
	domainimpact "github.com/NordCoder/greensteps/internal/domain/impact"
	domainmaterial "github.com/NordCoder/greensteps/internal/domain/material"
	"github.com/NordCoder/greensteps/internal/domain/user"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/ratelimit"
	"github.com/NordCoder/greensteps/internal/services/api/captcha"
	"github.com/NordCoder/greensteps/internal/services/api/profile"
)

// badRequest marks a body that could not be decoded.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }

// fail renders err as the error envelope. Anything unclassified is logged
// and answered with a bare 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *user.ValidationError
		lerr *ratelimit.LimitError
		berr badRequest
		oerr *domainimpact.OutputError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "Request validation failed", verr.Fields)
	case errors.As(err, &berr):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "Malformed request body",
			map[string]string{"body": berr.Error()})
	case errors.As(err, &lerr):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(lerr)))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests", nil)
	case errors.Is(err, domainauth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Incorrect email or password", nil)
	case errors.Is(err, domainauth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token", nil)
	case errors.Is(err, domainauth.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "Invalid refresh token", nil)
	case errors.Is(err, domainauth.ErrSecurityBreach):
		writeError(w, http.StatusUnauthorized, "security_breach",
			"Refresh token reuse detected, all sessions were revoked", nil)
	case errors.Is(err, domainauth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "Email is already registered", nil)
	case errors.Is(err, domainauth.ErrUserNotFound), errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "User not found", nil)
	case errors.Is(err, profile.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "user_data_item_not_found", "User data item not found", nil)
	case errors.Is(err, profile.ErrInvalidItem):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "Request validation failed",
			map[string]string{"item": "must be a JSON value"})
	case errors.Is(err, domainmaterial.ErrNotFound):
		writeError(w, http.StatusNotFound, "material_not_found", "Material not found", nil)
	case errors.Is(err, domainimpact.ErrNotFound):
		writeError(w, http.StatusNotFound, "impact_not_found", "Impact not found", nil)
	case errors.As(err, &oerr):
		h.logger(r).Warn("http.invalid_ai_output", zap.String("preview", oerr.Preview), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "invalid_ai_output", "The generated plan could not be used",
			map[string]string{"ai_output_preview": oerr.Preview})
	case errors.Is(err, domainimpact.ErrInvalidOutput):
		writeError(w, http.StatusUnprocessableEntity, "invalid_ai_output", "The generated plan could not be used", nil)
	case errors.Is(err, domainimpact.ErrGeneratorUnavailable):
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable",
			"Plan generation is unavailable. Please try again later.", nil)
	case errors.Is(err, captcha.ErrFailed):
		writeError(w, http.StatusForbidden, "captcha_failed", "Security verification failed. Please try again.", nil)
	case errors.Is(err, captcha.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "captcha_service_unavailable",
			"Verification service unavailable. Please try again later.", nil)
	default:
		obs.FromContext(r.Context(), h.log).Error("http.internal_error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
}

func retryAfterSeconds(e *ratelimit.LimitError) int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
