package httpapi

import (
	"net/http"
	"strings"
	"time"
)

func (h *Handler) setRefreshCookie(w http.ResponseWriter, raw string, exp time.Time) {
	if !h.cfg.Cookie.Enabled {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    raw,
		Path:     h.cfg.Cookie.Path,
		Domain:   h.cfg.Cookie.Domain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: h.cfg.Cookie.SameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	if !h.cfg.Cookie.Enabled {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    "",
		Path:     h.cfg.Cookie.Path,
		Domain:   h.cfg.Cookie.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: h.cfg.Cookie.SameSite,
	})
}

// refreshToken prefers the body value and falls back to the cookie.
func (h *Handler) refreshToken(r *http.Request, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	if !h.cfg.Cookie.Enabled {
		return ""
	}
	c, err := r.Cookie(h.cfg.Cookie.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
