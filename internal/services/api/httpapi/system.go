package httpapi

import "net/http"

type limitsResponse struct {
	RateLimits map[string]*limitsItem `json:"rate_limits"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, nil)
}

func (h *Handler) handleLimits(w http.ResponseWriter, _ *http.Request) {
	out := limitsResponse{RateLimits: map[string]*limitsItem{}}
	for name, l := range map[string]*limitsItem{
		"standard": describe(h.limits.Standard),
		"auth":     describe(h.limits.Auth),
		"ai":       describe(h.limits.AI),
	} {
		if l != nil {
			out.RateLimits[name] = l
		}
	}
	writeOK(w, http.StatusOK, out)
}
