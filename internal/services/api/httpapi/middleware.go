package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/ratelimit"
)

type ctxKey int

const userIDKey ctxKey = 1

func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// accessLog puts a request scoped logger into the context and writes one
// line per request.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqLog := obs.WithTrace(r.Context(), h.log).With(zap.String("request_id", middleware.GetReqID(r.Context())))
		r = r.WithContext(obs.IntoContext(r.Context(), reqLog))

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", clientIP(r)),
			}
			if status >= http.StatusInternalServerError {
				reqLog.Warn("http.request", fields...)
				return
			}
			reqLog.Info("http.request", fields...)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "not_authenticated", "Not authenticated", nil)
			return
		}
		id, err := h.sessions.Authenticate(r.Context(), token)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, id)
		ctx = obs.IntoContext(ctx, h.logger(r).With(zap.String("user_id", id.String())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) limitByIP(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return h.limit(l, func(r *http.Request) string { return "ip:" + clientIP(r) })
}

func (h *Handler) limitByUser(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return h.limit(l, func(r *http.Request) string {
		if id, ok := UserIDFromCtx(r.Context()); ok {
			return "user:" + id.String()
		}
		return "ip:" + clientIP(r)
	})
}

func (h *Handler) limit(l *ratelimit.Limiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := l.Check(key(r)); err != nil {
				h.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok {
				hd := w.Header()
				hd.Set("Access-Control-Allow-Origin", origin)
				hd.Set("Access-Control-Allow-Credentials", "true")
				hd.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				hd.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				hd.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr when
// proxies are trusted.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
