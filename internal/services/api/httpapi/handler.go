// Package httpapi exposes the session, profile, material and impact services
// over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainauth "github.com/NordCoder/greensteps/internal/domain/auth"
	domainimpact "github.com/NordCoder/greensteps/internal/domain/impact"
	domainmaterial "github.com/NordCoder/greensteps/internal/domain/material"
	"github.com/NordCoder/greensteps/internal/domain/user"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/ratelimit"
	"github.com/NordCoder/greensteps/internal/services/api/profile"
	"github.com/NordCoder/greensteps/internal/services/api/session"
)

type Sessions interface {
	Register(ctx context.Context, in session.RegisterInput) (*user.User, error)
	Login(ctx context.Context, email, password string, meta domainauth.ClientMeta) (*domainauth.Pair, error)
	Refresh(ctx context.Context, raw string, meta domainauth.ClientMeta) (*domainauth.Pair, error)
	Logout(ctx context.Context, raw string) error
	Authenticate(ctx context.Context, bearer string) (uuid.UUID, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

type Profiles interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	Update(ctx context.Context, id uuid.UUID, in profile.UpdateInput) (*user.User, error)
	AppendUserData(ctx context.Context, id uuid.UUID, item json.RawMessage) ([]json.RawMessage, error)
	RemoveUserData(ctx context.Context, id uuid.UUID, item json.RawMessage) ([]json.RawMessage, error)
}

type Materials interface {
	Create(ctx context.Context, owner uuid.UUID, title string) (*domainmaterial.Material, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*domainmaterial.Material, error)
	List(ctx context.Context, owner uuid.UUID, skip, limit int) ([]domainmaterial.Material, error)
	Rename(ctx context.Context, owner, id uuid.UUID, title string) (*domainmaterial.Material, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

type Impacts interface {
	Generate(ctx context.Context, owner uuid.UUID, topic string) (*domainimpact.Impact, error)
	List(ctx context.Context, owner uuid.UUID) ([]uuid.UUID, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*domainimpact.Impact, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

type Captcha interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type Limiters struct {
	Standard *ratelimit.Limiter
	Auth     *ratelimit.Limiter
	AI       *ratelimit.Limiter
}

type CookieConfig struct {
	Enabled  bool
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64
	CORSOrigins  []string
	Cookie       CookieConfig
	// RequireCaptchaOnRegister additionally gates /auth/register.
	RequireCaptchaOnRegister bool
}

type Deps struct {
	Sessions  Sessions
	Profiles  Profiles
	Materials Materials
	Impacts   Impacts
	Captcha   Captcha
	Limiters  Limiters
	Logger    *zap.Logger
}

type Handler struct {
	sessions  Sessions
	profiles  Profiles
	materials Materials
	impacts   Impacts
	captcha   Captcha
	limits    Limiters
	cfg       Config
	log       *zap.Logger
}

func NewHandler(d Deps, cfg Config) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = "refresh_token"
	}
	if cfg.Cookie.Path == "" {
		cfg.Cookie.Path = "/auth"
	}
	if cfg.Cookie.SameSite == 0 {
		cfg.Cookie.SameSite = http.SameSiteLaxMode
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{
		sessions:  d.Sessions,
		profiles:  d.Profiles,
		materials: d.Materials,
		impacts:   d.Impacts,
		captcha:   d.Captcha,
		limits:    d.Limiters,
		cfg:       cfg,
		log:       d.Logger,
	}
}

// Router builds the chi tree. metrics may be nil.
func (h *Handler) Router(metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if h.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors(h.cfg.CORSOrigins))

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.limitByIP(h.limits.Auth))
			r.Post("/register", h.handleRegister)
			r.Post("/login", h.handleLogin)
			r.Post("/refresh", h.handleRefresh)
			r.Post("/logout", h.handleLogout)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth, h.limitByUser(h.limits.Standard))
			r.Get("/protected", h.handleProtected)
		})
	})

	r.Route("/users/me", func(r chi.Router) {
		r.Use(h.requireAuth, h.limitByUser(h.limits.Standard))
		r.Get("/", h.handleGetMe)
		r.Patch("/", h.handleUpdateMe)
		r.Delete("/", h.handleDeleteMe)
		r.Post("/user-data", h.handleAppendUserData)
		r.Delete("/user-data", h.handleRemoveUserData)
	})

	r.Route("/materials", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.With(h.limitByUser(h.limits.AI)).Post("/", h.handleCreateMaterial)
		r.Group(func(r chi.Router) {
			r.Use(h.limitByUser(h.limits.Standard))
			r.Get("/", h.handleListMaterials)
			r.Get("/{id}", h.handleGetMaterial)
			r.Patch("/{id}", h.handleRenameMaterial)
			r.Delete("/{id}", h.handleDeleteMaterial)
			r.Get("/{id}/status", h.handleMaterialStatus)
		})
	})

	r.Route("/impact", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.With(h.limitByUser(h.limits.AI)).Post("/generate", h.handleGenerateImpact)
		r.Group(func(r chi.Router) {
			r.Use(h.limitByUser(h.limits.Standard))
			r.Get("/", h.handleListImpacts)
			r.Get("/{id}", h.handleGetImpact)
			r.Delete("/{id}", h.handleDeleteImpact)
		})
	})

	r.Route("/system", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/limits", h.handleLimits)
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})
	return r
}

func (h *Handler) meta(r *http.Request) domainauth.ClientMeta {
	return domainauth.ClientMeta{UserAgent: r.UserAgent(), IP: clientIP(r)}
}

func (h *Handler) logger(r *http.Request) *zap.Logger {
	return obs.FromContext(r.Context(), h.log)
}

type limitsItem struct {
	Limit         int   `json:"limit"`
	WindowSeconds int64 `json:"window_seconds"`
}

func describe(l *ratelimit.Limiter) *limitsItem {
	if l == nil {
		return nil
	}
	return &limitsItem{Limit: l.Limit(), WindowSeconds: int64(l.Window() / time.Second)}
}
