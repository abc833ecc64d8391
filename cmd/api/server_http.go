package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/auth"
	config "github.com/NordCoder/greensteps/internal/config/api"
	"github.com/NordCoder/greensteps/internal/httpclient"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/ratelimit"
	pg "github.com/NordCoder/greensteps/internal/repository/postgres"
	"github.com/NordCoder/greensteps/internal/services/api/blocklist"
	"github.com/NordCoder/greensteps/internal/services/api/captcha"
	"github.com/NordCoder/greensteps/internal/services/api/httpapi"
	"github.com/NordCoder/greensteps/internal/services/api/impact"
	"github.com/NordCoder/greensteps/internal/services/api/material"
	"github.com/NordCoder/greensteps/internal/services/api/profile"
	"github.com/NordCoder/greensteps/internal/services/api/session"
)

type app struct {
	server    *http.Server
	limiters  httpapi.Limiters
	blocklist *blocklist.Checker
}

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, db *pg.DB) (*app, error) {
	users := pg.NewUserRepo(db)
	tokens := pg.NewRefreshTokenRepo(db)
	materials := pg.NewMaterialRepo(db)
	impacts := pg.NewImpactRepo(db)
	outboxRepo := pg.NewOutboxRepo(db)
	tx := pg.NewTransactor(db, logger)
	client := httpclient.New(cfg.HTTPClient)

	var emails session.EmailChecker
	var bl *blocklist.Checker
	if cfg.Blocklist.Enabled {
		bl = blocklist.New(cfg.Blocklist.URL, cfg.Blocklist.TTL, client, logger,
			blocklist.WithRetryAfter(cfg.Blocklist.RetryAfter))
		emails = bl
	}

	sessions, err := session.NewUseCase(session.Deps{
		Users:      users,
		Tokens:     tokens,
		Outbox:     outboxRepo,
		Transactor: tx,
		Codec:      auth.NewCodec([]byte(cfg.Auth.JWTSecret), nil),
		Emails:     emails,
		Logger:     logger,
	}, session.Config{
		AccessTTL:               cfg.Auth.AccessTTL,
		RefreshTTL:              cfg.Auth.RefreshTTL,
		MaxRefreshTokensPerUser: cfg.Auth.MaxRefreshTokensPerUser,
		BcryptCost:              cfg.Auth.BcryptCost,
	})
	if err != nil {
		return nil, err
	}

	limiters := httpapi.Limiters{
		Standard: ratelimit.New("standard", cfg.RateLimits.Standard.Limit, cfg.RateLimits.Standard.Window, ratelimit.WithLogger(logger)),
		Auth:     ratelimit.New("auth", cfg.RateLimits.Auth.Limit, cfg.RateLimits.Auth.Window, ratelimit.WithLogger(logger)),
		AI:       ratelimit.New("ai", cfg.RateLimits.AI.Limit, cfg.RateLimits.AI.Window, ratelimit.WithLogger(logger)),
	}

	generator := impact.HTTPGenerator{URL: cfg.Impact.URL, Client: client, Timeout: cfg.Impact.Timeout}
	if cfg.Impact.URL == "" {
		logger.Warn("impact.url is empty, plan generation will answer 503")
	}

	h := httpapi.NewHandler(httpapi.Deps{
		Sessions:  sessions,
		Profiles:  profile.NewUseCase(users, tx, logger),
		Materials: material.NewUseCase(materials, outboxRepo, tx, logger),
		Impacts:   impact.NewUseCase(impacts, users, generator, tx, logger),
		Captcha:   captcha.NewVerifier(cfg.Captcha.Secret, cfg.Captcha.VerifyURL, client, logger),
		Limiters:  limiters,
		Logger:    logger,
	}, httpapi.Config{
		TrustProxy:   cfg.Server.TrustProxy,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Cookie: httpapi.CookieConfig{
			Enabled:  cfg.Cookie.Enabled,
			Name:     cfg.Cookie.Name,
			Path:     cfg.Cookie.Path,
			Domain:   cfg.Cookie.Domain,
			Secure:   cfg.Cookie.Secure,
			SameSite: cfg.Cookie.SameSiteMode(),
		},
		RequireCaptchaOnRegister: cfg.Captcha.RequireOnRegister,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           obs.HTTPHandler(h.Router(obs.MetricsHandler()), "greensteps-api"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return &app{server: srv, limiters: limiters, blocklist: bl}, nil
}

// runBackground starts the limiter sweepers and warms the blocklist.
// Everything stops with ctx.
func (a *app) runBackground(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	for _, l := range []*ratelimit.Limiter{a.limiters.Standard, a.limiters.Auth, a.limiters.AI} {
		go l.Run(ctx, cfg.RateLimits.SweepInterval)
	}
	if a.blocklist != nil {
		go func() {
			if err := a.blocklist.Refresh(ctx); err != nil {
				logger.Warn("blocklist.warmup_failed", zap.Error(err))
			}
		}()
	}
}

func serveHTTP(srv *http.Server, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}
