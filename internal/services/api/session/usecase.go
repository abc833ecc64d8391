// Package session owns the credential lifecycle: login, refresh token
// rotation with reuse detection, logout, and account wide revocation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	authx "github.com/NordCoder/greensteps/internal/auth"
	domainauth "github.com/NordCoder/greensteps/internal/domain/auth"
	"github.com/NordCoder/greensteps/internal/domain/kafka"
	"github.com/NordCoder/greensteps/internal/domain/outbox"
	"github.com/NordCoder/greensteps/internal/domain/user"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/obs/retry"
	"github.com/NordCoder/greensteps/internal/repository/postgres"
)

var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refresh_total",
		Help: "Refresh attempts by result.",
	}, []string{"result"})
	breachesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_security_breaches_total",
		Help: "Refresh token reuse detections.",
	})
)

type TokenCodec interface {
	Issue(subject string, ttl time.Duration, typ authx.TokenType) (string, *authx.Claims, error)
	Verify(token string, want authx.TokenType) (*authx.Claims, error)
}

// EmailChecker rejects throwaway mailbox domains at registration.
type EmailChecker interface {
	IsBlocked(ctx context.Context, email string) bool
}

type Config struct {
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	MaxRefreshTokensPerUser int
	BcryptCost              int
	Now                     func() time.Time

	// RevokeTimeout bounds the reuse revocation, which runs detached from
	// the request context.
	RevokeTimeout time.Duration
}

type Deps struct {
	Users      user.Repo
	Tokens     domainauth.RefreshTokenRepo
	Outbox     outbox.Repository
	Transactor postgres.Transactor
	Codec      TokenCodec
	Emails     EmailChecker
	Logger     *zap.Logger
}

type Usecase struct {
	users  user.Repo
	tokens domainauth.RefreshTokenRepo
	outbox outbox.Repository
	tx     postgres.Transactor
	codec  TokenCodec
	emails EmailChecker
	log    *zap.Logger
	cfg    Config

	dummyHash []byte
}

func NewUseCase(d Deps, cfg Config) (*Usecase, error) {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.MaxRefreshTokensPerUser <= 0 {
		cfg.MaxRefreshTokensPerUser = 5
	}
	if cfg.RevokeTimeout <= 0 {
		cfg.RevokeTimeout = 10 * time.Second
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	// compared against on unknown emails so both login failures cost the same
	dummy, err := bcrypt.GenerateFromPassword([]byte("greensteps-dummy-password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &Usecase{
		users:     d.Users,
		tokens:    d.Tokens,
		outbox:    d.Outbox,
		tx:        d.Transactor,
		codec:     d.Codec,
		emails:    d.Emails,
		log:       d.Logger,
		cfg:       cfg,
		dummyHash: dummy,
	}, nil
}

type RegisterInput struct {
	Email     string
	Password  string
	FullName  string
	Age       int
	Interests []string
}

func (u *Usecase) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	var verr user.ValidationError

	email := user.NormalizeEmail(in.Email)
	switch {
	case !user.ValidEmail(email):
		verr.Add("email", "must be a valid email address")
	case u.emails != nil && u.emails.IsBlocked(ctx, email):
		verr.Add("email", "disposable email addresses are not allowed")
	}
	if len(in.Password) < user.MinPasswordLen {
		verr.Add("password", fmt.Sprintf("must be at least %d characters", user.MinPasswordLen))
	}
	fullName, ok := user.NormalizeFullName(in.FullName)
	if !ok {
		verr.Add("full_name", "must include at least two words")
	}
	if !user.ValidAge(in.Age) {
		verr.Add("age", fmt.Sprintf("must be between %d and %d", user.MinAge, user.MaxAge))
	}
	interests := user.NormalizeInterests(in.Interests)
	if len(interests) == 0 {
		verr.Add("interests", "at least one interest is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), u.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	age := in.Age
	rec := &user.User{
		Email:        email,
		FullName:     fullName,
		Age:          &age,
		PasswordHash: string(hash),
		Interests:    interests,
	}
	if err := u.users.Create(ctx, rec); err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			return nil, domainauth.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	obs.FromContext(ctx, u.log).Info("auth.register", zap.String("user_id", rec.ID.String()))
	return rec, nil
}

// Login returns ErrInvalidCredentials for both unknown emails and wrong
// passwords.
func (u *Usecase) Login(ctx context.Context, email, password string, meta domainauth.ClientMeta) (*domainauth.Pair, error) {
	log := obs.FromContext(ctx, u.log)

	rec, err := u.users.GetByEmail(ctx, user.NormalizeEmail(email))
	switch {
	case errors.Is(err, user.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(u.dummyHash, []byte(password))
		loginsTotal.WithLabelValues("invalid").Inc()
		return nil, domainauth.ErrInvalidCredentials
	case err != nil:
		loginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login lookup: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		loginsTotal.WithLabelValues("invalid").Inc()
		return nil, domainauth.ErrInvalidCredentials
	}

	pair, err := u.issue(ctx, rec.ID, meta, nil)
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	loginsTotal.WithLabelValues("ok").Inc()
	log.Info("auth.login", zap.String("user_id", rec.ID.String()), zap.String("ip", meta.IP))
	return pair, nil
}

func (u *Usecase) Refresh(ctx context.Context, raw string, meta domainauth.ClientMeta) (*domainauth.Pair, error) {
	log := obs.FromContext(ctx, u.log)

	claims, err := u.codec.Verify(raw, authx.TypeRefresh)
	if err != nil {
		return nil, u.rejectRefresh("bad_token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, u.rejectRefresh("bad_subject")
	}
	if _, err := u.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, u.rejectRefresh("no_user")
		}
		return nil, fmt.Errorf("refresh user lookup: %w", err)
	}

	rec, err := u.tokens.FindByFingerprint(ctx, authx.Fingerprint(raw))
	if err != nil {
		if errors.Is(err, domainauth.ErrRefreshNotFound) {
			return nil, u.rejectRefresh("unknown")
		}
		return nil, fmt.Errorf("refresh lookup: %w", err)
	}
	if rec.UserID != userID {
		log.Warn("auth.refresh.owner_mismatch",
			zap.String("user_id", userID.String()), zap.String("record_id", rec.ID.String()))
		return nil, u.rejectRefresh("owner_mismatch")
	}
	if rec.IsUsed {
		return nil, u.breach(ctx, userID, meta)
	}
	now := u.cfg.Now()
	if rec.Expired(now) || rec.Revoked() {
		return nil, u.rejectRefresh("expired")
	}

	pair, err := u.issue(ctx, userID, meta, func(txCtx context.Context) error {
		return u.tokens.MarkUsed(txCtx, rec.ID, now)
	})
	switch {
	case errors.Is(err, domainauth.ErrRefreshAlreadyUsed):
		// a concurrent redemption of the same token won the update
		return nil, u.breach(ctx, userID, meta)
	case errors.Is(err, domainauth.ErrRefreshNotFound):
		return nil, u.rejectRefresh("gone")
	case err != nil:
		refreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	refreshTotal.WithLabelValues("ok").Inc()
	log.Info("auth.refresh", zap.String("user_id", userID.String()))
	return pair, nil
}

func (u *Usecase) rejectRefresh(reason string) error {
	refreshTotal.WithLabelValues(reason).Inc()
	return domainauth.ErrInvalidRefreshToken
}

// breach revokes every refresh record of the user and commits before the
// caller sees ErrSecurityBreach. Cancelling ctx does not stop the revocation.
func (u *Usecase) breach(ctx context.Context, userID uuid.UUID, meta domainauth.ClientMeta) error {
	log := obs.FromContext(ctx, u.log)
	now := u.cfg.Now()

	revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.RevokeTimeout)
	defer cancel()

	var revoked int64
	err := u.tx.WithTx(revokeCtx, func(txCtx context.Context) error {
		n, err := u.tokens.RevokeAll(txCtx, userID)
		if err != nil {
			return err
		}
		revoked = n
		if u.outbox == nil {
			return nil
		}
		payload, err := json.Marshal(kafka.SecurityBreach{UserID: userID, Revoked: n, IP: meta.IP, At: now})
		if err != nil {
			return fmt.Errorf("marshal breach event: %w", err)
		}
		key := fmt.Sprintf("breach:%s:%d", userID, now.UnixNano())
		return u.outbox.Enqueue(txCtx, key, outbox.KindSecurityBreach, payload)
	})
	if err != nil {
		refreshTotal.WithLabelValues("error").Inc()
		log.Error("auth.refresh.reuse_revoke_failed", zap.String("user_id", userID.String()), zap.Error(err))
		return fmt.Errorf("revoke after reuse: %w", err)
	}

	breachesTotal.Inc()
	refreshTotal.WithLabelValues("breach").Inc()
	log.Warn("auth.refresh.reuse_detected",
		zap.String("user_id", userID.String()),
		zap.Int64("revoked", revoked),
		zap.String("ip", meta.IP),
		zap.String("user_agent", meta.UserAgent),
	)
	return domainauth.ErrSecurityBreach
}

// issue signs a new pair and stores the refresh fingerprint in one
// transaction together with before, then caps the user's sessions.
func (u *Usecase) issue(ctx context.Context, userID uuid.UUID, meta domainauth.ClientMeta, before func(context.Context) error) (*domainauth.Pair, error) {
	var pair *domainauth.Pair
	err := retry.Do(ctx, func() error {
		p, err := u.signPair(userID)
		if err != nil {
			return err
		}
		now := u.cfg.Now()
		err = u.tx.WithTx(ctx, func(txCtx context.Context) error {
			if before != nil {
				if err := before(txCtx); err != nil {
					return err
				}
			}
			rec := &domainauth.RefreshToken{
				ID:        uuid.New(),
				UserID:    userID,
				TokenHash: authx.Fingerprint(p.RefreshToken),
				ExpiresAt: p.RefreshExpiresAt,
				CreatedAt: now,
				UserAgent: meta.UserAgent,
				IPAddress: meta.IP,
			}
			if err := u.tokens.Create(txCtx, rec); err != nil {
				return err
			}
			_, err := u.tokens.Prune(txCtx, userID, now, u.cfg.MaxRefreshTokensPerUser, rec.ID)
			return err
		})
		if err != nil {
			return err
		}
		pair = p
		return nil
	}, retry.Once("auth_issue", func(err error) bool {
		return errors.Is(err, domainauth.ErrDuplicateFingerprint)
	}))
	if err != nil {
		if errors.Is(err, domainauth.ErrRefreshAlreadyUsed) || errors.Is(err, domainauth.ErrRefreshNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return pair, nil
}

func (u *Usecase) signPair(userID uuid.UUID) (*domainauth.Pair, error) {
	sub := userID.String()
	access, ac, err := u.codec.Issue(sub, u.cfg.AccessTTL, authx.TypeAccess)
	if err != nil {
		return nil, fmt.Errorf("sign access: %w", err)
	}
	refresh, rc, err := u.codec.Issue(sub, u.cfg.RefreshTTL, authx.TypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("sign refresh: %w", err)
	}
	return &domainauth.Pair{
		UserID:           userID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  ac.ExpiresAt.Time,
		RefreshExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

// Logout forgets the refresh token. Unknown or malformed tokens are a no-op.
func (u *Usecase) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	deleted, err := u.tokens.DeleteByFingerprint(ctx, authx.Fingerprint(raw))
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	obs.FromContext(ctx, u.log).Info("auth.logout", zap.Bool("deleted", deleted))
	return nil
}

// Authenticate checks a bearer access token and returns its subject.
func (u *Usecase) Authenticate(_ context.Context, bearer string) (uuid.UUID, error) {
	claims, err := u.codec.Verify(bearer, authx.TypeAccess)
	if err != nil {
		return uuid.Nil, domainauth.ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, domainauth.ErrInvalidToken
	}
	return id, nil
}

// DeleteAccount removes the user, its refresh records and owned data in
// one transaction.
func (u *Usecase) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	var revoked int64
	err := u.tx.WithTx(ctx, func(txCtx context.Context) error {
		n, err := u.tokens.RevokeAll(txCtx, id)
		if err != nil {
			return err
		}
		revoked = n
		return u.users.Delete(txCtx, id)
	})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return domainauth.ErrUserNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}
	obs.FromContext(ctx, u.log).Info("auth.delete_account",
		zap.String("user_id", id.String()), zap.Int64("revoked", revoked))
	return nil
}
