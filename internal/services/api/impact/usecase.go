// Package impact turns a topic into a stored, step by step sustainability
// plan tailored to the user's profile.
package impact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	domainimpact "github.com/NordCoder/greensteps/internal/domain/impact"
	"github.com/NordCoder/greensteps/internal/domain/user"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/obs/retry"
	"github.com/NordCoder/greensteps/internal/repository/postgres"
)

const (
	MinTopicLen = 3
	MaxTopicLen = 200
	previewLen  = 1200
)

var generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "impact_generations_total",
	Help: "Impact plan generations by result.",
}, []string{"result"})

type Usecase struct {
	repo  domainimpact.Repo
	users user.Repo
	gen   domainimpact.Generator
	tx    postgres.Transactor
	log   *zap.Logger
}

func NewUseCase(repo domainimpact.Repo, users user.Repo, gen domainimpact.Generator, tx postgres.Transactor, log *zap.Logger) *Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{repo: repo, users: users, gen: gen, tx: tx, log: log}
}

// Generate asks the generator for a plan and stores it. Output that does not
// parse is requested once more before the call fails with an OutputError.
func (u *Usecase) Generate(ctx context.Context, owner uuid.UUID, topic string) (*domainimpact.Impact, error) {
	topic = strings.TrimSpace(topic)
	var verr user.ValidationError
	switch n := utf8.RuneCountInString(topic); {
	case n < MinTopicLen:
		verr.Add("topic", fmt.Sprintf("must be at least %d characters", MinTopicLen))
	case n > MaxTopicLen:
		verr.Add("topic", fmt.Sprintf("must be at most %d characters", MaxTopicLen))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	usr, err := u.users.GetByID(ctx, owner)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("impact user lookup: %w", err)
	}
	prompt := domainimpact.Prompt{Topic: topic, FullName: usr.FullName, Age: usr.Age, Interests: usr.Interests}
	log := obs.FromContext(ctx, u.log).With(zap.String("owner_id", owner.String()))

	var plan *domainimpact.Impact
	pol := retry.Once("impact_generate", func(err error) bool {
		return errors.Is(err, domainimpact.ErrInvalidOutput)
	})
	pol.OnAttempt = func(i int, err error) {
		log.Warn("impact.generate.attempt_failed", zap.Int("attempt", i+1), zap.Error(err))
	}
	err = retry.Do(ctx, func() error {
		raw, err := u.gen.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		p, err := domainimpact.ParsePlan(raw)
		if err != nil {
			return &domainimpact.OutputError{Preview: preview(string(raw)), Err: err}
		}
		plan = p
		return nil
	}, pol)
	if err != nil {
		switch {
		case errors.Is(err, domainimpact.ErrInvalidOutput):
			generationsTotal.WithLabelValues("invalid_output").Inc()
			var oerr *domainimpact.OutputError
			if errors.As(err, &oerr) {
				log.Error("impact.generate.invalid_output", zap.String("preview", oerr.Preview), zap.Error(err))
			}
			return nil, err
		case errors.Is(err, domainimpact.ErrGeneratorUnavailable):
			generationsTotal.WithLabelValues("unavailable").Inc()
			return nil, err
		default:
			generationsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("generate impact: %w", err)
		}
	}

	plan.ID = uuid.New()
	plan.OwnerID = owner
	if err := u.tx.WithTx(ctx, func(txCtx context.Context) error {
		return u.repo.Create(txCtx, plan)
	}); err != nil {
		generationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store impact: %w", err)
	}
	generationsTotal.WithLabelValues("ok").Inc()
	log.Info("impact.generated", zap.String("impact_id", plan.ID.String()), zap.Int("steps", len(plan.Steps)))
	return plan, nil
}

func (u *Usecase) List(ctx context.Context, owner uuid.UUID) ([]uuid.UUID, error) {
	ids, err := u.repo.ListIDs(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list impacts: %w", err)
	}
	return ids, nil
}

func (u *Usecase) Get(ctx context.Context, owner, id uuid.UUID) (*domainimpact.Impact, error) {
	im, err := u.repo.Get(ctx, owner, id)
	if err != nil {
		if errors.Is(err, domainimpact.ErrNotFound) {
			return nil, domainimpact.ErrNotFound
		}
		return nil, fmt.Errorf("get impact: %w", err)
	}
	return im, nil
}

// Delete removes the impact and its steps.
func (u *Usecase) Delete(ctx context.Context, owner, id uuid.UUID) error {
	if err := u.repo.Delete(ctx, owner, id); err != nil {
		if errors.Is(err, domainimpact.ErrNotFound) {
			return domainimpact.ErrNotFound
		}
		return fmt.Errorf("delete impact: %w", err)
	}
	obs.FromContext(ctx, u.log).Info("impact.deleted",
		zap.String("impact_id", id.String()), zap.String("owner_id", owner.String()))
	return nil
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	return string([]rune(s)[:previewLen]) + "...(truncated)"
}
