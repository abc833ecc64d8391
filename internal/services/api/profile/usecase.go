package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NordCoder/greensteps/internal/domain/user"
	"github.com/NordCoder/greensteps/internal/obs"
	"github.com/NordCoder/greensteps/internal/repository/postgres"
)

var (
	ErrItemNotFound = errors.New("user data item not found")
	ErrInvalidItem  = errors.New("user data item must be a JSON value")
)

type Usecase struct {
	users user.Repo
	tx    postgres.Transactor
	log   *zap.Logger
}

func NewUseCase(users user.Repo, tx postgres.Transactor, log *zap.Logger) *Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{users: users, tx: tx, log: log}
}

func (u *Usecase) Get(ctx context.Context, id uuid.UUID) (*user.User, error) {
	rec, err := u.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return rec, nil
}

// UpdateInput is a partial update: nil fields are left untouched.
type UpdateInput struct {
	FullName  *string
	Age       *int
	Interests *[]string
}

func (u *Usecase) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*user.User, error) {
	var verr user.ValidationError
	var fullName string
	if in.FullName != nil {
		var ok bool
		if fullName, ok = user.NormalizeFullName(*in.FullName); !ok {
			verr.Add("full_name", "must include at least two words")
		}
	}
	if in.Age != nil && !user.ValidAge(*in.Age) {
		verr.Add("age", fmt.Sprintf("must be between %d and %d", user.MinAge, user.MaxAge))
	}
	var interests []string
	if in.Interests != nil {
		if interests = user.NormalizeInterests(*in.Interests); len(interests) == 0 {
			verr.Add("interests", "at least one interest is required")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var out *user.User
	err := u.tx.WithTx(ctx, func(txCtx context.Context) error {
		rec, err := u.users.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if in.FullName != nil {
			rec.FullName = fullName
		}
		if in.Age != nil {
			age := *in.Age
			rec.Age = &age
		}
		if in.Interests != nil {
			rec.Interests = interests
		}
		if err := u.users.UpdateProfile(txCtx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	obs.FromContext(ctx, u.log).Info("profile.update", zap.String("user_id", id.String()))
	return out, nil
}

// AppendUserData adds item to the end of the user's data list and returns
// the new list.
func (u *Usecase) AppendUserData(ctx context.Context, id uuid.UUID, item json.RawMessage) ([]json.RawMessage, error) {
	item, err := compact(item)
	if err != nil {
		return nil, err
	}
	return u.mutateUserData(ctx, id, func(data []json.RawMessage) ([]json.RawMessage, error) {
		return append(data, item), nil
	})
}

// RemoveUserData drops the first entry equal to item. Equality is by JSON
// value, so key order and number formatting do not matter.
func (u *Usecase) RemoveUserData(ctx context.Context, id uuid.UUID, item json.RawMessage) ([]json.RawMessage, error) {
	want, err := decode(item)
	if err != nil {
		return nil, err
	}
	return u.mutateUserData(ctx, id, func(data []json.RawMessage) ([]json.RawMessage, error) {
		for i, raw := range data {
			got, err := decode(raw)
			if err != nil {
				continue
			}
			if reflect.DeepEqual(got, want) {
				return append(data[:i:i], data[i+1:]...), nil
			}
		}
		return nil, ErrItemNotFound
	})
}

func (u *Usecase) mutateUserData(ctx context.Context, id uuid.UUID, fn func([]json.RawMessage) ([]json.RawMessage, error)) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := u.tx.WithTx(ctx, func(txCtx context.Context) error {
		rec, err := u.users.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		next, err := fn(append([]json.RawMessage(nil), rec.UserData...))
		if err != nil {
			return err
		}
		if next == nil {
			next = []json.RawMessage{}
		}
		if err := u.users.SetUserData(txCtx, id, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("user data: %w", err)
	}
	return out, nil
}

func compact(item json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if len(bytes.TrimSpace(item)) == 0 || json.Compact(&buf, item) != nil {
		return nil, ErrInvalidItem
	}
	return buf.Bytes(), nil
}

func decode(item json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(item)) == 0 {
		return nil, ErrInvalidItem
	}
	var v any
	if err := json.Unmarshal(item, &v); err != nil {
		return nil, ErrInvalidItem
	}
	return v, nil
}
