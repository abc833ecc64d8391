package user

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("email already registered")
)

type User struct {
	ID           uuid.UUID         `json:"id"`
	Email        string            `json:"email"`
	FullName     string            `json:"full_name"`
	Age          *int              `json:"age"`
	PasswordHash string            `json:"-"`
	Interests    []string          `json:"interests"`
	UserData     []json.RawMessage `json:"user_data"`
	IsVerified   bool              `json:"is_verified"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
