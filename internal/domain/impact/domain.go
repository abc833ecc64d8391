package impact

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("impact not found")
	// ErrGeneratorUnavailable means no plan could be requested at all.
	ErrGeneratorUnavailable = errors.New("impact generator unavailable")
	ErrInvalidOutput        = errors.New("invalid generator output")
)

// Impact is a generated sustainability plan owned by a user.
type Impact struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Steps       []Step    `json:"steps"`
}

// Step is one ordered action of a plan. Only the first step starts unlocked.
type Step struct {
	ID          uuid.UUID `json:"id"`
	Order       int       `json:"order"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Unlocked    bool      `json:"unlocked"`
}

// Prompt is what the generator gets to tailor a plan to the user.
type Prompt struct {
	Topic     string   `json:"topic"`
	FullName  string   `json:"full_name"`
	Age       *int     `json:"age,omitempty"`
	Interests []string `json:"interests"`
}

// OutputError carries a truncated copy of the rejected generator output.
type OutputError struct {
	Preview string
	Err     error
}

func (e *OutputError) Error() string { return "invalid generator output: " + e.Err.Error() }

func (e *OutputError) Unwrap() []error { return []error{ErrInvalidOutput, e.Err} }
