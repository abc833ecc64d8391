package kafka

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SecurityBreach struct {
	UserID  uuid.UUID `json:"user_id"`
	Revoked int64     `json:"revoked"`
	IP      string    `json:"ip,omitempty"`
	At      time.Time `json:"at"`
}

type MaterialRequested struct {
	MaterialID uuid.UUID `json:"material_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	At         time.Time `json:"at"`
}

type Events interface {
	PublishSecurityBreach(ctx context.Context, e SecurityBreach) error
	PublishMaterialRequested(ctx context.Context, e MaterialRequested) error
}
