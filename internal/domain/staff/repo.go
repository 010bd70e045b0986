package staff

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	List(ctx context.Context, role string, limit, offset int) ([]*Account, int, error)
	ListOnDutyDoctors(ctx context.Context) ([]*Account, error)
	SetOnDuty(ctx context.Context, id uuid.UUID, onDuty bool) error
}
