package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no staff account matches the lookup.
var ErrNotFound = errors.New("staff account not found")

var validStaffRoles = map[string]bool{
	RoleDoctor: true, RoleFrontDesk: true, RoleAdmin: true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, a *Account) error {
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validStaffRoles[a.Role] {
		return fmt.Errorf("invalid staff role: %s", a.Role)
	}
	if a.Role == RoleDoctor && (a.RoomNumber == nil || *a.RoomNumber == "") {
		return fmt.Errorf("room_number is required for doctors")
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, role string, limit, offset int) ([]*Account, int, error) {
	if role != "" && !validStaffRoles[role] {
		return nil, 0, fmt.Errorf("invalid staff role: %s", role)
	}
	return s.repo.List(ctx, role, limit, offset)
}

// OnDutyDoctors returns the doctors currently accepting patients.
func (s *Service) OnDutyDoctors(ctx context.Context) ([]*Account, error) {
	return s.repo.ListOnDutyDoctors(ctx)
}

// SetDuty flips a staff member's duty state.
func (s *Service) SetDuty(ctx context.Context, id uuid.UUID, onDuty bool) error {
	return s.repo.SetOnDuty(ctx, id, onDuty)
}
