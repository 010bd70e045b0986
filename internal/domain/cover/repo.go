package cover

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, req *LinkRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LinkRequest, error)
	// LatestByUser returns the most recently submitted request for the user,
	// or nil when none exists.
	LatestByUser(ctx context.Context, userID string) (*LinkRequest, error)
	ListByUser(ctx context.Context, userID string) ([]*LinkRequest, error)
	ListPending(ctx context.Context, limit, offset int) ([]*LinkRequest, int, error)
	// MarkReviewed stamps the review outcome if and only if the request is
	// still PENDING. Returns false when another review won the race.
	MarkReviewed(ctx context.Context, id uuid.UUID, status, note, reviewerID string, at time.Time) (bool, error)
}
