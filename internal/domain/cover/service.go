package cover

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cliniq/cliniq/internal/platform/clock"
	"github.com/cliniq/cliniq/internal/platform/events"
)

// Topic returns the change-bus topic carrying review outcomes for a user.
func Topic(userID string) string { return "cover/" + userID }

type Service struct {
	repo  Repository
	bus   events.Publisher
	clock clock.Clock
}

func NewService(repo Repository, bus events.Publisher, clk clock.Clock) *Service {
	return &Service{repo: repo, bus: bus, clock: clk}
}

// Evaluate reduces the user's request history to a single gate decision.
// Only the most recently submitted request counts; a REJECTED latest request
// reads as NONE so the patient lands back on the submission path.
func (s *Service) Evaluate(ctx context.Context, userID string) Decision {
	if strings.TrimSpace(userID) == "" {
		return Decision{State: GateError, Reason: "missing user id"}
	}

	latest, err := s.repo.LatestByUser(ctx, userID)
	if err != nil {
		return Decision{State: GateError, Reason: "cover lookup failed"}
	}
	if latest == nil {
		return Decision{State: GateNone}
	}

	switch latest.Status {
	case StatusPending:
		return Decision{State: GatePending}
	case StatusApproved:
		return Decision{
			State:         GateApproved,
			InsuranceName: latest.InsuranceName,
			MemberNumber:  latest.MemberNumber,
		}
	case StatusRejected:
		return Decision{State: GateNone}
	default:
		return Decision{State: GateError, Reason: fmt.Sprintf("unknown cover status %q", latest.Status)}
	}
}

// Submit records a new PENDING link request. Resubmission after rejection is
// the normal path; the new request becomes the latest and decides the gate.
func (s *Service) Submit(ctx context.Context, req *LinkRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if !strings.Contains(req.UserEmail, "@") {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	for field, val := range map[string]string{
		"country":        req.Country,
		"insurance_name": req.InsuranceName,
		"member_number":  req.MemberNumber,
	} {
		if strings.TrimSpace(val) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, field)
		}
	}

	req.Status = StatusPending
	req.SubmittedAt = s.clock.Now()
	req.ReviewedAt = nil
	req.ReviewNote = nil
	req.ReviewedBy = nil
	return s.repo.Create(ctx, req)
}

// Review stamps the outcome onto a pending request exactly once. Rejections
// must carry a note explaining what the patient should fix.
func (s *Service) Review(ctx context.Context, id uuid.UUID, approve bool, note, reviewerID string) (*LinkRequest, error) {
	status := StatusApproved
	if !approve {
		status = StatusRejected
		if strings.TrimSpace(note) == "" {
			return nil, fmt.Errorf("%w: rejection requires a note", ErrValidation)
		}
	}

	ok, err := s.repo.MarkReviewed(ctx, id, status, note, reviewerID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("mark reviewed: %w", err)
	}
	if !ok {
		// Either the id is unknown or someone reviewed it first.
		if _, getErr := s.repo.GetByID(ctx, id); getErr != nil {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyReviewed
	}

	reviewed, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Topic: Topic(reviewed.UserID),
			Kind:  "cover.reviewed",
			At:    s.clock.Now(),
			Data:  map[string]string{"status": reviewed.Status},
		})
	}
	return reviewed, nil
}

// Latest returns the user's most recent request with its raw status, or nil
// when none exists. Unlike Evaluate it does not fold REJECTED into NONE; the
// front desk needs the distinction.
func (s *Service) Latest(ctx context.Context, userID string) (*LinkRequest, error) {
	return s.repo.LatestByUser(ctx, userID)
}

func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*LinkRequest, int, error) {
	return s.repo.ListPending(ctx, limit, offset)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*LinkRequest, error) {
	return s.repo.ListByUser(ctx, userID)
}
