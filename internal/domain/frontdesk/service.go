// Package frontdesk is the desk-side of check-in: verifying a patient's visit
// code against the insurance gate, and running the approved path end-to-end
// into the doctor's queue. Verification is two-phase so a desk clerk can show
// the patient's details before committing; the code is only consumed once the
// patient is actually in a queue.
package frontdesk

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniq/cliniq/internal/domain/cover"
	"github.com/cliniq/cliniq/internal/domain/queue"
	"github.com/cliniq/cliniq/internal/domain/staff"
	"github.com/cliniq/cliniq/internal/domain/visitcode"
	"github.com/cliniq/cliniq/internal/platform/clock"
)

// Verification outcomes.
const (
	StatusApproved      = "APPROVED"
	StatusCodeInvalid   = "CODE_INVALID"
	StatusCodeUsed      = "CODE_ALREADY_USED"
	StatusCodeExpired   = "CODE_EXPIRED"
	StatusCoverPending  = "COVER_PENDING"
	StatusCoverRejected = "COVER_REJECTED"
	StatusCoverNone     = "COVER_NONE"
)

// ErrNotApproved is returned by CheckIn when verification lands on anything
// but APPROVED; the VerifyResult alongside carries the concrete outcome.
var ErrNotApproved = errors.New("verification did not approve the visit")

// VerifyResult is what the desk clerk sees. Patient details are only filled
// on APPROVED.
type VerifyResult struct {
	Status           string `json:"status"`
	UserID           string `json:"user_id,omitempty"`
	PatientEmail     string `json:"patient_email,omitempty"`
	Purpose          string `json:"purpose,omitempty"`
	InsuranceName    string `json:"insurance_name,omitempty"`
	MemberNumber     string `json:"member_number,omitempty"`
	SecondsRemaining int    `json:"seconds_remaining,omitempty"`
}

type CodeVerifier interface {
	Peek(ctx context.Context, code string) (*visitcode.VisitCode, error)
	Verify(ctx context.Context, code string) (*visitcode.VisitCode, error)
}

type CoverReader interface {
	Latest(ctx context.Context, userID string) (*cover.LinkRequest, error)
}

type DoctorDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*staff.Account, error)
}

type QueueWriter interface {
	Enqueue(ctx context.Context, in queue.EnqueueInput) (*queue.Entry, error)
}

type Service struct {
	codes  CodeVerifier
	covers CoverReader
	staff  DoctorDirectory
	queues QueueWriter
	clock  clock.Clock
	logger zerolog.Logger
}

func NewService(codes CodeVerifier, covers CoverReader, staffDir DoctorDirectory, queues QueueWriter, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		codes:  codes,
		covers: covers,
		staff:  staffDir,
		queues: queues,
		clock:  clk,
		logger: logger,
	}
}

// Verify classifies a presented code without consuming it: first the code
// itself, then the owner's insurance cover.
func (s *Service) Verify(ctx context.Context, code string) (VerifyResult, error) {
	res, _, err := s.verify(ctx, code)
	return res, err
}

func (s *Service) verify(ctx context.Context, code string) (VerifyResult, *visitcode.VisitCode, error) {
	vc, err := s.codes.Peek(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, visitcode.ErrNotFound), errors.Is(err, visitcode.ErrInactive):
			return VerifyResult{Status: StatusCodeInvalid}, nil, nil
		case errors.Is(err, visitcode.ErrAlreadyUsed):
			return VerifyResult{Status: StatusCodeUsed}, nil, nil
		case errors.Is(err, visitcode.ErrExpired):
			return VerifyResult{Status: StatusCodeExpired}, nil, nil
		default:
			return VerifyResult{}, nil, fmt.Errorf("peek code: %w", err)
		}
	}

	latest, err := s.covers.Latest(ctx, vc.UserID)
	if err != nil {
		return VerifyResult{}, nil, fmt.Errorf("cover lookup: %w", err)
	}
	switch {
	case latest == nil:
		return VerifyResult{Status: StatusCoverNone}, nil, nil
	case latest.Status == cover.StatusPending:
		return VerifyResult{Status: StatusCoverPending}, nil, nil
	case latest.Status == cover.StatusRejected:
		return VerifyResult{Status: StatusCoverRejected}, nil, nil
	}

	return VerifyResult{
		Status:           StatusApproved,
		UserID:           vc.UserID,
		PatientEmail:     latest.UserEmail,
		Purpose:          vc.Purpose,
		InsuranceName:    latest.InsuranceName,
		MemberNumber:     latest.MemberNumber,
		SecondsRemaining: vc.SecondsRemaining(s.clock.Now()),
	}, vc, nil
}

// CheckInInput is the desk clerk's commit request.
type CheckInInput struct {
	Code        string
	DoctorID    uuid.UUID
	PatientName string
}

// CheckIn runs the approved path: verify, confirm the doctor is on duty,
// enqueue, and only then consume the code. When verification does not approve,
// the result carries the outcome and the error is ErrNotApproved.
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (*queue.Entry, VerifyResult, error) {
	res, vc, err := s.verify(ctx, in.Code)
	if err != nil {
		return nil, res, err
	}
	if res.Status != StatusApproved {
		return nil, res, ErrNotApproved
	}

	doctor, err := s.staff.Get(ctx, in.DoctorID)
	if err != nil {
		if errors.Is(err, staff.ErrNotFound) {
			return nil, res, queue.ErrNoDoctor
		}
		return nil, res, fmt.Errorf("doctor lookup: %w", err)
	}
	if !doctor.IsDoctor() || !doctor.IsOnDuty {
		return nil, res, queue.ErrNoDoctor
	}

	room := ""
	if doctor.RoomNumber != nil {
		room = *doctor.RoomNumber
	}
	entry, err := s.queues.Enqueue(ctx, queue.EnqueueInput{
		PatientUserID: vc.UserID,
		PatientName:   in.PatientName,
		PatientEmail:  res.PatientEmail,
		VisitCodeID:   vc.ID,
		Purpose:       vc.Purpose,
		InsuranceName: res.InsuranceName,
		MemberNumber:  res.MemberNumber,
		DoctorID:      doctor.ID,
		DoctorName:    doctor.Name,
		RoomNumber:    room,
	})
	if err != nil {
		return nil, res, err
	}

	// Consume last: the code only burns once the patient holds a queue spot.
	if _, err := s.codes.Verify(ctx, in.Code); err != nil {
		s.logger.Error().Err(err).
			Str("code", in.Code).
			Str("entry_id", entry.ID.String()).
			Msg("code consumption failed after enqueue")
		return entry, res, fmt.Errorf("consume code: %w", err)
	}

	s.logger.Info().
		Str("patient_user_id", vc.UserID).
		Str("doctor_id", doctor.ID.String()).
		Int("position", entry.QueuePosition).
		Msg("patient checked in")
	return entry, res, nil
}
