package frontdesk

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniq/cliniq/internal/domain/cover"
	"github.com/cliniq/cliniq/internal/domain/queue"
	"github.com/cliniq/cliniq/internal/domain/staff"
	"github.com/cliniq/cliniq/internal/domain/visitcode"
	"github.com/cliniq/cliniq/internal/platform/clock"
)

// The tests here wire real cover, visit-code and queue services over
// in-memory stores, so the scenarios run the same code paths as production
// minus Postgres.

// -- In-memory stores --

type coverRepo struct {
	mu   sync.Mutex
	reqs []*cover.LinkRequest
}

func (m *coverRepo) Create(_ context.Context, req *cover.LinkRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = uuid.New()
	cp := *req
	m.reqs = append(m.reqs, &cp)
	return nil
}

func (m *coverRepo) GetByID(_ context.Context, id uuid.UUID) (*cover.LinkRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reqs {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, cover.ErrNotFound
}

func (m *coverRepo) LatestByUser(_ context.Context, userID string) (*cover.LinkRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *cover.LinkRequest
	for _, r := range m.reqs {
		if r.UserID != userID {
			continue
		}
		if latest == nil || r.SubmittedAt.After(latest.SubmittedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *coverRepo) ListByUser(_ context.Context, userID string) ([]*cover.LinkRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*cover.LinkRequest
	for _, r := range m.reqs {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *coverRepo) ListPending(_ context.Context, limit, offset int) ([]*cover.LinkRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*cover.LinkRequest
	for _, r := range m.reqs {
		if r.Status == cover.StatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *coverRepo) MarkReviewed(_ context.Context, id uuid.UUID, status, note, reviewerID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reqs {
		if r.ID == id && r.Status == cover.StatusPending {
			r.Status = status
			r.ReviewedAt = &at
			if note != "" {
				n := note
				r.ReviewNote = &n
			}
			rev := reviewerID
			r.ReviewedBy = &rev
			return true, nil
		}
	}
	return false, nil
}

type codeRepo struct {
	mu    sync.Mutex
	codes []*visitcode.VisitCode
}

func (m *codeRepo) Create(_ context.Context, vc *visitcode.VisitCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vc.ID = uuid.New()
	cp := *vc
	m.codes = append(m.codes, &cp)
	return nil
}

func (m *codeRepo) GetByCode(_ context.Context, code string) (*visitcode.VisitCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vc := range m.codes {
		if vc.Code == code {
			cp := *vc
			return &cp, nil
		}
	}
	return nil, visitcode.ErrNotFound
}

func (m *codeRepo) ActiveByUser(_ context.Context, userID string, now time.Time) (*visitcode.VisitCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vc := range m.codes {
		if vc.UserID == userID && vc.Usable(now) {
			cp := *vc
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *codeRepo) ActiveCodeExists(_ context.Context, code string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vc := range m.codes {
		if vc.Code == code && vc.Usable(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *codeRepo) ConsumeIfUsable(_ context.Context, code string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vc := range m.codes {
		if vc.Code == code && vc.Usable(now) {
			t := now
			vc.UsedAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (m *codeRepo) Deactivate(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vc := range m.codes {
		if vc.Code == code {
			vc.IsActive = false
		}
	}
	return nil
}

func (m *codeRepo) DeactivateAllForUser(_ context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vc := range m.codes {
		if vc.UserID == userID && vc.Usable(now) {
			vc.IsActive = false
		}
	}
	return nil
}

func (m *codeRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type queueRepo struct {
	mu      sync.Mutex
	entries []*queue.Entry
}

func (m *queueRepo) Create(_ context.Context, e *queue.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *queueRepo) GetByID(_ context.Context, id uuid.UUID) (*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, queue.ErrNotFound
}

func (m *queueRepo) ListActive(_ context.Context, doctorID uuid.UUID, date string) ([]*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*queue.Entry
	for _, e := range m.entries {
		if e.DoctorID == doctorID && e.Date == date && e.Status != queue.StatusDone {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuePosition < out[j].QueuePosition })
	return out, nil
}

func (m *queueRepo) ListCompleted(_ context.Context, doctorID uuid.UUID, date string) ([]*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*queue.Entry
	for _, e := range m.entries {
		if e.DoctorID == doctorID && e.Date == date && e.Status == queue.StatusDone {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *queueRepo) ActiveByPatient(_ context.Context, patientUserID, date string) (*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.PatientUserID == patientUserID && e.Date == date && e.Status != queue.StatusDone {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *queueRepo) MaxActivePosition(_ context.Context, doctorID uuid.UUID, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, e := range m.entries {
		if e.DoctorID == doctorID && e.Date == date && e.Status != queue.StatusDone && e.QueuePosition > max {
			max = e.QueuePosition
		}
	}
	return max, nil
}

func (m *queueRepo) SetDone(_ context.Context, id uuid.UUID, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			t := completedAt
			e.Status = queue.StatusDone
			e.CompletedAt = &t
			return nil
		}
	}
	return queue.ErrNotFound
}

func (m *queueRepo) SetInProgress(_ context.Context, id uuid.UUID, calledAt time.Time, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			t := calledAt
			e.Status = queue.StatusInProgress
			e.CalledAt = &t
			e.QueuePosition = position
			return nil
		}
	}
	return queue.ErrNotFound
}

func (m *queueRepo) SetPosition(_ context.Context, id uuid.UUID, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.QueuePosition = position
			return nil
		}
	}
	return queue.ErrNotFound
}

func (m *queueRepo) ListStaleInProgress(context.Context, time.Time) ([]*queue.Entry, error) {
	return nil, nil
}

func (m *queueRepo) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type staffDir struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*staff.Account
}

func (d *staffDir) Get(_ context.Context, id uuid.UUID) (*staff.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil, staff.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// -- Harness --

type harness struct {
	svc    *Service
	covers *cover.Service
	codes  *visitcode.Issuer
	queues *queue.Coordinator
	staff  *staffDir
	clk    *clock.Fake
	doctor *staff.Account
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC))
	logger := zerolog.New(io.Discard)

	covers := cover.NewService(&coverRepo{}, nil, clk)
	codes := visitcode.NewIssuer(&codeRepo{}, clk, visitcode.DefaultTTL, logger)
	queues := queue.NewCoordinator(&queueRepo{}, nil, clk, time.UTC, logger)

	room := "12"
	doctor := &staff.Account{
		ID:         uuid.New(),
		Name:       "Dr. Adams",
		Role:       staff.RoleDoctor,
		RoomNumber: &room,
		IsOnDuty:   true,
	}
	dir := &staffDir{accounts: map[uuid.UUID]*staff.Account{doctor.ID: doctor}}

	return &harness{
		svc:    NewService(codes, covers, dir, queues, clk, logger),
		covers: covers,
		codes:  codes,
		queues: queues,
		staff:  dir,
		clk:    clk,
		doctor: doctor,
	}
}

// approveCover submits and approves a link request for the user.
func (h *harness) approveCover(t *testing.T, userID, email string) {
	t.Helper()
	h.submitCover(t, userID, email)
	latest, err := h.covers.Latest(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.covers.Review(context.Background(), latest.ID, true, "", "admin-1"); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) submitCover(t *testing.T, userID, email string) {
	t.Helper()
	err := h.covers.Submit(context.Background(), &cover.LinkRequest{
		UserID:        userID,
		UserEmail:     email,
		Country:       "DE",
		InsuranceName: "Acme Health",
		MemberNumber:  "M-" + userID,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (h *harness) generateCode(t *testing.T, userID string) string {
	t.Helper()
	vc, err := h.codes.Generate(context.Background(), userID, visitcode.PurposeConsultation)
	if err != nil {
		t.Fatal(err)
	}
	return vc.Code
}

// -- Verify outcomes --

func TestVerify_UnknownCode(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Verify(context.Background(), "ZZZZZZ")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCodeInvalid {
		t.Errorf("expected CODE_INVALID, got %s", res.Status)
	}
}

func TestVerify_ExpiredCode(t *testing.T) {
	h := newHarness(t)
	h.approveCover(t, "user-1", "u1@example.com")
	code := h.generateCode(t, "user-1")

	h.clk.Advance(16 * time.Minute)
	res, err := h.svc.Verify(context.Background(), code)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCodeExpired {
		t.Errorf("expected CODE_EXPIRED, got %s", res.Status)
	}
}

func TestVerify_CoverStates(t *testing.T) {
	h := newHarness(t)

	// No cover submitted at all.
	codeNone := h.generateCode(t, "user-none")
	res, _ := h.svc.Verify(context.Background(), codeNone)
	if res.Status != StatusCoverNone {
		t.Errorf("expected COVER_NONE, got %s", res.Status)
	}

	// Pending review.
	h.submitCover(t, "user-pending", "p@example.com")
	codePending := h.generateCode(t, "user-pending")
	res, _ = h.svc.Verify(context.Background(), codePending)
	if res.Status != StatusCoverPending {
		t.Errorf("expected COVER_PENDING, got %s", res.Status)
	}

	// Rejected reads as REJECTED here, not NONE: the desk sees the truth.
	h.submitCover(t, "user-rejected", "r@example.com")
	latest, _ := h.covers.Latest(context.Background(), "user-rejected")
	if _, err := h.covers.Review(context.Background(), latest.ID, false, "member number mismatch", "admin-1"); err != nil {
		t.Fatal(err)
	}
	codeRejected := h.generateCode(t, "user-rejected")
	res, _ = h.svc.Verify(context.Background(), codeRejected)
	if res.Status != StatusCoverRejected {
		t.Errorf("expected COVER_REJECTED, got %s", res.Status)
	}
}

func TestVerify_DoesNotConsume(t *testing.T) {
	h := newHarness(t)
	h.approveCover(t, "user-1", "u1@example.com")
	code := h.generateCode(t, "user-1")

	for i := 0; i < 3; i++ {
		res, err := h.svc.Verify(context.Background(), code)
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != StatusApproved {
			t.Fatalf("verify %d: expected APPROVED, got %s", i, res.Status)
		}
	}
}

// -- CheckIn --

func TestCheckIn_DoctorChecks(t *testing.T) {
	h := newHarness(t)
	h.approveCover(t, "user-1", "u1@example.com")
	code := h.generateCode(t, "user-1")

	// Unknown doctor.
	_, _, err := h.svc.CheckIn(context.Background(), CheckInInput{Code: code, DoctorID: uuid.New()})
	if !errors.Is(err, queue.ErrNoDoctor) {
		t.Fatalf("expected ErrNoDoctor for unknown doctor, got %v", err)
	}

	// Off-duty doctor.
	h.staff.mu.Lock()
	h.staff.accounts[h.doctor.ID].IsOnDuty = false
	h.staff.mu.Unlock()
	_, _, err = h.svc.CheckIn(context.Background(), CheckInInput{Code: code, DoctorID: h.doctor.ID})
	if !errors.Is(err, queue.ErrNoDoctor) {
		t.Fatalf("expected ErrNoDoctor for off-duty doctor, got %v", err)
	}

	// The code survives both failures.
	res, _ := h.svc.Verify(context.Background(), code)
	if res.Status != StatusApproved {
		t.Errorf("code must remain usable after blocked check-ins, got %s", res.Status)
	}
}

func TestCheckIn_NotApprovedCarriesOutcome(t *testing.T) {
	h := newHarness(t)
	h.submitCover(t, "user-1", "u1@example.com")
	code := h.generateCode(t, "user-1")

	_, res, err := h.svc.CheckIn(context.Background(), CheckInInput{Code: code, DoctorID: h.doctor.ID})
	if !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	if res.Status != StatusCoverPending {
		t.Errorf("expected COVER_PENDING outcome, got %s", res.Status)
	}
}

// -- End-to-end scenarios --

// A pending cover request blocks the visit at the desk.
func TestFlow_PendingCoverBlocksVisit(t *testing.T) {
	h := newHarness(t)
	h.submitCover(t, "user-1", "u1@example.com")
	code := h.generateCode(t, "user-1")

	res, err := h.svc.Verify(context.Background(), code)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusCoverPending {
		t.Fatalf("expected COVER_PENDING, got %s", res.Status)
	}
}

// Approval opens the gate and the issued code carries the full 15-minute TTL.
func TestFlow_ApprovalOpensGate(t *testing.T) {
	h := newHarness(t)
	h.approveCover(t, "user-1", "u1@example.com")
	code := h.generateCode(t, "user-1")

	res, err := h.svc.Verify(context.Background(), code)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", res.Status)
	}
	if res.InsuranceName != "Acme Health" || res.MemberNumber != "M-user-1" {
		t.Errorf("expected insurance details, got %+v", res)
	}
	if res.PatientEmail != "u1@example.com" {
		t.Errorf("expected patient email, got %q", res.PatientEmail)
	}
	if res.SecondsRemaining != 900 {
		t.Errorf("expected 900s remaining, got %d", res.SecondsRemaining)
	}
}

// Two patients check in back to back and take positions 1 and 2.
func TestFlow_SequentialCheckInsTakeSequentialPositions(t *testing.T) {
	h := newHarness(t)

	h.approveCover(t, "user-1", "u1@example.com")
	code1 := h.generateCode(t, "user-1")
	entry1, _, err := h.svc.CheckIn(context.Background(), CheckInInput{
		Code: code1, DoctorID: h.doctor.ID, PatientName: "Ada",
	})
	if err != nil {
		t.Fatal(err)
	}
	if entry1.QueuePosition != 1 || entry1.Status != queue.StatusWaiting {
		t.Fatalf("expected first patient WAITING at 1, got %+v", entry1)
	}
	if entry1.DoctorName != "Dr. Adams" || entry1.RoomNumber != "12" {
		t.Errorf("expected denormalized doctor details, got %+v", entry1)
	}

	h.approveCover(t, "user-2", "u2@example.com")
	code2 := h.generateCode(t, "user-2")
	entry2, _, err := h.svc.CheckIn(context.Background(), CheckInInput{
		Code: code2, DoctorID: h.doctor.ID, PatientName: "Ben",
	})
	if err != nil {
		t.Fatal(err)
	}
	if entry2.QueuePosition != 2 {
		t.Fatalf("expected second patient at 2, got %d", entry2.QueuePosition)
	}
}

// Completing the head promotes the next patient to IN_PROGRESS at position 1.
func TestFlow_CompletionPromotesNextPatient(t *testing.T) {
	h := newHarness(t)

	var entries []*queue.Entry
	for _, u := range []string{"user-1", "user-2"} {
		h.approveCover(t, u, u+"@example.com")
		code := h.generateCode(t, u)
		e, _, err := h.svc.CheckIn(context.Background(), CheckInInput{Code: code, DoctorID: h.doctor.ID})
		if err != nil {
			t.Fatal(err)
		}
		entries = append(entries, e)
	}

	promoted, err := h.queues.Complete(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if promoted == nil || promoted.ID != entries[1].ID {
		t.Fatalf("expected user-2 promoted, got %+v", promoted)
	}
	if promoted.Status != queue.StatusInProgress || promoted.QueuePosition != 1 || promoted.CalledAt == nil {
		t.Errorf("promotion incomplete: %+v", promoted)
	}

	board, err := h.queues.ListForDoctor(context.Background(), h.doctor.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 1 {
		t.Errorf("expected a single active entry, got %d", len(board))
	}
}

// The code burns with the first successful check-in; a replay bounces.
func TestFlow_CodeConsumedExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.approveCover(t, "user-1", "u1@example.com")
	code := h.generateCode(t, "user-1")

	if _, _, err := h.svc.CheckIn(context.Background(), CheckInInput{Code: code, DoctorID: h.doctor.ID}); err != nil {
		t.Fatal(err)
	}

	_, res, err := h.svc.CheckIn(context.Background(), CheckInInput{Code: code, DoctorID: h.doctor.ID})
	if !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved on replay, got %v", err)
	}
	if res.Status != StatusCodeUsed {
		t.Errorf("expected CODE_ALREADY_USED, got %s", res.Status)
	}
}
