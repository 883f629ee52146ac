package service

import (
	"context"
	"sync"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
)

// stubRepo реализует Repository для тестов. Поля задают ответы методов,
// поля с префиксом got фиксируют параметры вызовов.
type stubRepo struct {
	user    *model.User
	userErr error

	vessel    *model.Vessel
	vesselErr error
	vessels   []model.Vessel

	link    *model.UserVesselLink
	linkErr error

	weekly []model.WeeklyBlock
	dated  []model.DateBlock

	availabilityErr error

	booking    *model.Booking
	bookingErr error
	bookings   []model.Booking

	transitionBooking *model.Booking
	transitionErr     error

	obligations    []model.Obligation
	obligationsErr error

	outstanding    []repository.OutstandingObligation
	outstandingErr error

	charge    *model.Obligation
	chargeErr error

	payResult *repository.PayResult
	payErr    error

	invoiceRef    *repository.InvoiceRef
	invoiceRefErr error
	pending       []repository.InvoiceRef

	completedPast int
	markedOverdue int
	flaggedUsers  []int64
	feesGenerated int

	audit []model.AuditEntry

	gotCreateBooking    *repository.CreateBookingParams
	gotCheckParams      *repository.CreateBookingParams
	gotTransitionTo     model.BookingStatus
	gotTransitionFrom   []model.BookingStatus
	gotLink             *model.UserVesselLink
	gotSchedule         []model.Installment
	gotPayType          model.ObligationType
	gotPayID            int64
	gotPaidAt           time.Time
	gotAssignType       model.ObligationType
	gotAssignID         int64
	gotAssignRef        string
	gotGatewayStatus    string
	gotGatewayRef       string
	gotMarinaYear       int
	gotMarinaMonth      time.Month
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, name string, role model.UserRole) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) SetUserStatus(ctx context.Context, userID int64, status model.UserStatus, actorID *int64, ip string) error {
	return nil
}

func (s *stubRepo) CreateVessel(ctx context.Context, v *model.Vessel, actorID *int64, ip string) (int64, error) {
	return 1, nil
}

func (s *stubRepo) UpdateVessel(ctx context.Context, v *model.Vessel, actorID *int64, ip string) error {
	return nil
}

func (s *stubRepo) GetVessel(ctx context.Context, id int64) (*model.Vessel, error) {
	return s.vessel, s.vesselErr
}

func (s *stubRepo) ListVessels(ctx context.Context) ([]model.Vessel, error) {
	return s.vessels, nil
}

func (s *stubRepo) CreateLink(ctx context.Context, link *model.UserVesselLink, schedule []model.Installment, actorID *int64, ip string) (int64, error) {
	s.gotLink = link
	s.gotSchedule = schedule
	return 1, nil
}

func (s *stubRepo) GetLink(ctx context.Context, id int64) (*model.UserVesselLink, error) {
	return s.link, s.linkErr
}

func (s *stubRepo) BlockRules(ctx context.Context, vesselID int64) ([]model.WeeklyBlock, []model.DateBlock, error) {
	return s.weekly, s.dated, nil
}

func (s *stubRepo) CreateDateBlock(ctx context.Context, b *model.DateBlock, actorID *int64, ip string) (int64, error) {
	return 1, nil
}

func (s *stubRepo) DeleteDateBlock(ctx context.Context, id int64, actorID *int64, ip string) (*model.DateBlock, error) {
	return &model.DateBlock{ID: id}, nil
}

func (s *stubRepo) ListDateBlocks(ctx context.Context, vesselID int64) ([]model.DateBlock, error) {
	return s.dated, nil
}

func (s *stubRepo) CreateWeeklyBlock(ctx context.Context, b *model.WeeklyBlock, actorID *int64, ip string) (int64, error) {
	return 1, nil
}

func (s *stubRepo) ToggleWeeklyBlock(ctx context.Context, id int64, actorID *int64, ip string) (*model.WeeklyBlock, error) {
	return &model.WeeklyBlock{ID: id}, nil
}

func (s *stubRepo) ListWeeklyBlocks(ctx context.Context) ([]model.WeeklyBlock, error) {
	return s.weekly, nil
}

func (s *stubRepo) CheckAvailability(ctx context.Context, p repository.CreateBookingParams) error {
	s.gotCheckParams = &p
	return s.availabilityErr
}

func (s *stubRepo) CreateBooking(ctx context.Context, p repository.CreateBookingParams) (*model.Booking, error) {
	s.gotCreateBooking = &p
	return s.booking, s.bookingErr
}

func (s *stubRepo) TransitionBooking(ctx context.Context, bookingID int64, to model.BookingStatus, allowedFrom []model.BookingStatus, action model.AuditAction, actorID *int64, ip string) (*model.Booking, error) {
	s.gotTransitionTo = to
	s.gotTransitionFrom = allowedFrom
	return s.transitionBooking, s.transitionErr
}

func (s *stubRepo) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	return s.booking, s.bookingErr
}

func (s *stubRepo) ListBookingsByVessel(ctx context.Context, vesselID int64, from, to time.Time) ([]model.Booking, error) {
	return s.bookings, nil
}

func (s *stubRepo) CompletePastBookings(ctx context.Context) (int, error) {
	return s.completedPast, nil
}

func (s *stubRepo) ObligationsByLink(ctx context.Context, linkID int64) ([]model.Obligation, error) {
	return s.obligations, s.obligationsErr
}

func (s *stubRepo) OutstandingObligations(ctx context.Context) ([]repository.OutstandingObligation, error) {
	return s.outstanding, s.outstandingErr
}

func (s *stubRepo) CreateCharge(ctx context.Context, linkID int64, title, description string, amountCents int64, dueDate *time.Time, actorID *int64, ip string) (*model.Obligation, error) {
	return s.charge, s.chargeErr
}

func (s *stubRepo) PayObligation(ctx context.Context, typ model.ObligationType, id int64, paidAt time.Time, notes string, actorID *int64, ip string) (*repository.PayResult, error) {
	s.gotPayType = typ
	s.gotPayID = id
	s.gotPaidAt = paidAt
	return s.payResult, s.payErr
}

func (s *stubRepo) CancelCharge(ctx context.Context, chargeID int64, actorID *int64, ip string) (*model.Obligation, error) {
	return s.charge, s.chargeErr
}

func (s *stubRepo) MarkOverdueObligations(ctx context.Context) (int, error) {
	return s.markedOverdue, nil
}

func (s *stubRepo) FlagOverdueUsers(ctx context.Context) ([]int64, error) {
	return s.flaggedUsers, nil
}

func (s *stubRepo) GenerateMarinaFees(ctx context.Context, year int, month time.Month) (int, error) {
	s.gotMarinaYear = year
	s.gotMarinaMonth = month
	return s.feesGenerated, nil
}

func (s *stubRepo) AssignInvoiceRef(ctx context.Context, typ model.ObligationType, id int64, ref string) error {
	s.gotAssignType = typ
	s.gotAssignID = id
	s.gotAssignRef = ref
	return nil
}

func (s *stubRepo) RecordGatewayStatus(ctx context.Context, typ model.ObligationType, id int64, ref, status string) error {
	s.gotGatewayRef = ref
	s.gotGatewayStatus = status
	return nil
}

func (s *stubRepo) FindObligationByInvoiceRef(ctx context.Context, ref string) (*repository.InvoiceRef, error) {
	return s.invoiceRef, s.invoiceRefErr
}

func (s *stubRepo) PendingInvoices(ctx context.Context, limit int) ([]repository.InvoiceRef, error) {
	return s.pending, nil
}

func (s *stubRepo) ListAudit(ctx context.Context, entityType string, entityID int64) ([]model.AuditEntry, error) {
	return s.audit, nil
}

// recordingSink накапливает события для проверок.
type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingSink) Emit(_ context.Context, e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) byType(t model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(repo *stubRepo, sink EventSink) *Service {
	svc := NewService(repo, sink)
	svc.now = func() time.Time {
		return time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc
}
