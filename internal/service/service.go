// Package service реализует бизнес-логику сервиса бронирования судов.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
)

// ErrAdminOnly возвращается, когда операция доступна только администратору.
var (
	ErrAdminOnly = errors.New("operation requires admin role")
	// ErrUnsupportedObligationType возвращается при неизвестном виде обязательства.
	ErrUnsupportedObligationType = errors.New("unsupported obligation type")
	// ErrInvalidInput возвращается при некорректных входных данных запроса.
	ErrInvalidInput = errors.New("invalid input")
)

// Actor описывает контекст вызова, поступающий от внешнего слоя аутентификации.
// Сервис доверяет идентификатору, но повторно проверяет роль для
// административных операций.
type Actor struct {
	ID   int64
	Role model.UserRole
	IP   string
}

// IsAdmin сообщает, имеет ли вызывающая сторона административную роль.
func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// System — актор для операций, выполняемых самой системой (фоновая обработка).
var System = Actor{ID: 0, Role: model.RoleAdmin}

func (a Actor) idPtr() *int64 {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, name string, role model.UserRole) (int64, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetUserStatus(ctx context.Context, userID int64, status model.UserStatus, actorID *int64, ip string) error

	CreateVessel(ctx context.Context, v *model.Vessel, actorID *int64, ip string) (int64, error)
	UpdateVessel(ctx context.Context, v *model.Vessel, actorID *int64, ip string) error
	GetVessel(ctx context.Context, id int64) (*model.Vessel, error)
	ListVessels(ctx context.Context) ([]model.Vessel, error)

	CreateLink(ctx context.Context, link *model.UserVesselLink, schedule []model.Installment, actorID *int64, ip string) (int64, error)
	GetLink(ctx context.Context, id int64) (*model.UserVesselLink, error)

	BlockRules(ctx context.Context, vesselID int64) ([]model.WeeklyBlock, []model.DateBlock, error)
	CreateDateBlock(ctx context.Context, b *model.DateBlock, actorID *int64, ip string) (int64, error)
	DeleteDateBlock(ctx context.Context, id int64, actorID *int64, ip string) (*model.DateBlock, error)
	ListDateBlocks(ctx context.Context, vesselID int64) ([]model.DateBlock, error)
	CreateWeeklyBlock(ctx context.Context, b *model.WeeklyBlock, actorID *int64, ip string) (int64, error)
	ToggleWeeklyBlock(ctx context.Context, id int64, actorID *int64, ip string) (*model.WeeklyBlock, error)
	ListWeeklyBlocks(ctx context.Context) ([]model.WeeklyBlock, error)

	CheckAvailability(ctx context.Context, p repository.CreateBookingParams) error
	CreateBooking(ctx context.Context, p repository.CreateBookingParams) (*model.Booking, error)
	TransitionBooking(ctx context.Context, bookingID int64, to model.BookingStatus, allowedFrom []model.BookingStatus, action model.AuditAction, actorID *int64, ip string) (*model.Booking, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	ListBookingsByVessel(ctx context.Context, vesselID int64, from, to time.Time) ([]model.Booking, error)
	CompletePastBookings(ctx context.Context) (int, error)

	ObligationsByLink(ctx context.Context, linkID int64) ([]model.Obligation, error)
	OutstandingObligations(ctx context.Context) ([]repository.OutstandingObligation, error)
	CreateCharge(ctx context.Context, linkID int64, title, description string, amountCents int64, dueDate *time.Time, actorID *int64, ip string) (*model.Obligation, error)
	PayObligation(ctx context.Context, typ model.ObligationType, id int64, paidAt time.Time, notes string, actorID *int64, ip string) (*repository.PayResult, error)
	CancelCharge(ctx context.Context, chargeID int64, actorID *int64, ip string) (*model.Obligation, error)
	MarkOverdueObligations(ctx context.Context) (int, error)
	FlagOverdueUsers(ctx context.Context) ([]int64, error)
	GenerateMarinaFees(ctx context.Context, year int, month time.Month) (int, error)
	AssignInvoiceRef(ctx context.Context, typ model.ObligationType, id int64, ref string) error
	RecordGatewayStatus(ctx context.Context, typ model.ObligationType, id int64, ref, status string) error
	FindObligationByInvoiceRef(ctx context.Context, ref string) (*repository.InvoiceRef, error)
	PendingInvoices(ctx context.Context, limit int) ([]repository.InvoiceRef, error)

	ListAudit(ctx context.Context, entityType string, entityID int64) ([]model.AuditEntry, error)
}

// Service содержит бизнес-логику сервиса бронирования судов.
type Service struct {
	repo   Repository
	events EventSink
	now    func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и приёмником событий.
func NewService(repo Repository, events EventSink) *Service {
	if events == nil {
		events = nopSink{}
	}
	return &Service{
		repo:   repo,
		events: events,
		now:    time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) today() time.Time {
	return model.CivilDate(s.now())
}

func (s *Service) emit(ctx context.Context, typ model.EventType, entityType string, entityID, userID int64) {
	s.events.Emit(ctx, model.Event{
		Type:       typ,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		OccurredAt: s.now(),
	})
}
