package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vpanarin/vesselbook/internal/block"
	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
)

// IsBlocked сообщает, заблокирована ли дата для судна, и причину блокировки.
func (s *Service) IsBlocked(ctx context.Context, vesselID int64, date time.Time) (block.Resolution, error) {
	weekly, dated, err := s.repo.BlockRules(ctx, vesselID)
	if err != nil {
		return block.Resolution{}, err
	}
	return block.Resolve(weekly, dated, vesselID, date), nil
}

// CanBook проверяет, допустимо ли бронирование, без создания записи.
// Результат справочный: авторитетная проверка повторяется внутри транзакции
// создания, поэтому успешный CanBook не резервирует слот.
func (s *Service) CanBook(ctx context.Context, actor Actor, vesselID, userID int64, date time.Time) error {
	return s.repo.CheckAvailability(ctx, repository.CreateBookingParams{
		VesselID:      vesselID,
		UserID:        userID,
		Date:          date,
		AdminOverride: actor.IsAdmin(),
	})
}

// CreateBooking создаёт бронирование со статусом PENDING.
// Обычный пользователь бронирует только для себя; администратор может
// бронировать от имени любого пользователя.
func (s *Service) CreateBooking(ctx context.Context, actor Actor, vesselID, userID int64, date time.Time, notes string) (*model.Booking, error) {
	if !actor.IsAdmin() {
		userID = actor.ID
	}

	b, err := s.repo.CreateBooking(ctx, repository.CreateBookingParams{
		VesselID:      vesselID,
		UserID:        userID,
		Date:          date,
		Notes:         notes,
		AdminOverride: actor.IsAdmin(),
		ActorID:       actor.idPtr(),
		IP:            actor.IP,
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventBookingCreated, "booking", b.ID, b.UserID)
	return b, nil
}

// ApproveBooking подтверждает бронирование. Только администратор, только из PENDING.
func (s *Service) ApproveBooking(ctx context.Context, actor Actor, bookingID int64) (*model.Booking, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}

	b, err := s.repo.TransitionBooking(ctx, bookingID,
		model.BookingStatusApproved,
		[]model.BookingStatus{model.BookingStatusPending},
		model.AuditBookingUpdated, actor.idPtr(), actor.IP,
	)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventBookingUpdated, "booking", b.ID, b.UserID)
	return b, nil
}

// CancelBooking отменяет бронирование из статусов PENDING и APPROVED.
// Допускается для владельца бронирования и администратора. Запись не
// удаляется: отмена освобождает дату, так как проверки доступности
// игнорируют статус CANCELLED, а история сохраняется для аудита.
func (s *Service) CancelBooking(ctx context.Context, actor Actor, bookingID int64) (*model.Booking, error) {
	if !actor.IsAdmin() {
		b, err := s.repo.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.UserID != actor.ID {
			return nil, fmt.Errorf("booking %d: %w", bookingID, repository.ErrNotFound)
		}
	}

	b, err := s.repo.TransitionBooking(ctx, bookingID,
		model.BookingStatusCancelled,
		[]model.BookingStatus{model.BookingStatusPending, model.BookingStatusApproved},
		model.AuditBookingCancelled, actor.idPtr(), actor.IP,
	)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventBookingCancelled, "booking", b.ID, b.UserID)
	return b, nil
}

// CompleteBooking завершает подтверждённое бронирование. Вызывается системой
// либо администратором; массовое завершение прошедших дат выполняет RunSweep.
func (s *Service) CompleteBooking(ctx context.Context, actor Actor, bookingID int64) (*model.Booking, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}

	b, err := s.repo.TransitionBooking(ctx, bookingID,
		model.BookingStatusCompleted,
		[]model.BookingStatus{model.BookingStatusApproved},
		model.AuditBookingUpdated, actor.idPtr(), actor.IP,
	)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventBookingUpdated, "booking", b.ID, b.UserID)
	return b, nil
}

// GetBooking возвращает бронирование по идентификатору.
func (s *Service) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// VesselCalendar возвращает бронирования судна в диапазоне дат.
func (s *Service) VesselCalendar(ctx context.Context, vesselID int64, from, to time.Time) ([]model.Booking, error) {
	return s.repo.ListBookingsByVessel(ctx, vesselID, from, to)
}

// CreateDateBlock создаёт разовую блокировку дат судна. Только администратор.
func (s *Service) CreateDateBlock(ctx context.Context, actor Actor, b *model.DateBlock) (int64, error) {
	if !actor.IsAdmin() {
		return 0, ErrAdminOnly
	}
	if model.CivilDate(b.EndDate).Before(model.CivilDate(b.StartDate)) {
		return 0, fmt.Errorf("end date before start date: %w", ErrInvalidInput)
	}

	id, err := s.repo.CreateDateBlock(ctx, b, actor.idPtr(), actor.IP)
	if err != nil {
		return 0, err
	}

	s.emit(ctx, model.EventDateBlocked, "date_block", id, 0)
	return id, nil
}

// DeleteDateBlock удаляет разовую блокировку. Только администратор.
func (s *Service) DeleteDateBlock(ctx context.Context, actor Actor, id int64) error {
	if !actor.IsAdmin() {
		return ErrAdminOnly
	}

	b, err := s.repo.DeleteDateBlock(ctx, id, actor.idPtr(), actor.IP)
	if err != nil {
		return err
	}

	s.emit(ctx, model.EventDateUnblocked, "date_block", b.ID, 0)
	return nil
}

// CreateWeeklyBlock создаёт еженедельную блокировку. Только администратор.
func (s *Service) CreateWeeklyBlock(ctx context.Context, actor Actor, b *model.WeeklyBlock) (int64, error) {
	if !actor.IsAdmin() {
		return 0, ErrAdminOnly
	}
	if b.DayOfWeek < 0 || b.DayOfWeek > 6 {
		return 0, fmt.Errorf("day of week %d out of range: %w", b.DayOfWeek, ErrInvalidInput)
	}
	return s.repo.CreateWeeklyBlock(ctx, b, actor.idPtr(), actor.IP)
}

// ToggleWeeklyBlock переключает активность еженедельной блокировки. Только администратор.
func (s *Service) ToggleWeeklyBlock(ctx context.Context, actor Actor, id int64) (*model.WeeklyBlock, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	return s.repo.ToggleWeeklyBlock(ctx, id, actor.idPtr(), actor.IP)
}

// ListWeeklyBlocks возвращает еженедельные блокировки.
func (s *Service) ListWeeklyBlocks(ctx context.Context) ([]model.WeeklyBlock, error) {
	return s.repo.ListWeeklyBlocks(ctx)
}

// ListDateBlocks возвращает разовые блокировки судна.
func (s *Service) ListDateBlocks(ctx context.Context, vesselID int64) ([]model.DateBlock, error) {
	return s.repo.ListDateBlocks(ctx, vesselID)
}
