package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
)

func TestCreateBooking_UserBooksOnlyForSelf(t *testing.T) {
	repo := &stubRepo{
		booking: &model.Booking{ID: 10, VesselID: 1, UserID: 5},
	}
	svc := newTestService(repo, nil)

	actor := Actor{ID: 5, Role: model.RoleUser}
	_, err := svc.CreateBooking(context.Background(), actor, 1, 99, time.Now(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.gotCreateBooking.UserID != 5 {
		t.Fatalf("regular user must book for self, got user %d", repo.gotCreateBooking.UserID)
	}
	if repo.gotCreateBooking.AdminOverride {
		t.Fatalf("regular user must not get admin override")
	}
}

func TestCreateBooking_AdminBooksForOthers(t *testing.T) {
	repo := &stubRepo{
		booking: &model.Booking{ID: 10, VesselID: 1, UserID: 99},
	}
	svc := newTestService(repo, nil)

	actor := Actor{ID: 1, Role: model.RoleAdmin}
	_, err := svc.CreateBooking(context.Background(), actor, 1, 99, time.Now(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.gotCreateBooking.UserID != 99 {
		t.Fatalf("admin must book for target user, got %d", repo.gotCreateBooking.UserID)
	}
	if !repo.gotCreateBooking.AdminOverride {
		t.Fatalf("admin booking must carry override flag")
	}
}

func TestCreateBooking_EmitsEvent(t *testing.T) {
	repo := &stubRepo{
		booking: &model.Booking{ID: 10, VesselID: 1, UserID: 5},
	}
	sink := &recordingSink{}
	svc := newTestService(repo, sink)

	_, err := svc.CreateBooking(context.Background(), Actor{ID: 5, Role: model.RoleUser}, 1, 5, time.Now(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := sink.byType(model.EventBookingCreated)
	if len(events) != 1 {
		t.Fatalf("expected one BOOKING_CREATED event, got %d", len(events))
	}
	if events[0].EntityID != 10 || events[0].UserID != 5 {
		t.Fatalf("event carries wrong ids: %+v", events[0])
	}
}

func TestCreateBooking_PropagatesSlotTaken(t *testing.T) {
	repo := &stubRepo{
		bookingErr: repository.ErrSlotTaken,
	}
	sink := &recordingSink{}
	svc := newTestService(repo, sink)

	_, err := svc.CreateBooking(context.Background(), Actor{ID: 5, Role: model.RoleUser}, 1, 5, time.Now(), "")
	if !errors.Is(err, repository.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if len(sink.byType(model.EventBookingCreated)) != 0 {
		t.Fatalf("failed booking must not emit event")
	}
}

func TestApproveBooking_AdminOnly(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	_, err := svc.ApproveBooking(context.Background(), Actor{ID: 5, Role: model.RoleUser}, 10)
	if !errors.Is(err, ErrAdminOnly) {
		t.Fatalf("expected ErrAdminOnly, got %v", err)
	}
}

func TestApproveBooking_AllowedFromPendingOnly(t *testing.T) {
	repo := &stubRepo{
		transitionBooking: &model.Booking{ID: 10, UserID: 5, Status: model.BookingStatusApproved},
	}
	svc := newTestService(repo, nil)

	_, err := svc.ApproveBooking(context.Background(), Actor{ID: 1, Role: model.RoleAdmin}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.gotTransitionTo != model.BookingStatusApproved {
		t.Fatalf("expected transition to APPROVED, got %s", repo.gotTransitionTo)
	}
	if len(repo.gotTransitionFrom) != 1 || repo.gotTransitionFrom[0] != model.BookingStatusPending {
		t.Fatalf("approve must be allowed only from PENDING, got %v", repo.gotTransitionFrom)
	}
}

func TestCancelBooking_OwnerOnly(t *testing.T) {
	repo := &stubRepo{
		booking: &model.Booking{ID: 10, UserID: 7, Status: model.BookingStatusPending},
	}
	svc := newTestService(repo, nil)

	// Чужое бронирование выглядит для пользователя как несуществующее.
	_, err := svc.CancelBooking(context.Background(), Actor{ID: 5, Role: model.RoleUser}, 10)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign booking, got %v", err)
	}
}

func TestCancelBooking_AdminCancelsAny(t *testing.T) {
	repo := &stubRepo{
		booking:           &model.Booking{ID: 10, UserID: 7, Status: model.BookingStatusApproved},
		transitionBooking: &model.Booking{ID: 10, UserID: 7, Status: model.BookingStatusCancelled},
	}
	svc := newTestService(repo, nil)

	b, err := svc.CancelBooking(context.Background(), Actor{ID: 1, Role: model.RoleAdmin}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != model.BookingStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", b.Status)
	}

	if len(repo.gotTransitionFrom) != 2 {
		t.Fatalf("cancel must be allowed from PENDING and APPROVED, got %v", repo.gotTransitionFrom)
	}
}

func TestCancelBooking_InvalidTransition(t *testing.T) {
	repo := &stubRepo{
		booking: &model.Booking{ID: 10, UserID: 5, Status: model.BookingStatusCompleted},
		transitionErr: &repository.InvalidTransitionError{
			From: model.BookingStatusCompleted,
			To:   model.BookingStatusCancelled,
		},
	}
	svc := newTestService(repo, nil)

	_, err := svc.CancelBooking(context.Background(), Actor{ID: 5, Role: model.RoleUser}, 10)

	var transition *repository.InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if transition.From != model.BookingStatusCompleted {
		t.Fatalf("expected From=COMPLETED, got %s", transition.From)
	}
}

func TestCreateDateBlock_RejectsInvertedRange(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	_, err := svc.CreateDateBlock(context.Background(), Actor{ID: 1, Role: model.RoleAdmin}, &model.DateBlock{
		VesselID:  1,
		StartDate: time.Date(2026, time.July, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		Reason:    model.BlockReasonMaintenance,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for inverted range, got %v", err)
	}
}

func TestCreateWeeklyBlock_ValidatesDayOfWeek(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)
	actor := Actor{ID: 1, Role: model.RoleAdmin}

	for _, day := range []int{-1, 7} {
		_, err := svc.CreateWeeklyBlock(context.Background(), actor, &model.WeeklyBlock{DayOfWeek: day})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("day %d: expected ErrInvalidInput, got %v", day, err)
		}
	}

	_, err := svc.CreateWeeklyBlock(context.Background(), actor, &model.WeeklyBlock{DayOfWeek: 0})
	if err != nil {
		t.Fatalf("day 0 must be valid: %v", err)
	}
}

func TestIsBlocked_UsesRepositoryRules(t *testing.T) {
	repo := &stubRepo{
		weekly: []model.WeeklyBlock{
			{ID: 1, DayOfWeek: 1, Reason: model.BlockReasonDraw, IsActive: true},
		},
	}
	svc := newTestService(repo, nil)

	// 2026-06-15 — понедельник.
	res, err := svc.IsBlocked(context.Background(), 1, time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Blocked || res.Reason != model.BlockReasonDraw {
		t.Fatalf("expected draw block, got %+v", res)
	}
}

func TestCanBook_PassesAdminOverride(t *testing.T) {
	repo := &stubRepo{availabilityErr: repository.ErrUserPendingPayment}
	svc := newTestService(repo, nil)

	err := svc.CanBook(context.Background(), Actor{ID: 5, Role: model.RoleUser}, 1, 5, time.Now())
	if !errors.Is(err, repository.ErrUserPendingPayment) {
		t.Fatalf("expected ErrUserPendingPayment, got %v", err)
	}
	if repo.gotCheckParams.AdminOverride {
		t.Fatalf("regular user must not get override")
	}

	repo.availabilityErr = nil
	if err := svc.CanBook(context.Background(), Actor{ID: 1, Role: model.RoleAdmin}, 1, 5, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.gotCheckParams.AdminOverride {
		t.Fatalf("admin check must carry override flag")
	}
}
