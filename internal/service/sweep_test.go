package service

import (
	"context"
	"testing"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
)

func TestRunSweep_AggregatesReport(t *testing.T) {
	repo := &stubRepo{
		completedPast: 2,
		markedOverdue: 3,
		flaggedUsers:  []int64{7, 9},
		feesGenerated: 4,
	}
	svc := newTestService(repo, nil)

	report, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.BookingsCompleted != 2 {
		t.Fatalf("expected 2 completed bookings, got %d", report.BookingsCompleted)
	}
	if report.MarkedOverdue != 3 {
		t.Fatalf("expected 3 marked overdue, got %d", report.MarkedOverdue)
	}
	if report.UsersFlagged != 2 {
		t.Fatalf("expected 2 flagged users, got %d", report.UsersFlagged)
	}
	if report.FeesGenerated != 4 {
		t.Fatalf("expected 4 generated fees, got %d", report.FeesGenerated)
	}
}

func TestRunSweep_GeneratesFeesForCurrentMonth(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	if _, err := svc.RunSweep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.gotMarinaYear != 2026 || repo.gotMarinaMonth != time.June {
		t.Fatalf("expected fees for 2026-06, got %d-%s", repo.gotMarinaYear, repo.gotMarinaMonth)
	}
}

func TestRunSweep_Idempotent(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	first, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatalf("repeated sweep over unchanged state must report the same: %+v vs %+v", first, second)
	}
}

func TestSetUserStatus_Validation(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)
	admin := Actor{ID: 1, Role: model.RoleAdmin}

	if err := svc.SetUserStatus(context.Background(), admin, 7, "SLEEPING"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if err := svc.SetUserStatus(context.Background(), admin, 7, model.UserStatusActive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
