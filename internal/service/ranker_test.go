package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
)

func outstanding(typ model.ObligationType, id int64, amountCents int64, due *time.Time) repository.OutstandingObligation {
	return repository.OutstandingObligation{
		Obligation: model.Obligation{
			Type:        typ,
			ID:          id,
			AmountCents: amountCents,
			DueDate:     due,
			Status:      model.ObligationStatusPending,
		},
	}
}

func TestRankObligations_Buckets(t *testing.T) {
	today := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

	items := []repository.OutstandingObligation{
		outstanding(model.ObligationInstallment, 1, 1000, datePtr(2026, time.June, 10)), // просрочено
		outstanding(model.ObligationMarinaFee, 2, 2000, datePtr(2026, time.June, 15)),   // сегодня
		outstanding(model.ObligationAdHoc, 3, 3000, datePtr(2026, time.June, 17)),       // 3 дня
		outstanding(model.ObligationAdHoc, 4, 4000, datePtr(2026, time.June, 18)),       // граница 3 дней
		outstanding(model.ObligationInstallment, 5, 5000, datePtr(2026, time.June, 22)), // граница 7 дней
		outstanding(model.ObligationMarinaFee, 6, 6000, datePtr(2026, time.June, 23)),   // позже
		outstanding(model.ObligationAdHoc, 7, 7000, nil),                                // без срока
	}

	r := rankObligations(items, today)

	if len(r.Overdue) != 1 || r.Overdue[0].Obligation.ID != 1 {
		t.Fatalf("expected obligation 1 in overdue, got %+v", r.Overdue)
	}
	if len(r.DueToday) != 1 || r.DueToday[0].Obligation.ID != 2 {
		t.Fatalf("expected obligation 2 due today, got %+v", r.DueToday)
	}
	if len(r.DueIn3Days) != 2 {
		t.Fatalf("expected obligations 3 and 4 in 3-day bucket, got %+v", r.DueIn3Days)
	}
	if len(r.DueIn7Days) != 1 || r.DueIn7Days[0].Obligation.ID != 5 {
		t.Fatalf("expected obligation 5 in 7-day bucket, got %+v", r.DueIn7Days)
	}
	if len(r.DueLater) != 2 {
		t.Fatalf("expected obligations 6 and 7 in later bucket, got %+v", r.DueLater)
	}
}

func TestRankObligations_SortsWithinBucket(t *testing.T) {
	today := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

	items := []repository.OutstandingObligation{
		outstanding(model.ObligationAdHoc, 1, 1000, nil),
		outstanding(model.ObligationMarinaFee, 2, 2000, datePtr(2026, time.June, 25)),
		outstanding(model.ObligationInstallment, 3, 3000, datePtr(2026, time.June, 24)),
	}

	r := rankObligations(items, today)

	if len(r.DueLater) != 3 {
		t.Fatalf("expected 3 items in later bucket, got %d", len(r.DueLater))
	}
	if r.DueLater[0].Obligation.ID != 3 || r.DueLater[1].Obligation.ID != 2 || r.DueLater[2].Obligation.ID != 1 {
		t.Fatalf("bucket must be sorted by due date, nil last: %+v", r.DueLater)
	}
}

func TestRankObligations_ReclassifiesStalePending(t *testing.T) {
	today := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

	// Статус в хранилище ещё PENDING, но срок прошёл: при чтении
	// обязательство попадает в корзину просрочки.
	items := []repository.OutstandingObligation{
		outstanding(model.ObligationInstallment, 1, 1000, datePtr(2026, time.June, 1)),
	}

	r := rankObligations(items, today)

	if len(r.Overdue) != 1 {
		t.Fatalf("stale pending must land in overdue bucket, got %+v", r)
	}
	if r.Overdue[0].Obligation.Status != model.ObligationStatusOverdue {
		t.Fatalf("expected OVERDUE effective status, got %s", r.Overdue[0].Obligation.Status)
	}
}

func TestRankObligations_Summary(t *testing.T) {
	today := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

	items := []repository.OutstandingObligation{
		outstanding(model.ObligationInstallment, 1, 1000, datePtr(2026, time.June, 10)),
		outstanding(model.ObligationMarinaFee, 2, 2000, datePtr(2026, time.June, 10)),
		outstanding(model.ObligationAdHoc, 3, 3000, nil),
	}

	r := rankObligations(items, today)

	if r.Summary.Overdue.Count != 2 || r.Summary.Overdue.AmountCents != 3000 {
		t.Fatalf("expected overdue summary 2/3000, got %+v", r.Summary.Overdue)
	}
	if r.Summary.Total.Count != 3 || r.Summary.Total.AmountCents != 6000 {
		t.Fatalf("expected total summary 3/6000, got %+v", r.Summary.Total)
	}
}

func TestRankAll_AdminOnly(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil)

	_, err := svc.RankAll(context.Background(), Actor{ID: 5, Role: model.RoleUser})
	if !errors.Is(err, ErrAdminOnly) {
		t.Fatalf("expected ErrAdminOnly, got %v", err)
	}
}

func TestRankAll_UsesServiceClock(t *testing.T) {
	repo := &stubRepo{
		outstanding: []repository.OutstandingObligation{
			outstanding(model.ObligationInstallment, 1, 1000, datePtr(2026, time.June, 14)),
		},
	}
	svc := newTestService(repo, nil)

	r, err := svc.RankAll(context.Background(), Actor{ID: 1, Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Часы сервиса зафиксированы на 2026-06-15: вчерашний срок — просрочка.
	if len(r.Overdue) != 1 {
		t.Fatalf("expected one overdue obligation, got %+v", r)
	}
}
