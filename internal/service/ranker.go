package service

import (
	"context"
	"sort"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
)

// BucketSummary содержит количество и сумму обязательств корзины.
type BucketSummary struct {
	Count       int
	AmountCents int64
}

// RankingSummary агрегирует корзины приоритизации и общие итоги.
type RankingSummary struct {
	Overdue    BucketSummary
	DueToday   BucketSummary
	DueIn3Days BucketSummary
	DueIn7Days BucketSummary
	DueLater   BucketSummary
	Total      BucketSummary
}

// Ranking — результат приоритизации непогашенных обязательств для панели
// взыскания. Обязательства разложены по срочности.
type Ranking struct {
	Overdue    []repository.OutstandingObligation
	DueToday   []repository.OutstandingObligation
	DueIn3Days []repository.OutstandingObligation
	DueIn7Days []repository.OutstandingObligation
	DueLater   []repository.OutstandingObligation
	Summary    RankingSummary
}

// RankAll собирает все непогашенные обязательства системы и раскладывает их
// по корзинам срочности. Только администратор.
func (s *Service) RankAll(ctx context.Context, actor Actor) (*Ranking, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}

	items, err := s.repo.OutstandingObligations(ctx)
	if err != nil {
		return nil, err
	}

	return rankObligations(items, s.today()), nil
}

// rankObligations раскладывает обязательства по корзинам относительно
// сегодняшней даты: просроченные, сегодня, 1-3 дня, 4-7 дней, позже.
// Обязательства без срока попадают в последнюю корзину. Внутри корзины —
// сортировка по возрастанию срока, без срока — последними.
func rankObligations(items []repository.OutstandingObligation, today time.Time) *Ranking {
	r := &Ranking{}

	for _, it := range items {
		it.Obligation.Status = effectiveStatus(it.Obligation, today)

		switch bucketFor(it.Obligation.DueDate, today) {
		case 0:
			r.Overdue = append(r.Overdue, it)
		case 1:
			r.DueToday = append(r.DueToday, it)
		case 2:
			r.DueIn3Days = append(r.DueIn3Days, it)
		case 3:
			r.DueIn7Days = append(r.DueIn7Days, it)
		default:
			r.DueLater = append(r.DueLater, it)
		}
	}

	for _, bucket := range [][]repository.OutstandingObligation{
		r.Overdue, r.DueToday, r.DueIn3Days, r.DueIn7Days, r.DueLater,
	} {
		sortBucket(bucket)
	}

	r.Summary = RankingSummary{
		Overdue:    summarize(r.Overdue),
		DueToday:   summarize(r.DueToday),
		DueIn3Days: summarize(r.DueIn3Days),
		DueIn7Days: summarize(r.DueIn7Days),
		DueLater:   summarize(r.DueLater),
	}
	r.Summary.Total = BucketSummary{
		Count: r.Summary.Overdue.Count + r.Summary.DueToday.Count +
			r.Summary.DueIn3Days.Count + r.Summary.DueIn7Days.Count + r.Summary.DueLater.Count,
		AmountCents: r.Summary.Overdue.AmountCents + r.Summary.DueToday.AmountCents +
			r.Summary.DueIn3Days.AmountCents + r.Summary.DueIn7Days.AmountCents + r.Summary.DueLater.AmountCents,
	}

	return r
}

// bucketFor возвращает номер корзины: 0 — просрочено, 1 — сегодня,
// 2 — в ближайшие 3 дня, 3 — в ближайшие 7 дней, 4 — позже или без срока.
func bucketFor(due *time.Time, today time.Time) int {
	if due == nil {
		return 4
	}

	days := int(model.CivilDate(*due).Sub(today).Hours() / 24)
	switch {
	case days < 0:
		return 0
	case days == 0:
		return 1
	case days <= 3:
		return 2
	case days <= 7:
		return 3
	default:
		return 4
	}
}

func sortBucket(bucket []repository.OutstandingObligation) {
	sort.SliceStable(bucket, func(i, j int) bool {
		a, b := bucket[i].Obligation.DueDate, bucket[j].Obligation.DueDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}

func summarize(bucket []repository.OutstandingObligation) BucketSummary {
	s := BucketSummary{Count: len(bucket)}
	for _, it := range bucket {
		s.AmountCents += it.Obligation.AmountCents
	}
	return s
}
