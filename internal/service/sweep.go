package service

import "context"

// SweepReport содержит итоги одного прохода фоновой обработки.
type SweepReport struct {
	BookingsCompleted int
	MarkedOverdue     int
	UsersFlagged      int
	FeesGenerated     int
}

// RunSweep выполняет один проход периодической обработки: завершает
// подтверждённые бронирования с прошедшей датой, переводит просроченные
// обязательства в OVERDUE, помечает должников статусом OVERDUE_PAYMENT и
// создаёт сборы марины текущего периода. Каждый шаг идемпотентен, поэтому
// проход безопасно повторять с любым интервалом.
func (s *Service) RunSweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	completed, err := s.repo.CompletePastBookings(ctx)
	if err != nil {
		return report, err
	}
	report.BookingsCompleted = completed

	now := s.now()
	generated, err := s.repo.GenerateMarinaFees(ctx, now.Year(), now.Month())
	if err != nil {
		return report, err
	}
	report.FeesGenerated = generated

	marked, err := s.repo.MarkOverdueObligations(ctx)
	if err != nil {
		return report, err
	}
	report.MarkedOverdue = marked

	flagged, err := s.repo.FlagOverdueUsers(ctx)
	if err != nil {
		return report, err
	}
	report.UsersFlagged = len(flagged)

	return report, nil
}
