// Package worker содержит периодическую фоновую обработку сервиса
// бронирования судов.
package worker

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/vpanarin/vesselbook/internal/gateway"
	"github.com/vpanarin/vesselbook/internal/repository"
	"github.com/vpanarin/vesselbook/internal/service"
)

// Service описывает операции сервиса, используемые фоновой обработкой.
type Service interface {
	RunSweep(ctx context.Context) (service.SweepReport, error)
	PendingInvoices(ctx context.Context, limit int) ([]repository.InvoiceRef, error)
	ApplyGatewayStatus(ctx context.Context, invoiceRef, status string) error
}

// Sweeper периодически запускает обработку: завершение прошедших бронирований,
// переклассификацию просрочки, генерацию сборов марины и опрос платёжного
// шлюза. Внешний триггер (admin-endpoint) использует те же операции, поэтому
// интервал не влияет на корректность.
type Sweeper struct {
	svc      Service
	gw       *gateway.Client
	log      *zap.Logger
	interval time.Duration
}

// NewSweeper создаёт фоновую обработку с указанным интервалом.
func NewSweeper(svc Service, gw *gateway.Client, log *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{svc: svc, gw: gw, log: log, interval: interval}
}

// Run запускает цикл обработки до отмены контекста.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Первый проход сразу при старте, не дожидаясь интервала.
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	var report service.SweepReport

	// Инфраструктурные сбои повторяются с экспоненциальной задержкой,
	// доменные ошибки — нет.
	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		report, err = s.svc.RunSweep(ctx)
		if err != nil && repository.IsUnavailable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
	} else {
		s.log.Info("sweep completed",
			zap.Int("bookings_completed", report.BookingsCompleted),
			zap.Int("marked_overdue", report.MarkedOverdue),
			zap.Int("users_flagged", report.UsersFlagged),
			zap.Int("fees_generated", report.FeesGenerated),
		)
	}

	if s.gw != nil {
		s.pollGateway(ctx)
	}
}

// pollGateway опрашивает шлюз по непогашенным счетам. Потеря webhook таким
// образом деградирует до опроса, а не до потери оплаты.
func (s *Sweeper) pollGateway(ctx context.Context) {
	invoices, err := s.svc.PendingInvoices(ctx, 100)
	if err != nil {
		s.log.Error("list pending invoices", zap.Error(err))
		return
	}

	for _, inv := range invoices {
		status, code, retryAfter, err := s.gw.GetInvoiceStatus(ctx, inv.Ref)
		if err != nil {
			s.log.Warn("gateway poll failed", zap.String("invoice", inv.Ref), zap.Error(err))
			continue
		}

		if code == 429 {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if status == nil {
			continue
		}

		if err := s.svc.ApplyGatewayStatus(ctx, inv.Ref, status.Status); err != nil {
			s.log.Warn("apply gateway status", zap.String("invoice", inv.Ref), zap.Error(err))
		}
	}
}
