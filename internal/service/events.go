package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/vpanarin/vesselbook/internal/model"
)

// EventSink принимает доменные события для внешних подписчиков
// (уведомления, сервис статусов пользователей). Доставка fire-and-forget:
// события отправляются после фиксации транзакции, сервис не ждёт подтверждения
// и не повторяет отправку.
type EventSink interface {
	Emit(ctx context.Context, e model.Event)
}

// ZapEventSink пишет события в журнал. Используется, пока внешний транспорт
// уведомлений не подключён.
type ZapEventSink struct {
	log *zap.Logger
}

// NewZapEventSink создаёт приёмник событий поверх журнала.
func NewZapEventSink(log *zap.Logger) *ZapEventSink {
	return &ZapEventSink{log: log}
}

// Emit записывает событие в журнал.
func (s *ZapEventSink) Emit(_ context.Context, e model.Event) {
	s.log.Info("domain event",
		zap.String("type", string(e.Type)),
		zap.String("entity_type", e.EntityType),
		zap.Int64("entity_id", e.EntityID),
		zap.Int64("user_id", e.UserID),
	)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, model.Event) {}
