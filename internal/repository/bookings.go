package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vpanarin/vesselbook/internal/block"
	"github.com/vpanarin/vesselbook/internal/model"
)

// querier покрывает pgxpool.Pool и pgx.Tx для проверок доступности.
type querier interface {
	rowQuerier
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateBookingParams описывает параметры создания бронирования.
type CreateBookingParams struct {
	VesselID int64
	UserID   int64
	Date     time.Time
	Notes    string
	// AdminOverride разрешает бронирование при статусе пользователя
	// OVERDUE/OVERDUE_PAYMENT. Устанавливается сервисом для администраторов.
	AdminOverride bool
	ActorID       *int64
	IP            string
}

// CheckAvailability выполняет проверки доступности слота без вставки.
// Результат носит справочный характер: авторитетная проверка выполняется
// внутри транзакции CreateBooking.
func (r *PostgresRepository) CheckAvailability(ctx context.Context, p CreateBookingParams) error {
	return r.checkAvailability(ctx, r.pool, p, model.CivilDate(p.Date))
}

// checkAvailability выполняет пять проверок доступности в заданном порядке:
// горизонт, блокировки, статус пользователя, лимит активных бронирований,
// занятость слота. Первая неудавшаяся проверка определяет ошибку.
func (r *PostgresRepository) checkAvailability(ctx context.Context, q querier, p CreateBookingParams, date time.Time) error {
	var vessel model.Vessel
	err := q.QueryRow(ctx,
		`SELECT id, calendar_days_ahead, max_active_bookings, is_active FROM vessels WHERE id = $1`,
		p.VesselID,
	).Scan(&vessel.ID, &vessel.CalendarDaysAhead, &vessel.MaxActiveBookings, &vessel.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("vessel %d: %w", p.VesselID, ErrNotFound)
		}
		return fmt.Errorf("get vessel: %w", err)
	}

	if !vessel.IsActive {
		return ErrVesselInactive
	}

	today := r.today()
	horizon := today.AddDate(0, 0, vessel.CalendarDaysAhead)
	if date.Before(today) || date.After(horizon) {
		return ErrOutOfHorizon
	}

	weekly, dated, err := blockRulesTx(ctx, q, p.VesselID)
	if err != nil {
		return err
	}
	if res := block.Resolve(weekly, dated, p.VesselID, date); res.Blocked {
		return &DateBlockedError{Reason: res.Reason}
	}

	var userStatus model.UserStatus
	err = q.QueryRow(ctx, `SELECT status FROM users WHERE id = $1`, p.UserID).Scan(&userStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("user %d: %w", p.UserID, ErrNotFound)
		}
		return fmt.Errorf("get user status: %w", err)
	}

	switch userStatus {
	case model.UserStatusBlocked:
		return ErrUserBlocked
	case model.UserStatusOverdue, model.UserStatusOverduePayment:
		if !p.AdminOverride {
			return ErrUserPendingPayment
		}
	}

	var active int
	err = q.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings
		 WHERE user_id = $1 AND vessel_id = $2 AND status IN ('PENDING', 'APPROVED')`,
		p.UserID, p.VesselID,
	).Scan(&active)
	if err != nil {
		return fmt.Errorf("count active bookings: %w", err)
	}
	if active >= vessel.MaxActiveBookings {
		return ErrUserBookingLimit
	}

	var occupied bool
	err = q.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM bookings
		     WHERE vessel_id = $1 AND booking_date = $2 AND status <> 'CANCELLED'
		 )`,
		p.VesselID, date,
	).Scan(&occupied)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if occupied {
		return ErrSlotTaken
	}

	return nil
}

// CreateBooking выполняет все проверки доступности и вставку бронирования
// одной транзакцией. Сериализация конкурентных запросов на один слот
// обеспечивается advisory-блокировкой по (судно, дата); уникальный частичный
// индекс остаётся страховкой: нарушение транслируется в ErrSlotTaken.
func (r *PostgresRepository) CreateBooking(ctx context.Context, p CreateBookingParams) (*model.Booking, error) {
	date := model.CivilDate(p.Date)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ключ блокировки: идентификатор судна и номер дня от эпохи.
	dayKey := int32(date.Unix() / 86400)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int, $2::int)`, int32(p.VesselID), dayKey); err != nil {
		return nil, fmt.Errorf("acquire slot lock: %w", err)
	}

	if err := r.checkAvailability(ctx, tx, p, date); err != nil {
		return nil, err
	}

	b := model.Booking{
		VesselID:    p.VesselID,
		UserID:      p.UserID,
		BookingDate: date,
		Status:      model.BookingStatusPending,
		Notes:       p.Notes,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO bookings (vessel_id, user_id, booking_date, notes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		b.VesselID, b.UserID, b.BookingDate, b.Notes,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    p.ActorID,
		Action:     model.AuditBookingCreated,
		EntityType: "booking",
		EntityID:   b.ID,
		Details: map[string]any{
			"vessel_id": p.VesselID,
			"user_id":   p.UserID,
			"date":      date.Format(model.DateOnly),
		},
		IP: p.IP,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &b, nil
}

// TransitionBooking переводит бронирование в новый статус, если текущий статус
// входит в допустимый список. Проверка и обновление выполняются под блокировкой
// строки; недопустимый переход возвращает InvalidTransitionError и не пишет
// ни изменения, ни записи аудита.
func (r *PostgresRepository) TransitionBooking(ctx context.Context, bookingID int64, to model.BookingStatus, allowedFrom []model.BookingStatus, action model.AuditAction, actorID *int64, ip string) (*model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var b model.Booking
	err = tx.QueryRow(ctx,
		`SELECT id, vessel_id, user_id, booking_date, status, notes, created_at, updated_at
		 FROM bookings WHERE id = $1 FOR UPDATE`,
		bookingID,
	).Scan(&b.ID, &b.VesselID, &b.UserID, &b.BookingDate, &b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %d: %w", bookingID, ErrNotFound)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	if !slices.Contains(allowedFrom, b.Status) {
		return nil, &InvalidTransitionError{From: b.Status, To: to}
	}

	err = tx.QueryRow(ctx,
		`UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
		bookingID, string(to),
	).Scan(&b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		EntityType: "booking",
		EntityID:   bookingID,
		Details: map[string]any{
			"from": string(b.Status),
			"to":   string(to),
		},
		IP: ip,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	b.Status = to
	return &b, nil
}

// GetBooking возвращает бронирование по идентификатору.
func (r *PostgresRepository) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, vessel_id, user_id, booking_date, status, notes, created_at, updated_at
		 FROM bookings WHERE id = $1`,
		id,
	)

	var b model.Booking
	err := row.Scan(&b.ID, &b.VesselID, &b.UserID, &b.BookingDate, &b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	return &b, nil
}

// ListBookingsByVessel возвращает бронирования судна в диапазоне дат.
func (r *PostgresRepository) ListBookingsByVessel(ctx context.Context, vesselID int64, from, to time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, vessel_id, user_id, booking_date, status, notes, created_at, updated_at
		 FROM bookings
		 WHERE vessel_id = $1 AND booking_date BETWEEN $2 AND $3
		 ORDER BY booking_date`,
		vesselID, model.CivilDate(from), model.CivilDate(to),
	)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	defer rows.Close()

	var res []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.VesselID, &b.UserID, &b.BookingDate, &b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CompletePastBookings переводит подтверждённые бронирования с прошедшей датой
// в статус COMPLETED. Операция идемпотентна: повторный запуск не находит
// кандидатов и не пишет дублирующих записей аудита.
func (r *PostgresRepository) CompletePastBookings(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`UPDATE bookings SET status = 'COMPLETED', updated_at = now()
		 WHERE status = 'APPROVED' AND booking_date < $1
		 RETURNING id`,
		r.today(),
	)
	if err != nil {
		return 0, fmt.Errorf("complete bookings: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan booking id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows error: %w", err)
	}

	for _, id := range ids {
		err = appendAudit(ctx, tx, model.AuditEntry{
			Action:     model.AuditBookingUpdated,
			EntityType: "booking",
			EntityID:   id,
			Details:    map[string]any{"from": "APPROVED", "to": "COMPLETED"},
		})
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return len(ids), nil
}
