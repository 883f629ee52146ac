package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vpanarin/vesselbook/internal/model"
)

// CreateUser создаёт нового пользователя платформы.
func (r *PostgresRepository) CreateUser(ctx context.Context, name string, role model.UserRole) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, role) VALUES ($1, $2) RETURNING id`,
		name, string(role),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, role, status, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.Status, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// SetUserStatus изменяет статус пользователя и пишет запись аудита.
func (r *PostgresRepository) SetUserStatus(ctx context.Context, userID int64, status model.UserStatus, actorID *int64, ip string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE users SET status = $2 WHERE id = $1`,
		userID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditUserStatusChanged,
		EntityType: "user",
		EntityID:   userID,
		Details:    map[string]any{"status": string(status)},
		IP:         ip,
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CreateVessel создаёт новое судно.
func (r *PostgresRepository) CreateVessel(ctx context.Context, v *model.Vessel, actorID *int64, ip string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO vessels (name, capacity, calendar_days_ahead, max_active_bookings)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		v.Name, v.Capacity, v.CalendarDaysAhead, v.MaxActiveBookings,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert vessel: %w", err)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditVesselCreated,
		EntityType: "vessel",
		EntityID:   id,
		Details:    map[string]any{"name": v.Name},
		IP:         ip,
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// UpdateVessel обновляет параметры судна, включая флаг активности.
// Судно никогда не удаляется физически, пока на него ссылаются бронирования.
func (r *PostgresRepository) UpdateVessel(ctx context.Context, v *model.Vessel, actorID *int64, ip string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE vessels
		 SET name = $2, capacity = $3, calendar_days_ahead = $4, max_active_bookings = $5, is_active = $6
		 WHERE id = $1`,
		v.ID, v.Name, v.Capacity, v.CalendarDaysAhead, v.MaxActiveBookings, v.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update vessel: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("vessel %d: %w", v.ID, ErrNotFound)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditVesselUpdated,
		EntityType: "vessel",
		EntityID:   v.ID,
		Details:    map[string]any{"name": v.Name, "is_active": v.IsActive},
		IP:         ip,
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetVessel возвращает судно по идентификатору.
func (r *PostgresRepository) GetVessel(ctx context.Context, id int64) (*model.Vessel, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, capacity, calendar_days_ahead, max_active_bookings, is_active, created_at
		 FROM vessels WHERE id = $1`,
		id,
	)

	var v model.Vessel
	err := row.Scan(&v.ID, &v.Name, &v.Capacity, &v.CalendarDaysAhead, &v.MaxActiveBookings, &v.IsActive, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vessel %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get vessel: %w", err)
	}

	return &v, nil
}

// ListVessels возвращает все суда в порядке создания.
func (r *PostgresRepository) ListVessels(ctx context.Context) ([]model.Vessel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, capacity, calendar_days_ahead, max_active_bookings, is_active, created_at
		 FROM vessels ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select vessels: %w", err)
	}
	defer rows.Close()

	var res []model.Vessel
	for rows.Next() {
		var v model.Vessel
		if err := rows.Scan(&v.ID, &v.Name, &v.Capacity, &v.CalendarDaysAhead, &v.MaxActiveBookings, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vessel: %w", err)
		}
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateLink создаёт финансовую связку пользователь-судно вместе с графиком
// взносов одной транзакцией.
func (r *PostgresRepository) CreateLink(ctx context.Context, link *model.UserVesselLink, schedule []model.Installment, actorID *int64, ip string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO user_vessel_links
		     (user_id, vessel_id, total_value_cents, down_payment_cents, remaining_cents,
		      total_installments, marina_monthly_fee_cents, marina_due_day)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		link.UserID, link.VesselID, link.TotalValueCents, link.DownPaymentCents,
		link.RemainingCents, link.TotalInstallments, link.MarinaMonthlyFeeCents, link.MarinaDueDay,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert link: %w", err)
	}

	for _, inst := range schedule {
		_, err = tx.Exec(ctx,
			`INSERT INTO installments (link_id, sequence, amount_cents, due_date)
			 VALUES ($1, $2, $3, $4)`,
			id, inst.Sequence, inst.AmountCents, inst.DueDate,
		)
		if err != nil {
			return 0, fmt.Errorf("insert installment %d: %w", inst.Sequence, err)
		}
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditLinkCreated,
		EntityType: "link",
		EntityID:   id,
		Details: map[string]any{
			"user_id":      link.UserID,
			"vessel_id":    link.VesselID,
			"installments": len(schedule),
		},
		IP: ip,
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetLink возвращает связку пользователь-судно по идентификатору.
func (r *PostgresRepository) GetLink(ctx context.Context, id int64) (*model.UserVesselLink, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, vessel_id, total_value_cents, down_payment_cents, remaining_cents,
		        total_installments, marina_monthly_fee_cents, marina_due_day, status, created_at
		 FROM user_vessel_links WHERE id = $1`,
		id,
	)

	var l model.UserVesselLink
	err := row.Scan(&l.ID, &l.UserID, &l.VesselID, &l.TotalValueCents, &l.DownPaymentCents,
		&l.RemainingCents, &l.TotalInstallments, &l.MarinaMonthlyFeeCents, &l.MarinaDueDay,
		&l.Status, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("link %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get link: %w", err)
	}

	return &l, nil
}
