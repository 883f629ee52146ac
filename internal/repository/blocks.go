package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vpanarin/vesselbook/internal/model"
)

// rowQuerier покрывает pgxpool.Pool и pgx.Tx для общих запросов чтения.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// BlockRules возвращает все активные еженедельные блокировки и разовые
// блокировки указанного судна для резолвера.
func (r *PostgresRepository) BlockRules(ctx context.Context, vesselID int64) ([]model.WeeklyBlock, []model.DateBlock, error) {
	return blockRulesTx(ctx, r.pool, vesselID)
}

func blockRulesTx(ctx context.Context, q rowQuerier, vesselID int64) ([]model.WeeklyBlock, []model.DateBlock, error) {
	weekly, err := scanWeeklyBlocks(ctx, q,
		`SELECT id, day_of_week, reason, is_active, notes, created_at
		 FROM weekly_blocks WHERE is_active ORDER BY id`,
	)
	if err != nil {
		return nil, nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT id, vessel_id, start_date, end_date, reason, notes, created_at
		 FROM date_blocks WHERE vessel_id = $1
		 ORDER BY start_date, id`,
		vesselID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select date blocks: %w", err)
	}
	defer rows.Close()

	var dated []model.DateBlock
	for rows.Next() {
		var b model.DateBlock
		if err := rows.Scan(&b.ID, &b.VesselID, &b.StartDate, &b.EndDate, &b.Reason, &b.Notes, &b.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan date block: %w", err)
		}
		dated = append(dated, b)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}

	return weekly, dated, nil
}

func scanWeeklyBlocks(ctx context.Context, q rowQuerier, sql string, args ...any) ([]model.WeeklyBlock, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select weekly blocks: %w", err)
	}
	defer rows.Close()

	var res []model.WeeklyBlock
	for rows.Next() {
		var b model.WeeklyBlock
		if err := rows.Scan(&b.ID, &b.DayOfWeek, &b.Reason, &b.IsActive, &b.Notes, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan weekly block: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateDateBlock создаёт разовую блокировку диапазона дат для судна.
// Блокировка неизменяема: допускается только удаление.
func (r *PostgresRepository) CreateDateBlock(ctx context.Context, b *model.DateBlock, actorID *int64, ip string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO date_blocks (vessel_id, start_date, end_date, reason, notes)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		b.VesselID, model.CivilDate(b.StartDate), model.CivilDate(b.EndDate), string(b.Reason), b.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert date block: %w", err)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditDateBlocked,
		EntityType: "date_block",
		EntityID:   id,
		Details: map[string]any{
			"vessel_id":  b.VesselID,
			"start_date": model.CivilDate(b.StartDate).Format(model.DateOnly),
			"end_date":   model.CivilDate(b.EndDate).Format(model.DateOnly),
			"reason":     string(b.Reason),
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

// DeleteDateBlock удаляет разовую блокировку и возвращает удалённую запись.
func (r *PostgresRepository) DeleteDateBlock(ctx context.Context, id int64, actorID *int64, ip string) (*model.DateBlock, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var b model.DateBlock
	err = tx.QueryRow(ctx,
		`DELETE FROM date_blocks WHERE id = $1
		 RETURNING id, vessel_id, start_date, end_date, reason, notes, created_at`,
		id,
	).Scan(&b.ID, &b.VesselID, &b.StartDate, &b.EndDate, &b.Reason, &b.Notes, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("date block %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("delete date block: %w", err)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditDateUnblocked,
		EntityType: "date_block",
		EntityID:   id,
		Details:    map[string]any{"vessel_id": b.VesselID},
		IP:         ip,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &b, nil
}

// ListDateBlocks возвращает блокировки судна в порядке начала действия.
func (r *PostgresRepository) ListDateBlocks(ctx context.Context, vesselID int64) ([]model.DateBlock, error) {
	_, dated, err := blockRulesTx(ctx, r.pool, vesselID)
	return dated, err
}

// CreateWeeklyBlock создаёт еженедельную блокировку, действующую на все суда.
func (r *PostgresRepository) CreateWeeklyBlock(ctx context.Context, b *model.WeeklyBlock, actorID *int64, ip string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO weekly_blocks (day_of_week, reason, is_active, notes)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		b.DayOfWeek, string(b.Reason), b.IsActive, b.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert weekly block: %w", err)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditWeeklyBlockToggled,
		EntityType: "weekly_block",
		EntityID:   id,
		Details:    map[string]any{"day_of_week": b.DayOfWeek, "is_active": b.IsActive},
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

// ToggleWeeklyBlock переключает флаг активности еженедельной блокировки.
func (r *PostgresRepository) ToggleWeeklyBlock(ctx context.Context, id int64, actorID *int64, ip string) (*model.WeeklyBlock, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var b model.WeeklyBlock
	err = tx.QueryRow(ctx,
		`UPDATE weekly_blocks SET is_active = NOT is_active WHERE id = $1
		 RETURNING id, day_of_week, reason, is_active, notes, created_at`,
		id,
	).Scan(&b.ID, &b.DayOfWeek, &b.Reason, &b.IsActive, &b.Notes, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("weekly block %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("toggle weekly block: %w", err)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditWeeklyBlockToggled,
		EntityType: "weekly_block",
		EntityID:   id,
		Details:    map[string]any{"is_active": b.IsActive},
		IP:         ip,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &b, nil
}

// ListWeeklyBlocks возвращает все еженедельные блокировки в порядке создания.
func (r *PostgresRepository) ListWeeklyBlocks(ctx context.Context) ([]model.WeeklyBlock, error) {
	return scanWeeklyBlocks(ctx, r.pool,
		`SELECT id, day_of_week, reason, is_active, notes, created_at
		 FROM weekly_blocks ORDER BY id`,
	)
}
