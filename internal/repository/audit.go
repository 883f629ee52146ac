package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vpanarin/vesselbook/internal/model"
)

// appendAudit добавляет запись аудита в рамках транзакции изменения состояния.
// Запись и само изменение фиксируются атомарно.
func appendAudit(ctx context.Context, tx pgx.Tx, e model.AuditEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}

	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (actor_id, action, entity_type, entity_id, details, ip)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ActorID, string(e.Action), e.EntityType, e.EntityID, payload, e.IP,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// ListAudit возвращает записи аудита для сущности в порядке добавления.
func (r *PostgresRepository) ListAudit(ctx context.Context, entityType string, entityID int64) ([]model.AuditEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, action, entity_type, entity_id, details, ip, created_at
		 FROM audit_log
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY id`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("select audit: %w", err)
	}
	defer rows.Close()

	var res []model.AuditEntry
	for rows.Next() {
		var (
			e       model.AuditEntry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &payload, &e.IP, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
