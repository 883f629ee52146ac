package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vpanarin/vesselbook/internal/model"
)

func obligationTable(typ model.ObligationType) (string, bool) {
	switch typ {
	case model.ObligationInstallment:
		return "installments", true
	case model.ObligationMarinaFee:
		return "marina_fees", true
	case model.ObligationAdHoc:
		return "ad_hoc_charges", true
	}
	return "", false
}

// Общая форма обязательства из трёх таблиц. Столбцы, отсутствующие в
// таблице-источнике, заполняются нейтральными значениями.
const obligationUnionSQL = `
	SELECT 'INSTALLMENT' AS otype, id, link_id, '' AS title, '' AS description,
	       amount_cents, sequence, '' AS period, due_date, paid_at, status, created_at
	FROM installments
	UNION ALL
	SELECT 'MARINA_FEE', id, link_id, '', '', amount_cents, 0, period, due_date, paid_at, status, created_at
	FROM marina_fees
	UNION ALL
	SELECT 'AD_HOC', id, link_id, title, description, amount_cents, 0, '', due_date, paid_at, status, created_at
	FROM ad_hoc_charges
`

func scanObligation(rows pgx.Rows) (model.Obligation, error) {
	var o model.Obligation
	err := rows.Scan(&o.Type, &o.ID, &o.LinkID, &o.Title, &o.Description,
		&o.AmountCents, &o.Sequence, &o.Period, &o.DueDate, &o.PaidAt, &o.Status, &o.CreatedAt)
	if err != nil {
		return o, fmt.Errorf("scan obligation: %w", err)
	}
	return o, nil
}

// ObligationsByLink возвращает все обязательства связки без упорядочивания.
// Сортировку и ленивую переклассификацию просрочки выполняет финансовый агрегатор.
func (r *PostgresRepository) ObligationsByLink(ctx context.Context, linkID int64) ([]model.Obligation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM (`+obligationUnionSQL+`) AS o WHERE link_id = $1`,
		linkID,
	)
	if err != nil {
		return nil, fmt.Errorf("select obligations: %w", err)
	}
	defer rows.Close()

	var res []model.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// OutstandingObligation — непогашенное обязательство с контекстом
// пользователя и судна для панели взыскания.
type OutstandingObligation struct {
	Obligation model.Obligation
	UserID     int64
	UserName   string
	VesselID   int64
	VesselName string
}

// OutstandingObligations возвращает все непогашенные обязательства системы
// с разрешённым контекстом пользователя и судна.
func (r *PostgresRepository) OutstandingObligations(ctx context.Context) ([]OutstandingObligation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.otype, o.id, o.link_id, o.title, o.description, o.amount_cents,
		        o.sequence, o.period, o.due_date, o.paid_at, o.status, o.created_at,
		        l.user_id, u.name, l.vessel_id, v.name
		 FROM (`+obligationUnionSQL+`) AS o
		 JOIN user_vessel_links l ON l.id = o.link_id
		 JOIN users u ON u.id = l.user_id
		 JOIN vessels v ON v.id = l.vessel_id
		 WHERE o.status IN ('PENDING', 'OVERDUE')`,
	)
	if err != nil {
		return nil, fmt.Errorf("select outstanding obligations: %w", err)
	}
	defer rows.Close()

	var res []OutstandingObligation
	for rows.Next() {
		var oo OutstandingObligation
		o := &oo.Obligation
		err := rows.Scan(&o.Type, &o.ID, &o.LinkID, &o.Title, &o.Description,
			&o.AmountCents, &o.Sequence, &o.Period, &o.DueDate, &o.PaidAt, &o.Status, &o.CreatedAt,
			&oo.UserID, &oo.UserName, &oo.VesselID, &oo.VesselName)
		if err != nil {
			return nil, fmt.Errorf("scan outstanding obligation: %w", err)
		}
		res = append(res, oo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateCharge создаёт разовое начисление по связке.
func (r *PostgresRepository) CreateCharge(ctx context.Context, linkID int64, title, description string, amountCents int64, dueDate *time.Time, actorID *int64, ip string) (*model.Obligation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var due any
	if dueDate != nil {
		d := model.CivilDate(*dueDate)
		due = d
	}

	o := model.Obligation{
		Type:        model.ObligationAdHoc,
		LinkID:      linkID,
		Title:       title,
		Description: description,
		AmountCents: amountCents,
		Status:      model.ObligationStatusPending,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO ad_hoc_charges (link_id, title, description, amount_cents, due_date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, due_date, created_at`,
		linkID, title, description, amountCents, due,
	).Scan(&o.ID, &o.DueDate, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert charge: %w", err)
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditChargeCreated,
		EntityType: "ad_hoc_charge",
		EntityID:   o.ID,
		Details: map[string]any{
			"link_id":      linkID,
			"title":        title,
			"amount_cents": amountCents,
		},
		IP: ip,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &o, nil
}

// PayResult содержит результат оплаты обязательства.
type PayResult struct {
	Obligation model.Obligation
	UserID     int64
	// UserClearable — после этой оплаты у пользователя не осталось
	// просроченных обязательств и его статус может быть восстановлен.
	UserClearable bool
}

// PayObligation отмечает обязательство оплаченным. Допустимо только из
// статусов PENDING и OVERDUE: повторная оплата возвращает ErrAlreadyPaid,
// оплата отменённого начисления — ErrObligationCancelled.
func (r *PostgresRepository) PayObligation(ctx context.Context, typ model.ObligationType, id int64, paidAt time.Time, notes string, actorID *int64, ip string) (*PayResult, error) {
	table, ok := obligationTable(typ)
	if !ok {
		return nil, fmt.Errorf("obligation type %q: %w", typ, ErrNotFound)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status      model.ObligationStatus
		linkID      int64
		amountCents int64
	)
	err = tx.QueryRow(ctx,
		`SELECT status, link_id, amount_cents FROM `+table+` WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&status, &linkID, &amountCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
		}
		return nil, fmt.Errorf("get obligation: %w", err)
	}

	switch status {
	case model.ObligationStatusPaid:
		return nil, ErrAlreadyPaid
	case model.ObligationStatusCancelled:
		return nil, ErrObligationCancelled
	}

	_, err = tx.Exec(ctx,
		`UPDATE `+table+` SET status = 'PAID', paid_at = $2 WHERE id = $1`,
		id, paidAt,
	)
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}

	if typ == model.ObligationInstallment {
		if err := settleInstallment(ctx, tx, linkID, amountCents); err != nil {
			return nil, err
		}
	}

	var userID int64
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM user_vessel_links WHERE id = $1`,
		linkID,
	).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("get link user: %w", err)
	}

	clearable, err := userClearable(ctx, tx, userID, r.today())
	if err != nil {
		return nil, err
	}

	err = appendAudit(ctx, tx, model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditObligationPaid,
		EntityType: table,
		EntityID:   id,
		Details: map[string]any{
			"link_id":      linkID,
			"amount_cents": amountCents,
			"paid_at":      paidAt.Format(time.RFC3339),
			"notes":        notes,
		},
		IP: ip,
	})
	if err != nil {
		return nil, err
	}

	o, err := getObligationTx(ctx, tx, typ, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &PayResult{Obligation: *o, UserID: userID, UserClearable: clearable}, nil
}

// settleInstallment уменьшает остаток долга связки и помечает её выплаченной,
// когда неоплаченных взносов не осталось.
func settleInstallment(ctx context.Context, tx pgx.Tx, linkID, amountCents int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE user_vessel_links
		 SET remaining_cents = GREATEST(remaining_cents - $2, 0)
		 WHERE id = $1`,
		linkID, amountCents,
	)
	if err != nil {
		return fmt.Errorf("reduce remaining: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_vessel_links SET status = 'PAID_OFF'
		 WHERE id = $1 AND status = 'ACTIVE'
		   AND NOT EXISTS (
		       SELECT 1 FROM installments
		       WHERE link_id = $1 AND status <> 'PAID' AND status <> 'CANCELLED'
		   )`,
		linkID,
	)
	if err != nil {
		return fmt.Errorf("mark link paid off: %w", err)
	}

	return nil
}

// userClearable сообщает, не осталось ли у пользователя просроченных
// обязательств по всем его связкам, при том что его статус ограничен из-за
// задолженности. Просрочка считается по производному статусу: PENDING с
// прошедшим сроком учитывается наравне с записанным OVERDUE, даже если
// фоновая обработка ещё не переклассифицировала его в хранилище.
func userClearable(ctx context.Context, tx pgx.Tx, userID int64, today time.Time) (bool, error) {
	var status model.UserStatus
	err := tx.QueryRow(ctx, `SELECT status FROM users WHERE id = $1`, userID).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("get user status: %w", err)
	}

	if status != model.UserStatusOverdue && status != model.UserStatusOverduePayment {
		return false, nil
	}

	rows, err := tx.Query(ctx,
		`SELECT o.status, o.due_date
		 FROM (`+obligationUnionSQL+`) AS o
		 JOIN user_vessel_links l ON l.id = o.link_id
		 WHERE l.user_id = $1
		   AND o.status IN ('PENDING', 'OVERDUE')`,
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("select unpaid obligations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st  model.ObligationStatus
			due *time.Time
		)
		if err := rows.Scan(&st, &due); err != nil {
			return false, fmt.Errorf("scan obligation: %w", err)
		}
		if effectivelyOverdue(st, due, today) {
			return false, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("rows error: %w", err)
	}

	return true, nil
}

// effectivelyOverdue возвращает true для записанного OVERDUE и для PENDING
// с прошедшим сроком. Обязательство со сроком сегодня ещё не просрочено.
func effectivelyOverdue(status model.ObligationStatus, dueDate *time.Time, today time.Time) bool {
	if status == model.ObligationStatusOverdue {
		return true
	}
	return status == model.ObligationStatusPending && dueDate != nil && dueDate.Before(today)
}

func getObligationTx(ctx context.Context, tx pgx.Tx, typ model.ObligationType, id int64) (*model.Obligation, error) {
	rows, err := tx.Query(ctx,
		`SELECT * FROM (`+obligationUnionSQL+`) AS o WHERE otype = $1 AND id = $2`,
		string(typ), id,
	)
	if err != nil {
		return nil, fmt.Errorf("select obligation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows error: %w", err)
		}
		return nil, fmt.Errorf("obligation %s/%d: %w", typ, id, ErrNotFound)
	}

	o, err := scanObligation(rows)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelCharge отменяет разовое начисление из статусов PENDING и OVERDUE.
func (r *PostgresRepository) CancelCharge(ctx context.Context, chargeID int64, actorID *int64, ip string) (*model.Obligation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status model.ObligationStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM ad_hoc_charges WHERE id = $1 FOR UPDATE`,
		chargeID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("charge %d: %w", chargeID, ErrNotFound)
		}
		return nil, fmt.Errorf("get charge: %w", err)
	}

	switch status {
	case model.ObligationStatusPaid:
		return nil, ErrAlreadyPaid
	case model.ObligationStatusCancelled:
		return nil, ErrObligationCancelled
	}

	_, err = tx.Exec(ctx,
		`UPDATE ad_hoc_charges SET status = 'CANCELLED' WHERE id = $1`,
		chargeID,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel charge: %w", err)
	}

	if err := appendAudit(ctx, tx, cancelChargeAudit(chargeID, actorID, ip)); err != nil {
		return nil, err
	}

	o, err := getObligationTx(ctx, tx, model.ObligationAdHoc, chargeID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return o, nil
}

// cancelChargeAudit формирует запись журнала об отмене разового начисления.
func cancelChargeAudit(chargeID int64, actorID *int64, ip string) model.AuditEntry {
	return model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditChargeCancelled,
		EntityType: "ad_hoc_charge",
		EntityID:   chargeID,
		Details:    map[string]any{"status": "CANCELLED"},
		IP:         ip,
	}
}

// MarkOverdueObligations переводит в OVERDUE все PENDING-обязательства с
// прошедшим сроком. Идемпотентна: повторный запуск ничего не меняет.
func (r *PostgresRepository) MarkOverdueObligations(ctx context.Context) (int, error) {
	today := r.today()
	total := 0

	for _, table := range []string{"installments", "marina_fees", "ad_hoc_charges"} {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE `+table+` SET status = 'OVERDUE'
			 WHERE status = 'PENDING' AND due_date IS NOT NULL AND due_date < $1`,
			today,
		)
		if err != nil {
			return total, fmt.Errorf("mark overdue %s: %w", table, err)
		}
		total += int(cmdTag.RowsAffected())
	}

	return total, nil
}

// FlagOverdueUsers помечает статусом OVERDUE_PAYMENT активных пользователей,
// у которых есть просроченные обязательства. Возвращает идентификаторы
// затронутых пользователей.
func (r *PostgresRepository) FlagOverdueUsers(ctx context.Context) ([]int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`UPDATE users SET status = 'OVERDUE_PAYMENT'
		 WHERE status = 'ACTIVE'
		   AND id IN (
		       SELECT l.user_id
		       FROM (`+obligationUnionSQL+`) AS o
		       JOIN user_vessel_links l ON l.id = o.link_id
		       WHERE o.status = 'OVERDUE'
		   )
		 RETURNING id`,
	)
	if err != nil {
		return nil, fmt.Errorf("flag overdue users: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for _, id := range ids {
		err = appendAudit(ctx, tx, model.AuditEntry{
			Action:     model.AuditUserStatusChanged,
			EntityType: "user",
			EntityID:   id,
			Details:    map[string]any{"status": string(model.UserStatusOverduePayment)},
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return ids, nil
}

// GenerateMarinaFees создаёт сборы марины за указанный период (год-месяц) для
// активных связок с ненулевым сбором. Повторный запуск за тот же период
// пропускает уже созданные сборы за счёт ограничения (link_id, period).
func (r *PostgresRepository) GenerateMarinaFees(ctx context.Context, year int, month time.Month) (int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, marina_monthly_fee_cents, marina_due_day
		 FROM user_vessel_links
		 WHERE status = 'ACTIVE' AND marina_monthly_fee_cents > 0`,
	)
	if err != nil {
		return 0, fmt.Errorf("select links: %w", err)
	}

	type feeLink struct {
		id     int64
		fee    int64
		dueDay int
	}
	var links []feeLink
	for rows.Next() {
		var l feeLink
		if err := rows.Scan(&l.id, &l.fee, &l.dueDay); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows error: %w", err)
	}

	period := fmt.Sprintf("%04d-%02d", year, int(month))
	inserted := 0

	for _, l := range links {
		due := marinaDueDate(year, month, l.dueDay)
		cmdTag, err := r.pool.Exec(ctx,
			`INSERT INTO marina_fees (link_id, period, amount_cents, due_date)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (link_id, period) DO NOTHING`,
			l.id, period, l.fee, due,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert marina fee: %w", err)
		}
		inserted += int(cmdTag.RowsAffected())
	}

	return inserted, nil
}

// marinaDueDate возвращает срок оплаты сбора: требуемый день месяца,
// прижатый к последнему дню, если месяц короче.
func marinaDueDate(year int, month time.Month, day int) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day < 1 {
		day = 1
	}
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// InvoiceRef связывает внешний счёт платёжного шлюза с обязательством.
type InvoiceRef struct {
	Type model.ObligationType
	ID   int64
	Ref  string
}

// AssignInvoiceRef привязывает внешний счёт к непогашенному обязательству.
func (r *PostgresRepository) AssignInvoiceRef(ctx context.Context, typ model.ObligationType, id int64, ref string) error {
	table, ok := obligationTable(typ)
	if !ok {
		return fmt.Errorf("obligation type %q: %w", typ, ErrNotFound)
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE `+table+` SET invoice_ref = $2
		 WHERE id = $1 AND status IN ('PENDING', 'OVERDUE')`,
		id, ref,
	)
	if err != nil {
		return fmt.Errorf("assign invoice ref: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}

	return nil
}

// RecordGatewayStatus фиксирует в аудите статус счёта, полученный от
// платёжного шлюза, без изменения самого обязательства.
func (r *PostgresRepository) RecordGatewayStatus(ctx context.Context, typ model.ObligationType, id int64, ref, status string) error {
	table, ok := obligationTable(typ)
	if !ok {
		return fmt.Errorf("obligation type %q: %w", typ, ErrNotFound)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = appendAudit(ctx, tx, model.AuditEntry{
		Action:     model.AuditGatewayStatus,
		EntityType: table,
		EntityID:   id,
		Details: map[string]any{
			"invoice_ref": ref,
			"status":      status,
		},
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindObligationByInvoiceRef находит обязательство по внешнему счёту шлюза.
func (r *PostgresRepository) FindObligationByInvoiceRef(ctx context.Context, ref string) (*InvoiceRef, error) {
	for _, typ := range []model.ObligationType{model.ObligationInstallment, model.ObligationMarinaFee, model.ObligationAdHoc} {
		table, _ := obligationTable(typ)
		var id int64
		err := r.pool.QueryRow(ctx,
			`SELECT id FROM `+table+` WHERE invoice_ref = $1`,
			ref,
		).Scan(&id)
		if err == nil {
			return &InvoiceRef{Type: typ, ID: id, Ref: ref}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find invoice ref: %w", err)
		}
	}

	return nil, fmt.Errorf("invoice %q: %w", ref, ErrNotFound)
}

// PendingInvoices возвращает непогашенные обязательства с привязанными
// внешними счетами для фонового опроса платёжного шлюза.
func (r *PostgresRepository) PendingInvoices(ctx context.Context, limit int) ([]InvoiceRef, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.otype, o.id, o.invoice_ref
		 FROM (
		     SELECT 'INSTALLMENT' AS otype, id, status, invoice_ref FROM installments
		     UNION ALL
		     SELECT 'MARINA_FEE', id, status, invoice_ref FROM marina_fees
		     UNION ALL
		     SELECT 'AD_HOC', id, status, invoice_ref FROM ad_hoc_charges
		 ) AS o
		 WHERE o.invoice_ref IS NOT NULL AND o.status IN ('PENDING', 'OVERDUE')
		 ORDER BY o.id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending invoices: %w", err)
	}
	defer rows.Close()

	var res []InvoiceRef
	for rows.Next() {
		var ir InvoiceRef
		if err := rows.Scan(&ir.Type, &ir.ID, &ir.Ref); err != nil {
			return nil, fmt.Errorf("scan invoice ref: %w", err)
		}
		res = append(res, ir)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
