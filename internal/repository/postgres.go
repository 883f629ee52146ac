// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vpanarin/vesselbook/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSlotTaken возвращается, когда на пару (судно, дата) уже существует
// неотменённое бронирование. Уникальный частичный индекс в БД — основной
// механизм, предварительная проверка — лишь ранняя обратная связь.
var (
	ErrSlotTaken = errors.New("slot already taken")
	// ErrOutOfHorizon возвращается, если дата вне горизонта бронирования судна.
	ErrOutOfHorizon = errors.New("date out of booking horizon")
	// ErrUserBlocked возвращается при попытке бронирования заблокированным пользователем.
	ErrUserBlocked = errors.New("user is blocked")
	// ErrUserPendingPayment возвращается при наличии у пользователя просроченной задолженности.
	ErrUserPendingPayment = errors.New("user has pending payment")
	// ErrUserBookingLimit возвращается при достижении лимита активных бронирований.
	ErrUserBookingLimit = errors.New("user booking limit reached")
	// ErrVesselInactive возвращается при бронировании деактивированного судна.
	ErrVesselInactive = errors.New("vessel is inactive")
	// ErrAlreadyPaid возвращается при повторной оплате уже оплаченного обязательства.
	ErrAlreadyPaid = errors.New("obligation already paid")
	// ErrObligationCancelled возвращается при оплате отменённого обязательства.
	ErrObligationCancelled = errors.New("obligation is cancelled")
	// ErrInvalidAmount возвращается при неположительной сумме начисления.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrNotFound возвращается, если запрошенная сущность не найдена.
	ErrNotFound = errors.New("not found")
)

// DateBlockedError возвращается, когда дата заблокирована правилом блокировки.
type DateBlockedError struct {
	Reason model.BlockReason
}

func (e *DateBlockedError) Error() string {
	return fmt.Sprintf("date blocked: %s", e.Reason)
}

// InvalidTransitionError возвращается при недопустимом переходе статуса бронирования.
type InvalidTransitionError struct {
	From model.BookingStatus
	To   model.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, now: time.Now}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) today() time.Time {
	return model.CivilDate(r.now())
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// IsUnavailable сообщает, является ли ошибка инфраструктурной (хранилище
// недоступно), в отличие от доменных ошибок. Вызывающая сторона сама решает,
// повторять ли запрос.
func IsUnavailable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgErr.Code == pgerrcode.CannotConnectNow
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}
