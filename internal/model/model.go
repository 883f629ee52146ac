// Package model содержит доменные сущности сервиса бронирования судов.
package model

import "time"

// UserRole описывает роль пользователя в системе.
type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleUser  UserRole = "USER"
)

// UserStatus описывает статус пользователя, влияющий на право бронирования.
type UserStatus string

const (
	UserStatusActive         UserStatus = "ACTIVE"
	UserStatusOverdue        UserStatus = "OVERDUE"
	UserStatusOverduePayment UserStatus = "OVERDUE_PAYMENT"
	UserStatusBlocked        UserStatus = "BLOCKED"
)

// User представляет пользователя платформы.
type User struct {
	ID        int64
	Name      string
	Role      UserRole
	Status    UserStatus
	CreatedAt time.Time
}

// Vessel представляет судно, доступное для бронирования.
type Vessel struct {
	ID                int64
	Name              string
	Capacity          int
	CalendarDaysAhead int
	MaxActiveBookings int
	IsActive          bool
	CreatedAt         time.Time
}

// LinkStatus описывает статус финансовой связки пользователь-судно.
type LinkStatus string

const (
	LinkStatusActive    LinkStatus = "ACTIVE"
	LinkStatusPaidOff   LinkStatus = "PAID_OFF"
	LinkStatusDefaulted LinkStatus = "DEFAULTED"
	LinkStatusSuspended LinkStatus = "SUSPENDED"
)

// UserVesselLink описывает владение/закрепление судна за пользователем
// вместе с условиями финансирования. Денежные суммы хранятся в копейках.
type UserVesselLink struct {
	ID                    int64
	UserID                int64
	VesselID              int64
	TotalValueCents       int64
	DownPaymentCents      int64
	RemainingCents        int64
	TotalInstallments     int
	MarinaMonthlyFeeCents int64
	MarinaDueDay          int
	Status                LinkStatus
	CreatedAt             time.Time
}

// BookingStatus описывает статус бронирования.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusApproved  BookingStatus = "APPROVED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// IsTerminal сообщает, является ли статус терминальным.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// Booking представляет бронирование судна на одну календарную дату.
type Booking struct {
	ID          int64
	VesselID    int64
	UserID      int64
	BookingDate time.Time
	Status      BookingStatus
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BlockReason описывает причину блокировки даты.
type BlockReason string

const (
	BlockReasonMaintenance    BlockReason = "MAINTENANCE"
	BlockReasonDraw           BlockReason = "DRAW"
	BlockReasonUnavailable    BlockReason = "UNAVAILABLE"
	BlockReasonOverduePayment BlockReason = "OVERDUE_PAYMENT"
	BlockReasonOther          BlockReason = "OTHER"
)

// DateBlock представляет разовую блокировку диапазона дат для конкретного судна.
// Диапазон включает обе границы.
type DateBlock struct {
	ID        int64
	VesselID  int64
	StartDate time.Time
	EndDate   time.Time
	Reason    BlockReason
	Notes     string
	CreatedAt time.Time
}

// WeeklyBlock представляет еженедельную блокировку по дню недели.
// Действует на все суда одновременно, не привязана к конкретному судну.
type WeeklyBlock struct {
	ID        int64
	DayOfWeek int // 0 = воскресенье .. 6 = суббота
	Reason    BlockReason
	IsActive  bool
	Notes     string
	CreatedAt time.Time
}

// ObligationType описывает вид платёжного обязательства.
type ObligationType string

const (
	ObligationInstallment ObligationType = "INSTALLMENT"
	ObligationMarinaFee   ObligationType = "MARINA_FEE"
	ObligationAdHoc       ObligationType = "AD_HOC"
)

// ObligationStatus описывает статус платёжного обязательства.
type ObligationStatus string

const (
	ObligationStatusPending   ObligationStatus = "PENDING"
	ObligationStatusPaid      ObligationStatus = "PAID"
	ObligationStatusOverdue   ObligationStatus = "OVERDUE"
	ObligationStatusCancelled ObligationStatus = "CANCELLED"
)

// Obligation — единое представление платёжного обязательства любого вида:
// взнос по графику, ежемесячный сбор марины или разовое начисление.
// Поле Type различает варианты, общие поля позволяют финансовому агрегатору
// сортировать и классифицировать обязательства единообразно.
type Obligation struct {
	Type        ObligationType
	ID          int64
	LinkID      int64
	Title       string
	Description string
	AmountCents int64
	Sequence    int        // номер взноса; 0 для остальных видов
	Period      string     // период сбора марины в формате YYYY-MM; пусто для остальных
	DueDate     *time.Time // nil для разовых начислений без срока
	PaidAt      *time.Time
	Status      ObligationStatus
	CreatedAt   time.Time
}

// Outstanding сообщает, является ли обязательство непогашенным.
func (o Obligation) Outstanding() bool {
	return o.Status == ObligationStatusPending || o.Status == ObligationStatusOverdue
}

// Installment описывает один взнос графика платежей при создании связки.
type Installment struct {
	Sequence    int
	AmountCents int64
	DueDate     time.Time
}

// AuditAction описывает тип записи журнала аудита.
type AuditAction string

const (
	AuditBookingCreated     AuditAction = "BOOKING_CREATED"
	AuditBookingUpdated     AuditAction = "BOOKING_UPDATED"
	AuditBookingCancelled   AuditAction = "BOOKING_CANCELLED"
	AuditDateBlocked        AuditAction = "DATE_BLOCKED"
	AuditDateUnblocked      AuditAction = "DATE_UNBLOCKED"
	AuditWeeklyBlockToggled AuditAction = "WEEKLY_BLOCK_TOGGLED"
	AuditVesselCreated      AuditAction = "VESSEL_CREATED"
	AuditVesselUpdated      AuditAction = "VESSEL_UPDATED"
	AuditLinkCreated        AuditAction = "LINK_CREATED"
	AuditChargeCreated      AuditAction = "CHARGE_CREATED"
	AuditChargeCancelled    AuditAction = "CHARGE_CANCELLED"
	AuditObligationPaid     AuditAction = "OBLIGATION_PAID"
	AuditGatewayStatus      AuditAction = "GATEWAY_STATUS"
	AuditUserStatusChanged  AuditAction = "USER_STATUS_CHANGED"
)

// AuditEntry представляет запись журнала аудита. Журнал только пополняется,
// записи никогда не изменяются и не удаляются.
type AuditEntry struct {
	ID         int64
	ActorID    *int64 // nil — действие выполнено системой
	Action     AuditAction
	EntityType string
	EntityID   int64
	Details    map[string]any
	IP         string
	CreatedAt  time.Time
}

// EventType описывает тип доменного события для внешних подписчиков.
type EventType string

const (
	EventBookingCreated    EventType = "BOOKING_CREATED"
	EventBookingUpdated    EventType = "BOOKING_UPDATED"
	EventBookingCancelled  EventType = "BOOKING_CANCELLED"
	EventDateBlocked       EventType = "DATE_BLOCKED"
	EventDateUnblocked     EventType = "DATE_UNBLOCKED"
	EventUserReactivatable EventType = "USER_ELIGIBLE_FOR_REACTIVATION"
)

// Event представляет доменное событие. События отправляются после фиксации
// транзакции по принципу fire-and-forget.
type Event struct {
	Type       EventType
	EntityType string
	EntityID   int64
	UserID     int64
	OccurredAt time.Time
}

// CivilDate обрезает момент времени до календарной даты (полночь UTC).
// Бронирования и блокировки оперируют только датами, без времени суток.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateOnly — формат сериализации календарных дат в API.
const DateOnly = "2006-01-02"
