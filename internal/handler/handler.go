// Package handler содержит HTTP-обработчики API сервиса бронирования судов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vpanarin/vesselbook/internal/block"
	"github.com/vpanarin/vesselbook/internal/middleware"
	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
	"github.com/vpanarin/vesselbook/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	IsBlocked(ctx context.Context, vesselID int64, date time.Time) (block.Resolution, error)
	CanBook(ctx context.Context, actor service.Actor, vesselID, userID int64, date time.Time) error
	CreateBooking(ctx context.Context, actor service.Actor, vesselID, userID int64, date time.Time, notes string) (*model.Booking, error)
	ApproveBooking(ctx context.Context, actor service.Actor, bookingID int64) (*model.Booking, error)
	CancelBooking(ctx context.Context, actor service.Actor, bookingID int64) (*model.Booking, error)
	CompleteBooking(ctx context.Context, actor service.Actor, bookingID int64) (*model.Booking, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	VesselCalendar(ctx context.Context, vesselID int64, from, to time.Time) ([]model.Booking, error)

	CreateVessel(ctx context.Context, actor service.Actor, v *model.Vessel) (*model.Vessel, error)
	UpdateVessel(ctx context.Context, actor service.Actor, v *model.Vessel) (*model.Vessel, error)
	GetVessel(ctx context.Context, id int64) (*model.Vessel, error)
	ListVessels(ctx context.Context) ([]model.Vessel, error)
	CreateUser(ctx context.Context, actor service.Actor, name string, role model.UserRole) (*model.User, error)
	SetUserStatus(ctx context.Context, actor service.Actor, userID int64, status model.UserStatus) error
	EntityAudit(ctx context.Context, actor service.Actor, entityType string, entityID int64) ([]model.AuditEntry, error)

	CreateDateBlock(ctx context.Context, actor service.Actor, b *model.DateBlock) (int64, error)
	DeleteDateBlock(ctx context.Context, actor service.Actor, id int64) error
	ListDateBlocks(ctx context.Context, vesselID int64) ([]model.DateBlock, error)
	CreateWeeklyBlock(ctx context.Context, actor service.Actor, b *model.WeeklyBlock) (int64, error)
	ToggleWeeklyBlock(ctx context.Context, actor service.Actor, id int64) (*model.WeeklyBlock, error)
	ListWeeklyBlocks(ctx context.Context) ([]model.WeeklyBlock, error)

	CreateLink(ctx context.Context, actor service.Actor, p service.LinkParams) (*model.UserVesselLink, error)
	GetLink(ctx context.Context, id int64) (*model.UserVesselLink, error)
	History(ctx context.Context, linkID int64) ([]model.Obligation, error)
	CreateCharge(ctx context.Context, actor service.Actor, linkID int64, title, description string, amount float64, dueDate *time.Time) (*model.Obligation, error)
	PayCharge(ctx context.Context, actor service.Actor, chargeID int64, paymentDate time.Time, notes string) (*model.Obligation, error)
	CancelCharge(ctx context.Context, actor service.Actor, chargeID int64) (*model.Obligation, error)
	RankAll(ctx context.Context, actor service.Actor) (*service.Ranking, error)
	QuickPayment(ctx context.Context, actor service.Actor, rawType string, id int64) (*model.Obligation, error)
	AttachInvoice(ctx context.Context, actor service.Actor, rawType string, id int64, invoiceRef string) error
	ApplyGatewayStatus(ctx context.Context, invoiceRef, status string) error
	RunSweep(ctx context.Context) (service.SweepReport, error)
}

// Handler реализует HTTP-обработчики API сервиса бронирования судов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

// writeError транслирует доменную ошибку в стабильный код API и HTTP-статус.
// Коды фиксированы: внешний слой использует их для локализации сообщений.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Message: err.Error()}
	status := http.StatusInternalServerError

	var blocked *repository.DateBlockedError
	var transition *repository.InvalidTransitionError

	switch {
	case errors.As(err, &blocked):
		status, resp.Code = http.StatusConflict, "DATE_BLOCKED"
		resp.Reason = string(blocked.Reason)
	case errors.As(err, &transition):
		status, resp.Code = http.StatusConflict, "INVALID_TRANSITION"
		resp.From = string(transition.From)
		resp.To = string(transition.To)
	case errors.Is(err, repository.ErrNotFound):
		status, resp.Code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, repository.ErrOutOfHorizon):
		status, resp.Code = http.StatusUnprocessableEntity, "OUT_OF_HORIZON"
	case errors.Is(err, repository.ErrInvalidAmount):
		status, resp.Code = http.StatusUnprocessableEntity, "INVALID_AMOUNT"
	case errors.Is(err, service.ErrInvalidInput):
		status, resp.Code = http.StatusUnprocessableEntity, "INVALID_INPUT"
	case errors.Is(err, service.ErrUnsupportedObligationType):
		status, resp.Code = http.StatusUnprocessableEntity, "UNSUPPORTED_OBLIGATION_TYPE"
	case errors.Is(err, service.ErrAdminOnly):
		status, resp.Code = http.StatusForbidden, "ADMIN_ONLY"
	case errors.Is(err, repository.ErrUserBlocked):
		status, resp.Code = http.StatusForbidden, "USER_BLOCKED"
	case errors.Is(err, repository.ErrUserPendingPayment):
		status, resp.Code = http.StatusConflict, "USER_PENDING_PAYMENT"
	case errors.Is(err, repository.ErrUserBookingLimit):
		status, resp.Code = http.StatusConflict, "USER_BOOKING_LIMIT"
	case errors.Is(err, repository.ErrSlotTaken):
		status, resp.Code = http.StatusConflict, "SLOT_TAKEN"
	case errors.Is(err, repository.ErrVesselInactive):
		status, resp.Code = http.StatusConflict, "VESSEL_INACTIVE"
	case errors.Is(err, repository.ErrAlreadyPaid):
		status, resp.Code = http.StatusConflict, "ALREADY_PAID"
	case errors.Is(err, repository.ErrObligationCancelled):
		status, resp.Code = http.StatusConflict, "OBLIGATION_CANCELLED"
	case repository.IsUnavailable(err):
		status, resp.Code = http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		resp.Code = "INTERNAL"
		resp.Message = http.StatusText(http.StatusInternalServerError)
		h.logger.Error("internal error", zap.Error(err))
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// actorFromRequest собирает контекст вызова из проверенного токена и адреса клиента.
func actorFromRequest(r *http.Request) (service.Actor, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return service.Actor{}, false
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	return service.Actor{ID: id.UserID, Role: id.Role, IP: ip}, true
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func queryDate(r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	d, err := time.Parse(model.DateOnly, raw)
	return d, err == nil
}

type bookingResponse struct {
	ID        int64  `json:"id"`
	VesselID  int64  `json:"vessel_id"`
	UserID    int64  `json:"user_id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	return bookingResponse{
		ID:        b.ID,
		VesselID:  b.VesselID,
		UserID:    b.UserID,
		Date:      b.BookingDate.Format(model.DateOnly),
		Status:    string(b.Status),
		Notes:     b.Notes,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
}

type obligationResponse struct {
	Type        string  `json:"type"`
	ID          int64   `json:"id"`
	LinkID      int64   `json:"link_id"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
	Sequence    int     `json:"sequence,omitempty"`
	Period      string  `json:"period,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	PaidAt      *string `json:"paid_at,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

func toObligationResponse(o model.Obligation) obligationResponse {
	resp := obligationResponse{
		Type:        string(o.Type),
		ID:          o.ID,
		LinkID:      o.LinkID,
		Title:       o.Title,
		Description: o.Description,
		Amount:      float64(o.AmountCents) / 100,
		Sequence:    o.Sequence,
		Period:      o.Period,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt.Format(time.RFC3339),
	}
	if o.DueDate != nil {
		s := o.DueDate.Format(model.DateOnly)
		resp.DueDate = &s
	}
	if o.PaidAt != nil {
		s := o.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &s
	}
	return resp
}

// IsBlockedQuery отвечает, заблокирована ли дата для судна.
func (h *Handler) IsBlockedQuery(w http.ResponseWriter, r *http.Request) {
	vesselID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, ok := queryDate(r, "date")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.IsBlocked(r.Context(), vesselID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"blocked": res.Blocked,
		"reason":  string(res.Reason),
	})
}

// CanBookQuery выполняет справочную проверку доступности слота.
func (h *Handler) CanBookQuery(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	vesselID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, ok := queryDate(r, "date")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID := actor.ID
	if raw := r.URL.Query().Get("user_id"); raw != "" && actor.IsAdmin() {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			userID = id
		}
	}

	if err := h.service.CanBook(r.Context(), actor, vesselID, userID, date); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"available": true})
}

type createBookingRequest struct {
	VesselID int64  `json:"vessel_id"`
	UserID   int64  `json:"user_id,omitempty"`
	Date     string `json:"date"`
	Notes    string `json:"notes,omitempty"`
}

// CreateBooking создаёт бронирование.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := time.Parse(model.DateOnly, req.Date)
	if err != nil || req.VesselID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID := req.UserID
	if userID == 0 {
		userID = actor.ID
	}

	b, err := h.service.CreateBooking(r.Context(), actor, req.VesselID, userID, date, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

// GetBooking возвращает бронирование по идентификатору.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, service.Actor, int64) (*model.Booking, error)) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b, err := op(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// ApproveBooking подтверждает бронирование.
func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ApproveBooking)
}

// CancelBooking отменяет бронирование.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelBooking)
}

// CompleteBooking завершает бронирование.
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteBooking)
}

// VesselCalendar возвращает бронирования судна в диапазоне дат.
func (h *Handler) VesselCalendar(w http.ResponseWriter, r *http.Request) {
	vesselID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	from, okFrom := queryDate(r, "from")
	to, okTo := queryDate(r, "to")
	if !okFrom || !okTo {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bookings, err := h.service.VesselCalendar(r.Context(), vesselID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		resp = append(resp, toBookingResponse(&bookings[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// LinkHistory возвращает единую ленту обязательств связки.
func (h *Handler) LinkHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	obs, err := h.service.History(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]obligationResponse, 0, len(obs))
	for _, o := range obs {
		resp = append(resp, toObligationResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

type createChargeRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
	DueDate     string  `json:"due_date,omitempty"`
}

// CreateCharge создаёт разовое начисление по связке.
func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	linkID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req createChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		d, err := time.Parse(model.DateOnly, req.DueDate)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		dueDate = &d
	}

	o, err := h.service.CreateCharge(r.Context(), actor, linkID, req.Title, req.Description, req.Amount, dueDate)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toObligationResponse(*o))
}

type payChargeRequest struct {
	PaymentDate string `json:"payment_date,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// PayCharge отмечает разовое начисление оплаченным.
func (h *Handler) PayCharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req payChargeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	// Нулевая дата означает «сейчас»: её подставляет сервисный слой.
	var paymentDate time.Time
	if req.PaymentDate != "" {
		d, err := time.Parse(model.DateOnly, req.PaymentDate)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		paymentDate = d
	}

	o, err := h.service.PayCharge(r.Context(), actor, id, paymentDate, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toObligationResponse(*o))
}

// CancelCharge отменяет разовое начисление.
func (h *Handler) CancelCharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.CancelCharge(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toObligationResponse(*o))
}

type gatewayWebhookRequest struct {
	Invoice string `json:"invoice"`
	Status  string `json:"status"`
}

// GatewayWebhook принимает уведомление платёжного шлюза о статусе счёта.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	var req gatewayWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Invoice == "" || req.Status == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ApplyGatewayStatus(r.Context(), req.Invoice, req.Status); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
