package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
	"github.com/vpanarin/vesselbook/internal/service"
)

type vesselRequest struct {
	Name              string `json:"name"`
	Capacity          int    `json:"capacity"`
	CalendarDaysAhead int    `json:"calendar_days_ahead"`
	MaxActiveBookings int    `json:"max_active_bookings"`
	IsActive          *bool  `json:"is_active,omitempty"`
}

type vesselResponse struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Capacity          int    `json:"capacity"`
	CalendarDaysAhead int    `json:"calendar_days_ahead"`
	MaxActiveBookings int    `json:"max_active_bookings"`
	IsActive          bool   `json:"is_active"`
}

func toVesselResponse(v *model.Vessel) vesselResponse {
	return vesselResponse{
		ID:                v.ID,
		Name:              v.Name,
		Capacity:          v.Capacity,
		CalendarDaysAhead: v.CalendarDaysAhead,
		MaxActiveBookings: v.MaxActiveBookings,
		IsActive:          v.IsActive,
	}
}

// CreateVessel регистрирует новое судно.
func (h *Handler) CreateVessel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req vesselRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	v, err := h.service.CreateVessel(r.Context(), actor, &model.Vessel{
		Name:              req.Name,
		Capacity:          req.Capacity,
		CalendarDaysAhead: req.CalendarDaysAhead,
		MaxActiveBookings: req.MaxActiveBookings,
		IsActive:          active,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toVesselResponse(v))
}

// UpdateVessel обновляет параметры судна.
func (h *Handler) UpdateVessel(w http.ResponseWriter, r *http.Request) {
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

	var req vesselRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	v, err := h.service.UpdateVessel(r.Context(), actor, &model.Vessel{
		ID:                id,
		Name:              req.Name,
		Capacity:          req.Capacity,
		CalendarDaysAhead: req.CalendarDaysAhead,
		MaxActiveBookings: req.MaxActiveBookings,
		IsActive:          active,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toVesselResponse(v))
}

// GetVessel возвращает судно по идентификатору.
func (h *Handler) GetVessel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	v, err := h.service.GetVessel(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toVesselResponse(v))
}

// ListVessels возвращает список судов.
func (h *Handler) ListVessels(w http.ResponseWriter, r *http.Request) {
	vessels, err := h.service.ListVessels(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]vesselResponse, 0, len(vessels))
	for i := range vessels {
		resp = append(resp, toVesselResponse(&vessels[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type createUserRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// CreateUser регистрирует нового пользователя.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.CreateUser(r.Context(), actor, req.Name, model.UserRole(req.Role))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     u.ID,
		"name":   u.Name,
		"role":   string(u.Role),
		"status": string(u.Status),
	})
}

type setUserStatusRequest struct {
	Status string `json:"status"`
}

// SetUserStatus переводит пользователя в указанный статус.
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
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

	var req setUserStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetUserStatus(r.Context(), actor, id, model.UserStatus(req.Status)); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type createDateBlockRequest struct {
	VesselID  int64  `json:"vessel_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes,omitempty"`
}

// CreateDateBlock создаёт блокировку диапазона дат для судна.
func (h *Handler) CreateDateBlock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createDateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	start, errStart := time.Parse(model.DateOnly, req.StartDate)
	end, errEnd := time.Parse(model.DateOnly, req.EndDate)
	if errStart != nil || errEnd != nil || req.VesselID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateDateBlock(r.Context(), actor, &model.DateBlock{
		VesselID:  req.VesselID,
		StartDate: start,
		EndDate:   end,
		Reason:    model.BlockReason(req.Reason),
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// DeleteDateBlock удаляет блокировку диапазона дат.
func (h *Handler) DeleteDateBlock(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteDateBlock(r.Context(), actor, id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type dateBlockResponse struct {
	ID        int64  `json:"id"`
	VesselID  int64  `json:"vessel_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes,omitempty"`
}

// ListDateBlocks возвращает блокировки дат для судна.
func (h *Handler) ListDateBlocks(w http.ResponseWriter, r *http.Request) {
	vesselID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	blocks, err := h.service.ListDateBlocks(r.Context(), vesselID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]dateBlockResponse, 0, len(blocks))
	for _, b := range blocks {
		resp = append(resp, dateBlockResponse{
			ID:        b.ID,
			VesselID:  b.VesselID,
			StartDate: b.StartDate.Format(model.DateOnly),
			EndDate:   b.EndDate.Format(model.DateOnly),
			Reason:    string(b.Reason),
			Notes:     b.Notes,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type createWeeklyBlockRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes,omitempty"`
}

// CreateWeeklyBlock создаёт еженедельную блокировку дня недели.
func (h *Handler) CreateWeeklyBlock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createWeeklyBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateWeeklyBlock(r.Context(), actor, &model.WeeklyBlock{
		DayOfWeek: req.DayOfWeek,
		Reason:    model.BlockReason(req.Reason),
		Notes:     req.Notes,
		IsActive:  true,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type weeklyBlockResponse struct {
	ID        int64  `json:"id"`
	DayOfWeek int    `json:"day_of_week"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes,omitempty"`
	IsActive  bool   `json:"is_active"`
}

// ToggleWeeklyBlock переключает активность еженедельной блокировки.
func (h *Handler) ToggleWeeklyBlock(w http.ResponseWriter, r *http.Request) {
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

	b, err := h.service.ToggleWeeklyBlock(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, weeklyBlockResponse{
		ID:        b.ID,
		DayOfWeek: b.DayOfWeek,
		Reason:    string(b.Reason),
		Notes:     b.Notes,
		IsActive:  b.IsActive,
	})
}

// ListWeeklyBlocks возвращает все еженедельные блокировки.
func (h *Handler) ListWeeklyBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.service.ListWeeklyBlocks(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]weeklyBlockResponse, 0, len(blocks))
	for _, b := range blocks {
		resp = append(resp, weeklyBlockResponse{
			ID:        b.ID,
			DayOfWeek: b.DayOfWeek,
			Reason:    string(b.Reason),
			Notes:     b.Notes,
			IsActive:  b.IsActive,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type createLinkRequest struct {
	UserID            int64   `json:"user_id"`
	VesselID          int64   `json:"vessel_id"`
	TotalValue        float64 `json:"total_value"`
	DownPayment       float64 `json:"down_payment"`
	TotalInstallments int     `json:"total_installments"`
	FirstDueDate      string  `json:"first_due_date,omitempty"`
	MarinaMonthlyFee  float64 `json:"marina_monthly_fee"`
	MarinaDueDay      int     `json:"marina_due_day"`
}

// CreateLink создаёт связку пользователь-судно с графиком рассрочки.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var firstDue time.Time
	if req.FirstDueDate != "" {
		d, err := time.Parse(model.DateOnly, req.FirstDueDate)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		firstDue = d
	}

	link, err := h.service.CreateLink(r.Context(), actor, service.LinkParams{
		UserID:            req.UserID,
		VesselID:          req.VesselID,
		TotalValue:        req.TotalValue,
		DownPayment:       req.DownPayment,
		TotalInstallments: req.TotalInstallments,
		MarinaMonthlyFee:  req.MarinaMonthlyFee,
		MarinaDueDay:      req.MarinaDueDay,
		FirstDueDate:      firstDue,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":             link.ID,
		"user_id":        link.UserID,
		"vessel_id":      link.VesselID,
		"total_value":    float64(link.TotalValueCents) / 100,
		"remaining":      float64(link.RemainingCents) / 100,
		"marina_fee":     float64(link.MarinaMonthlyFeeCents) / 100,
		"marina_due_day": link.MarinaDueDay,
		"status":         string(link.Status),
	})
}

type collectionItem struct {
	obligationResponse
	UserID     int64  `json:"user_id"`
	UserName   string `json:"user_name"`
	VesselID   int64  `json:"vessel_id"`
	VesselName string `json:"vessel_name"`
}

type bucketResponse struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

type rankingResponse struct {
	Overdue  []collectionItem          `json:"overdue"`
	DueToday []collectionItem          `json:"due_today"`
	DueIn3   []collectionItem          `json:"due_in_3_days"`
	DueIn7   []collectionItem          `json:"due_in_7_days"`
	DueLater []collectionItem          `json:"due_later"`
	Summary  map[string]bucketResponse `json:"summary"`
}

func toCollectionItems(items []repository.OutstandingObligation) []collectionItem {
	out := make([]collectionItem, 0, len(items))
	for _, it := range items {
		out = append(out, collectionItem{
			obligationResponse: toObligationResponse(it.Obligation),
			UserID:             it.UserID,
			UserName:           it.UserName,
			VesselID:           it.VesselID,
			VesselName:         it.VesselName,
		})
	}
	return out
}

func toBucketResponse(b service.BucketSummary) bucketResponse {
	return bucketResponse{Count: b.Count, Amount: float64(b.AmountCents) / 100}
}

// Collections возвращает все непогашенные обязательства, разложенные по
// корзинам срочности.
func (h *Handler) Collections(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	ranking, err := h.service.RankAll(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rankingResponse{
		Overdue:  toCollectionItems(ranking.Overdue),
		DueToday: toCollectionItems(ranking.DueToday),
		DueIn3:   toCollectionItems(ranking.DueIn3Days),
		DueIn7:   toCollectionItems(ranking.DueIn7Days),
		DueLater: toCollectionItems(ranking.DueLater),
		Summary: map[string]bucketResponse{
			"overdue":       toBucketResponse(ranking.Summary.Overdue),
			"due_today":     toBucketResponse(ranking.Summary.DueToday),
			"due_in_3_days": toBucketResponse(ranking.Summary.DueIn3Days),
			"due_in_7_days": toBucketResponse(ranking.Summary.DueIn7Days),
			"due_later":     toBucketResponse(ranking.Summary.DueLater),
			"total":         toBucketResponse(ranking.Summary.Total),
		},
	})
}

type quickPaymentRequest struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// QuickPayment отмечает обязательство оплаченным прямо с экрана приоритизации.
func (h *Handler) QuickPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req quickPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.QuickPayment(r.Context(), actor, req.Type, req.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toObligationResponse(*o))
}

type attachInvoiceRequest struct {
	Type       string `json:"type"`
	ID         int64  `json:"id"`
	InvoiceRef string `json:"invoice_ref"`
}

// AttachInvoice привязывает счёт платёжного шлюза к обязательству.
func (h *Handler) AttachInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req attachInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AttachInvoice(r.Context(), actor, req.Type, req.ID, req.InvoiceRef); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerSweep запускает обработку по требованию администратора.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if !actor.IsAdmin() {
		h.writeError(w, service.ErrAdminOnly)
		return
	}

	report, err := h.service.RunSweep(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bookings_completed": report.BookingsCompleted,
		"marked_overdue":     report.MarkedOverdue,
		"users_flagged":      report.UsersFlagged,
		"fees_generated":     report.FeesGenerated,
	})
}

// EntityAudit возвращает журнал изменений сущности.
func (h *Handler) EntityAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	entityType := r.URL.Query().Get("entity_type")
	entityID, err := strconv.ParseInt(r.URL.Query().Get("entity_id"), 10, 64)
	if entityType == "" || err != nil || entityID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	entries, err := h.service.EntityAudit(r.Context(), actor, entityType, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type auditResponse struct {
		ID         int64          `json:"id"`
		EntityType string         `json:"entity_type"`
		EntityID   int64          `json:"entity_id"`
		Action     string         `json:"action"`
		ActorID    *int64         `json:"actor_id,omitempty"`
		ActorIP    string         `json:"actor_ip,omitempty"`
		Details    map[string]any `json:"details,omitempty"`
		CreatedAt  string         `json:"created_at"`
	}

	resp := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, auditResponse{
			ID:         e.ID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     string(e.Action),
			ActorID:    e.ActorID,
			ActorIP:    e.IP,
			Details:    e.Details,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
