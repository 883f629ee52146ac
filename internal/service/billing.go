package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
	"github.com/vpanarin/vesselbook/internal/repository"
)

// History возвращает единую ленту обязательств связки: взносы, сборы марины и
// разовые начисления, отсортированные по убыванию даты создания. Просрочка
// пересчитывается лениво на чтении, без записи в хранилище.
func (s *Service) History(ctx context.Context, linkID int64) ([]model.Obligation, error) {
	if _, err := s.repo.GetLink(ctx, linkID); err != nil {
		return nil, err
	}

	obs, err := s.repo.ObligationsByLink(ctx, linkID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	for i := range obs {
		obs[i].Status = effectiveStatus(obs[i], today)
	}

	sortLedger(obs)
	return obs, nil
}

// effectiveStatus возвращает статус обязательства с учётом ленивой
// переклассификации: неоплаченное обязательство с прошедшим сроком считается
// просроченным, даже если фоновая обработка ещё не записала это в хранилище.
func effectiveStatus(o model.Obligation, today time.Time) model.ObligationStatus {
	if o.Status != model.ObligationStatusPending {
		return o.Status
	}
	if o.DueDate != nil && model.CivilDate(*o.DueDate).Before(today) {
		return model.ObligationStatusOverdue
	}
	return o.Status
}

// typeRank задаёт порядок видов при равных датах: взнос, сбор, начисление.
func typeRank(t model.ObligationType) int {
	switch t {
	case model.ObligationInstallment:
		return 0
	case model.ObligationMarinaFee:
		return 1
	default:
		return 2
	}
}

// sortLedger упорядочивает ленту: по убыванию даты создания, при равенстве —
// по убыванию срока оплаты (без срока — последними), затем по виду.
func sortLedger(obs []model.Obligation) {
	sort.SliceStable(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.After(*b.DueDate)
		}
		return typeRank(a.Type) < typeRank(b.Type)
	})
}

// CreateCharge создаёт разовое начисление по связке. Только администратор.
// Сумма принимается в основной валюте и сохраняется в копейках.
func (s *Service) CreateCharge(ctx context.Context, actor Actor, linkID int64, title, description string, amount float64, dueDate *time.Time) (*model.Obligation, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}

	amountCents := int64(math.Round(amount * 100))
	if amountCents <= 0 {
		return nil, repository.ErrInvalidAmount
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("charge title is empty: %w", ErrInvalidInput)
	}

	if _, err := s.repo.GetLink(ctx, linkID); err != nil {
		return nil, err
	}

	return s.repo.CreateCharge(ctx, linkID, title, description, amountCents, dueDate, actor.idPtr(), actor.IP)
}

// PayObligation отмечает обязательство оплаченным. Повторная оплата уже
// оплаченного обязательства возвращает ErrAlreadyPaid. Если после оплаты у
// пользователя не осталось просроченных обязательств, отправляется событие
// USER_ELIGIBLE_FOR_REACTIVATION: смену статуса выполняет внешний сервис,
// подписанный на это событие. Нулевая дата оплаты заменяется текущим
// временем сервиса.
func (s *Service) PayObligation(ctx context.Context, actor Actor, typ model.ObligationType, id int64, paymentDate time.Time, notes string) (*model.Obligation, error) {
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}

	res, err := s.repo.PayObligation(ctx, typ, id, paymentDate, notes, actor.idPtr(), actor.IP)
	if err != nil {
		return nil, err
	}

	if res.UserClearable {
		s.emit(ctx, model.EventUserReactivatable, "user", res.UserID, res.UserID)
	}

	return &res.Obligation, nil
}

// PayCharge отмечает разовое начисление оплаченным.
func (s *Service) PayCharge(ctx context.Context, actor Actor, chargeID int64, paymentDate time.Time, notes string) (*model.Obligation, error) {
	return s.PayObligation(ctx, actor, model.ObligationAdHoc, chargeID, paymentDate, notes)
}

// CancelCharge отменяет разовое начисление. Только администратор.
func (s *Service) CancelCharge(ctx context.Context, actor Actor, chargeID int64) (*model.Obligation, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	return s.repo.CancelCharge(ctx, chargeID, actor.idPtr(), actor.IP)
}

// ParseObligationType преобразует внешний идентификатор вида обязательства.
func ParseObligationType(raw string) (model.ObligationType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "INSTALLMENT":
		return model.ObligationInstallment, nil
	case "MARINA_FEE":
		return model.ObligationMarinaFee, nil
	case "AD_HOC":
		return model.ObligationAdHoc, nil
	}
	return "", fmt.Errorf("%q: %w", raw, ErrUnsupportedObligationType)
}

// QuickPayment проводит оплату обязательства из панели взыскания, выбирая
// операцию по виду обязательства. Дата оплаты — текущий день.
func (s *Service) QuickPayment(ctx context.Context, actor Actor, rawType string, id int64) (*model.Obligation, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}

	typ, err := ParseObligationType(rawType)
	if err != nil {
		return nil, err
	}

	return s.PayObligation(ctx, actor, typ, id, s.now(), "quick payment")
}

// ApplyGatewayStatus применяет статус счёта, полученный от платёжного шлюза.
// Статус paid проводит оплату соответствующего обязательства; прочие статусы
// фиксируются в аудите без изменения обязательства.
func (s *Service) ApplyGatewayStatus(ctx context.Context, invoiceRef, status string) error {
	ref, err := s.repo.FindObligationByInvoiceRef(ctx, invoiceRef)
	if err != nil {
		return err
	}

	if strings.EqualFold(status, "paid") {
		_, err := s.PayObligation(ctx, System, ref.Type, ref.ID, s.now(), "gateway "+invoiceRef)
		if err != nil {
			// Повторная доставка webhook для уже оплаченного счёта — штатный случай.
			if errors.Is(err, repository.ErrAlreadyPaid) {
				return nil
			}
			return err
		}
		return nil
	}

	return s.repo.RecordGatewayStatus(ctx, ref.Type, ref.ID, invoiceRef, status)
}

// AttachInvoice привязывает выставленный платёжным шлюзом счёт к
// непогашенному обязательству. После привязки статус счёта принимается через
// webhook и фоновый опрос шлюза. Только администратор.
func (s *Service) AttachInvoice(ctx context.Context, actor Actor, rawType string, id int64, invoiceRef string) error {
	if !actor.IsAdmin() {
		return ErrAdminOnly
	}

	typ, err := ParseObligationType(rawType)
	if err != nil {
		return err
	}

	invoiceRef = strings.TrimSpace(invoiceRef)
	if invoiceRef == "" {
		return fmt.Errorf("invoice ref is empty: %w", ErrInvalidInput)
	}

	return s.repo.AssignInvoiceRef(ctx, typ, id, invoiceRef)
}

// LinkParams описывает условия финансирования новой связки пользователь-судно.
type LinkParams struct {
	UserID            int64
	VesselID          int64
	TotalValue        float64
	DownPayment       float64
	TotalInstallments int
	MarinaMonthlyFee  float64
	MarinaDueDay      int
	FirstDueDate      time.Time
}

// CreateLink создаёт связку пользователь-судно с графиком взносов.
// Только администратор.
func (s *Service) CreateLink(ctx context.Context, actor Actor, p LinkParams) (*model.UserVesselLink, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}

	totalCents := int64(math.Round(p.TotalValue * 100))
	downCents := int64(math.Round(p.DownPayment * 100))
	feeCents := int64(math.Round(p.MarinaMonthlyFee * 100))

	if totalCents <= 0 || downCents < 0 || downCents > totalCents || feeCents < 0 {
		return nil, repository.ErrInvalidAmount
	}
	if p.TotalInstallments < 0 || p.MarinaDueDay < 1 || p.MarinaDueDay > 31 {
		return nil, fmt.Errorf("link terms: %w", ErrInvalidInput)
	}

	if _, err := s.repo.GetUser(ctx, p.UserID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetVessel(ctx, p.VesselID); err != nil {
		return nil, err
	}

	link := &model.UserVesselLink{
		UserID:                p.UserID,
		VesselID:              p.VesselID,
		TotalValueCents:       totalCents,
		DownPaymentCents:      downCents,
		RemainingCents:        totalCents - downCents,
		TotalInstallments:     p.TotalInstallments,
		MarinaMonthlyFeeCents: feeCents,
		MarinaDueDay:          p.MarinaDueDay,
		Status:                model.LinkStatusActive,
	}

	firstDue := p.FirstDueDate
	if firstDue.IsZero() {
		firstDue = s.today().AddDate(0, 1, 0)
	}
	schedule := BuildInstallmentSchedule(link.RemainingCents, p.TotalInstallments, firstDue)

	id, err := s.repo.CreateLink(ctx, link, schedule, actor.idPtr(), actor.IP)
	if err != nil {
		return nil, err
	}

	return s.repo.GetLink(ctx, id)
}

// BuildInstallmentSchedule делит остаток долга на равные ежемесячные взносы.
// Остаток от деления в копейках прибавляется к первому взносу, чтобы сумма
// графика в точности совпадала с долгом.
func BuildInstallmentSchedule(remainingCents int64, count int, firstDue time.Time) []model.Installment {
	if count <= 0 || remainingCents <= 0 {
		return nil
	}

	base := remainingCents / int64(count)
	extra := remainingCents - base*int64(count)
	due := model.CivilDate(firstDue)

	schedule := make([]model.Installment, 0, count)
	for i := 1; i <= count; i++ {
		amount := base
		if i == 1 {
			amount += extra
		}
		schedule = append(schedule, model.Installment{
			Sequence:    i,
			AmountCents: amount,
			DueDate:     due,
		})
		due = due.AddDate(0, 1, 0)
	}

	return schedule
}

// PendingInvoices возвращает непогашенные обязательства с внешними счетами
// для фонового опроса шлюза.
func (s *Service) PendingInvoices(ctx context.Context, limit int) ([]repository.InvoiceRef, error) {
	return s.repo.PendingInvoices(ctx, limit)
}

// GetLink возвращает связку по идентификатору.
func (s *Service) GetLink(ctx context.Context, id int64) (*model.UserVesselLink, error) {
	return s.repo.GetLink(ctx, id)
}
