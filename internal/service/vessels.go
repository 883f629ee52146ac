package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vpanarin/vesselbook/internal/model"
)

// CreateVessel создаёт судно. Только администратор.
func (s *Service) CreateVessel(ctx context.Context, actor Actor, v *model.Vessel) (*model.Vessel, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if strings.TrimSpace(v.Name) == "" {
		return nil, fmt.Errorf("vessel name is empty: %w", ErrInvalidInput)
	}
	if v.CalendarDaysAhead <= 0 || v.MaxActiveBookings <= 0 {
		return nil, fmt.Errorf("vessel limits must be positive: %w", ErrInvalidInput)
	}

	id, err := s.repo.CreateVessel(ctx, v, actor.idPtr(), actor.IP)
	if err != nil {
		return nil, err
	}

	return s.repo.GetVessel(ctx, id)
}

// UpdateVessel обновляет судно, включая деактивацию. Судно не удаляется
// физически: деактивация лишь запрещает новые бронирования.
func (s *Service) UpdateVessel(ctx context.Context, actor Actor, v *model.Vessel) (*model.Vessel, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if strings.TrimSpace(v.Name) == "" {
		return nil, fmt.Errorf("vessel name is empty: %w", ErrInvalidInput)
	}
	if v.CalendarDaysAhead <= 0 || v.MaxActiveBookings <= 0 {
		return nil, fmt.Errorf("vessel limits must be positive: %w", ErrInvalidInput)
	}

	if err := s.repo.UpdateVessel(ctx, v, actor.idPtr(), actor.IP); err != nil {
		return nil, err
	}

	return s.repo.GetVessel(ctx, v.ID)
}

// GetVessel возвращает судно по идентификатору.
func (s *Service) GetVessel(ctx context.Context, id int64) (*model.Vessel, error) {
	return s.repo.GetVessel(ctx, id)
}

// ListVessels возвращает все суда.
func (s *Service) ListVessels(ctx context.Context) ([]model.Vessel, error) {
	return s.repo.ListVessels(ctx)
}

// CreateUser регистрирует пользователя в справочнике платформы. Учётные
// данные и сессии остаются во внешнем сервисе аутентификации.
func (s *Service) CreateUser(ctx context.Context, actor Actor, name string, role model.UserRole) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("user name is empty: %w", ErrInvalidInput)
	}
	if role != model.RoleAdmin && role != model.RoleUser {
		return nil, fmt.Errorf("role %q: %w", role, ErrInvalidInput)
	}

	id, err := s.repo.CreateUser(ctx, name, role)
	if err != nil {
		return nil, err
	}

	return s.repo.GetUser(ctx, id)
}

// SetUserStatus изменяет статус пользователя. Только администратор.
func (s *Service) SetUserStatus(ctx context.Context, actor Actor, userID int64, status model.UserStatus) error {
	if !actor.IsAdmin() {
		return ErrAdminOnly
	}

	switch status {
	case model.UserStatusActive, model.UserStatusOverdue, model.UserStatusOverduePayment, model.UserStatusBlocked:
	default:
		return fmt.Errorf("status %q: %w", status, ErrInvalidInput)
	}

	return s.repo.SetUserStatus(ctx, userID, status, actor.idPtr(), actor.IP)
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUser(ctx, id)
}

// EntityAudit возвращает журнал аудита сущности. Только администратор.
func (s *Service) EntityAudit(ctx context.Context, actor Actor, entityType string, entityID int64) ([]model.AuditEntry, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	return s.repo.ListAudit(ctx, entityType, entityID)
}
