package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// allowedTransitions задаёт граф статусной машины заявки.
// Начальный статус APPLIED, терминальные — REJECTED и SETTLED.
var allowedTransitions = map[model.ApplicationStatus][]model.ApplicationStatus{
	model.ApplicationStatusApplied:   {model.ApplicationStatusReviewing, model.ApplicationStatusApproved, model.ApplicationStatusRejected},
	model.ApplicationStatusReviewing: {model.ApplicationStatusApproved, model.ApplicationStatusRejected},
	model.ApplicationStatusApproved:  {model.ApplicationStatusSigned},
	model.ApplicationStatusSigned:    {model.ApplicationStatusDisbursed},
	model.ApplicationStatusDisbursed: {model.ApplicationStatusRepaying, model.ApplicationStatusSettled},
	model.ApplicationStatusRepaying:  {model.ApplicationStatusSettled},
}

func transitionAllowed(from, to model.ApplicationStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// transition переводит заявку в новый статус и дописывает запись в таймлайн.
// Смена статуса выполняется репозиторием через compare-and-swap от текущего статуса.
func (s *Service) transition(ctx context.Context, app *model.FinancingApplication, to model.ApplicationStatus,
	actorType model.ActorType, actorID int64, action, note string) error {
	if !transitionAllowed(app.Status, to) {
		return fmt.Errorf("%w: cannot move application %d from %s to %s", ErrInvalidState, app.ID, app.Status, to)
	}

	if err := s.repo.UpdateApplicationStatus(ctx, app.ID, []model.ApplicationStatus{app.Status}, to); err != nil {
		return err
	}
	app.Status = to

	if err := s.repo.AppendTimeline(ctx, &model.TimelineEntry{
		ApplicationID: app.ID,
		ActorType:     actorType,
		ActorID:       actorID,
		Action:        action,
		Note:          note,
	}); err != nil {
		s.logger.Warn("append timeline failed",
			zap.Int64("application", app.ID),
			zap.String("action", action),
			zap.Error(err),
		)
	}

	return nil
}

// SubmitApplication создаёт новую заявку на финансирование.
// Сумма ниже минимума продукта отклоняется ошибкой ErrBelowMinimum, по которой
// вызывающая сторона направляет фермера в подбор совместного займа.
func (s *Service) SubmitApplication(ctx context.Context, farmerID int64, productID *int64, amountCents int64, termMonths int, purpose string) (int64, error) {
	if amountCents <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if termMonths <= 0 {
		return 0, fmt.Errorf("%w: term must be positive", ErrValidation)
	}

	if productID != nil {
		product, err := s.repo.GetProduct(ctx, *productID)
		if err != nil {
			return 0, err
		}
		if product.Status != model.ProductStatusActive {
			return 0, fmt.Errorf("%w: product %d is disabled", ErrValidation, product.ID)
		}
		if amountCents < product.MinAmountCents {
			return 0, fmt.Errorf("%w: product %d requires at least %d", ErrBelowMinimum, product.ID, product.MinAmountCents)
		}
		if amountCents > product.MaxAmountCents {
			return 0, fmt.Errorf("%w: amount exceeds product maximum %d", ErrValidation, product.MaxAmountCents)
		}
		if termMonths < product.MinTermMonths || termMonths > product.MaxTermMonths {
			return 0, fmt.Errorf("%w: term %d is outside product range", ErrValidation, termMonths)
		}
	}

	app := &model.FinancingApplication{
		FarmerID:    farmerID,
		ProductID:   productID,
		AmountCents: amountCents,
		TermMonths:  termMonths,
		Purpose:     purpose,
		Status:      model.ApplicationStatusApplied,
	}

	id, err := s.repo.CreateApplication(ctx, app)
	if err != nil {
		return 0, err
	}

	if err := s.repo.AppendTimeline(ctx, &model.TimelineEntry{
		ApplicationID: id,
		ActorType:     model.ActorFarmer,
		ActorID:       farmerID,
		Action:        "submit",
		Note:          purpose,
	}); err != nil {
		s.logger.Warn("append timeline failed", zap.Int64("application", id), zap.Error(err))
	}

	s.audit(ctx, model.ActorFarmer, farmerID, "submit_application", fmt.Sprintf("application:%d", id))

	return id, nil
}

// StartReview переводит заявку в статус REVIEWING.
func (s *Service) StartReview(ctx context.Context, officerID, applicationID int64) error {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}

	if err := s.transition(ctx, app, model.ApplicationStatusReviewing, model.ActorOfficer, officerID, "start_review", ""); err != nil {
		return err
	}

	s.audit(ctx, model.ActorOfficer, officerID, "start_review", fmt.Sprintf("application:%d", applicationID))

	return nil
}

// GetApplication возвращает заявку по идентификатору.
func (s *Service) GetApplication(ctx context.Context, id int64) (*model.FinancingApplication, error) {
	return s.repo.GetApplication(ctx, id)
}

// ListApplicationsByFarmer возвращает заявки фермера.
func (s *Service) ListApplicationsByFarmer(ctx context.Context, farmerID int64) ([]model.FinancingApplication, error) {
	return s.repo.ListApplicationsByFarmer(ctx, farmerID)
}

// ListApplicationsByStatus возвращает заявки в указанном статусе.
func (s *Service) ListApplicationsByStatus(ctx context.Context, status model.ApplicationStatus) ([]model.FinancingApplication, error) {
	return s.repo.ListApplicationsByStatuses(ctx, status)
}

// GetTimeline возвращает таймлайн заявки.
func (s *Service) GetTimeline(ctx context.Context, applicationID int64) ([]model.TimelineEntry, error) {
	if _, err := s.repo.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.repo.GetTimeline(ctx, applicationID)
}
