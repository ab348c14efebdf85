package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// CreateProduct создаёт новый кредитный продукт.
func (s *Service) CreateProduct(ctx context.Context, officerID int64, p *model.LoanProduct) (int64, error) {
	if p.Name == "" {
		return 0, fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if p.AnnualRateBP <= 0 {
		return 0, fmt.Errorf("%w: annual rate must be positive", ErrValidation)
	}
	if p.MinAmountCents <= 0 || p.MaxAmountCents <= 0 {
		return 0, fmt.Errorf("%w: amount bounds must be positive", ErrValidation)
	}
	if p.MinAmountCents > p.MaxAmountCents {
		return 0, fmt.Errorf("%w: min amount exceeds max amount", ErrValidation)
	}
	if p.MinTermMonths <= 0 || p.MaxTermMonths < p.MinTermMonths {
		return 0, fmt.Errorf("%w: invalid term range", ErrValidation)
	}

	if p.Status == "" {
		p.Status = model.ProductStatusActive
	}

	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return 0, err
	}

	s.audit(ctx, model.ActorOfficer, officerID, "create_product", fmt.Sprintf("product:%d", id))

	return id, nil
}

// GetProduct возвращает кредитный продукт по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.LoanProduct, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts возвращает все кредитные продукты.
func (s *Service) ListProducts(ctx context.Context) ([]model.LoanProduct, error) {
	return s.repo.ListProducts(ctx)
}
