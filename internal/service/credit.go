package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// Веса компонент кредитного скоринга.
const (
	weightHistory    = 0.30
	weightIncome     = 0.20
	weightAssets     = 0.20
	weightDebtRatio  = 0.15
	weightExperience = 0.15

	defaultHistoryScore = 60.0

	tierLowThreshold    = 80.0
	tierMediumThreshold = 60.0

	// Рекомендуемый кредитный лимит: балл × 1000 денежных единиц.
	creditLinePerPoint = 1000
)

// CreditInput — входные данные кредитного скоринга одной заявки.
type CreditInput struct {
	// HistoryScore — внешний балл кредитной истории 0..100; при отсутствии берётся значение по умолчанию.
	HistoryScore *float64
	// AnnualIncomeCents — годовой доход фермера в копейках.
	AnnualIncomeCents int64
	// TotalAssetsCents — совокупные активы фермера в копейках.
	TotalAssetsCents int64
	// DebtRatio — долговая нагрузка в процентах 0..100.
	DebtRatio float64
	// YearsFarming — стаж ведения хозяйства в годах.
	YearsFarming int
}

// CalculateCreditScore вычисляет взвешенный кредитный балл 0..100 и производные величины.
// Чистая функция: ничего не сохраняет.
func CalculateCreditScore(applicationID int64, in CreditInput) *model.CreditScore {
	history := defaultHistoryScore
	if in.HistoryScore != nil {
		history = clamp(*in.HistoryScore, 0, 100)
	}

	// Доход: линейно, 1 балл за каждые 10 000 единиц годового дохода, максимум 50.
	income := clamp(float64(in.AnnualIncomeCents)/100/10000, 0, 50)

	// Активы: линейно, 1 балл за каждые 100 000 единиц активов, максимум 30.
	assets := clamp(float64(in.TotalAssetsCents)/100/100000, 0, 30)

	debt := clamp(100-in.DebtRatio, 0, 100)

	experience := clamp(float64(in.YearsFarming)*10, 0, 100)

	// Компонента долговой нагрузки хранится уже взвешенной и входит в сумму как есть.
	debtWeighted := debt * weightDebtRatio

	total := history*weightHistory +
		income*weightIncome +
		assets*weightAssets +
		debtWeighted +
		experience*weightExperience

	// Балл не округляется перед сравнением с порогами: 59.5 остаётся HIGH.
	tier := model.RiskHigh
	switch {
	case total >= tierLowThreshold:
		tier = model.RiskLow
	case total >= tierMediumThreshold:
		tier = model.RiskMedium
	}

	return &model.CreditScore{
		ApplicationID:   applicationID,
		HistoryScore:    history,
		IncomeScore:     income,
		AssetScore:      assets,
		DebtRatioScore:  debtWeighted,
		ExperienceScore: experience,
		TotalScore:      total,
		Tier:            tier,
		CreditLineCents: int64(total * creditLinePerPoint * 100),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Approve одобряет заявку: сохраняет скоринговый снимок, фиксирует рецензию,
// переводит заявку в APPROVED, генерирует график погашения и уведомляет фермера.
// Одобрение допустимо только из статусов APPLIED и REVIEWING.
func (s *Service) Approve(ctx context.Context, officerID, applicationID int64, rateBP int64, comment string, in CreditInput) (*model.CreditScore, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if app.Status != model.ApplicationStatusApplied && app.Status != model.ApplicationStatusReviewing {
		return nil, fmt.Errorf("%w: cannot approve application %d in status %s", ErrInvalidState, app.ID, app.Status)
	}

	// Ставка берётся из продукта; для внепродуктовых заявок — из запроса.
	if app.ProductID != nil {
		product, err := s.repo.GetProduct(ctx, *app.ProductID)
		if err != nil {
			return nil, err
		}
		rateBP = product.AnnualRateBP
	}
	if rateBP <= 0 {
		return nil, fmt.Errorf("%w: annual rate must be positive", ErrValidation)
	}

	score := CalculateCreditScore(applicationID, in)
	if err := s.repo.SaveCreditScore(ctx, score); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.repo.SetReview(ctx, applicationID, officerID, comment, rateBP, now); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, app, model.ApplicationStatusApproved, model.ActorOfficer, officerID, "approve", comment); err != nil {
		return nil, err
	}
	app.AnnualRateBP = rateBP

	if err := s.generateSchedule(ctx, app, now); err != nil {
		return nil, err
	}

	if err := s.notifier.SendApprovalNotification(ctx, app.FarmerID, app.ID, true, comment); err != nil {
		s.logger.Warn("approval notification failed", zap.Int64("application", app.ID), zap.Error(err))
	}

	s.audit(ctx, model.ActorOfficer, officerID, "approve_application", fmt.Sprintf("application:%d", applicationID))

	return score, nil
}

// Reject отклоняет заявку с комментарием рецензента и уведомляет фермера.
func (s *Service) Reject(ctx context.Context, officerID, applicationID int64, comment string) error {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}

	if app.Status != model.ApplicationStatusApplied && app.Status != model.ApplicationStatusReviewing {
		return fmt.Errorf("%w: cannot reject application %d in status %s", ErrInvalidState, app.ID, app.Status)
	}

	if err := s.repo.SetReview(ctx, applicationID, officerID, comment, 0, time.Now()); err != nil {
		return err
	}

	if err := s.transition(ctx, app, model.ApplicationStatusRejected, model.ActorOfficer, officerID, "reject", comment); err != nil {
		return err
	}

	if err := s.notifier.SendApprovalNotification(ctx, app.FarmerID, app.ID, false, comment); err != nil {
		s.logger.Warn("rejection notification failed", zap.Int64("application", app.ID), zap.Error(err))
	}

	s.audit(ctx, model.ActorOfficer, officerID, "reject_application", fmt.Sprintf("application:%d", applicationID))

	return nil
}

// GetCreditScore возвращает скоринговый снимок заявки.
func (s *Service) GetCreditScore(ctx context.Context, applicationID int64) (*model.CreditScore, error) {
	return s.repo.GetCreditScore(ctx, applicationID)
}
