package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// Поденная ставка пени от суммы просроченного платежа.
var penaltyDailyRate = decimal.NewFromFloat(0.0005)

// Штраф за досрочное погашение от остатка основного долга.
var earlyRepaymentRate = decimal.NewFromFloat(0.01)

// buildSchedule строит аннуитетный график погашения: равные платежи,
// проценты считаются от остатка долга, последний платёж поглощает
// копеечную погрешность округления, так что сумма долей основного
// долга в точности равна телу кредита.
func buildSchedule(applicationID, amountCents int64, rateBP int64, termMonths int, start time.Time) []model.Installment {
	principal := decimal.New(amountCents, -2)
	monthlyRate := decimal.New(rateBP, -4).Div(decimal.NewFromInt(12))

	var payment decimal.Decimal
	if monthlyRate.IsZero() {
		payment = principal.Div(decimal.NewFromInt(int64(termMonths))).Round(2)
	} else {
		// P·r·(1+r)^n / ((1+r)^n − 1)
		factor := monthlyRate.Add(decimal.NewFromInt(1)).Pow(decimal.NewFromInt(int64(termMonths)))
		payment = principal.Mul(monthlyRate).Mul(factor).
			Div(factor.Sub(decimal.NewFromInt(1))).Round(2)
	}

	installments := make([]model.Installment, 0, termMonths)
	remaining := principal
	for i := 1; i <= termMonths; i++ {
		interest := remaining.Mul(monthlyRate).Round(2)
		principalDue := payment.Sub(interest)
		if i == termMonths {
			// Последний платёж закрывает весь остаток.
			principalDue = remaining
		}
		remaining = remaining.Sub(principalDue)

		principalCents := principalDue.Mul(decimal.NewFromInt(100)).IntPart()
		interestCents := interest.Mul(decimal.NewFromInt(100)).IntPart()
		installments = append(installments, model.Installment{
			ApplicationID:  applicationID,
			Number:         i,
			DueDate:        start.AddDate(0, i, 0),
			PrincipalCents: principalCents,
			InterestCents:  interestCents,
			TotalCents:     principalCents + interestCents,
			Status:         model.InstallmentPending,
		})
	}
	return installments
}

// generateSchedule строит и сохраняет график погашения одобренной заявки.
func (s *Service) generateSchedule(ctx context.Context, app *model.FinancingApplication, approvedAt time.Time) error {
	installments := buildSchedule(app.ID, app.AmountCents, app.AnnualRateBP, app.TermMonths, approvedAt)
	if err := s.repo.InsertInstallments(ctx, installments); err != nil {
		return fmt.Errorf("generate schedule for application %d: %w", app.ID, err)
	}
	s.logger.Info("repayment schedule generated",
		zap.Int64("application", app.ID),
		zap.Int("installments", len(installments)))
	return nil
}

// GetSchedule возвращает график погашения заявки.
func (s *Service) GetSchedule(ctx context.Context, applicationID int64) ([]model.Installment, error) {
	if _, err := s.repo.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.repo.GetInstallments(ctx, applicationID)
}

// ListRepayments возвращает журнал погашений заявки.
func (s *Service) ListRepayments(ctx context.Context, applicationID int64) ([]model.RepaymentRecord, error) {
	if _, err := s.repo.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.repo.ListRepaymentRecords(ctx, applicationID)
}

// penaltyFor считает пеню от суммы платежа за число дней просрочки.
func penaltyFor(totalCents int64, daysOverdue int) int64 {
	if daysOverdue <= 0 {
		return 0
	}
	return decimal.New(totalCents, -2).
		Mul(penaltyDailyRate).
		Mul(decimal.NewFromInt(int64(daysOverdue))).
		Round(2).
		Mul(decimal.NewFromInt(100)).IntPart()
}

// RepayInstallment проводит погашение очередного платежа графика.
// Для просроченного платежа начисляется пеня за каждый день просрочки.
// Когда оплачен последний платёж, заявка переводится в SETTLED.
func (s *Service) RepayInstallment(ctx context.Context, farmerID, applicationID int64, number int) (*model.RepaymentRecord, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.FarmerID != farmerID {
		return nil, fmt.Errorf("%w: application %d does not belong to farmer %d", ErrValidation, applicationID, farmerID)
	}
	if app.Status != model.ApplicationStatusDisbursed && app.Status != model.ApplicationStatusRepaying {
		return nil, fmt.Errorf("%w: cannot repay application %d in status %s", ErrInvalidState, applicationID, app.Status)
	}

	inst, err := s.repo.GetInstallment(ctx, applicationID, number)
	if err != nil {
		return nil, err
	}
	if inst.Status == model.InstallmentPaid {
		return nil, fmt.Errorf("%w: installment %d already paid", ErrInvalidState, number)
	}

	now := time.Now()
	var penaltyCents int64
	if inst.Status == model.InstallmentOverdue && now.After(inst.DueDate) {
		days := int(now.Sub(inst.DueDate).Hours() / 24)
		penaltyCents = penaltyFor(inst.TotalCents, days)
	}

	if err := s.repo.MarkInstallmentPaid(ctx, inst.ID, inst.TotalCents+penaltyCents, now); err != nil {
		return nil, err
	}

	record := &model.RepaymentRecord{
		ApplicationID:  applicationID,
		InstallmentID:  inst.ID,
		PrincipalCents: inst.PrincipalCents,
		InterestCents:  inst.InterestCents,
		PenaltyCents:   penaltyCents,
		PaidAt:         now,
	}
	if err := s.repo.InsertRepaymentRecord(ctx, record); err != nil {
		return nil, err
	}

	unpaid, err := s.repo.CountUnpaidInstallments(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	switch {
	case unpaid == 0:
		if err := s.transition(ctx, app, model.ApplicationStatusSettled, model.ActorFarmer, farmerID, "settle", "all installments paid"); err != nil {
			return nil, err
		}
	case app.Status == model.ApplicationStatusDisbursed:
		if err := s.transition(ctx, app, model.ApplicationStatusRepaying, model.ActorFarmer, farmerID, "repay", fmt.Sprintf("installment %d paid", number)); err != nil {
			return nil, err
		}
	}

	s.audit(ctx, model.ActorFarmer, farmerID, "repay_installment", fmt.Sprintf("application:%d installment:%d", applicationID, number))

	return record, nil
}

// EarlyRepaymentQuote — расчёт досрочного погашения: остаток основного
// долга, штраф за досрочное погашение и процентная экономия.
type EarlyRepaymentQuote struct {
	RemainingPrincipalCents int64
	PenaltyCents            int64
	InterestSavedCents      int64
	PayoffCents             int64
}

// QuoteEarlyRepayment считает сумму полного досрочного погашения по
// неоплаченным платежам графика. Ничего не изменяет.
func (s *Service) QuoteEarlyRepayment(ctx context.Context, farmerID, applicationID int64) (*EarlyRepaymentQuote, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.FarmerID != farmerID {
		return nil, fmt.Errorf("%w: application %d does not belong to farmer %d", ErrValidation, applicationID, farmerID)
	}
	if app.Status != model.ApplicationStatusDisbursed && app.Status != model.ApplicationStatusRepaying {
		return nil, fmt.Errorf("%w: early repayment is not available in status %s", ErrInvalidState, app.Status)
	}

	installments, err := s.repo.GetInstallments(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	var remainingPrincipal, interestSaved int64
	for _, inst := range installments {
		if inst.Status == model.InstallmentPaid {
			continue
		}
		remainingPrincipal += inst.PrincipalCents
		interestSaved += inst.InterestCents
	}

	penalty := decimal.New(remainingPrincipal, -2).
		Mul(earlyRepaymentRate).
		Round(2).
		Mul(decimal.NewFromInt(100)).IntPart()

	return &EarlyRepaymentQuote{
		RemainingPrincipalCents: remainingPrincipal,
		PenaltyCents:            penalty,
		InterestSavedCents:      interestSaved,
		PayoffCents:             remainingPrincipal + penalty,
	}, nil
}
