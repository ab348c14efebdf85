package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// Просрочка старше этого срока считается проблемной задолженностью.
const badDebtDays = 90

// Порог скоринга для оповещения о высоком риске.
const lowScoreThreshold = 60.0

// RunRiskIndicators строит портфельный срез рисков за календарный день.
// За одну дату хранится не более одной строки: повторный прогон ничего не меняет
// и возвращает уже сохранённый срез.
func (s *Service) RunRiskIndicators(ctx context.Context, date time.Time) (*model.RiskIndicator, error) {
	if existing, err := s.repo.GetRiskIndicator(ctx, date); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	totalCount, totalCents, err := s.repo.ActivePortfolio(ctx)
	if err != nil {
		return nil, err
	}
	overdueCount, overdueCents, err := s.repo.OverduePortfolio(ctx, date, 0)
	if err != nil {
		return nil, err
	}
	badDebtCount, badDebtCents, err := s.repo.OverduePortfolio(ctx, date, badDebtDays)
	if err != nil {
		return nil, err
	}
	balance, err := s.repo.OutstandingPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	activeTotal, jointCount, err := s.repo.JointLoanCounts(ctx)
	if err != nil {
		return nil, err
	}

	ind := &model.RiskIndicator{
		IndicatorDate:      date,
		TotalCount:         totalCount,
		TotalCents:         totalCents,
		OverdueCount:       overdueCount,
		OverdueCents:       overdueCents,
		BadDebtCount:       badDebtCount,
		BadDebtCents:       badDebtCents,
		CreditBalanceCents: balance,
	}
	// Доли считаются по суммам, а не по числу займов.
	if totalCents > 0 {
		ind.OverdueRate = float64(overdueCents) / float64(totalCents)
		ind.BadDebtRate = float64(badDebtCents) / float64(totalCents)
	}
	if activeTotal > 0 {
		ind.JointLoanRate = float64(jointCount) / float64(activeTotal)
	}

	inserted, err := s.repo.InsertRiskIndicator(ctx, ind)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Параллельный прогон успел первым.
		return s.repo.GetRiskIndicator(ctx, date)
	}

	s.logger.Info("risk indicators computed",
		zap.Time("date", date),
		zap.Int64("total", totalCount),
		zap.Int64("overdue", overdueCount))

	s.audit(ctx, model.ActorSystem, 0, "risk_indicators", date.Format("2006-01-02"))

	return ind, nil
}

// RiskDashboard возвращает последний сохранённый портфельный срез рисков.
func (s *Service) RiskDashboard(ctx context.Context) (*model.RiskIndicator, error) {
	return s.repo.LatestRiskIndicator(ctx)
}

// BuildAlerts формирует транзитные оповещения риск-мониторинга:
// заявки со скорингом ниже порога и заявки с просроченными платежами.
// Оповещения нигде не сохраняются, список строится на каждый запрос.
func (s *Service) BuildAlerts(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert

	lowScores, err := s.repo.ListLowCreditScores(ctx, lowScoreThreshold)
	if err != nil {
		return nil, err
	}
	for _, ls := range lowScores {
		alerts = append(alerts, model.Alert{
			Type:          model.AlertHighRisk,
			ApplicationID: ls.ApplicationID,
			FarmerID:      ls.FarmerID,
			Message:       fmt.Sprintf("credit score %.1f is below %.0f", ls.TotalScore, lowScoreThreshold),
		})
	}

	overdue, err := s.repo.ListApplicationsWithOverdue(ctx)
	if err != nil {
		return nil, err
	}
	for _, od := range overdue {
		alerts = append(alerts, model.Alert{
			Type:          model.AlertOverdue,
			ApplicationID: od.ApplicationID,
			FarmerID:      od.FarmerID,
			Message:       fmt.Sprintf("%d overdue installments totalling %.2f", od.Count, float64(od.TotalCents)/100),
		})
	}

	return alerts, nil
}
