package service

import (
	"context"
	"time"

	"github.com/mmeshcher/agroloan-system/internal/model"
	"github.com/mmeshcher/agroloan-system/internal/repository"
)

// DashboardSummary — сводка кредитного портфеля для операционной панели.
type DashboardSummary struct {
	StatusCounts     map[model.ApplicationStatus]int64 `json:"status_counts"`
	ActiveCount      int64                             `json:"active_count"`
	ActiveCents      int64                             `json:"active_cents"`
	DisbursedCents   int64                             `json:"disbursed_cents"`
	OutstandingCents int64                             `json:"outstanding_cents"`
}

// Dashboard собирает сводку портфеля: разбивку заявок по статусам,
// активный портфель и выдачи за период.
func (s *Service) Dashboard(ctx context.Context, from, to time.Time) (*DashboardSummary, error) {
	counts, err := s.repo.CountApplicationsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	activeCount, activeCents, err := s.repo.ActivePortfolio(ctx)
	if err != nil {
		return nil, err
	}
	disbursed, err := s.repo.DisbursedTotalBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.repo.OutstandingPrincipal(ctx)
	if err != nil {
		return nil, err
	}

	return &DashboardSummary{
		StatusCounts:     counts,
		ActiveCount:      activeCount,
		ActiveCents:      activeCents,
		DisbursedCents:   disbursed,
		OutstandingCents: outstanding,
	}, nil
}

// MonthlyTrend возвращает помесячный тренд выдач за период.
func (s *Service) MonthlyTrend(ctx context.Context, from, to time.Time) ([]repository.MonthlyTrendPoint, error) {
	return s.repo.DisbursedMonthlyTrend(ctx, from, to)
}

// LoanMonitoring — состояние обслуживания одного займа.
type LoanMonitoring struct {
	StatusCounts         map[model.InstallmentStatus]int64 `json:"status_counts"`
	RepaidPrincipalCents int64                             `json:"repaid_principal_cents"`
	RepaidInterestCents  int64                             `json:"repaid_interest_cents"`
	RepaymentRate        float64                           `json:"repayment_rate"`
	AccruedPenaltyCents  int64                             `json:"accrued_penalty_cents"`
}

// MonitorLoan собирает по заявке состояние графика: разбивку платежей по статусам,
// погашенные суммы, долю оплаченных платежей и накопленную пеню.
func (s *Service) MonitorLoan(ctx context.Context, applicationID int64) (*LoanMonitoring, error) {
	if _, err := s.repo.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}

	counts, err := s.repo.InstallmentStatusCounts(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	repaidPrincipal, repaidInterest, err := s.repo.SumRepaid(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	penalty, err := s.AccruedPenalty(ctx, applicationID, time.Now())
	if err != nil {
		return nil, err
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	m := &LoanMonitoring{
		StatusCounts:         counts,
		RepaidPrincipalCents: repaidPrincipal,
		RepaidInterestCents:  repaidInterest,
		AccruedPenaltyCents:  penalty,
	}
	if total > 0 {
		m.RepaymentRate = float64(counts[model.InstallmentPaid]) / float64(total)
	}
	return m, nil
}
