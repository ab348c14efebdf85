package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// Горизонт напоминаний о предстоящих платежах.
const reminderHorizon = 3 * 24 * time.Hour

// RunOverdueSweep переводит просроченные строки графика из PENDING в OVERDUE.
// Операция идемпотентна: повторный запуск за тот же день ничего не меняет.
func (s *Service) RunOverdueSweep(ctx context.Context, asOf time.Time) (int64, error) {
	swept, err := s.repo.SweepOverdue(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.logger.Info("overdue sweep completed", zap.Int64("installments", swept))
	}
	s.audit(ctx, model.ActorSystem, 0, "overdue_sweep", asOf.Format("2006-01-02"))
	return swept, nil
}

// AccruedPenalty считает накопленную пеню по всем просроченным платежам заявки.
func (s *Service) AccruedPenalty(ctx context.Context, applicationID int64, asOf time.Time) (int64, error) {
	if _, err := s.repo.GetApplication(ctx, applicationID); err != nil {
		return 0, err
	}
	overdue, err := s.repo.ListOverdueInstallments(ctx, applicationID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, inst := range overdue {
		days := int(asOf.Sub(inst.DueDate).Hours() / 24)
		total += penaltyFor(inst.TotalCents, days)
	}
	return total, nil
}

// RunOverdueAlerts рассылает уведомления о просрочке, по одному на фермера.
// Сбой отправки одному адресату не прерывает рассылку остальным.
func (s *Service) RunOverdueAlerts(ctx context.Context) (int, error) {
	summaries, err := s.repo.OverdueSummariesByFarmer(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, sum := range summaries {
		err := s.notifier.SendOverdueAlert(ctx, sum.FarmerID, sum.EarliestDue, float64(sum.TotalCents)/100)
		if err != nil {
			s.logger.Warn("overdue alert failed",
				zap.Int64("farmer", sum.FarmerID),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// RunRepaymentReminders рассылает напоминания о платежах со сроком в ближайшие дни.
func (s *Service) RunRepaymentReminders(ctx context.Context, asOf time.Time) (int, error) {
	upcoming, err := s.repo.ListInstallmentsDueBetween(ctx, asOf, asOf.Add(reminderHorizon))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, inst := range upcoming {
		err := s.notifier.SendRepaymentReminder(ctx, inst.FarmerID, inst.ApplicationID, inst.Number, inst.DueDate, float64(inst.TotalCents)/100)
		if err != nil {
			s.logger.Warn("repayment reminder failed",
				zap.Int64("application", inst.ApplicationID),
				zap.Int("installment", inst.Number),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}
