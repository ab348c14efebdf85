package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
	"github.com/mmeshcher/agroloan-system/internal/repository"
)

// Допустимое расхождение сверки — копейка округления.
const reconToleranceCents = 1

// ReconcileApplication сверяет выданную сумму с разложением основного долга
// по корзинам графика (погашено, к оплате, просрочено). Расхождение больше
// копейки помечается статусом DIFFERENCE. Повторная сверка за тот же день
// перезаписывает предыдущий результат.
func (s *Service) ReconcileApplication(ctx context.Context, applicationID int64, recordDate time.Time) (*model.ReconciliationRecord, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	repaidPrincipal, repaidInterest, err := s.repo.SumRepaid(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	pendingPrincipal, pendingInterest, err := s.repo.SumInstallmentsByStatus(ctx, applicationID, model.InstallmentPending)
	if err != nil {
		return nil, err
	}
	overduePrincipal, overdueInterest, err := s.repo.SumInstallmentsByStatus(ctx, applicationID, model.InstallmentOverdue)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListRepaymentRecords(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	var penalty int64
	for _, r := range records {
		penalty += r.PenaltyCents
	}

	rec := &model.ReconciliationRecord{
		ApplicationID:         applicationID,
		RecordDate:            recordDate,
		DisbursedCents:        app.DisbursedCents,
		RepaidPrincipalCents:  repaidPrincipal,
		RepaidInterestCents:   repaidInterest,
		PendingPrincipalCents: pendingPrincipal,
		PendingInterestCents:  pendingInterest,
		OverduePrincipalCents: overduePrincipal,
		OverdueInterestCents:  overdueInterest,
		PenaltyCents:          penalty,
		Status:                model.ReconNormal,
	}

	diff := app.DisbursedCents - repaidPrincipal - pendingPrincipal - overduePrincipal
	if diff < -reconToleranceCents || diff > reconToleranceCents {
		rec.Status = model.ReconDifference
		rec.Reason = fmt.Sprintf("principal mismatch: disbursed %d, schedule accounts for %d", app.DisbursedCents, app.DisbursedCents-diff)
	}

	if err := s.repo.UpsertReconciliation(ctx, rec); err != nil {
		return nil, err
	}

	if rec.Status == model.ReconDifference {
		s.logger.Warn("reconciliation difference",
			zap.Int64("application", applicationID),
			zap.Int64("diff_cents", diff))
	}

	return rec, nil
}

// RunReconciliation сверяет все заявки в стадии обслуживания долга.
// Сбой по одной заявке логируется и не прерывает прогон.
func (s *Service) RunReconciliation(ctx context.Context, recordDate time.Time) (int, error) {
	apps, err := s.repo.ListApplicationsByStatuses(ctx,
		model.ApplicationStatusDisbursed, model.ApplicationStatusRepaying)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, app := range apps {
		if _, err := s.ReconcileApplication(ctx, app.ID, recordDate); err != nil {
			s.logger.Error("reconcile application failed",
				zap.Int64("application", app.ID),
				zap.Error(err))
			continue
		}
		processed++
	}

	s.audit(ctx, model.ActorSystem, 0, "reconciliation", recordDate.Format("2006-01-02"))

	return processed, nil
}

// ListReconciliations возвращает результаты сверок за период дат.
func (s *Service) ListReconciliations(ctx context.Context, from, to time.Time) ([]model.ReconciliationRecord, error) {
	return s.repo.ListReconciliations(ctx, from, to)
}

// ReconciliationStats возвращает сводку сверок за период дат.
func (s *Service) ReconciliationStats(ctx context.Context, from, to time.Time) (*repository.ReconciliationStats, error) {
	return s.repo.CountReconciliations(ctx, from, to)
}
