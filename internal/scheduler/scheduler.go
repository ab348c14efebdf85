// Package scheduler запускает ежедневные фоновые задачи кредитного движка.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// Jobs описывает фоновые операции сервиса, выполняемые по расписанию.
type Jobs interface {
	RunOverdueSweep(ctx context.Context, asOf time.Time) (int64, error)
	RunOverdueAlerts(ctx context.Context) (int, error)
	RunRepaymentReminders(ctx context.Context, asOf time.Time) (int, error)
	RunReconciliation(ctx context.Context, recordDate time.Time) (int, error)
	RunRiskIndicators(ctx context.Context, date time.Time) (*model.RiskIndicator, error)
}

// Scheduler опрашивает часы с заданным интервалом и раз в календарный день
// прогоняет полный набор фоновых задач. Все задачи идемпотентны на уровне
// хранилища, поэтому перезапуск процесса в течение дня безопасен.
type Scheduler struct {
	jobs     Jobs
	interval time.Duration
	logger   *zap.Logger

	lastRunDay string
}

// New создаёт планировщик с указанным интервалом опроса.
func New(jobs Jobs, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
	}
}

// Run блокирует до отмены контекста, выполняя дневной прогон при первом
// тике каждого нового календарного дня. Возвращает ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunDue(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.RunDue(ctx, now)
		}
	}
}

// RunDue выполняет дневной прогон, если за текущую дату он ещё не выполнялся.
// Сбой отдельной задачи логируется и не отменяет остальные.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	if day == s.lastRunDay {
		return
	}
	s.lastRunDay = day

	if swept, err := s.jobs.RunOverdueSweep(ctx, now); err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
	} else {
		s.logger.Info("overdue sweep done", zap.Int64("installments", swept))
	}

	if sent, err := s.jobs.RunOverdueAlerts(ctx); err != nil {
		s.logger.Error("overdue alerts failed", zap.Error(err))
	} else {
		s.logger.Info("overdue alerts done", zap.Int("sent", sent))
	}

	if sent, err := s.jobs.RunRepaymentReminders(ctx, now); err != nil {
		s.logger.Error("repayment reminders failed", zap.Error(err))
	} else {
		s.logger.Info("repayment reminders done", zap.Int("sent", sent))
	}

	if processed, err := s.jobs.RunReconciliation(ctx, now); err != nil {
		s.logger.Error("reconciliation failed", zap.Error(err))
	} else {
		s.logger.Info("reconciliation done", zap.Int("applications", processed))
	}

	if _, err := s.jobs.RunRiskIndicators(ctx, now); err != nil {
		s.logger.Error("risk indicators failed", zap.Error(err))
	}
}
