package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

type stubJobs struct {
	sweeps          int
	alerts          int
	reminders       int
	reconciliations int
	indicators      int
}

func (s *stubJobs) RunOverdueSweep(ctx context.Context, asOf time.Time) (int64, error) {
	s.sweeps++
	return 0, nil
}

func (s *stubJobs) RunOverdueAlerts(ctx context.Context) (int, error) {
	s.alerts++
	return 0, nil
}

func (s *stubJobs) RunRepaymentReminders(ctx context.Context, asOf time.Time) (int, error) {
	s.reminders++
	return 0, nil
}

func (s *stubJobs) RunReconciliation(ctx context.Context, recordDate time.Time) (int, error) {
	s.reconciliations++
	return 0, nil
}

func (s *stubJobs) RunRiskIndicators(ctx context.Context, date time.Time) (*model.RiskIndicator, error) {
	s.indicators++
	return &model.RiskIndicator{IndicatorDate: date}, nil
}

func TestRunDueOncePerDay(t *testing.T) {
	jobs := &stubJobs{}
	s := New(jobs, time.Minute, nil)

	day := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	s.RunDue(context.Background(), day)
	s.RunDue(context.Background(), day.Add(2*time.Hour))
	s.RunDue(context.Background(), day.Add(12*time.Hour))

	if jobs.sweeps != 1 {
		t.Errorf("expected 1 sweep for the same day, got %d", jobs.sweeps)
	}
	if jobs.reconciliations != 1 {
		t.Errorf("expected 1 reconciliation for the same day, got %d", jobs.reconciliations)
	}
}

func TestRunDueNextDay(t *testing.T) {
	jobs := &stubJobs{}
	s := New(jobs, time.Minute, nil)

	day := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	s.RunDue(context.Background(), day)
	s.RunDue(context.Background(), day.Add(2*time.Hour))

	if jobs.sweeps != 2 {
		t.Errorf("expected sweep to run on the next day, got %d runs", jobs.sweeps)
	}
	if jobs.alerts != 2 || jobs.reminders != 2 || jobs.indicators != 2 {
		t.Errorf("expected all jobs to run on the next day: alerts=%d reminders=%d indicators=%d",
			jobs.alerts, jobs.reminders, jobs.indicators)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	jobs := &stubJobs{}
	s := New(jobs, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}

	if jobs.sweeps != 1 {
		t.Errorf("expected exactly one daily run, got %d", jobs.sweeps)
	}
}
