package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// InsertInstallments сохраняет график погашения одной транзакцией.
func (r *PostgresRepository) InsertInstallments(ctx context.Context, installments []model.Installment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, in := range installments {
		_, err := tx.Exec(ctx,
			`INSERT INTO repayment_schedules (application_id, installment_no, due_date, principal, interest, total, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			in.ApplicationID, in.Number, in.DueDate, in.PrincipalCents, in.InterestCents, in.TotalCents, string(in.Status),
		)
		if err != nil {
			return fmt.Errorf("insert installment %d: %w", in.Number, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

const installmentColumns = `id, application_id, installment_no, due_date, principal, interest, total, status, paid_amount, paid_at`

func scanInstallment(row pgx.Row) (*model.Installment, error) {
	var in model.Installment
	var status string
	err := row.Scan(&in.ID, &in.ApplicationID, &in.Number, &in.DueDate, &in.PrincipalCents,
		&in.InterestCents, &in.TotalCents, &status, &in.PaidCents, &in.PaidAt)
	if err != nil {
		return nil, err
	}
	in.Status = model.InstallmentStatus(status)
	return &in, nil
}

// GetInstallments возвращает график погашения заявки по номерам строк.
func (r *PostgresRepository) GetInstallments(ctx context.Context, applicationID int64) ([]model.Installment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+installmentColumns+` FROM repayment_schedules WHERE application_id = $1 ORDER BY installment_no`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select installments: %w", err)
	}
	defer rows.Close()

	var res []model.Installment
	for rows.Next() {
		in, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		res = append(res, *in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetInstallment возвращает строку графика по заявке и номеру.
func (r *PostgresRepository) GetInstallment(ctx context.Context, applicationID int64, number int) (*model.Installment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+installmentColumns+` FROM repayment_schedules WHERE application_id = $1 AND installment_no = $2`,
		applicationID, number,
	)

	in, err := scanInstallment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInstallmentNotFound
		}
		return nil, fmt.Errorf("get installment: %w", err)
	}
	return in, nil
}

// MarkInstallmentPaid помечает строку графика оплаченной.
// Повторная оплата уже оплаченной строки отклоняется через compare-and-swap.
func (r *PostgresRepository) MarkInstallmentPaid(ctx context.Context, id, paidCents int64, at time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE repayment_schedules SET status = $2, paid_amount = $3, paid_at = $4
		 WHERE id = $1 AND status <> $2`,
		id, string(model.InstallmentPaid), paidCents, at,
	)
	if err != nil {
		return fmt.Errorf("mark installment paid: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// CountUnpaidInstallments возвращает количество неоплаченных строк графика заявки.
func (r *PostgresRepository) CountUnpaidInstallments(ctx context.Context, applicationID int64) (int64, error) {
	var cnt int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM repayment_schedules WHERE application_id = $1 AND status <> $2`,
		applicationID, string(model.InstallmentPaid),
	).Scan(&cnt)
	if err != nil {
		return 0, fmt.Errorf("count unpaid installments: %w", err)
	}
	return cnt, nil
}

// SweepOverdue переводит просроченные строки графика из PENDING в OVERDUE.
// Операция идемпотентна: повторный запуск затрагивает только оставшиеся PENDING-строки.
func (r *PostgresRepository) SweepOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	var affected int64

	err := r.withRetry(ctx, func(ctx context.Context) error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE repayment_schedules SET status = $1
			 WHERE status = $2 AND due_date < $3`,
			string(model.InstallmentOverdue), string(model.InstallmentPending), asOf,
		)
		if err != nil {
			return fmt.Errorf("sweep overdue: %w", err)
		}
		affected = cmdTag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// InsertRepaymentRecord добавляет запись в журнал погашений.
func (r *PostgresRepository) InsertRepaymentRecord(ctx context.Context, rec *model.RepaymentRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO repayment_records (application_id, installment_id, principal, interest, penalty, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ApplicationID, rec.InstallmentID, rec.PrincipalCents, rec.InterestCents, rec.PenaltyCents, rec.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("insert repayment record: %w", err)
	}
	return nil
}

// ListRepaymentRecords возвращает журнал погашений заявки в порядке добавления.
func (r *PostgresRepository) ListRepaymentRecords(ctx context.Context, applicationID int64) ([]model.RepaymentRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, application_id, installment_id, principal, interest, penalty, paid_at
		 FROM repayment_records WHERE application_id = $1 ORDER BY id`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select repayment records: %w", err)
	}
	defer rows.Close()

	var res []model.RepaymentRecord
	for rows.Next() {
		var rec model.RepaymentRecord
		if err := rows.Scan(&rec.ID, &rec.ApplicationID, &rec.InstallmentID,
			&rec.PrincipalCents, &rec.InterestCents, &rec.PenaltyCents, &rec.PaidAt); err != nil {
			return nil, fmt.Errorf("scan repayment record: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SumRepaid возвращает суммы погашенного основного долга и процентов по журналу погашений.
func (r *PostgresRepository) SumRepaid(ctx context.Context, applicationID int64) (int64, int64, error) {
	var principal, interest int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(principal), 0), COALESCE(SUM(interest), 0)
		 FROM repayment_records WHERE application_id = $1`,
		applicationID,
	).Scan(&principal, &interest)
	if err != nil {
		return 0, 0, fmt.Errorf("sum repaid: %w", err)
	}
	return principal, interest, nil
}

// SumInstallmentsByStatus возвращает суммы основного долга и процентов по строкам графика в указанном статусе.
func (r *PostgresRepository) SumInstallmentsByStatus(ctx context.Context, applicationID int64, status model.InstallmentStatus) (int64, int64, error) {
	var principal, interest int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(principal), 0), COALESCE(SUM(interest), 0)
		 FROM repayment_schedules WHERE application_id = $1 AND status = $2`,
		applicationID, string(status),
	).Scan(&principal, &interest)
	if err != nil {
		return 0, 0, fmt.Errorf("sum installments by status: %w", err)
	}
	return principal, interest, nil
}

// ListOverdueInstallments возвращает просроченные строки графика заявки.
func (r *PostgresRepository) ListOverdueInstallments(ctx context.Context, applicationID int64) ([]model.Installment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+installmentColumns+` FROM repayment_schedules
		 WHERE application_id = $1 AND status = $2 ORDER BY installment_no`,
		applicationID, string(model.InstallmentOverdue),
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue installments: %w", err)
	}
	defer rows.Close()

	var res []model.Installment
	for rows.Next() {
		in, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		res = append(res, *in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// FarmerOverdueSummary — агрегат просрочки фермера для оповещения.
type FarmerOverdueSummary struct {
	FarmerID    int64
	EarliestDue time.Time
	TotalCents  int64
	Count       int64
}

// OverdueSummariesByFarmer возвращает по каждому фермеру самую раннюю просроченную дату и общую сумму просрочки.
func (r *PostgresRepository) OverdueSummariesByFarmer(ctx context.Context) ([]FarmerOverdueSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.farmer_id, MIN(s.due_date), COALESCE(SUM(s.total), 0), COUNT(*)
		 FROM repayment_schedules s
		 JOIN financing_applications a ON a.id = s.application_id
		 WHERE s.status = $1
		 GROUP BY a.farmer_id`,
		string(model.InstallmentOverdue),
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue summaries: %w", err)
	}
	defer rows.Close()

	var res []FarmerOverdueSummary
	for rows.Next() {
		var s FarmerOverdueSummary
		if err := rows.Scan(&s.FarmerID, &s.EarliestDue, &s.TotalCents, &s.Count); err != nil {
			return nil, fmt.Errorf("scan overdue summary: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpcomingInstallment — строка графика, срок которой скоро наступит.
type UpcomingInstallment struct {
	ApplicationID int64
	FarmerID      int64
	Number        int
	DueDate       time.Time
	TotalCents    int64
}

// ListInstallmentsDueBetween возвращает PENDING-строки графика со сроком в указанном интервале.
func (r *PostgresRepository) ListInstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]UpcomingInstallment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.application_id, a.farmer_id, s.installment_no, s.due_date, s.total
		 FROM repayment_schedules s
		 JOIN financing_applications a ON a.id = s.application_id
		 WHERE s.status = $1 AND s.due_date >= $2 AND s.due_date < $3
		 ORDER BY s.due_date`,
		string(model.InstallmentPending), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select upcoming installments: %w", err)
	}
	defer rows.Close()

	var res []UpcomingInstallment
	for rows.Next() {
		var u UpcomingInstallment
		if err := rows.Scan(&u.ApplicationID, &u.FarmerID, &u.Number, &u.DueDate, &u.TotalCents); err != nil {
			return nil, fmt.Errorf("scan upcoming installment: %w", err)
		}
		res = append(res, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// OverdueApplication — заявка с текущей просрочкой.
type OverdueApplication struct {
	ApplicationID int64
	FarmerID      int64
	Count         int64
	TotalCents    int64
}

// ListApplicationsWithOverdue возвращает заявки, имеющие просроченные строки графика.
func (r *PostgresRepository) ListApplicationsWithOverdue(ctx context.Context) ([]OverdueApplication, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.application_id, a.farmer_id, COUNT(*), COALESCE(SUM(s.total), 0)
		 FROM repayment_schedules s
		 JOIN financing_applications a ON a.id = s.application_id
		 WHERE s.status = $1
		 GROUP BY s.application_id, a.farmer_id
		 ORDER BY s.application_id`,
		string(model.InstallmentOverdue),
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue applications: %w", err)
	}
	defer rows.Close()

	var res []OverdueApplication
	for rows.Next() {
		var o OverdueApplication
		if err := rows.Scan(&o.ApplicationID, &o.FarmerID, &o.Count, &o.TotalCents); err != nil {
			return nil, fmt.Errorf("scan overdue application: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// InstallmentStatusCounts возвращает количество строк графика заявки в разрезе статусов.
func (r *PostgresRepository) InstallmentStatusCounts(ctx context.Context, applicationID int64) (map[model.InstallmentStatus]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM repayment_schedules WHERE application_id = $1 GROUP BY status`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("count installments: %w", err)
	}
	defer rows.Close()

	res := make(map[model.InstallmentStatus]int64)
	for rows.Next() {
		var status string
		var cnt int64
		if err := rows.Scan(&status, &cnt); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		res[model.InstallmentStatus(status)] = cnt
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// OverduePortfolio возвращает число заявок с просрочкой старше minDays и её общую сумму
// по активному (DISBURSED/REPAYING) портфелю.
func (r *PostgresRepository) OverduePortfolio(ctx context.Context, asOf time.Time, minDays int) (int64, int64, error) {
	cutoff := asOf.AddDate(0, 0, -minDays)

	var count, amount int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT s.application_id), COALESCE(SUM(s.total), 0)
		 FROM repayment_schedules s
		 JOIN financing_applications a ON a.id = s.application_id
		 WHERE s.status = $1 AND s.due_date < $2 AND a.status = ANY($3)`,
		string(model.InstallmentOverdue), cutoff,
		[]string{string(model.ApplicationStatusDisbursed), string(model.ApplicationStatusRepaying)},
	).Scan(&count, &amount)
	if err != nil {
		return 0, 0, fmt.Errorf("overdue portfolio: %w", err)
	}
	return count, amount, nil
}

// OutstandingPrincipal возвращает непогашенный основной долг активного портфеля.
func (r *PostgresRepository) OutstandingPrincipal(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(s.principal), 0)
		 FROM repayment_schedules s
		 JOIN financing_applications a ON a.id = s.application_id
		 WHERE s.status <> $1 AND a.status = ANY($2)`,
		string(model.InstallmentPaid),
		[]string{string(model.ApplicationStatusDisbursed), string(model.ApplicationStatusRepaying)},
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("outstanding principal: %w", err)
	}
	return total, nil
}
