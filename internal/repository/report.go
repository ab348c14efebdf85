package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// UpsertReconciliation записывает результат сверки по заявке за день.
// Повторный запуск за ту же дату перезаписывает строку, а не создаёт дубликат (ключ: заявка + дата).
func (r *PostgresRepository) UpsertReconciliation(ctx context.Context, rec *model.ReconciliationRecord) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO reconciliation_records
			   (application_id, record_date, disbursed, repaid_principal, repaid_interest,
			    pending_principal, pending_interest, overdue_principal, overdue_interest, penalty, status, reason)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (application_id, record_date) DO UPDATE SET
			   disbursed = EXCLUDED.disbursed,
			   repaid_principal = EXCLUDED.repaid_principal,
			   repaid_interest = EXCLUDED.repaid_interest,
			   pending_principal = EXCLUDED.pending_principal,
			   pending_interest = EXCLUDED.pending_interest,
			   overdue_principal = EXCLUDED.overdue_principal,
			   overdue_interest = EXCLUDED.overdue_interest,
			   penalty = EXCLUDED.penalty,
			   status = EXCLUDED.status,
			   reason = EXCLUDED.reason`,
			rec.ApplicationID, rec.RecordDate, rec.DisbursedCents,
			rec.RepaidPrincipalCents, rec.RepaidInterestCents,
			rec.PendingPrincipalCents, rec.PendingInterestCents,
			rec.OverduePrincipalCents, rec.OverdueInterestCents,
			rec.PenaltyCents, string(rec.Status), rec.Reason,
		)
		if err != nil {
			return fmt.Errorf("upsert reconciliation: %w", err)
		}
		return nil
	})
}

// ListReconciliations возвращает результаты сверок за период дат.
func (r *PostgresRepository) ListReconciliations(ctx context.Context, from, to time.Time) ([]model.ReconciliationRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, application_id, record_date, disbursed, repaid_principal, repaid_interest,
		        pending_principal, pending_interest, overdue_principal, overdue_interest, penalty, status, reason, created_at
		 FROM reconciliation_records
		 WHERE record_date >= $1 AND record_date <= $2
		 ORDER BY record_date, application_id`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select reconciliations: %w", err)
	}
	defer rows.Close()

	var res []model.ReconciliationRecord
	for rows.Next() {
		var rec model.ReconciliationRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.ApplicationID, &rec.RecordDate, &rec.DisbursedCents,
			&rec.RepaidPrincipalCents, &rec.RepaidInterestCents,
			&rec.PendingPrincipalCents, &rec.PendingInterestCents,
			&rec.OverduePrincipalCents, &rec.OverdueInterestCents,
			&rec.PenaltyCents, &status, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		rec.Status = model.ReconStatus(status)
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReconciliationStats — сводка сверок за период.
type ReconciliationStats struct {
	Total       int64
	Normal      int64
	Differences int64
}

// CountReconciliations возвращает сводку сверок за период дат.
func (r *PostgresRepository) CountReconciliations(ctx context.Context, from, to time.Time) (*ReconciliationStats, error) {
	var s ReconciliationStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $3),
		        COUNT(*) FILTER (WHERE status = $4)
		 FROM reconciliation_records
		 WHERE record_date >= $1 AND record_date <= $2`,
		from, to, string(model.ReconNormal), string(model.ReconDifference),
	).Scan(&s.Total, &s.Normal, &s.Differences)
	if err != nil {
		return nil, fmt.Errorf("count reconciliations: %w", err)
	}
	return &s, nil
}

// InsertRiskIndicator записывает дневной срез рисков.
// Не более одной строки на дату: повторная вставка за ту же дату не выполняется.
// Возвращает признак того, что строка была вставлена.
func (r *PostgresRepository) InsertRiskIndicator(ctx context.Context, ind *model.RiskIndicator) (bool, error) {
	var inserted bool

	err := r.withRetry(ctx, func(ctx context.Context) error {
		cmdTag, err := r.pool.Exec(ctx,
			`INSERT INTO risk_indicators
			   (indicator_date, total_count, total_amount, overdue_count, overdue_amount, overdue_rate,
			    bad_debt_count, bad_debt_amount, bad_debt_rate, credit_balance, joint_loan_rate)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (indicator_date) DO NOTHING`,
			ind.IndicatorDate, ind.TotalCount, ind.TotalCents, ind.OverdueCount, ind.OverdueCents, ind.OverdueRate,
			ind.BadDebtCount, ind.BadDebtCents, ind.BadDebtRate, ind.CreditBalanceCents, ind.JointLoanRate,
		)
		if err != nil {
			return fmt.Errorf("insert risk indicator: %w", err)
		}
		inserted = cmdTag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

const riskIndicatorColumns = `id, indicator_date, total_count, total_amount, overdue_count, overdue_amount, overdue_rate,
	bad_debt_count, bad_debt_amount, bad_debt_rate, credit_balance, joint_loan_rate, created_at`

func scanRiskIndicator(row pgx.Row) (*model.RiskIndicator, error) {
	var ind model.RiskIndicator
	err := row.Scan(&ind.ID, &ind.IndicatorDate, &ind.TotalCount, &ind.TotalCents,
		&ind.OverdueCount, &ind.OverdueCents, &ind.OverdueRate,
		&ind.BadDebtCount, &ind.BadDebtCents, &ind.BadDebtRate,
		&ind.CreditBalanceCents, &ind.JointLoanRate, &ind.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ind, nil
}

// GetRiskIndicator возвращает срез рисков за указанную дату, nil — если среза нет.
func (r *PostgresRepository) GetRiskIndicator(ctx context.Context, date time.Time) (*model.RiskIndicator, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+riskIndicatorColumns+` FROM risk_indicators WHERE indicator_date = $1`, date)

	ind, err := scanRiskIndicator(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get risk indicator: %w", err)
	}
	return ind, nil
}

// LatestRiskIndicator возвращает последний по дате срез рисков, nil — если срезов ещё нет.
func (r *PostgresRepository) LatestRiskIndicator(ctx context.Context) (*model.RiskIndicator, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT ` + riskIndicatorColumns + ` FROM risk_indicators ORDER BY indicator_date DESC LIMIT 1`)

	ind, err := scanRiskIndicator(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest risk indicator: %w", err)
	}
	return ind, nil
}

// ActivePortfolio возвращает число активных (DISBURSED/REPAYING) заявок и сумму выданных по ним средств.
func (r *PostgresRepository) ActivePortfolio(ctx context.Context) (int64, int64, error) {
	var count, amount int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(disbursed_amount), 0)
		 FROM financing_applications
		 WHERE status = ANY($1)`,
		[]string{string(model.ApplicationStatusDisbursed), string(model.ApplicationStatusRepaying)},
	).Scan(&count, &amount)
	if err != nil {
		return 0, 0, fmt.Errorf("active portfolio: %w", err)
	}
	return count, amount, nil
}

// JointLoanCounts возвращает число активных заявок и число активных заявок, созданных из групп совместного займа.
func (r *PostgresRepository) JointLoanCounts(ctx context.Context) (int64, int64, error) {
	var total, joint int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE joint_group_id IS NOT NULL)
		 FROM financing_applications
		 WHERE status = ANY($1)`,
		[]string{string(model.ApplicationStatusDisbursed), string(model.ApplicationStatusRepaying)},
	).Scan(&total, &joint)
	if err != nil {
		return 0, 0, fmt.Errorf("joint loan counts: %w", err)
	}
	return total, joint, nil
}

// SaveCreditScore сохраняет скоринговый снимок заявки. Повторный скоринг перезаписывает снимок.
func (r *PostgresRepository) SaveCreditScore(ctx context.Context, s *model.CreditScore) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO credit_scores
		   (application_id, history_score, income_score, asset_score, debt_ratio_score, experience_score,
		    total_score, tier, credit_line)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (application_id) DO UPDATE SET
		   history_score = EXCLUDED.history_score,
		   income_score = EXCLUDED.income_score,
		   asset_score = EXCLUDED.asset_score,
		   debt_ratio_score = EXCLUDED.debt_ratio_score,
		   experience_score = EXCLUDED.experience_score,
		   total_score = EXCLUDED.total_score,
		   tier = EXCLUDED.tier,
		   credit_line = EXCLUDED.credit_line`,
		s.ApplicationID, s.HistoryScore, s.IncomeScore, s.AssetScore, s.DebtRatioScore, s.ExperienceScore,
		s.TotalScore, string(s.Tier), s.CreditLineCents,
	)
	if err != nil {
		return fmt.Errorf("save credit score: %w", err)
	}
	return nil
}

// GetCreditScore возвращает скоринговый снимок заявки.
func (r *PostgresRepository) GetCreditScore(ctx context.Context, applicationID int64) (*model.CreditScore, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, application_id, history_score, income_score, asset_score, debt_ratio_score, experience_score,
		        total_score, tier, credit_line, created_at
		 FROM credit_scores WHERE application_id = $1`,
		applicationID,
	)

	var s model.CreditScore
	var tier string
	err := row.Scan(&s.ID, &s.ApplicationID, &s.HistoryScore, &s.IncomeScore, &s.AssetScore,
		&s.DebtRatioScore, &s.ExperienceScore, &s.TotalScore, &tier, &s.CreditLineCents, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScoreNotFound
		}
		return nil, fmt.Errorf("get credit score: %w", err)
	}
	s.Tier = model.RiskTier(tier)

	return &s, nil
}

// LowScore — заявка со скорингом ниже порога.
type LowScore struct {
	ApplicationID int64
	FarmerID      int64
	TotalScore    float64
}

// ListLowCreditScores возвращает заявки со скорингом ниже порога.
func (r *PostgresRepository) ListLowCreditScores(ctx context.Context, threshold float64) ([]LowScore, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.application_id, a.farmer_id, s.total_score
		 FROM credit_scores s
		 JOIN financing_applications a ON a.id = s.application_id
		 WHERE s.total_score < $1
		 ORDER BY s.total_score`,
		threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("select low credit scores: %w", err)
	}
	defer rows.Close()

	var res []LowScore
	for rows.Next() {
		var ls LowScore
		if err := rows.Scan(&ls.ApplicationID, &ls.FarmerID, &ls.TotalScore); err != nil {
			return nil, fmt.Errorf("scan low score: %w", err)
		}
		res = append(res, ls)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
