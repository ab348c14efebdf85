package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// CreateProduct сохраняет новый кредитный продукт и возвращает его идентификатор.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.LoanProduct) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO loan_products (name, annual_rate_bp, min_amount, max_amount, min_term_months, max_term_months, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.Name, p.AnnualRateBP, p.MinAmountCents, p.MaxAmountCents, p.MinTermMonths, p.MaxTermMonths, string(p.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// GetProduct возвращает кредитный продукт по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.LoanProduct, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, annual_rate_bp, min_amount, max_amount, min_term_months, max_term_months, status, created_at
		 FROM loan_products WHERE id = $1`,
		id,
	)

	var p model.LoanProduct
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.AnnualRateBP, &p.MinAmountCents, &p.MaxAmountCents,
		&p.MinTermMonths, &p.MaxTermMonths, &status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p.Status = model.ProductStatus(status)

	return &p, nil
}

// ListProducts возвращает все кредитные продукты, сначала новые.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.LoanProduct, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, annual_rate_bp, min_amount, max_amount, min_term_months, max_term_months, status, created_at
		 FROM loan_products ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.LoanProduct
	for rows.Next() {
		var p model.LoanProduct
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.AnnualRateBP, &p.MinAmountCents, &p.MaxAmountCents,
			&p.MinTermMonths, &p.MaxTermMonths, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Status = model.ProductStatus(status)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

const applicationColumns = `id, farmer_id, product_id, joint_group_id, amount, term_months, purpose, annual_rate_bp,
	status, reviewer_id, reviewed_at, review_comment, contract_id, disbursed_amount, disbursed_at, signed_at, created_at`

func scanApplication(row pgx.Row) (*model.FinancingApplication, error) {
	var a model.FinancingApplication
	var status string
	err := row.Scan(&a.ID, &a.FarmerID, &a.ProductID, &a.JointGroupID, &a.AmountCents, &a.TermMonths,
		&a.Purpose, &a.AnnualRateBP, &status, &a.ReviewerID, &a.ReviewedAt, &a.ReviewComment,
		&a.ContractID, &a.DisbursedCents, &a.DisbursedAt, &a.SignedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = model.ApplicationStatus(status)
	return &a, nil
}

// CreateApplication сохраняет новую заявку в статусе APPLIED и возвращает её идентификатор.
func (r *PostgresRepository) CreateApplication(ctx context.Context, a *model.FinancingApplication) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO financing_applications (farmer_id, product_id, joint_group_id, amount, term_months, purpose, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		a.FarmerID, a.ProductID, a.JointGroupID, a.AmountCents, a.TermMonths, a.Purpose, string(a.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create application: %w", err)
	}
	return id, nil
}

// GetApplication возвращает заявку по идентификатору.
func (r *PostgresRepository) GetApplication(ctx context.Context, id int64) (*model.FinancingApplication, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM financing_applications WHERE id = $1`, id)

	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// ListApplicationsByFarmer возвращает заявки фермера, сначала новые.
func (r *PostgresRepository) ListApplicationsByFarmer(ctx context.Context, farmerID int64) ([]model.FinancingApplication, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM financing_applications WHERE farmer_id = $1 ORDER BY created_at DESC`,
		farmerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select applications: %w", err)
	}
	defer rows.Close()

	return collectApplications(rows)
}

// ListApplicationsByStatuses возвращает заявки в любом из указанных статусов.
func (r *PostgresRepository) ListApplicationsByStatuses(ctx context.Context, statuses ...model.ApplicationStatus) ([]model.FinancingApplication, error) {
	ss := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ss = append(ss, string(s))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM financing_applications WHERE status = ANY($1) ORDER BY created_at`,
		ss,
	)
	if err != nil {
		return nil, fmt.Errorf("select applications by status: %w", err)
	}
	defer rows.Close()

	return collectApplications(rows)
}

func collectApplications(rows pgx.Rows) ([]model.FinancingApplication, error) {
	var res []model.FinancingApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		res = append(res, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateApplicationStatus переводит заявку из одного из ожидаемых статусов в новый.
// Перевод выполняется как compare-and-swap: при конкурентном изменении возвращается ErrStateConflict.
func (r *PostgresRepository) UpdateApplicationStatus(ctx context.Context, id int64, from []model.ApplicationStatus, to model.ApplicationStatus) error {
	ss := make([]string, 0, len(from))
	for _, s := range from {
		ss = append(ss, string(s))
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE financing_applications SET status = $2 WHERE id = $1 AND status = ANY($3)`,
		id, string(to), ss,
	)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetReview фиксирует результат рассмотрения: рецензента, время, комментарий и ставку.
func (r *PostgresRepository) SetReview(ctx context.Context, id, reviewerID int64, comment string, rateBP int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE financing_applications
		 SET reviewer_id = $2, reviewed_at = $3, review_comment = $4, annual_rate_bp = $5
		 WHERE id = $1`,
		id, reviewerID, at, comment, rateBP,
	)
	if err != nil {
		return fmt.Errorf("set review: %w", err)
	}
	return nil
}

// SetContractID привязывает договор к заявке.
func (r *PostgresRepository) SetContractID(ctx context.Context, id, contractID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE financing_applications SET contract_id = $2 WHERE id = $1`,
		id, contractID,
	)
	if err != nil {
		return fmt.Errorf("set contract id: %w", err)
	}
	return nil
}

// SetSigned фиксирует время подписания договора на заявке.
func (r *PostgresRepository) SetSigned(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE financing_applications SET signed_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("set signed: %w", err)
	}
	return nil
}

// SetDisbursed фиксирует сумму и время выдачи средств по заявке.
func (r *PostgresRepository) SetDisbursed(ctx context.Context, id, amountCents int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE financing_applications SET disbursed_amount = $2, disbursed_at = $3 WHERE id = $1`,
		id, amountCents, at,
	)
	if err != nil {
		return fmt.Errorf("set disbursed: %w", err)
	}
	return nil
}

// AppendTimeline добавляет запись в таймлайн заявки.
func (r *PostgresRepository) AppendTimeline(ctx context.Context, e *model.TimelineEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO application_timeline (application_id, actor_type, actor_id, action, note)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ApplicationID, string(e.ActorType), e.ActorID, e.Action, e.Note,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrApplicationNotFound
		}
		return fmt.Errorf("append timeline: %w", err)
	}
	return nil
}

// GetTimeline возвращает таймлайн заявки в порядке добавления.
func (r *PostgresRepository) GetTimeline(ctx context.Context, applicationID int64) ([]model.TimelineEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, application_id, actor_type, actor_id, action, note, created_at
		 FROM application_timeline WHERE application_id = $1 ORDER BY id`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select timeline: %w", err)
	}
	defer rows.Close()

	var res []model.TimelineEntry
	for rows.Next() {
		var e model.TimelineEntry
		var actorType string
		if err := rows.Scan(&e.ID, &e.ApplicationID, &actorType, &e.ActorID, &e.Action, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.ActorType = model.ActorType(actorType)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountApplicationsByStatus возвращает количество заявок в разрезе статусов.
func (r *PostgresRepository) CountApplicationsByStatus(ctx context.Context) (map[model.ApplicationStatus]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM financing_applications GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("count applications: %w", err)
	}
	defer rows.Close()

	res := make(map[model.ApplicationStatus]int64)
	for rows.Next() {
		var status string
		var cnt int64
		if err := rows.Scan(&status, &cnt); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		res[model.ApplicationStatus(status)] = cnt
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DisbursedTotalBetween возвращает сумму выдач за период в копейках.
func (r *PostgresRepository) DisbursedTotalBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(disbursed_amount), 0)
		 FROM financing_applications
		 WHERE disbursed_at >= $1 AND disbursed_at < $2`,
		from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum disbursed: %w", err)
	}
	return total, nil
}

// MonthlyTrendPoint — точка помесячного тренда выдач.
type MonthlyTrendPoint struct {
	Month       time.Time
	Count       int64
	AmountCents int64
}

// DisbursedMonthlyTrend возвращает помесячный тренд выдач за период.
func (r *PostgresRepository) DisbursedMonthlyTrend(ctx context.Context, from, to time.Time) ([]MonthlyTrendPoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date_trunc('month', disbursed_at) AS month, COUNT(*), COALESCE(SUM(disbursed_amount), 0)
		 FROM financing_applications
		 WHERE disbursed_at >= $1 AND disbursed_at < $2
		 GROUP BY month ORDER BY month`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select monthly trend: %w", err)
	}
	defer rows.Close()

	var res []MonthlyTrendPoint
	for rows.Next() {
		var p MonthlyTrendPoint
		if err := rows.Scan(&p.Month, &p.Count, &p.AmountCents); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
