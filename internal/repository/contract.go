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

const contractColumns = `id, application_id, number, status, farmer_name, bank_name, amount, annual_rate_bp,
	term_months, purpose, farmer_sign_url, farmer_signed_at, bank_sign_url, bank_signed_at, created_at`

func scanContract(row pgx.Row) (*model.Contract, error) {
	var c model.Contract
	var status string
	err := row.Scan(&c.ID, &c.ApplicationID, &c.Number, &status, &c.FarmerName, &c.BankName,
		&c.AmountCents, &c.AnnualRateBP, &c.TermMonths, &c.Purpose,
		&c.FarmerSignURL, &c.FarmerSignedAt, &c.BankSignURL, &c.BankSignedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.ContractStatus(status)
	return &c, nil
}

// CreateContract сохраняет новый договор в статусе DRAFT.
// По одной заявке допускается только один договор.
func (r *PostgresRepository) CreateContract(ctx context.Context, c *model.Contract) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO contracts (application_id, number, status, farmer_name, bank_name, amount, annual_rate_bp, term_months, purpose)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		c.ApplicationID, c.Number, string(c.Status), c.FarmerName, c.BankName,
		c.AmountCents, c.AnnualRateBP, c.TermMonths, c.Purpose,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, ErrContractExists
		}
		return 0, fmt.Errorf("create contract: %w", err)
	}
	return id, nil
}

// GetContract возвращает договор по идентификатору.
func (r *PostgresRepository) GetContract(ctx context.Context, id int64) (*model.Contract, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)

	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

// GetContractByApplication возвращает договор по идентификатору заявки.
func (r *PostgresRepository) GetContractByApplication(ctx context.Context, applicationID int64) (*model.Contract, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE application_id = $1`, applicationID)

	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("get contract by application: %w", err)
	}
	return c, nil
}

// SetContractSignature сохраняет подпись одной из сторон договора.
func (r *PostgresRepository) SetContractSignature(ctx context.Context, id int64, party model.ContractParty, signURL string, at time.Time) error {
	var query string
	switch party {
	case model.PartyFarmer:
		query = `UPDATE contracts SET farmer_sign_url = $2, farmer_signed_at = $3 WHERE id = $1`
	case model.PartyBank:
		query = `UPDATE contracts SET bank_sign_url = $2, bank_signed_at = $3 WHERE id = $1`
	default:
		return fmt.Errorf("unknown contract party %q", party)
	}

	cmdTag, err := r.pool.Exec(ctx, query, id, signURL, at)
	if err != nil {
		return fmt.Errorf("set contract signature: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrContractNotFound
	}
	return nil
}

// SetContractStatus обновляет статус договора.
func (r *PostgresRepository) SetContractStatus(ctx context.Context, id int64, status model.ContractStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE contracts SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("set contract status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrContractNotFound
	}
	return nil
}

// CreateDisbursement сохраняет факт выдачи средств. По заявке допускается одна выдача.
func (r *PostgresRepository) CreateDisbursement(ctx context.Context, d *model.Disbursement) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO disbursements (application_id, amount, bank_account, farmer_account, status, txn_ref)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		d.ApplicationID, d.AmountCents, d.BankAccount, d.FarmerAccount, string(d.Status), d.TxnRef,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, ErrDisbursementExists
		}
		return 0, fmt.Errorf("create disbursement: %w", err)
	}
	return id, nil
}

// GetDisbursementByApplication возвращает выдачу средств по идентификатору заявки.
func (r *PostgresRepository) GetDisbursementByApplication(ctx context.Context, applicationID int64) (*model.Disbursement, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, application_id, amount, bank_account, farmer_account, status, txn_ref, created_at
		 FROM disbursements WHERE application_id = $1`,
		applicationID,
	)

	var d model.Disbursement
	var status string
	err := row.Scan(&d.ID, &d.ApplicationID, &d.AmountCents, &d.BankAccount, &d.FarmerAccount,
		&status, &d.TxnRef, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("get disbursement: %w", err)
	}
	d.Status = model.DisbursementStatus(status)

	return &d, nil
}
