package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
	"github.com/mmeshcher/agroloan-system/internal/validation"
)

// Disburse проводит выдачу средств по подписанной заявке: проверяет счета,
// создаёт запись выдачи и переводит заявку в DISBURSED.
// Повторная выдача по той же заявке невозможна (уникальность в хранилище).
func (s *Service) Disburse(ctx context.Context, officerID, applicationID int64, bankAccount, farmerAccount string) (*model.Disbursement, error) {
	if !validation.IsValidAccountNumber(bankAccount) {
		return nil, fmt.Errorf("%w: invalid bank account number", ErrValidation)
	}
	if !validation.IsValidAccountNumber(farmerAccount) {
		return nil, fmt.Errorf("%w: invalid farmer account number", ErrValidation)
	}

	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationStatusSigned {
		return nil, fmt.Errorf("%w: cannot disburse application %d in status %s", ErrInvalidState, app.ID, app.Status)
	}

	contract, err := s.repo.GetContractByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if contract.Status != model.ContractStatusSigned {
		return nil, fmt.Errorf("%w: contract %s is not fully signed", ErrInvalidState, contract.Number)
	}

	now := time.Now()
	disb := &model.Disbursement{
		ApplicationID: app.ID,
		AmountCents:   app.AmountCents,
		BankAccount:   bankAccount,
		FarmerAccount: farmerAccount,
		Status:        model.DisbursementSuccess,
		TxnRef:        uuid.NewString(),
		CreatedAt:     now,
	}
	id, err := s.repo.CreateDisbursement(ctx, disb)
	if err != nil {
		return nil, err
	}
	disb.ID = id

	if err := s.repo.SetDisbursed(ctx, app.ID, app.AmountCents, now); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, app, model.ApplicationStatusDisbursed, model.ActorOfficer, officerID, "disburse", fmt.Sprintf("txn %s", disb.TxnRef)); err != nil {
		return nil, err
	}

	s.logger.Info("funds disbursed",
		zap.Int64("application", app.ID),
		zap.Int64("amount_cents", app.AmountCents),
		zap.String("txn", disb.TxnRef))

	s.audit(ctx, model.ActorOfficer, officerID, "disburse", fmt.Sprintf("application:%d", applicationID))

	return disb, nil
}

// GetDisbursement возвращает запись выдачи по заявке.
func (s *Service) GetDisbursement(ctx context.Context, applicationID int64) (*model.Disbursement, error) {
	return s.repo.GetDisbursementByApplication(ctx, applicationID)
}
