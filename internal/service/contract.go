package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

const bankName = "AgroCredit Bank"

// GenerateContract формирует договор финансирования по одобренной заявке.
// Имя фермера подтягивается из справочника пользователей; при его недоступности
// подставляется заглушка, чтобы не блокировать выдачу.
func (s *Service) GenerateContract(ctx context.Context, officerID, applicationID int64) (*model.Contract, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationStatusApproved {
		return nil, fmt.Errorf("%w: cannot generate contract for application %d in status %s", ErrInvalidState, app.ID, app.Status)
	}

	farmerName := fmt.Sprintf("farmer-%d", app.FarmerID)
	if user, err := s.identity.GetUser(ctx, app.FarmerID); err != nil {
		s.logger.Warn("identity lookup failed, using placeholder name",
			zap.Int64("farmer", app.FarmerID), zap.Error(err))
	} else {
		farmerName = user.Name
	}

	contract := &model.Contract{
		ApplicationID: app.ID,
		Number:        contractNumber(),
		Status:        model.ContractStatusDraft,
		FarmerName:    farmerName,
		BankName:      bankName,
		AmountCents:   app.AmountCents,
		AnnualRateBP:  app.AnnualRateBP,
		TermMonths:    app.TermMonths,
		Purpose:       app.Purpose,
	}

	id, err := s.repo.CreateContract(ctx, contract)
	if err != nil {
		return nil, err
	}
	contract.ID = id

	if err := s.repo.SetContractID(ctx, app.ID, id); err != nil {
		return nil, err
	}

	if err := s.notifier.SendContractSignReminder(ctx, app.FarmerID, app.ID, contract.Number); err != nil {
		s.logger.Warn("contract sign reminder failed", zap.Int64("application", app.ID), zap.Error(err))
	}

	s.audit(ctx, model.ActorOfficer, officerID, "generate_contract", fmt.Sprintf("contract:%d", id))

	return contract, nil
}

// contractNumber порождает уникальный номер договора вида AGL-2026-XXXXXXXX.
func contractNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("AGL-%d-%s", time.Now().Year(), suffix)
}

// SignContract регистрирует подпись одной из сторон договора.
// После подписи обеими сторонами договор переходит в SIGNED,
// а заявка — из APPROVED в SIGNED.
func (s *Service) SignContract(ctx context.Context, actor model.ActorType, actorID, contractID int64, party model.ContractParty, signURL string) (*model.Contract, error) {
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != model.ContractStatusDraft {
		return nil, fmt.Errorf("%w: contract %d is not awaiting signatures", ErrInvalidState, contractID)
	}

	switch party {
	case model.PartyFarmer:
		if contract.FarmerSignedAt != nil {
			return nil, fmt.Errorf("%w: farmer already signed contract %d", ErrInvalidState, contractID)
		}
	case model.PartyBank:
		if contract.BankSignedAt != nil {
			return nil, fmt.Errorf("%w: bank already signed contract %d", ErrInvalidState, contractID)
		}
	default:
		return nil, fmt.Errorf("%w: unknown contract party %q", ErrValidation, party)
	}

	now := time.Now()
	if err := s.repo.SetContractSignature(ctx, contractID, party, signURL, now); err != nil {
		return nil, err
	}
	switch party {
	case model.PartyFarmer:
		contract.FarmerSignURL = signURL
		contract.FarmerSignedAt = &now
	case model.PartyBank:
		contract.BankSignURL = signURL
		contract.BankSignedAt = &now
	}

	if contract.FullySigned() {
		if err := s.repo.SetContractStatus(ctx, contractID, model.ContractStatusSigned); err != nil {
			return nil, err
		}
		contract.Status = model.ContractStatusSigned

		app, err := s.repo.GetApplication(ctx, contract.ApplicationID)
		if err != nil {
			return nil, err
		}
		if err := s.transition(ctx, app, model.ApplicationStatusSigned, actor, actorID, "sign", fmt.Sprintf("contract %s fully signed", contract.Number)); err != nil {
			return nil, err
		}
		if err := s.repo.SetSigned(ctx, app.ID, now); err != nil {
			return nil, err
		}
	}

	s.audit(ctx, actor, actorID, "sign_contract", fmt.Sprintf("contract:%d party:%s", contractID, party))

	return contract, nil
}

// GetContract возвращает договор по идентификатору.
func (s *Service) GetContract(ctx context.Context, id int64) (*model.Contract, error) {
	return s.repo.GetContract(ctx, id)
}

// GetContractByApplication возвращает договор по заявке.
func (s *Service) GetContractByApplication(ctx context.Context, applicationID int64) (*model.Contract, error) {
	return s.repo.GetContractByApplication(ctx, applicationID)
}
