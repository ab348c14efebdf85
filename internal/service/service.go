// Package service реализует бизнес-логику кредитного движка.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/identity"
	"github.com/mmeshcher/agroloan-system/internal/model"
	"github.com/mmeshcher/agroloan-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	AppendAudit(ctx context.Context, actorType string, actorID int64, action, target string) error

	CreateProduct(ctx context.Context, p *model.LoanProduct) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.LoanProduct, error)
	ListProducts(ctx context.Context) ([]model.LoanProduct, error)

	CreateApplication(ctx context.Context, a *model.FinancingApplication) (int64, error)
	GetApplication(ctx context.Context, id int64) (*model.FinancingApplication, error)
	ListApplicationsByFarmer(ctx context.Context, farmerID int64) ([]model.FinancingApplication, error)
	ListApplicationsByStatuses(ctx context.Context, statuses ...model.ApplicationStatus) ([]model.FinancingApplication, error)
	UpdateApplicationStatus(ctx context.Context, id int64, from []model.ApplicationStatus, to model.ApplicationStatus) error
	SetReview(ctx context.Context, id, reviewerID int64, comment string, rateBP int64, at time.Time) error
	SetContractID(ctx context.Context, id, contractID int64) error
	SetSigned(ctx context.Context, id int64, at time.Time) error
	SetDisbursed(ctx context.Context, id, amountCents int64, at time.Time) error
	AppendTimeline(ctx context.Context, e *model.TimelineEntry) error
	GetTimeline(ctx context.Context, applicationID int64) ([]model.TimelineEntry, error)
	CountApplicationsByStatus(ctx context.Context) (map[model.ApplicationStatus]int64, error)
	DisbursedTotalBetween(ctx context.Context, from, to time.Time) (int64, error)
	DisbursedMonthlyTrend(ctx context.Context, from, to time.Time) ([]repository.MonthlyTrendPoint, error)

	CreateContract(ctx context.Context, c *model.Contract) (int64, error)
	GetContract(ctx context.Context, id int64) (*model.Contract, error)
	GetContractByApplication(ctx context.Context, applicationID int64) (*model.Contract, error)
	SetContractSignature(ctx context.Context, id int64, party model.ContractParty, signURL string, at time.Time) error
	SetContractStatus(ctx context.Context, id int64, status model.ContractStatus) error
	CreateDisbursement(ctx context.Context, d *model.Disbursement) (int64, error)
	GetDisbursementByApplication(ctx context.Context, applicationID int64) (*model.Disbursement, error)

	InsertInstallments(ctx context.Context, installments []model.Installment) error
	GetInstallments(ctx context.Context, applicationID int64) ([]model.Installment, error)
	GetInstallment(ctx context.Context, applicationID int64, number int) (*model.Installment, error)
	MarkInstallmentPaid(ctx context.Context, id, paidCents int64, at time.Time) error
	CountUnpaidInstallments(ctx context.Context, applicationID int64) (int64, error)
	SweepOverdue(ctx context.Context, asOf time.Time) (int64, error)
	InsertRepaymentRecord(ctx context.Context, rec *model.RepaymentRecord) error
	ListRepaymentRecords(ctx context.Context, applicationID int64) ([]model.RepaymentRecord, error)
	SumRepaid(ctx context.Context, applicationID int64) (int64, int64, error)
	SumInstallmentsByStatus(ctx context.Context, applicationID int64, status model.InstallmentStatus) (int64, int64, error)
	ListOverdueInstallments(ctx context.Context, applicationID int64) ([]model.Installment, error)
	OverdueSummariesByFarmer(ctx context.Context) ([]repository.FarmerOverdueSummary, error)
	ListApplicationsWithOverdue(ctx context.Context) ([]repository.OverdueApplication, error)
	ListInstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]repository.UpcomingInstallment, error)
	InstallmentStatusCounts(ctx context.Context, applicationID int64) (map[model.InstallmentStatus]int64, error)
	OverduePortfolio(ctx context.Context, asOf time.Time, minDays int) (int64, int64, error)
	OutstandingPrincipal(ctx context.Context) (int64, error)

	CreateGroup(ctx context.Context, g *model.JointLoanGroup, creator *model.JointLoanMember) (int64, error)
	GetGroup(ctx context.Context, id int64) (*model.JointLoanGroup, error)
	ListMembers(ctx context.Context, groupID int64) ([]model.JointLoanMember, error)
	JoinGroup(ctx context.Context, groupID, farmerID, amountCents int64, purpose string) (bool, error)
	QuitGroup(ctx context.Context, groupID, farmerID int64) (bool, error)
	UpdateGroupStatus(ctx context.Context, id int64, from, to model.GroupStatus) error
	UpdateMemberStatus(ctx context.Context, memberID int64, status model.MemberStatus) error
	ListOpenGroupsExcluding(ctx context.Context, farmerID int64) ([]repository.GroupCandidate, error)

	UpsertReconciliation(ctx context.Context, rec *model.ReconciliationRecord) error
	ListReconciliations(ctx context.Context, from, to time.Time) ([]model.ReconciliationRecord, error)
	CountReconciliations(ctx context.Context, from, to time.Time) (*repository.ReconciliationStats, error)
	InsertRiskIndicator(ctx context.Context, ind *model.RiskIndicator) (bool, error)
	GetRiskIndicator(ctx context.Context, date time.Time) (*model.RiskIndicator, error)
	LatestRiskIndicator(ctx context.Context) (*model.RiskIndicator, error)
	ActivePortfolio(ctx context.Context) (int64, int64, error)
	JointLoanCounts(ctx context.Context) (int64, int64, error)
	SaveCreditScore(ctx context.Context, s *model.CreditScore) error
	GetCreditScore(ctx context.Context, applicationID int64) (*model.CreditScore, error)
	ListLowCreditScores(ctx context.Context, threshold float64) ([]repository.LowScore, error)
}

// Notifier описывает контракт внешнего сервиса уведомлений.
// Отправки односторонние: ошибка логируется и не влияет на породившее её изменение.
type Notifier interface {
	SendApprovalNotification(ctx context.Context, farmerID, applicationID int64, approved bool, comment string) error
	SendContractSignReminder(ctx context.Context, farmerID, applicationID int64, contractNumber string) error
	SendRepaymentReminder(ctx context.Context, farmerID, applicationID int64, installmentNo int, dueDate time.Time, amount float64) error
	SendOverdueAlert(ctx context.Context, farmerID int64, earliestDue time.Time, totalAmount float64) error
}

// IdentityProvider описывает контракт справочника пользователей платформы.
type IdentityProvider interface {
	GetUser(ctx context.Context, id int64) (*identity.User, error)
}

// Service содержит бизнес-логику кредитного движка.
type Service struct {
	repo     Repository
	notifier Notifier
	identity IdentityProvider
	logger   *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и внешними клиентами.
func NewService(repo Repository, notifier Notifier, identity IdentityProvider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		identity: identity,
		logger:   logger,
	}
}

// VerifyActor проверяет, что участник платформы известен справочнику пользователей.
// Используется при выдаче сессионной cookie.
func (s *Service) VerifyActor(ctx context.Context, actorType model.ActorType, id int64) error {
	if actorType != model.ActorFarmer && actorType != model.ActorOfficer {
		return fmt.Errorf("%w: actor type %s cannot log in", ErrValidation, actorType)
	}
	if _, err := s.identity.GetUser(ctx, id); err != nil {
		return fmt.Errorf("verify actor %d: %w", id, err)
	}
	return nil
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// audit добавляет запись в журнал операций. Сбой записи не считается фатальным.
func (s *Service) audit(ctx context.Context, actorType model.ActorType, actorID int64, action, target string) {
	if err := s.repo.AppendAudit(ctx, string(actorType), actorID, action, target); err != nil {
		s.logger.Warn("append audit failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
