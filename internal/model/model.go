// Package model содержит доменные сущности кредитного движка агромаркетплейса.
package model

import (
	"fmt"
	"time"
)

// ApplicationStatus описывает статус заявки на финансирование.
type ApplicationStatus string

const (
	ApplicationStatusApplied   ApplicationStatus = "APPLIED"
	ApplicationStatusReviewing ApplicationStatus = "REVIEWING"
	ApplicationStatusApproved  ApplicationStatus = "APPROVED"
	ApplicationStatusRejected  ApplicationStatus = "REJECTED"
	ApplicationStatusSigned    ApplicationStatus = "SIGNED"
	ApplicationStatusDisbursed ApplicationStatus = "DISBURSED"
	ApplicationStatusRepaying  ApplicationStatus = "REPAYING"
	ApplicationStatusSettled   ApplicationStatus = "SETTLED"
)

// ParseApplicationStatus валидирует статус заявки, полученный извне.
// Неизвестные значения отклоняются явно, а не приводятся к пустому статусу.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	switch ApplicationStatus(s) {
	case ApplicationStatusApplied, ApplicationStatusReviewing, ApplicationStatusApproved,
		ApplicationStatusRejected, ApplicationStatusSigned, ApplicationStatusDisbursed,
		ApplicationStatusRepaying, ApplicationStatusSettled:
		return ApplicationStatus(s), nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// FinancingApplication представляет заявку фермера на финансирование и её жизненный цикл.
type FinancingApplication struct {
	ID             int64
	FarmerID       int64
	ProductID      *int64
	JointGroupID   *int64
	AmountCents    int64
	TermMonths     int
	Purpose        string
	AnnualRateBP   int64 // годовая ставка в базисных пунктах, задаётся при одобрении
	Status         ApplicationStatus
	ReviewerID     *int64
	ReviewedAt     *time.Time
	ReviewComment  string
	ContractID     *int64
	DisbursedCents int64
	DisbursedAt    *time.Time
	SignedAt       *time.Time
	CreatedAt      time.Time
}

// ActorType описывает тип действующего лица в записях таймлайна и аудита.
type ActorType string

const (
	ActorFarmer  ActorType = "FARMER"
	ActorOfficer ActorType = "OFFICER"
	ActorSystem  ActorType = "SYSTEM"
)

// ParseActorType валидирует тип актора из внешнего запроса.
func ParseActorType(s string) (ActorType, error) {
	switch ActorType(s) {
	case ActorFarmer, ActorOfficer, ActorSystem:
		return ActorType(s), nil
	}
	return "", fmt.Errorf("unknown actor type %q", s)
}

// TimelineEntry — неизменяемая запись о переходе заявки. Таймлайн только дополняется.
type TimelineEntry struct {
	ID            int64
	ApplicationID int64
	ActorType     ActorType
	ActorID       int64
	Action        string
	Note          string
	CreatedAt     time.Time
}

// ProductStatus описывает доступность кредитного продукта.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusDisabled ProductStatus = "DISABLED"
)

// LoanProduct описывает кредитный продукт: ставку, диапазон сумм и сроков.
type LoanProduct struct {
	ID             int64
	Name           string
	AnnualRateBP   int64
	MinAmountCents int64
	MaxAmountCents int64
	MinTermMonths  int
	MaxTermMonths  int
	Status         ProductStatus
	CreatedAt      time.Time
}

// ContractStatus описывает статус договора.
type ContractStatus string

const (
	ContractStatusDraft  ContractStatus = "DRAFT"
	ContractStatusSigned ContractStatus = "SIGNED"
)

// ContractParty определяет подписанта договора.
type ContractParty string

const (
	PartyFarmer ContractParty = "FARMER"
	PartyBank   ContractParty = "BANK"
)

// ParseContractParty валидирует сторону договора из внешнего запроса.
func ParseContractParty(s string) (ContractParty, error) {
	switch ContractParty(s) {
	case PartyFarmer, PartyBank:
		return ContractParty(s), nil
	}
	return "", fmt.Errorf("unknown contract party %q", s)
}

// Contract — договор займа, один к одному с одобренной заявкой.
// Переходит в SIGNED только при наличии обеих подписей.
type Contract struct {
	ID             int64
	ApplicationID  int64
	Number         string
	Status         ContractStatus
	FarmerName     string
	BankName       string
	AmountCents    int64
	AnnualRateBP   int64
	TermMonths     int
	Purpose        string
	FarmerSignURL  string
	FarmerSignedAt *time.Time
	BankSignURL    string
	BankSignedAt   *time.Time
	CreatedAt      time.Time
}

// FullySigned сообщает, подписан ли договор обеими сторонами.
func (c *Contract) FullySigned() bool {
	return c.FarmerSignedAt != nil && c.BankSignedAt != nil
}

// DisbursementStatus описывает статус выдачи средств.
type DisbursementStatus string

const (
	DisbursementPending DisbursementStatus = "PENDING"
	DisbursementSuccess DisbursementStatus = "SUCCESS"
	DisbursementFailed  DisbursementStatus = "FAILED"
)

// Disbursement — факт выдачи средств по подписанному договору. Неизменяем после SUCCESS.
type Disbursement struct {
	ID            int64
	ApplicationID int64
	AmountCents   int64
	BankAccount   string
	FarmerAccount string
	Status        DisbursementStatus
	TxnRef        string
	CreatedAt     time.Time
}

// InstallmentStatus описывает статус планового платежа.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

// Installment — одна строка графика погашения.
// Номера строк непрерывны 1..N, сумма основного долга по строкам равна сумме займа.
type Installment struct {
	ID             int64
	ApplicationID  int64
	Number         int
	DueDate        time.Time
	PrincipalCents int64
	InterestCents  int64
	TotalCents     int64
	Status         InstallmentStatus
	PaidCents      int64
	PaidAt         *time.Time
}

// RepaymentRecord — запись журнала погашений, только дополняется.
type RepaymentRecord struct {
	ID             int64
	ApplicationID  int64
	InstallmentID  int64
	PrincipalCents int64
	InterestCents  int64
	PenaltyCents   int64
	PaidAt         time.Time
}

// GroupStatus описывает статус группы совместного займа.
type GroupStatus string

const (
	GroupStatusMatching  GroupStatus = "MATCHING"
	GroupStatusMatched   GroupStatus = "MATCHED"
	GroupStatusApplied   GroupStatus = "APPLIED"
	GroupStatusCancelled GroupStatus = "CANCELLED"
)

// JointLoanGroup — пул заявок ниже минимального порога продукта.
type JointLoanGroup struct {
	ID             int64
	CreatorID      int64
	ThresholdCents int64
	TargetCount    int
	Status         GroupStatus
	CreatedAt      time.Time
}

// MemberStatus описывает статус участника группы.
type MemberStatus string

const (
	MemberPending   MemberStatus = "PENDING"
	MemberConfirmed MemberStatus = "CONFIRMED"
)

// JointLoanMember — участник группы совместного займа. Фермер состоит в группе не более одного раза.
type JointLoanMember struct {
	ID          int64
	GroupID     int64
	FarmerID    int64
	AmountCents int64
	Purpose     string
	Status      MemberStatus
	CreatedAt   time.Time
}

// ReconStatus описывает результат сверки по заявке за день.
type ReconStatus string

const (
	ReconNormal     ReconStatus = "NORMAL"
	ReconDifference ReconStatus = "DIFFERENCE"
)

// ReconciliationRecord — результат ежедневной сверки ожидаемых и фактических потоков по займу.
type ReconciliationRecord struct {
	ID                    int64
	ApplicationID         int64
	RecordDate            time.Time
	DisbursedCents        int64
	RepaidPrincipalCents  int64
	RepaidInterestCents   int64
	PendingPrincipalCents int64
	PendingInterestCents  int64
	OverduePrincipalCents int64
	OverdueInterestCents  int64
	PenaltyCents          int64
	Status                ReconStatus
	Reason                string
	CreatedAt             time.Time
}

// RiskIndicator — портфельный срез рисков за календарный день. Не более одной строки на дату.
type RiskIndicator struct {
	ID                 int64
	IndicatorDate      time.Time
	TotalCount         int64
	TotalCents         int64
	OverdueCount       int64
	OverdueCents       int64
	OverdueRate        float64
	BadDebtCount       int64
	BadDebtCents       int64
	BadDebtRate        float64
	CreditBalanceCents int64
	JointLoanRate      float64
	CreatedAt          time.Time
}

// RiskTier описывает уровень кредитного риска.
type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

// CreditScore — снимок кредитного скоринга, привязанный к одной заявке.
type CreditScore struct {
	ID              int64
	ApplicationID   int64
	HistoryScore    float64
	IncomeScore     float64
	AssetScore      float64
	DebtRatioScore  float64
	ExperienceScore float64
	TotalScore      float64
	Tier            RiskTier
	CreditLineCents int64
	CreatedAt       time.Time
}

// AlertType описывает тип транзитного оповещения риск-мониторинга.
type AlertType string

const (
	AlertHighRisk AlertType = "HIGH_RISK"
	AlertOverdue  AlertType = "OVERDUE"
)

// Alert — оповещение риск-мониторинга. Не персистится, пересчитывается при каждом запросе.
type Alert struct {
	Type          AlertType `json:"type"`
	ApplicationID int64     `json:"application_id"`
	FarmerID      int64     `json:"farmer_id"`
	Message       string    `json:"message"`
}
