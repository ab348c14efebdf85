package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmeshcher/agroloan-system/internal/identity"
	"github.com/mmeshcher/agroloan-system/internal/model"
	"github.com/mmeshcher/agroloan-system/internal/repository"
)

// stubRepo — репозиторий в памяти для тестов сервиса. Реализует только ту
// семантику, которая нужна проверяемым сценариям.
type stubRepo struct {
	nextID int64

	products      map[int64]*model.LoanProduct
	apps          map[int64]*model.FinancingApplication
	timeline      []model.TimelineEntry
	contracts     map[int64]*model.Contract
	disbursements map[int64]*model.Disbursement
	installments  []*model.Installment
	records       []model.RepaymentRecord
	scores        map[int64]*model.CreditScore
	groups        map[int64]*model.JointLoanGroup
	members       []*model.JointLoanMember
	recons        map[string]*model.ReconciliationRecord

	activeCount, activeCents   int64
	overdueCount, overdueCents int64
	badDebtCount, badDebtCents int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		products:      map[int64]*model.LoanProduct{},
		apps:          map[int64]*model.FinancingApplication{},
		contracts:     map[int64]*model.Contract{},
		disbursements: map[int64]*model.Disbursement{},
		scores:        map[int64]*model.CreditScore{},
		groups:        map[int64]*model.JointLoanGroup{},
		recons:        map[string]*model.ReconciliationRecord{},
	}
}

func (r *stubRepo) id() int64 { r.nextID++; return r.nextID }

func (r *stubRepo) Close() error { return nil }

func (r *stubRepo) AppendAudit(ctx context.Context, actorType string, actorID int64, action, target string) error {
	return nil
}

func (r *stubRepo) CreateProduct(ctx context.Context, p *model.LoanProduct) (int64, error) {
	id := r.id()
	p.ID = id
	r.products[id] = p
	return id, nil
}

func (r *stubRepo) GetProduct(ctx context.Context, id int64) (*model.LoanProduct, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (r *stubRepo) ListProducts(ctx context.Context) ([]model.LoanProduct, error) { return nil, nil }

func (r *stubRepo) CreateApplication(ctx context.Context, a *model.FinancingApplication) (int64, error) {
	id := r.id()
	a.ID = id
	cp := *a
	r.apps[id] = &cp
	return id, nil
}

func (r *stubRepo) GetApplication(ctx context.Context, id int64) (*model.FinancingApplication, error) {
	a, ok := r.apps[id]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *stubRepo) ListApplicationsByFarmer(ctx context.Context, farmerID int64) ([]model.FinancingApplication, error) {
	return nil, nil
}

func (r *stubRepo) ListApplicationsByStatuses(ctx context.Context, statuses ...model.ApplicationStatus) ([]model.FinancingApplication, error) {
	var res []model.FinancingApplication
	for _, a := range r.apps {
		for _, st := range statuses {
			if a.Status == st {
				res = append(res, *a)
				break
			}
		}
	}
	return res, nil
}

func (r *stubRepo) UpdateApplicationStatus(ctx context.Context, id int64, from []model.ApplicationStatus, to model.ApplicationStatus) error {
	a, ok := r.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	for _, st := range from {
		if a.Status == st {
			a.Status = to
			return nil
		}
	}
	return repository.ErrStateConflict
}

func (r *stubRepo) SetReview(ctx context.Context, id, reviewerID int64, comment string, rateBP int64, at time.Time) error {
	a, ok := r.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	a.ReviewerID = &reviewerID
	a.ReviewComment = comment
	if rateBP > 0 {
		a.AnnualRateBP = rateBP
	}
	a.ReviewedAt = &at
	return nil
}

func (r *stubRepo) SetContractID(ctx context.Context, id, contractID int64) error {
	a, ok := r.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	a.ContractID = &contractID
	return nil
}

func (r *stubRepo) SetSigned(ctx context.Context, id int64, at time.Time) error {
	a, ok := r.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	a.SignedAt = &at
	return nil
}

func (r *stubRepo) SetDisbursed(ctx context.Context, id, amountCents int64, at time.Time) error {
	a, ok := r.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	a.DisbursedCents = amountCents
	a.DisbursedAt = &at
	return nil
}

func (r *stubRepo) AppendTimeline(ctx context.Context, e *model.TimelineEntry) error {
	r.timeline = append(r.timeline, *e)
	return nil
}

func (r *stubRepo) GetTimeline(ctx context.Context, applicationID int64) ([]model.TimelineEntry, error) {
	var res []model.TimelineEntry
	for _, e := range r.timeline {
		if e.ApplicationID == applicationID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (r *stubRepo) CountApplicationsByStatus(ctx context.Context) (map[model.ApplicationStatus]int64, error) {
	res := map[model.ApplicationStatus]int64{}
	for _, a := range r.apps {
		res[a.Status]++
	}
	return res, nil
}

func (r *stubRepo) DisbursedTotalBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return 0, nil
}

func (r *stubRepo) DisbursedMonthlyTrend(ctx context.Context, from, to time.Time) ([]repository.MonthlyTrendPoint, error) {
	return nil, nil
}

func (r *stubRepo) CreateContract(ctx context.Context, c *model.Contract) (int64, error) {
	id := r.id()
	c.ID = id
	cp := *c
	r.contracts[id] = &cp
	return id, nil
}

func (r *stubRepo) GetContract(ctx context.Context, id int64) (*model.Contract, error) {
	c, ok := r.contracts[id]
	if !ok {
		return nil, repository.ErrContractNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *stubRepo) GetContractByApplication(ctx context.Context, applicationID int64) (*model.Contract, error) {
	for _, c := range r.contracts {
		if c.ApplicationID == applicationID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrContractNotFound
}

func (r *stubRepo) SetContractSignature(ctx context.Context, id int64, party model.ContractParty, signURL string, at time.Time) error {
	c, ok := r.contracts[id]
	if !ok {
		return repository.ErrContractNotFound
	}
	switch party {
	case model.PartyFarmer:
		c.FarmerSignURL = signURL
		c.FarmerSignedAt = &at
	case model.PartyBank:
		c.BankSignURL = signURL
		c.BankSignedAt = &at
	}
	return nil
}

func (r *stubRepo) SetContractStatus(ctx context.Context, id int64, status model.ContractStatus) error {
	c, ok := r.contracts[id]
	if !ok {
		return repository.ErrContractNotFound
	}
	c.Status = status
	return nil
}

func (r *stubRepo) CreateDisbursement(ctx context.Context, d *model.Disbursement) (int64, error) {
	if _, ok := r.disbursements[d.ApplicationID]; ok {
		return 0, repository.ErrDisbursementExists
	}
	id := r.id()
	d.ID = id
	cp := *d
	r.disbursements[d.ApplicationID] = &cp
	return id, nil
}

func (r *stubRepo) GetDisbursementByApplication(ctx context.Context, applicationID int64) (*model.Disbursement, error) {
	d, ok := r.disbursements[applicationID]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	return d, nil
}

func (r *stubRepo) InsertInstallments(ctx context.Context, installments []model.Installment) error {
	for i := range installments {
		cp := installments[i]
		cp.ID = r.id()
		r.installments = append(r.installments, &cp)
	}
	return nil
}

func (r *stubRepo) GetInstallments(ctx context.Context, applicationID int64) ([]model.Installment, error) {
	var res []model.Installment
	for _, in := range r.installments {
		if in.ApplicationID == applicationID {
			res = append(res, *in)
		}
	}
	return res, nil
}

func (r *stubRepo) GetInstallment(ctx context.Context, applicationID int64, number int) (*model.Installment, error) {
	for _, in := range r.installments {
		if in.ApplicationID == applicationID && in.Number == number {
			cp := *in
			return &cp, nil
		}
	}
	return nil, repository.ErrInstallmentNotFound
}

func (r *stubRepo) MarkInstallmentPaid(ctx context.Context, id, paidCents int64, at time.Time) error {
	for _, in := range r.installments {
		if in.ID == id {
			in.Status = model.InstallmentPaid
			in.PaidCents = paidCents
			in.PaidAt = &at
			return nil
		}
	}
	return repository.ErrInstallmentNotFound
}

func (r *stubRepo) CountUnpaidInstallments(ctx context.Context, applicationID int64) (int64, error) {
	var n int64
	for _, in := range r.installments {
		if in.ApplicationID == applicationID && in.Status != model.InstallmentPaid {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) SweepOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	for _, in := range r.installments {
		if in.Status == model.InstallmentPending && in.DueDate.Before(asOf) {
			in.Status = model.InstallmentOverdue
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) InsertRepaymentRecord(ctx context.Context, rec *model.RepaymentRecord) error {
	rec.ID = r.id()
	r.records = append(r.records, *rec)
	return nil
}

func (r *stubRepo) ListRepaymentRecords(ctx context.Context, applicationID int64) ([]model.RepaymentRecord, error) {
	var res []model.RepaymentRecord
	for _, rec := range r.records {
		if rec.ApplicationID == applicationID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (r *stubRepo) SumRepaid(ctx context.Context, applicationID int64) (int64, int64, error) {
	var principal, interest int64
	for _, rec := range r.records {
		if rec.ApplicationID == applicationID {
			principal += rec.PrincipalCents
			interest += rec.InterestCents
		}
	}
	return principal, interest, nil
}

func (r *stubRepo) SumInstallmentsByStatus(ctx context.Context, applicationID int64, status model.InstallmentStatus) (int64, int64, error) {
	var principal, interest int64
	for _, in := range r.installments {
		if in.ApplicationID == applicationID && in.Status == status {
			principal += in.PrincipalCents
			interest += in.InterestCents
		}
	}
	return principal, interest, nil
}

func (r *stubRepo) ListOverdueInstallments(ctx context.Context, applicationID int64) ([]model.Installment, error) {
	var res []model.Installment
	for _, in := range r.installments {
		if in.ApplicationID == applicationID && in.Status == model.InstallmentOverdue {
			res = append(res, *in)
		}
	}
	return res, nil
}

func (r *stubRepo) OverdueSummariesByFarmer(ctx context.Context) ([]repository.FarmerOverdueSummary, error) {
	return nil, nil
}

func (r *stubRepo) ListApplicationsWithOverdue(ctx context.Context) ([]repository.OverdueApplication, error) {
	return nil, nil
}

func (r *stubRepo) ListInstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]repository.UpcomingInstallment, error) {
	return nil, nil
}

func (r *stubRepo) InstallmentStatusCounts(ctx context.Context, applicationID int64) (map[model.InstallmentStatus]int64, error) {
	res := map[model.InstallmentStatus]int64{}
	for _, in := range r.installments {
		if in.ApplicationID == applicationID {
			res[in.Status]++
		}
	}
	return res, nil
}

func (r *stubRepo) OverduePortfolio(ctx context.Context, asOf time.Time, minDays int) (int64, int64, error) {
	if minDays > 0 {
		return r.badDebtCount, r.badDebtCents, nil
	}
	return r.overdueCount, r.overdueCents, nil
}

func (r *stubRepo) OutstandingPrincipal(ctx context.Context) (int64, error) { return 0, nil }

func (r *stubRepo) CreateGroup(ctx context.Context, g *model.JointLoanGroup, creator *model.JointLoanMember) (int64, error) {
	id := r.id()
	g.ID = id
	cp := *g
	r.groups[id] = &cp
	creator.ID = r.id()
	creator.GroupID = id
	mcp := *creator
	r.members = append(r.members, &mcp)
	return id, nil
}

func (r *stubRepo) GetGroup(ctx context.Context, id int64) (*model.JointLoanGroup, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, repository.ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *stubRepo) ListMembers(ctx context.Context, groupID int64) ([]model.JointLoanMember, error) {
	var res []model.JointLoanMember
	for _, m := range r.members {
		if m.GroupID == groupID {
			res = append(res, *m)
		}
	}
	return res, nil
}

func (r *stubRepo) JoinGroup(ctx context.Context, groupID, farmerID, amountCents int64, purpose string) (bool, error) {
	g, ok := r.groups[groupID]
	if !ok {
		return false, repository.ErrGroupNotFound
	}
	if g.Status != model.GroupStatusMatching {
		return false, repository.ErrGroupClosed
	}
	r.members = append(r.members, &model.JointLoanMember{
		ID: r.id(), GroupID: groupID, FarmerID: farmerID,
		AmountCents: amountCents, Purpose: purpose, Status: model.MemberPending,
	})
	var total int64
	for _, m := range r.members {
		if m.GroupID == groupID {
			total += m.AmountCents
		}
	}
	if total >= g.ThresholdCents {
		g.Status = model.GroupStatusMatched
		return true, nil
	}
	return false, nil
}

func (r *stubRepo) QuitGroup(ctx context.Context, groupID, farmerID int64) (bool, error) {
	return false, nil
}

func (r *stubRepo) UpdateGroupStatus(ctx context.Context, id int64, from, to model.GroupStatus) error {
	g, ok := r.groups[id]
	if !ok {
		return repository.ErrGroupNotFound
	}
	if g.Status != from {
		return repository.ErrStateConflict
	}
	g.Status = to
	return nil
}

func (r *stubRepo) UpdateMemberStatus(ctx context.Context, memberID int64, status model.MemberStatus) error {
	for _, m := range r.members {
		if m.ID == memberID {
			m.Status = status
			return nil
		}
	}
	return repository.ErrMemberNotFound
}

func (r *stubRepo) ListOpenGroupsExcluding(ctx context.Context, farmerID int64) ([]repository.GroupCandidate, error) {
	var res []repository.GroupCandidate
	for _, g := range r.groups {
		if g.Status != model.GroupStatusMatching {
			continue
		}
		var joined, count int64
		member := false
		for _, m := range r.members {
			if m.GroupID != g.ID {
				continue
			}
			if m.FarmerID == farmerID {
				member = true
			}
			joined += m.AmountCents
			count++
		}
		if !member {
			res = append(res, repository.GroupCandidate{Group: *g, JoinedCents: joined, MemberCount: count})
		}
	}
	return res, nil
}

func (r *stubRepo) UpsertReconciliation(ctx context.Context, rec *model.ReconciliationRecord) error {
	key := fmt.Sprintf("%d:%s", rec.ApplicationID, rec.RecordDate.Format("2006-01-02"))
	cp := *rec
	r.recons[key] = &cp
	return nil
}

func (r *stubRepo) ListReconciliations(ctx context.Context, from, to time.Time) ([]model.ReconciliationRecord, error) {
	return nil, nil
}

func (r *stubRepo) CountReconciliations(ctx context.Context, from, to time.Time) (*repository.ReconciliationStats, error) {
	return &repository.ReconciliationStats{}, nil
}

func (r *stubRepo) InsertRiskIndicator(ctx context.Context, ind *model.RiskIndicator) (bool, error) {
	return true, nil
}

func (r *stubRepo) GetRiskIndicator(ctx context.Context, date time.Time) (*model.RiskIndicator, error) {
	return nil, nil
}

func (r *stubRepo) LatestRiskIndicator(ctx context.Context) (*model.RiskIndicator, error) {
	return nil, nil
}

func (r *stubRepo) ActivePortfolio(ctx context.Context) (int64, int64, error) {
	return r.activeCount, r.activeCents, nil
}

func (r *stubRepo) JointLoanCounts(ctx context.Context) (int64, int64, error) { return 0, 0, nil }

func (r *stubRepo) SaveCreditScore(ctx context.Context, s *model.CreditScore) error {
	cp := *s
	r.scores[s.ApplicationID] = &cp
	return nil
}

func (r *stubRepo) GetCreditScore(ctx context.Context, applicationID int64) (*model.CreditScore, error) {
	s, ok := r.scores[applicationID]
	if !ok {
		return nil, repository.ErrScoreNotFound
	}
	return s, nil
}

func (r *stubRepo) ListLowCreditScores(ctx context.Context, threshold float64) ([]repository.LowScore, error) {
	return nil, nil
}

type stubNotifier struct {
	approvals int
	reminders int
}

func (n *stubNotifier) SendApprovalNotification(ctx context.Context, farmerID, applicationID int64, approved bool, comment string) error {
	n.approvals++
	return nil
}

func (n *stubNotifier) SendContractSignReminder(ctx context.Context, farmerID, applicationID int64, contractNumber string) error {
	n.reminders++
	return nil
}

func (n *stubNotifier) SendRepaymentReminder(ctx context.Context, farmerID, applicationID int64, installmentNo int, dueDate time.Time, amount float64) error {
	return nil
}

func (n *stubNotifier) SendOverdueAlert(ctx context.Context, farmerID int64, earliestDue time.Time, totalAmount float64) error {
	return nil
}

type stubIdentity struct{}

func (stubIdentity) GetUser(ctx context.Context, id int64) (*identity.User, error) {
	return &identity.User{ID: id, Name: "Ivan Petrov"}, nil
}

func newTestService(repo *stubRepo) *Service {
	return NewService(repo, &stubNotifier{}, stubIdentity{}, nil)
}

func TestBuildScheduleAmortization(t *testing.T) {
	// 120 000.00 на 12 месяцев под 6% годовых.
	installments := buildSchedule(1, 12000000, 600, 12, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))

	if len(installments) != 12 {
		t.Fatalf("expected 12 installments, got %d", len(installments))
	}

	first := installments[0]
	if first.InterestCents != 60000 {
		t.Errorf("first interest: expected 60000 cents, got %d", first.InterestCents)
	}
	if first.PrincipalCents != 972797 {
		t.Errorf("first principal: expected 972797 cents, got %d", first.PrincipalCents)
	}
	if first.TotalCents != 1032797 {
		t.Errorf("first total: expected 1032797 cents, got %d", first.TotalCents)
	}

	var sumPrincipal int64
	for i, in := range installments {
		if in.Number != i+1 {
			t.Errorf("installment %d: unexpected number %d", i, in.Number)
		}
		sumPrincipal += in.PrincipalCents
	}
	if sumPrincipal != 12000000 {
		t.Errorf("principal sum must equal the loan body: expected 12000000, got %d", sumPrincipal)
	}

	if !installments[0].DueDate.Equal(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first due date: got %v", installments[0].DueDate)
	}
	if !installments[11].DueDate.Equal(time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("last due date: got %v", installments[11].DueDate)
	}
}

func TestBuildScheduleZeroRate(t *testing.T) {
	installments := buildSchedule(1, 1200000, 0, 12, time.Now())

	var sumPrincipal, sumInterest int64
	for _, in := range installments {
		sumPrincipal += in.PrincipalCents
		sumInterest += in.InterestCents
	}
	if sumPrincipal != 1200000 {
		t.Errorf("principal sum: expected 1200000, got %d", sumPrincipal)
	}
	if sumInterest != 0 {
		t.Errorf("interest must be zero at zero rate, got %d", sumInterest)
	}
}

func TestCalculateCreditScoreBoundary(t *testing.T) {
	history := 70.0
	score := CalculateCreditScore(1, CreditInput{
		HistoryScore:      &history,
		AnnualIncomeCents: 50000000,  // 500 000 единиц — потолок компоненты дохода
		TotalAssetsCents:  300000000, // 3 000 000 единиц — потолок компоненты активов
		DebtRatio:         20,
		YearsFarming:      7,
	})

	if score.TotalScore != 59.5 {
		t.Errorf("total score: expected 59.5, got %v", score.TotalScore)
	}
	// 59.5 не округляется до 60: остаётся HIGH.
	if score.Tier != model.RiskHigh {
		t.Errorf("tier: expected HIGH, got %s", score.Tier)
	}
	if score.CreditLineCents != 5950000 {
		t.Errorf("credit line: expected 5950000 cents, got %d", score.CreditLineCents)
	}
}

func TestCalculateCreditScoreTiers(t *testing.T) {
	tests := []struct {
		name    string
		history float64
		tier    model.RiskTier
	}{
		{"high history gives low risk", 100, model.RiskLow},
		{"average history gives medium risk", 60, model.RiskMedium},
		{"weak history gives high risk", 0, model.RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := CalculateCreditScore(1, CreditInput{
				HistoryScore:      &tt.history,
				AnnualIncomeCents: 50000000,
				TotalAssetsCents:  300000000,
				DebtRatio:         0,
				YearsFarming:      10,
			})
			if score.Tier != tt.tier {
				t.Errorf("history %v: expected %s, got %s (total %v)", tt.history, tt.tier, score.Tier, score.TotalScore)
			}
		})
	}
}

func TestPenaltyFor(t *testing.T) {
	// 10 000.00 × 0.05% × 10 дней = 50.00.
	if got := penaltyFor(1000000, 10); got != 5000 {
		t.Errorf("expected 5000 cents, got %d", got)
	}
	if got := penaltyFor(1000000, 0); got != 0 {
		t.Errorf("expected no penalty without overdue days, got %d", got)
	}
}

func TestSubmitApplicationBelowMinimum(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	productID, err := svc.CreateProduct(ctx, 1, &model.LoanProduct{
		Name:           "Сезонный",
		AnnualRateBP:   600,
		MinAmountCents: 20000000,
		MaxAmountCents: 100000000,
		MinTermMonths:  6,
		MaxTermMonths:  24,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = svc.SubmitApplication(ctx, 7, &productID, 10000000, 12, "семена")
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
}

func TestApproveGeneratesSchedule(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	appID, err := svc.SubmitApplication(ctx, 7, nil, 12000000, 12, "техника")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	score, err := svc.Approve(ctx, 2, appID, 600, "ok", CreditInput{
		AnnualIncomeCents: 50000000,
		TotalAssetsCents:  300000000,
		YearsFarming:      10,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if score.TotalScore <= 0 {
		t.Errorf("expected positive credit score, got %v", score.TotalScore)
	}

	got, err := svc.GetApplication(ctx, appID)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if got.Status != model.ApplicationStatusApproved {
		t.Errorf("status: expected APPROVED, got %s", got.Status)
	}

	installments, err := svc.GetSchedule(ctx, appID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if len(installments) != 12 {
		t.Errorf("expected 12 installments after approval, got %d", len(installments))
	}

	// Повторное одобрение из APPROVED запрещено.
	if _, err := svc.Approve(ctx, 2, appID, 600, "again", CreditInput{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on double approval, got %v", err)
	}
}

func TestDisburseRequiresSignedApplication(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	appID, err := svc.SubmitApplication(ctx, 7, nil, 12000000, 12, "техника")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = svc.Disburse(ctx, 2, appID, "79927398713", "49927398716")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for unsigned application, got %v", err)
	}
}

func TestDisburseRejectsBadAccount(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	_, err := svc.Disburse(context.Background(), 2, 1, "79927398710", "49927398716")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad account checksum, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	appID, err := svc.SubmitApplication(ctx, 7, nil, 12000000, 12, "семена")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Approve(ctx, 2, appID, 600, "ok", CreditInput{AnnualIncomeCents: 50000000, YearsFarming: 10}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	contract, err := svc.GenerateContract(ctx, 2, appID)
	if err != nil {
		t.Fatalf("generate contract: %v", err)
	}
	if contract.FarmerName != "Ivan Petrov" {
		t.Errorf("farmer name from identity: got %q", contract.FarmerName)
	}

	if _, err := svc.SignContract(ctx, model.ActorFarmer, 7, contract.ID, model.PartyFarmer, "https://sign/farmer"); err != nil {
		t.Fatalf("farmer sign: %v", err)
	}
	signed, err := svc.SignContract(ctx, model.ActorOfficer, 2, contract.ID, model.PartyBank, "https://sign/bank")
	if err != nil {
		t.Fatalf("bank sign: %v", err)
	}
	if signed.Status != model.ContractStatusSigned {
		t.Errorf("contract status: expected SIGNED, got %s", signed.Status)
	}

	got, _ := svc.GetApplication(ctx, appID)
	if got.Status != model.ApplicationStatusSigned {
		t.Fatalf("application status after both signatures: expected SIGNED, got %s", got.Status)
	}

	if _, err := svc.Disburse(ctx, 2, appID, "79927398713", "49927398716"); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	got, _ = svc.GetApplication(ctx, appID)
	if got.Status != model.ApplicationStatusDisbursed {
		t.Fatalf("application status after disbursement: expected DISBURSED, got %s", got.Status)
	}

	// Первое погашение переводит заявку в REPAYING.
	if _, err := svc.RepayInstallment(ctx, 7, appID, 1); err != nil {
		t.Fatalf("repay installment 1: %v", err)
	}
	got, _ = svc.GetApplication(ctx, appID)
	if got.Status != model.ApplicationStatusRepaying {
		t.Errorf("expected REPAYING after first repayment, got %s", got.Status)
	}

	for n := 2; n <= 12; n++ {
		if _, err := svc.RepayInstallment(ctx, 7, appID, n); err != nil {
			t.Fatalf("repay installment %d: %v", n, err)
		}
	}
	got, _ = svc.GetApplication(ctx, appID)
	if got.Status != model.ApplicationStatusSettled {
		t.Errorf("expected SETTLED after the last repayment, got %s", got.Status)
	}

	// Повторная оплата того же платежа запрещена.
	if _, err := svc.RepayInstallment(ctx, 7, appID, 1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on double repayment, got %v", err)
	}
}

func TestOverdueSweepIdempotent(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	due := time.Now().AddDate(0, 0, -5)
	repo.installments = append(repo.installments, &model.Installment{
		ID: 100, ApplicationID: 1, Number: 1, DueDate: due,
		PrincipalCents: 100000, InterestCents: 5000, TotalCents: 105000,
		Status: model.InstallmentPending,
	})

	swept, err := svc.RunOverdueSweep(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept installment, got %d", swept)
	}

	swept, err = svc.RunOverdueSweep(ctx, time.Now())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if swept != 0 {
		t.Errorf("second sweep must be a no-op, got %d", swept)
	}
}

func TestQuoteEarlyRepayment(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	app := &model.FinancingApplication{FarmerID: 7, AmountCents: 1200000, TermMonths: 2, Status: model.ApplicationStatusRepaying}
	id, _ := repo.CreateApplication(ctx, app)
	repo.installments = append(repo.installments,
		&model.Installment{ID: 1, ApplicationID: id, Number: 1, PrincipalCents: 600000, InterestCents: 6000, TotalCents: 606000, Status: model.InstallmentPaid},
		&model.Installment{ID: 2, ApplicationID: id, Number: 2, PrincipalCents: 600000, InterestCents: 3000, TotalCents: 603000, Status: model.InstallmentPending},
	)

	quote, err := svc.QuoteEarlyRepayment(ctx, 7, id)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.RemainingPrincipalCents != 600000 {
		t.Errorf("remaining principal: expected 600000, got %d", quote.RemainingPrincipalCents)
	}
	// Штраф 1% от остатка: 6 000.00 × 0.01 = 60.00.
	if quote.PenaltyCents != 6000 {
		t.Errorf("penalty: expected 6000 cents, got %d", quote.PenaltyCents)
	}
	if quote.InterestSavedCents != 3000 {
		t.Errorf("interest saved: expected 3000, got %d", quote.InterestSavedCents)
	}
	if quote.PayoffCents != 606000 {
		t.Errorf("payoff: expected 606000, got %d", quote.PayoffCents)
	}
}

func TestReconcileApplication(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	app := &model.FinancingApplication{FarmerID: 7, AmountCents: 1000000, DisbursedCents: 1000000, Status: model.ApplicationStatusRepaying}
	id, _ := repo.CreateApplication(ctx, app)
	repo.installments = append(repo.installments,
		&model.Installment{ID: 1, ApplicationID: id, Number: 1, PrincipalCents: 500000, InterestCents: 5000, Status: model.InstallmentPending},
	)
	repo.records = append(repo.records, model.RepaymentRecord{ApplicationID: id, PrincipalCents: 500000, InterestCents: 5000})

	rec, err := svc.ReconcileApplication(ctx, id, time.Now())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rec.Status != model.ReconNormal {
		t.Errorf("expected NORMAL, got %s (%s)", rec.Status, rec.Reason)
	}

	// Потеря строки графика на 500 000 копеек — расхождение.
	repo.installments = repo.installments[:0]
	rec, err = svc.ReconcileApplication(ctx, id, time.Now())
	if err != nil {
		t.Fatalf("reconcile with gap: %v", err)
	}
	if rec.Status != model.ReconDifference {
		t.Errorf("expected DIFFERENCE, got %s", rec.Status)
	}
	if rec.Reason == "" {
		t.Error("difference must carry a reason")
	}
}

func TestRunReconciliationSkipsSettled(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	active := &model.FinancingApplication{FarmerID: 7, AmountCents: 1000000, Status: model.ApplicationStatusDisbursed}
	activeID, _ := repo.CreateApplication(ctx, active)
	settled := &model.FinancingApplication{FarmerID: 8, AmountCents: 2000000, Status: model.ApplicationStatusSettled}
	settledID, _ := repo.CreateApplication(ctx, settled)

	recordDate := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	processed, err := svc.RunReconciliation(ctx, recordDate)
	if err != nil {
		t.Fatalf("run reconciliation: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed: expected 1, got %d", processed)
	}

	day := recordDate.Format("2006-01-02")
	if _, ok := repo.recons[fmt.Sprintf("%d:%s", activeID, day)]; !ok {
		t.Error("expected a record for the disbursed application")
	}
	if _, ok := repo.recons[fmt.Sprintf("%d:%s", settledID, day)]; ok {
		t.Error("settled application must not be reconciled")
	}
}

func TestRiskIndicatorAmountRates(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	// Десять займов на 1 000 000.00, просрочен один на 500 000.00:
	// доля просрочки считается по сумме, а не по числу займов.
	repo.activeCount = 10
	repo.activeCents = 100000000
	repo.overdueCount = 1
	repo.overdueCents = 50000000
	repo.badDebtCount = 1
	repo.badDebtCents = 10000000

	ind, err := svc.RunRiskIndicators(context.Background(), time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("risk indicators: %v", err)
	}
	if ind.OverdueRate != 0.5 {
		t.Errorf("overdue rate: expected 0.5, got %g", ind.OverdueRate)
	}
	if ind.BadDebtRate != 0.1 {
		t.Errorf("bad debt rate: expected 0.1, got %g", ind.BadDebtRate)
	}
	if ind.OverdueCount != 1 || ind.BadDebtCount != 1 {
		t.Errorf("counts must be kept as counts: overdue %d, bad debt %d", ind.OverdueCount, ind.BadDebtCount)
	}
	if ind.TotalCents != 100000000 {
		t.Errorf("total cents: expected 100000000, got %d", ind.TotalCents)
	}
}

func TestCreateJointGroupTargetCount(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	// Запрос 450 000 при пороге 200 000 покрывается тремя долями.
	group, err := svc.CreateJointGroup(context.Background(), 7, 20000000, 45000000, "ирригация")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if group.TargetCount != 3 {
		t.Errorf("target count: expected 3, got %d", group.TargetCount)
	}
	if group.Status != model.GroupStatusMatching {
		t.Errorf("expected MATCHING, got %s", group.Status)
	}

	// Запрос меньше порога допустим и требует одного участника.
	group, err = svc.CreateJointGroup(context.Background(), 8, 20000000, 15000000, "семена")
	if err != nil {
		t.Fatalf("create group below threshold: %v", err)
	}
	if group.TargetCount != 1 {
		t.Errorf("target count: expected 1, got %d", group.TargetCount)
	}

	if _, err := svc.CreateJointGroup(context.Background(), 9, 20000000, 0, "пусто"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero requested amount, got %v", err)
	}
}

func TestJointGroupLifecycle(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	group, err := svc.CreateJointGroup(ctx, 7, 45000000, 20000000, "ирригация")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	matched, err := svc.JoinJointGroup(ctx, group.ID, 8, 15000000, "удобрения")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if matched {
		t.Fatal("group must not match below the threshold")
	}

	matched, err = svc.JoinJointGroup(ctx, group.ID, 9, 10000000, "семена")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !matched {
		t.Fatal("group must match once the threshold is reached")
	}

	// Подтвердить группу может только создатель.
	if _, err := svc.ConfirmJointGroup(ctx, 8, group.ID); !errors.Is(err, ErrNotGroupCreator) {
		t.Fatalf("expected ErrNotGroupCreator, got %v", err)
	}

	apps, err := svc.ConfirmJointGroup(ctx, 7, group.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(apps) != 3 {
		t.Fatalf("expected 3 applications, got %d", len(apps))
	}
	for _, a := range apps {
		if a.JointGroupID == nil || *a.JointGroupID != group.ID {
			t.Errorf("application %d must reference the group", a.ID)
		}
		if a.Status != model.ApplicationStatusApplied {
			t.Errorf("application %d: expected APPLIED, got %s", a.ID, a.Status)
		}
	}

	g, _, err := svc.GetJointGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if g.Status != model.GroupStatusApplied {
		t.Errorf("group status: expected APPLIED, got %s", g.Status)
	}
}

func TestFindJointGroupCandidates(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	group, err := svc.CreateJointGroup(ctx, 7, 45000000, 20000000, "ирригация")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	// Остаточная потребность 250 000 сопоставима с запросом 200 000.
	candidates, err := svc.FindJointGroupCandidates(ctx, 8, 20000000)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Group.ID != group.ID {
		t.Fatalf("expected the open group among candidates, got %d", len(candidates))
	}

	// Создателю его собственная группа не предлагается.
	candidates, err = svc.FindJointGroupCandidates(ctx, 7, 20000000)
	if err != nil {
		t.Fatalf("candidates for creator: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates for an existing member, got %d", len(candidates))
	}
}
