// Package handler содержит HTTP-обработчики API кредитного движка.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/agroloan-system/internal/middleware"
	"github.com/mmeshcher/agroloan-system/internal/model"
	"github.com/mmeshcher/agroloan-system/internal/repository"
	"github.com/mmeshcher/agroloan-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	VerifyActor(ctx context.Context, actorType model.ActorType, id int64) error

	CreateProduct(ctx context.Context, officerID int64, p *model.LoanProduct) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.LoanProduct, error)
	ListProducts(ctx context.Context) ([]model.LoanProduct, error)

	SubmitApplication(ctx context.Context, farmerID int64, productID *int64, amountCents int64, termMonths int, purpose string) (int64, error)
	GetApplication(ctx context.Context, id int64) (*model.FinancingApplication, error)
	ListApplicationsByFarmer(ctx context.Context, farmerID int64) ([]model.FinancingApplication, error)
	ListApplicationsByStatus(ctx context.Context, status model.ApplicationStatus) ([]model.FinancingApplication, error)
	GetTimeline(ctx context.Context, applicationID int64) ([]model.TimelineEntry, error)
	StartReview(ctx context.Context, officerID, applicationID int64) error
	Approve(ctx context.Context, officerID, applicationID int64, rateBP int64, comment string, in service.CreditInput) (*model.CreditScore, error)
	Reject(ctx context.Context, officerID, applicationID int64, comment string) error
	GetCreditScore(ctx context.Context, applicationID int64) (*model.CreditScore, error)

	GenerateContract(ctx context.Context, officerID, applicationID int64) (*model.Contract, error)
	SignContract(ctx context.Context, actor model.ActorType, actorID, contractID int64, party model.ContractParty, signURL string) (*model.Contract, error)
	GetContractByApplication(ctx context.Context, applicationID int64) (*model.Contract, error)
	Disburse(ctx context.Context, officerID, applicationID int64, bankAccount, farmerAccount string) (*model.Disbursement, error)
	GetDisbursement(ctx context.Context, applicationID int64) (*model.Disbursement, error)

	GetSchedule(ctx context.Context, applicationID int64) ([]model.Installment, error)
	RepayInstallment(ctx context.Context, farmerID, applicationID int64, number int) (*model.RepaymentRecord, error)
	ListRepayments(ctx context.Context, applicationID int64) ([]model.RepaymentRecord, error)
	QuoteEarlyRepayment(ctx context.Context, farmerID, applicationID int64) (*service.EarlyRepaymentQuote, error)

	CreateJointGroup(ctx context.Context, farmerID, thresholdCents, requestedCents int64, purpose string) (*model.JointLoanGroup, error)
	JoinJointGroup(ctx context.Context, groupID, farmerID, amountCents int64, purpose string) (bool, error)
	QuitJointGroup(ctx context.Context, groupID, farmerID int64) (bool, error)
	ConfirmJointGroup(ctx context.Context, farmerID, groupID int64) ([]model.FinancingApplication, error)
	GetJointGroup(ctx context.Context, groupID int64) (*model.JointLoanGroup, []model.JointLoanMember, error)
	FindJointGroupCandidates(ctx context.Context, farmerID, amountCents int64) ([]repository.GroupCandidate, error)

	RunOverdueSweep(ctx context.Context, asOf time.Time) (int64, error)
	RunReconciliation(ctx context.Context, recordDate time.Time) (int, error)
	RunRiskIndicators(ctx context.Context, date time.Time) (*model.RiskIndicator, error)
	ListReconciliations(ctx context.Context, from, to time.Time) ([]model.ReconciliationRecord, error)
	ReconciliationStats(ctx context.Context, from, to time.Time) (*repository.ReconciliationStats, error)
	RiskDashboard(ctx context.Context) (*model.RiskIndicator, error)
	BuildAlerts(ctx context.Context) ([]model.Alert, error)
	Dashboard(ctx context.Context, from, to time.Time) (*service.DashboardSummary, error)
	MonthlyTrend(ctx context.Context, from, to time.Time) ([]repository.MonthlyTrendPoint, error)
	MonitorLoan(ctx context.Context, applicationID int64) (*service.LoanMonitoring, error)
}

// Handler реализует HTTP-обработчики API кредитного движка.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeError переводит бизнес-ошибку в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrApplicationNotFound),
		errors.Is(err, repository.ErrContractNotFound),
		errors.Is(err, repository.ErrInstallmentNotFound),
		errors.Is(err, repository.ErrGroupNotFound),
		errors.Is(err, repository.ErrMemberNotFound),
		errors.Is(err, repository.ErrScoreNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, service.ErrBelowMinimum):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
	case errors.Is(err, service.ErrValidation):
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrGroupNotMatched),
		errors.Is(err, service.ErrNotGroupCreator),
		errors.Is(err, repository.ErrStateConflict),
		errors.Is(err, repository.ErrContractExists),
		errors.Is(err, repository.ErrDisbursementExists),
		errors.Is(err, repository.ErrAlreadyMember),
		errors.Is(err, repository.ErrGroupClosed):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error("request failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func actorFrom(r *http.Request) (middleware.Actor, bool) {
	return middleware.GetActorFromContext(r.Context())
}

type loginRequest struct {
	ActorType string `json:"actor_type"`
	ActorID   int64  `json:"actor_id"`
}

// Login проверяет участника через справочник пользователей и выдаёт сессионную cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	actorType, err := model.ParseActorType(req.ActorType)
	if err != nil || req.ActorID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.VerifyActor(r.Context(), actorType, req.ActorID); err != nil {
		if errors.Is(err, service.ErrValidation) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Actor{ID: req.ActorID, Type: actorType})
	w.WriteHeader(http.StatusOK)
}

type submitApplicationRequest struct {
	ProductID  *int64  `json:"product_id,omitempty"`
	Amount     float64 `json:"amount"`
	TermMonths int     `json:"term_months"`
	Purpose    string  `json:"purpose"`
}

type applicationResponse struct {
	ID           int64    `json:"id"`
	ProductID    *int64   `json:"product_id,omitempty"`
	JointGroupID *int64   `json:"joint_group_id,omitempty"`
	Amount       float64  `json:"amount"`
	TermMonths   int      `json:"term_months"`
	Purpose      string   `json:"purpose"`
	AnnualRate   float64  `json:"annual_rate,omitempty"`
	Status       string   `json:"status"`
	Disbursed    *float64 `json:"disbursed,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

func toApplicationResponse(a *model.FinancingApplication) applicationResponse {
	resp := applicationResponse{
		ID:           a.ID,
		ProductID:    a.ProductID,
		JointGroupID: a.JointGroupID,
		Amount:       float64(a.AmountCents) / 100,
		TermMonths:   a.TermMonths,
		Purpose:      a.Purpose,
		AnnualRate:   float64(a.AnnualRateBP) / 10000,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
	if a.DisbursedCents > 0 {
		d := float64(a.DisbursedCents) / 100
		resp.Disbursed = &d
	}
	return resp
}

// SubmitApplication принимает новую заявку на финансирование от фермера.
// Сумма ниже минимума продукта отвечает 402: фермеру предлагается совместный займ.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req submitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.SubmitApplication(r.Context(), actor.ID, req.ProductID,
		int64(req.Amount*100), req.TermMonths, req.Purpose)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, map[string]int64{"id": id})
}

// ListMyApplications возвращает заявки текущего фермера.
func (h *Handler) ListMyApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	apps, err := h.service.ListApplicationsByFarmer(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(apps) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]applicationResponse, 0, len(apps))
	for i := range apps {
		resp = append(resp, toApplicationResponse(&apps[i]))
	}
	h.writeJSON(w, resp)
}

// GetApplication возвращает заявку. Фермер видит только собственные заявки.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	app, err := h.service.GetApplication(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if actor.Type == model.ActorFarmer && app.FarmerID != actor.ID {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	h.writeJSON(w, toApplicationResponse(app))
}

type timelineResponse struct {
	ActorType string `json:"actor_type"`
	ActorID   int64  `json:"actor_id"`
	Action    string `json:"action"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// GetTimeline возвращает историю смен статусов заявки.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	entries, err := h.service.GetTimeline(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]timelineResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, timelineResponse{
			ActorType: string(e.ActorType),
			ActorID:   e.ActorID,
			Action:    e.Action,
			Note:      e.Note,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, resp)
}

type installmentResponse struct {
	Number    int     `json:"number"`
	DueDate   string  `json:"due_date"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Total     float64 `json:"total"`
	Status    string  `json:"status"`
	PaidAt    string  `json:"paid_at,omitempty"`
}

// GetSchedule возвращает график погашения заявки.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	installments, err := h.service.GetSchedule(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(installments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]installmentResponse, 0, len(installments))
	for _, in := range installments {
		item := installmentResponse{
			Number:    in.Number,
			DueDate:   in.DueDate.Format("2006-01-02"),
			Principal: float64(in.PrincipalCents) / 100,
			Interest:  float64(in.InterestCents) / 100,
			Total:     float64(in.TotalCents) / 100,
			Status:    string(in.Status),
		}
		if in.PaidAt != nil {
			item.PaidAt = in.PaidAt.Format(time.RFC3339)
		}
		resp = append(resp, item)
	}
	h.writeJSON(w, resp)
}

// RepayInstallment проводит оплату очередного платежа графика.
func (h *Handler) RepayInstallment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rec, err := h.service.RepayInstallment(r.Context(), actor.ID, id, number)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]any{
		"installment": number,
		"principal":   float64(rec.PrincipalCents) / 100,
		"interest":    float64(rec.InterestCents) / 100,
		"penalty":     float64(rec.PenaltyCents) / 100,
		"paid_at":     rec.PaidAt.Format(time.RFC3339),
	})
}

// QuoteEarlyRepayment возвращает расчёт полного досрочного погашения.
func (h *Handler) QuoteEarlyRepayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	quote, err := h.service.QuoteEarlyRepayment(r.Context(), actor.ID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]float64{
		"remaining_principal": float64(quote.RemainingPrincipalCents) / 100,
		"penalty":             float64(quote.PenaltyCents) / 100,
		"interest_saved":      float64(quote.InterestSavedCents) / 100,
		"payoff":              float64(quote.PayoffCents) / 100,
	})
}

type signContractRequest struct {
	Party   string `json:"party"`
	SignURL string `json:"sign_url"`
}

type contractResponse struct {
	ID         int64   `json:"id"`
	Number     string  `json:"number"`
	Status     string  `json:"status"`
	FarmerName string  `json:"farmer_name"`
	BankName   string  `json:"bank_name"`
	Amount     float64 `json:"amount"`
	AnnualRate float64 `json:"annual_rate"`
	TermMonths int     `json:"term_months"`
	Purpose    string  `json:"purpose,omitempty"`
}

func toContractResponse(c *model.Contract) contractResponse {
	return contractResponse{
		ID:         c.ID,
		Number:     c.Number,
		Status:     string(c.Status),
		FarmerName: c.FarmerName,
		BankName:   c.BankName,
		Amount:     float64(c.AmountCents) / 100,
		AnnualRate: float64(c.AnnualRateBP) / 10000,
		TermMonths: c.TermMonths,
		Purpose:    c.Purpose,
	}
}

// GetContract возвращает договор по заявке.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	contract, err := h.service.GetContractByApplication(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toContractResponse(contract))
}

// SignContract регистрирует подпись стороны договора.
func (h *Handler) SignContract(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req signContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	party, err := model.ParseContractParty(req.Party)
	if err != nil || req.SignURL == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	// Фермер подписывает только за себя.
	if actor.Type == model.ActorFarmer && party != model.PartyFarmer {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	contract, err := h.service.SignContract(r.Context(), actor.Type, actor.ID, id, party, req.SignURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toContractResponse(contract))
}

type createGroupRequest struct {
	Threshold float64 `json:"threshold"`
	Amount    float64 `json:"amount"`
	Purpose   string  `json:"purpose"`
}

type groupResponse struct {
	ID          int64   `json:"id"`
	CreatorID   int64   `json:"creator_id"`
	Threshold   float64 `json:"threshold"`
	TargetCount int     `json:"target_count"`
	Status      string  `json:"status"`
}

func toGroupResponse(g *model.JointLoanGroup) groupResponse {
	return groupResponse{
		ID:          g.ID,
		CreatorID:   g.CreatorID,
		Threshold:   float64(g.ThresholdCents) / 100,
		TargetCount: g.TargetCount,
		Status:      string(g.Status),
	}
}

// CreateJointGroup создаёт группу совместного займа.
func (h *Handler) CreateJointGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	group, err := h.service.CreateJointGroup(r.Context(), actor.ID,
		int64(req.Threshold*100), int64(req.Amount*100), req.Purpose)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, toGroupResponse(group))
}

type joinGroupRequest struct {
	Amount  float64 `json:"amount"`
	Purpose string  `json:"purpose"`
}

// JoinJointGroup присоединяет текущего фермера к группе.
func (h *Handler) JoinJointGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req joinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	matched, err := h.service.JoinJointGroup(r.Context(), id, actor.ID, int64(req.Amount*100), req.Purpose)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]bool{"matched": matched})
}

// QuitJointGroup выводит текущего фермера из группы.
func (h *Handler) QuitJointGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cancelled, err := h.service.QuitJointGroup(r.Context(), id, actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]bool{"cancelled": cancelled})
}

// ConfirmJointGroup подтверждает набранную группу и создаёт заявки участников.
func (h *Handler) ConfirmJointGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	apps, err := h.service.ConfirmJointGroup(r.Context(), actor.ID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]applicationResponse, 0, len(apps))
	for i := range apps {
		resp = append(resp, toApplicationResponse(&apps[i]))
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, resp)
}

type memberResponse struct {
	FarmerID int64   `json:"farmer_id"`
	Amount   float64 `json:"amount"`
	Purpose  string  `json:"purpose,omitempty"`
	Status   string  `json:"status"`
}

// GetJointGroup возвращает группу с участниками.
func (h *Handler) GetJointGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	group, members, err := h.service.GetJointGroup(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ms := make([]memberResponse, 0, len(members))
	for _, m := range members {
		ms = append(ms, memberResponse{
			FarmerID: m.FarmerID,
			Amount:   float64(m.AmountCents) / 100,
			Purpose:  m.Purpose,
			Status:   string(m.Status),
		})
	}
	h.writeJSON(w, map[string]any{
		"group":   toGroupResponse(group),
		"members": ms,
	})
}

// FindJointGroupCandidates подбирает фермеру подходящие открытые группы.
func (h *Handler) FindJointGroupCandidates(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || amount <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	candidates, err := h.service.FindJointGroupCandidates(r.Context(), actor.ID, int64(amount*100))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(candidates) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	type candidateResponse struct {
		groupResponse
		Joined      float64 `json:"joined"`
		MemberCount int64   `json:"member_count"`
	}
	resp := make([]candidateResponse, 0, len(candidates))
	for i := range candidates {
		resp = append(resp, candidateResponse{
			groupResponse: toGroupResponse(&candidates[i].Group),
			Joined:        float64(candidates[i].JoinedCents) / 100,
			MemberCount:   candidates[i].MemberCount,
		})
	}
	h.writeJSON(w, resp)
}
