package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mmeshcher/agroloan-system/internal/model"
	"github.com/mmeshcher/agroloan-system/internal/service"
)

type productRequest struct {
	Name       string  `json:"name"`
	AnnualRate float64 `json:"annual_rate"`
	MinAmount  float64 `json:"min_amount"`
	MaxAmount  float64 `json:"max_amount"`
	MinTerm    int     `json:"min_term_months"`
	MaxTerm    int     `json:"max_term_months"`
}

type productResponse struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	AnnualRate float64 `json:"annual_rate"`
	MinAmount  float64 `json:"min_amount"`
	MaxAmount  float64 `json:"max_amount"`
	MinTerm    int     `json:"min_term_months"`
	MaxTerm    int     `json:"max_term_months"`
	Status     string  `json:"status"`
}

func toProductResponse(p *model.LoanProduct) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		AnnualRate: float64(p.AnnualRateBP) / 10000,
		MinAmount:  float64(p.MinAmountCents) / 100,
		MaxAmount:  float64(p.MaxAmountCents) / 100,
		MinTerm:    p.MinTermMonths,
		MaxTerm:    p.MaxTermMonths,
		Status:     string(p.Status),
	}
}

// CreateProduct создаёт кредитный продукт.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateProduct(r.Context(), actor.ID, &model.LoanProduct{
		Name:           req.Name,
		AnnualRateBP:   int64(req.AnnualRate * 10000),
		MinAmountCents: int64(req.MinAmount * 100),
		MaxAmountCents: int64(req.MaxAmount * 100),
		MinTermMonths:  req.MinTerm,
		MaxTermMonths:  req.MaxTerm,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, map[string]int64{"id": id})
}

// ListProducts возвращает все кредитные продукты.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(products) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toProductResponse(&products[i]))
	}
	h.writeJSON(w, resp)
}

// ListApplicationsByStatus возвращает заявки в указанном статусе.
func (h *Handler) ListApplicationsByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := model.ParseApplicationStatus(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	apps, err := h.service.ListApplicationsByStatus(r.Context(), status)
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

// StartReview переводит заявку на рассмотрение.
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.StartReview(r.Context(), actor.ID, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type approveRequest struct {
	AnnualRate   float64  `json:"annual_rate"`
	Comment      string   `json:"comment"`
	HistoryScore *float64 `json:"history_score,omitempty"`
	AnnualIncome float64  `json:"annual_income"`
	TotalAssets  float64  `json:"total_assets"`
	DebtRatio    float64  `json:"debt_ratio"`
	YearsFarming int      `json:"years_farming"`
}

type creditScoreResponse struct {
	HistoryScore    float64 `json:"history_score"`
	IncomeScore     float64 `json:"income_score"`
	AssetScore      float64 `json:"asset_score"`
	DebtRatioScore  float64 `json:"debt_ratio_score"`
	ExperienceScore float64 `json:"experience_score"`
	TotalScore      float64 `json:"total_score"`
	Tier            string  `json:"tier"`
	CreditLine      float64 `json:"credit_line"`
}

func toCreditScoreResponse(s *model.CreditScore) creditScoreResponse {
	return creditScoreResponse{
		HistoryScore:    s.HistoryScore,
		IncomeScore:     s.IncomeScore,
		AssetScore:      s.AssetScore,
		DebtRatioScore:  s.DebtRatioScore,
		ExperienceScore: s.ExperienceScore,
		TotalScore:      s.TotalScore,
		Tier:            string(s.Tier),
		CreditLine:      float64(s.CreditLineCents) / 100,
	}
}

// Approve одобряет заявку: скоринг, рецензия, график погашения.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
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

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	score, err := h.service.Approve(r.Context(), actor.ID, id, int64(req.AnnualRate*10000), req.Comment, service.CreditInput{
		HistoryScore:      req.HistoryScore,
		AnnualIncomeCents: int64(req.AnnualIncome * 100),
		TotalAssetsCents:  int64(req.TotalAssets * 100),
		DebtRatio:         req.DebtRatio,
		YearsFarming:      req.YearsFarming,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toCreditScoreResponse(score))
}

type rejectRequest struct {
	Comment string `json:"comment"`
}

// Reject отклоняет заявку с комментарием.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
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

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Reject(r.Context(), actor.ID, id, req.Comment); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetCreditScore возвращает скоринговый снимок заявки.
func (h *Handler) GetCreditScore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	score, err := h.service.GetCreditScore(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toCreditScoreResponse(score))
}

// GenerateContract формирует договор по одобренной заявке.
func (h *Handler) GenerateContract(w http.ResponseWriter, r *http.Request) {
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

	contract, err := h.service.GenerateContract(r.Context(), actor.ID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, toContractResponse(contract))
}

type disburseRequest struct {
	BankAccount   string `json:"bank_account"`
	FarmerAccount string `json:"farmer_account"`
}

// Disburse проводит выдачу средств по подписанной заявке.
func (h *Handler) Disburse(w http.ResponseWriter, r *http.Request) {
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

	var req disburseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	disb, err := h.service.Disburse(r.Context(), actor.ID, id, req.BankAccount, req.FarmerAccount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]any{
		"amount":  float64(disb.AmountCents) / 100,
		"status":  string(disb.Status),
		"txn_ref": disb.TxnRef,
	})
}

// GetDisbursement возвращает запись выдачи по заявке.
func (h *Handler) GetDisbursement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	disb, err := h.service.GetDisbursement(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"amount":     float64(disb.AmountCents) / 100,
		"status":     string(disb.Status),
		"txn_ref":    disb.TxnRef,
		"created_at": disb.CreatedAt.Format(time.RFC3339),
	})
}

// dateRange разбирает параметры from/to в формате YYYY-MM-DD.
// Пустой диапазон означает последние 30 дней.
func dateRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from, to := now.AddDate(0, 0, -30), now

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed.AddDate(0, 0, 1)
	}
	return from, to, nil
}

// RunOverdueSweep запускает ручной перевод просроченных платежей в OVERDUE.
func (h *Handler) RunOverdueSweep(w http.ResponseWriter, r *http.Request) {
	swept, err := h.service.RunOverdueSweep(r.Context(), time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]int64{"swept": swept})
}

// RunReconciliation запускает ручную сверку обслуживаемых заявок.
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	processed, err := h.service.RunReconciliation(r.Context(), time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]int{"processed": processed})
}

// RunRiskIndicators запускает ручное построение портфельного среза рисков.
func (h *Handler) RunRiskIndicators(w http.ResponseWriter, r *http.Request) {
	ind, err := h.service.RunRiskIndicators(r.Context(), time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toRiskResponse(ind))
}

type reconResponse struct {
	ApplicationID    int64   `json:"application_id"`
	RecordDate       string  `json:"record_date"`
	Disbursed        float64 `json:"disbursed"`
	RepaidPrincipal  float64 `json:"repaid_principal"`
	RepaidInterest   float64 `json:"repaid_interest"`
	PendingPrincipal float64 `json:"pending_principal"`
	OverduePrincipal float64 `json:"overdue_principal"`
	Penalty          float64 `json:"penalty"`
	Status           string  `json:"status"`
	Reason           string  `json:"reason,omitempty"`
}

// ListReconciliations возвращает результаты сверок за период.
func (h *Handler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	records, err := h.service.ListReconciliations(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]reconResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, reconResponse{
			ApplicationID:    rec.ApplicationID,
			RecordDate:       rec.RecordDate.Format("2006-01-02"),
			Disbursed:        float64(rec.DisbursedCents) / 100,
			RepaidPrincipal:  float64(rec.RepaidPrincipalCents) / 100,
			RepaidInterest:   float64(rec.RepaidInterestCents) / 100,
			PendingPrincipal: float64(rec.PendingPrincipalCents) / 100,
			OverduePrincipal: float64(rec.OverduePrincipalCents) / 100,
			Penalty:          float64(rec.PenaltyCents) / 100,
			Status:           string(rec.Status),
			Reason:           rec.Reason,
		})
	}
	h.writeJSON(w, resp)
}

// ReconciliationStats возвращает сводку сверок за период.
func (h *Handler) ReconciliationStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	stats, err := h.service.ReconciliationStats(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]int64{
		"total":       stats.Total,
		"normal":      stats.Normal,
		"differences": stats.Differences,
	})
}

type riskResponse struct {
	Date          string  `json:"date"`
	TotalCount    int64   `json:"total_count"`
	TotalAmount   float64 `json:"total_amount"`
	OverdueCount  int64   `json:"overdue_count"`
	OverdueAmount float64 `json:"overdue_amount"`
	OverdueRate   float64 `json:"overdue_rate"`
	BadDebtCount  int64   `json:"bad_debt_count"`
	BadDebtAmount float64 `json:"bad_debt_amount"`
	BadDebtRate   float64 `json:"bad_debt_rate"`
	CreditBalance float64 `json:"credit_balance"`
	JointLoanRate float64 `json:"joint_loan_rate"`
}

func toRiskResponse(ind *model.RiskIndicator) riskResponse {
	return riskResponse{
		Date:          ind.IndicatorDate.Format("2006-01-02"),
		TotalCount:    ind.TotalCount,
		TotalAmount:   float64(ind.TotalCents) / 100,
		OverdueCount:  ind.OverdueCount,
		OverdueAmount: float64(ind.OverdueCents) / 100,
		OverdueRate:   ind.OverdueRate,
		BadDebtCount:  ind.BadDebtCount,
		BadDebtAmount: float64(ind.BadDebtCents) / 100,
		BadDebtRate:   ind.BadDebtRate,
		CreditBalance: float64(ind.CreditBalanceCents) / 100,
		JointLoanRate: ind.JointLoanRate,
	}
}

// RiskDashboard возвращает последний портфельный срез рисков.
func (h *Handler) RiskDashboard(w http.ResponseWriter, r *http.Request) {
	ind, err := h.service.RiskDashboard(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ind == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, toRiskResponse(ind))
}

// RiskAlerts возвращает транзитные оповещения риск-мониторинга.
func (h *Handler) RiskAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.BuildAlerts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(alerts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, alerts)
}

// Dashboard возвращает сводку кредитного портфеля.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	summary, err := h.service.Dashboard(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, summary)
}

// MonthlyTrend возвращает помесячный тренд выдач.
func (h *Handler) MonthlyTrend(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	points, err := h.service.MonthlyTrend(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type trendResponse struct {
		Month  string  `json:"month"`
		Count  int64   `json:"count"`
		Amount float64 `json:"amount"`
	}
	resp := make([]trendResponse, 0, len(points))
	for _, p := range points {
		resp = append(resp, trendResponse{
			Month:  p.Month.Format("2006-01"),
			Count:  p.Count,
			Amount: float64(p.AmountCents) / 100,
		})
	}
	h.writeJSON(w, resp)
}

// MonitorLoan возвращает состояние обслуживания займа.
func (h *Handler) MonitorLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, err := h.service.MonitorLoan(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, m)
}

// ListRepayments возвращает журнал погашений заявки.
func (h *Handler) ListRepayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	records, err := h.service.ListRepayments(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	type repaymentResponse struct {
		Principal float64 `json:"principal"`
		Interest  float64 `json:"interest"`
		Penalty   float64 `json:"penalty"`
		PaidAt    string  `json:"paid_at"`
	}
	resp := make([]repaymentResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, repaymentResponse{
			Principal: float64(rec.PrincipalCents) / 100,
			Interest:  float64(rec.InterestCents) / 100,
			Penalty:   float64(rec.PenaltyCents) / 100,
			PaidAt:    rec.PaidAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, resp)
}
