package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/agroloan-system/internal/middleware"
	"github.com/mmeshcher/agroloan-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware кредитного движка.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Post("/api/auth/login", h.Login)

	// Кабинет фермера.
	r.Route("/api/farmer", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(custommiddleware.RequireRole(model.ActorFarmer))

		r.Post("/applications", h.SubmitApplication)
		r.Get("/applications", h.ListMyApplications)
		r.Get("/applications/{id}", h.GetApplication)
		r.Get("/applications/{id}/timeline", h.GetTimeline)
		r.Get("/applications/{id}/schedule", h.GetSchedule)
		r.Get("/applications/{id}/contract", h.GetContract)
		r.Post("/applications/{id}/installments/{number}/repay", h.RepayInstallment)
		r.Get("/applications/{id}/early-repayment", h.QuoteEarlyRepayment)

		r.Post("/groups", h.CreateJointGroup)
		r.Get("/groups/candidates", h.FindJointGroupCandidates)
		r.Get("/groups/{id}", h.GetJointGroup)
		r.Post("/groups/{id}/join", h.JoinJointGroup)
		r.Post("/groups/{id}/quit", h.QuitJointGroup)
		r.Post("/groups/{id}/confirm", h.ConfirmJointGroup)
	})

	// Подписание договора доступно обеим сторонам.
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Post("/api/contracts/{id}/sign", h.SignContract)
	})

	// Бэк-офис кредитного специалиста.
	r.Route("/api/office", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(custommiddleware.RequireRole(model.ActorOfficer))

		r.Post("/products", h.CreateProduct)
		r.Get("/products", h.ListProducts)

		r.Get("/applications", h.ListApplicationsByStatus)
		r.Get("/applications/{id}", h.GetApplication)
		r.Get("/applications/{id}/timeline", h.GetTimeline)
		r.Get("/applications/{id}/schedule", h.GetSchedule)
		r.Get("/applications/{id}/score", h.GetCreditScore)
		r.Get("/applications/{id}/repayments", h.ListRepayments)
		r.Get("/applications/{id}/monitoring", h.MonitorLoan)
		r.Post("/applications/{id}/review", h.StartReview)
		r.Post("/applications/{id}/approve", h.Approve)
		r.Post("/applications/{id}/reject", h.Reject)
		r.Post("/applications/{id}/contract", h.GenerateContract)
		r.Post("/applications/{id}/disburse", h.Disburse)
		r.Get("/applications/{id}/disbursement", h.GetDisbursement)

		r.Post("/jobs/overdue-sweep", h.RunOverdueSweep)
		r.Post("/jobs/reconciliation", h.RunReconciliation)
		r.Post("/jobs/risk-indicators", h.RunRiskIndicators)

		r.Get("/reconciliations", h.ListReconciliations)
		r.Get("/reconciliations/stats", h.ReconciliationStats)

		r.Get("/risk", h.RiskDashboard)
		r.Get("/risk/alerts", h.RiskAlerts)

		r.Get("/dashboard", h.Dashboard)
		r.Get("/dashboard/trend", h.MonthlyTrend)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
