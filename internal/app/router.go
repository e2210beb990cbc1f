package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/negoce-erp/negoce-erp/internal/billing"
	"github.com/negoce-erp/negoce-erp/internal/expenses"
	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/ledger/reports"
	"github.com/negoce-erp/negoce-erp/internal/treasury"
	"github.com/negoce-erp/negoce-erp/internal/vat"
	"github.com/negoce-erp/negoce-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	BillingHandler  *billing.Handler
	LedgerHandler   *ledger.Handler
	ReportsHandler  *reports.Handler
	TreasuryHandler *treasury.Handler
	ExpenseHandler  *expenses.Handler
	VATHandler      *vat.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.LedgerHandler != nil {
			r.Route("/ledger", params.LedgerHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.TreasuryHandler != nil {
			params.TreasuryHandler.MountRoutes(r)
		}
		if params.ExpenseHandler != nil {
			params.ExpenseHandler.MountRoutes(r)
		}
		if params.VATHandler != nil {
			params.VATHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
