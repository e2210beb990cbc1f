package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/negoce-erp/negoce-erp/internal/platform/httpx"
)

// Handler serves the report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/balance-sheet", h.balanceSheet)
	r.Get("/income-statement", h.incomeStatement)
	r.Get("/corporate-tax", h.corporateTax)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), from, to)
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "trial balance failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse(dayFormat, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid date", err.Error())
			return
		}
		asOf = parsed
	}
	bs, err := h.service.BalanceSheet(r.Context(), asOf)
	if err != nil {
		h.logger.Error("balance sheet", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "balance sheet failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}
	st, err := h.service.IncomeStatement(r.Context(), from, to)
	if err != nil {
		h.logger.Error("income statement", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "income statement failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) corporateTax(w http.ResponseWriter, r *http.Request) {
	year := time.Now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid year", err.Error())
			return
		}
		year = parsed
	}
	assessment, err := h.service.CorporateTax(r.Context(), year)
	if err != nil {
		h.logger.Error("corporate tax", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "corporate tax failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, assessment)
}

// rangeParams reads from/to, defaulting to the current calendar year.
func rangeParams(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(dayFormat, raw)
		if err != nil {
			return from, to, err
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(dayFormat, raw)
		if err != nil {
			return from, to, err
		}
		to = parsed
	}
	return from, to, nil
}
