package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/negoce-erp/negoce-erp/internal/platform/httpx"
)

// Handler serves chart, journal and period endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Get("/entries", h.listEntries)
	r.Get("/periods", h.listPeriods)
	r.Post("/periods", h.createPeriod)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list accounts failed", err.Error())
		return
	}
	type row struct {
		Code    string  `json:"code"`
		Name    string  `json:"name"`
		Type    string  `json:"type"`
		Debit   float64 `json:"debit"`
		Credit  float64 `json:"credit"`
		Balance float64 `json:"balance"`
	}
	out := make([]row, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, row{
			Code: a.Code, Name: a.Name, Type: string(a.Type),
			Debit: a.TotalDebit, Credit: a.TotalCredit, Balance: a.Balance(),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := h.service.ListEntries(r.Context(), limit)
	if err != nil {
		h.logger.Error("list entries", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list entries failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.service.ListPeriods(r.Context())
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "list periods failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

type periodRequest struct {
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			httpx.ValidationProblem(w, errs)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid start date", err.Error())
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid end date", err.Error())
		return
	}
	period, err := h.service.CreatePeriod(r.Context(), start, end)
	if err != nil {
		switch {
		case errors.Is(err, ErrPeriodInvalid), errors.Is(err, ErrPeriodOverlap):
			httpx.Problem(w, http.StatusUnprocessableEntity, "period rejected", err.Error())
		default:
			h.logger.Error("create period", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "create period failed", err.Error())
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}
