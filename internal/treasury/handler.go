package treasury

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

// Handler exposes the cash position and forecast endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	forecaster *Forecaster
	validator  *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, forecaster *Forecaster) *Handler {
	return &Handler{logger: logger, service: service, forecaster: forecaster, validator: validator.New()}
}

// MountRoutes registers treasury routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/treasury", func(r chi.Router) {
		r.Get("/balance", h.balance)
		r.Post("/balance/initialize", h.initializeBalance)
		r.Get("/balance/projected", h.projectedBalance)
		r.Get("/partners/{partnerId}/balance", h.partnerBalance)
		r.Get("/partners/{partnerId}/movements", h.listPartnerMovements)
		r.Get("/movements", h.listMovements)
		r.Post("/movements", h.recordMovement)
		r.Get("/forecast", h.forecast)
	})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Balance(r.Context())
	if err != nil {
		h.respondError(w, "get balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

type initializeRequest struct {
	Amount    float64 `json:"amount" validate:"gte=0"`
	StartDate string  `json:"startDate" validate:"required"`
}

func (h *Handler) initializeBalance(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
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
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid start date", err.Error())
		return
	}
	b, err := h.service.Initialize(r.Context(), req.Amount, startDate)
	if err != nil {
		h.respondError(w, "initialize balance", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) projectedBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.ProjectedBalance(r.Context())
	if err != nil {
		h.respondError(w, "get projected balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) partnerBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.PartnerBalance(r.Context(), chi.URLParam(r, "partnerId"))
	if err != nil {
		h.respondError(w, "get partner balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), limit)
	if err != nil {
		h.respondError(w, "list movements", err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) listPartnerMovements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.PartnerMovements(r.Context(), chi.URLParam(r, "partnerId"), limit)
	if err != nil {
		h.respondError(w, "list partner movements", err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, movements)
}

type movementRequest struct {
	Type      string  `json:"type" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Label     string  `json:"label"`
	PartnerID *string `json:"partnerId"`
	SourceID  *string `json:"sourceId"`
	Date      string  `json:"date"`
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
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
	var occurredAt time.Time
	if req.Date != "" {
		t, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid date", err.Error())
			return
		}
		occurredAt = t
	}
	m, err := h.service.RecordTransaction(r.Context(), RecordInput{
		Type:       TransactionType(req.Type),
		Amount:     req.Amount,
		Label:      req.Label,
		PartnerID:  req.PartnerID,
		SourceID:   req.SourceID,
		OccurredAt: occurredAt,
	})
	if err != nil {
		h.respondError(w, "record movement", err)
		return
	}
	h.forecaster.Invalidate(r.Context())
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) forecast(w http.ResponseWriter, r *http.Request) {
	from, err := parseDayParam(r.URL.Query().Get("from"), truncateDay(time.Now()))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid from date", err.Error())
		return
	}
	to, err := parseDayParam(r.URL.Query().Get("to"), from.AddDate(0, 0, 30))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid to date", err.Error())
		return
	}
	fc, err := h.forecaster.Build(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "build forecast", err)
		return
	}
	httpx.JSON(w, http.StatusOK, fc)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrUnknownTransactionType),
		errors.Is(err, ErrAmountNotPositive),
		errors.Is(err, ErrLabelRequired),
		errors.Is(err, ErrPartnerRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "invalid movement", err.Error())
	case errors.Is(err, ErrAlreadyInitialized):
		httpx.Problem(w, http.StatusConflict, "already initialized", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, op+" failed", err.Error())
	}
}

func parseDayParam(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", s)
}
