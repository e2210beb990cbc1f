package expenses

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/negoce-erp/negoce-erp/internal/platform/httpx"
)

// Handler exposes expense endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Post("/{id}/pay", h.pay)
		r.Delete("/{id}", h.delete)
	})
}

type expenseRequest struct {
	Label    string  `json:"label" validate:"required"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Taxable  bool    `json:"taxable"`
	DueDate  string  `json:"dueDate" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !h.valid(w, req) {
		return
	}
	due, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid date", err.Error())
		return
	}
	e, err := h.service.Create(r.Context(), CreateInput{
		Label:    req.Label,
		Category: req.Category,
		Amount:   req.Amount,
		Taxable:  req.Taxable,
		DueDate:  due,
	})
	if err != nil {
		h.respondError(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

type payRequest struct {
	PaidAt string `json:"paidAt"`
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		t, err := time.Parse("2006-01-02", req.PaidAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid date", err.Error())
			return
		}
		paidAt = t
	}
	e, err := h.service.Pay(r.Context(), chi.URLParam(r, "id"), paidAt)
	if err != nil {
		h.respondError(w, "pay expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	out, err := h.service.List(r.Context(), status)
	if err != nil {
		h.respondError(w, "list expenses", err)
		return
	}
	if out == nil {
		out = []Expense{}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) valid(w http.ResponseWriter, req any) bool {
	if err := h.validator.Struct(req); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			httpx.ValidationProblem(w, errs)
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "invalid request", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrExpenseNotFound):
		httpx.Problem(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrPaidImmutable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "invalid expense state", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, op+" failed", err.Error())
	}
}
