package vat

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/negoce-erp/negoce-erp/internal/platform/httpx"
)

// Handler exposes declaration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers VAT routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/vat/declarations", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.compute)
		r.Get("/{id}", h.get)
		r.Post("/{id}/file", h.file)
	})
}

type computeRequest struct {
	Year  int `json:"year" validate:"required,gte=2000"`
	Month int `json:"month" validate:"required,gte=1,lte=12"`
}

func (h *Handler) compute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
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
	d, err := h.service.Compute(r.Context(), req.Year, req.Month)
	if err != nil {
		h.respondError(w, "compute declaration", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.File(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "file declaration", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get declaration", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list declarations", err)
		return
	}
	if out == nil {
		out = []Declaration{}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrDeclarationNotFound):
		httpx.Problem(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, ErrDeclarationFiled), errors.Is(err, ErrInvalidPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "invalid declaration state", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, op+" failed", err.Error())
	}
}
