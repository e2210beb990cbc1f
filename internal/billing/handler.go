package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/negoce-erp/negoce-erp/internal/platform/httpx"
)

// Handler manages invoice and payment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers invoice and payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Post("/recompute", h.recomputeAll)
		r.Get("/{id}", h.getInvoice)
		r.Put("/{id}", h.updateInvoice)
		r.Post("/{id}/recompute", h.recomputeInvoice)
		r.Post("/{id}/forecasts", h.scheduleForecast)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/", h.createPayment)
		r.Get("/{id}", h.getPayment)
	})
}

type invoiceRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=SALE_INVOICE PURCHASE_INVOICE"`
	Number    string `json:"number" validate:"required"`
	PartnerID string `json:"partnerId" validate:"required"`

	Date          *string  `json:"date"`
	AmountExclTax *float64 `json:"amountExclTax"`
	AmountInclTax *float64 `json:"amountInclTax" validate:"omitempty,gte=0"`
	VATAmount     *float64 `json:"vatAmount"`
	VATRate       *float64 `json:"vatRate" validate:"omitempty,gte=0,lt=1"`
	DiscountRate  *float64 `json:"discountRate" validate:"omitempty,gte=0,lt=1"`
	MovementType  *string  `json:"movementType"`
	Nature        *string  `json:"nature"`

	OriginLabel    *string `json:"originLabel"`
	BankGroup      *string `json:"bankGroup"`
	SettlementCode *string `json:"settlementCode"`
	BankRef        *string `json:"bankRef"`
}

func (req *invoiceRequest) toInput() (CreateInvoiceInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return CreateInvoiceInput{}, err
	}
	return CreateInvoiceInput{
		Kind:          DocumentKind(req.Kind),
		Number:        req.Number,
		PartnerID:     req.PartnerID,
		Date:          date,
		AmountExclTax: req.AmountExclTax,
		AmountInclTax: req.AmountInclTax,
		VATAmount:     req.VATAmount,
		VATRate:       req.VATRate,
		DiscountRate:  req.DiscountRate,
		MovementType:  req.MovementType,
		Nature:        req.Nature,
		Classifiers: Classifiers{
			OriginLabel:    req.OriginLabel,
			BankGroup:      req.BankGroup,
			SettlementCode: req.SettlementCode,
			BankRef:        req.BankRef,
		},
	}, nil
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !h.valid(w, req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid date", err.Error())
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "create invoice failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, presentInvoice(inv))
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid date", err.Error())
		return
	}
	inv, err := h.service.UpdateInvoice(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.respondError(w, "update invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentInvoice(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentInvoice(inv))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	kind := DocumentKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = KindSaleInvoice
	}
	invoices, err := h.service.ListInvoices(r.Context(), kind)
	if err != nil {
		h.respondError(w, "list invoices", err)
		return
	}
	out := make([]map[string]any, 0, len(invoices))
	for i := range invoices {
		out = append(out, presentInvoice(&invoices[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) recomputeInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.RecomputeInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "recompute invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentInvoice(inv))
}

func (h *Handler) recomputeAll(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.RecomputeAll(r.Context())
	if err != nil {
		h.respondError(w, "recompute invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"recomputed": count})
}

type forecastRequest struct {
	DueDate string  `json:"dueDate" validate:"required"`
	Amount  float64 `json:"amount" validate:"required,gt=0"`
	Note    string  `json:"note"`
}

func (h *Handler) scheduleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
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
	f, err := h.service.ScheduleForecast(r.Context(), ScheduleForecastInput{
		InvoiceID: chi.URLParam(r, "id"),
		DueDate:   due,
		Amount:    req.Amount,
		Note:      req.Note,
	})
	if err != nil {
		h.respondError(w, "schedule forecast", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

type paymentRequest struct {
	Reference string   `json:"reference"`
	Date      *string  `json:"date"`
	Amount    *float64 `json:"amount" validate:"required,gt=0"`
	VATRate   *float64 `json:"vatRate" validate:"omitempty,gte=0,lt=1"`

	MovementType   *string `json:"movementType"`
	Nature         *string `json:"nature"`
	SettlementCode *string `json:"settlementCode"`

	SaleInvoiceID     *string `json:"saleInvoiceId"`
	PurchaseInvoiceID *string `json:"purchaseInvoiceId"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !h.valid(w, req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid date", err.Error())
		return
	}
	p, err := h.service.RegisterPayment(r.Context(), RegisterPaymentInput{
		Reference:         req.Reference,
		Date:              date,
		Amount:            req.Amount,
		VATRate:           req.VATRate,
		MovementType:      req.MovementType,
		Nature:            req.Nature,
		Classifiers:       Classifiers{SettlementCode: req.SettlementCode},
		SaleInvoiceID:     req.SaleInvoiceID,
		PurchaseInvoiceID: req.PurchaseInvoiceID,
	})
	if err != nil {
		h.respondError(w, "create payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, presentPayment(p))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentPayment(p))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context())
	if err != nil {
		h.respondError(w, "list payments", err)
		return
	}
	out := make([]map[string]any, 0, len(payments))
	for i := range payments {
		out = append(out, presentPayment(&payments[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
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
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrPaymentNotFound):
		httpx.Problem(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, ErrPaymentUnlinked):
		httpx.Problem(w, http.StatusUnprocessableEntity, "payment must reference one invoice", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, op+" failed", err.Error())
	}
}

// Amounts leave the system rounded to two decimals.
func presentInvoice(inv *Invoice) map[string]any {
	return map[string]any{
		"id":              inv.ID,
		"number":          inv.Number,
		"kind":            inv.Kind,
		"partnerId":       inv.PartnerID,
		"date":            inv.Date,
		"amountExclTax":   inv.AmountExclTax,
		"amountInclTax":   inv.AmountInclTax,
		"vatAmount":       inv.VATAmount,
		"vatRate":         inv.VATRate,
		"discountRate":    inv.DiscountRate,
		"movementType":    inv.MovementType,
		"nature":          inv.Nature,
		"settled":         inv.Settled,
		"remainingAmount": inv.RemainingAmount,
		"forecasts":       inv.Forecasts,
		"derived":         inv.Derived.Rounded(),
		"createdAt":       inv.CreatedAt,
		"updatedAt":       inv.UpdatedAt,
	}
}

func presentPayment(p *Payment) map[string]any {
	return map[string]any{
		"id":                p.ID,
		"reference":         p.Reference,
		"date":              p.Date,
		"amount":            p.Amount,
		"vatRate":           p.VATRate,
		"movementType":      p.MovementType,
		"nature":            p.Nature,
		"saleInvoiceId":     p.SaleInvoiceID,
		"purchaseInvoiceId": p.PurchaseInvoiceID,
		"derived":           p.Derived.Rounded(),
		"createdAt":         p.CreatedAt,
		"updatedAt":         p.UpdatedAt,
	}
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
