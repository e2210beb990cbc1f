package billing

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort defines data access methods for invoices and payments.
type RepositoryPort interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	ListInvoices(ctx context.Context, kind DocumentKind) ([]Invoice, error)
	ListOpenInvoices(ctx context.Context) ([]Invoice, error)

	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ListPayments(ctx context.Context) ([]Payment, error)
	ListPaymentsForInvoice(ctx context.Context, invoiceID string) ([]Payment, error)

	AddForecast(ctx context.Context, invoiceID string, f PaymentForecast) error
	UpdateForecast(ctx context.Context, invoiceID string, f PaymentForecast) error
	ListForecastsDueBetween(ctx context.Context, from, to time.Time) ([]ScheduledForecast, error)
}

// ScheduledForecast pairs a forecast with the invoice it settles.
type ScheduledForecast struct {
	InvoiceID     string
	InvoiceNumber string
	Kind          DocumentKind
	PartnerID     string
	Forecast      PaymentForecast
}

// Listener receives documents after they are stored, for downstream
// bookkeeping. A listener failure never rolls back the stored document.
type Listener interface {
	InvoiceRecorded(ctx context.Context, inv *Invoice) error
	PaymentRecorded(ctx context.Context, p *Payment, inv *Invoice) error
}

// Service handles invoice and payment business logic.
type Service struct {
	repo      RepositoryPort
	calc      *Calculator
	logger    *slog.Logger
	listeners []Listener
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, calc *Calculator, logger *slog.Logger) *Service {
	return &Service{repo: repo, calc: calc, logger: logger}
}

// Subscribe registers a downstream listener.
func (s *Service) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

// CreateInvoiceInput carries the primitive fields of a new invoice.
type CreateInvoiceInput struct {
	Kind      DocumentKind
	Number    string
	PartnerID string

	Date          *time.Time
	AmountExclTax *float64
	AmountInclTax *float64
	VATAmount     *float64
	VATRate       *float64
	DiscountRate  *float64
	MovementType  *string
	Nature        *string
	Classifiers   Classifiers
}

// CreateInvoice stores a new invoice with its derived fields computed.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error) {
	if input.Kind != KindSaleInvoice && input.Kind != KindPurchaseInvoice {
		return nil, errors.New("billing: invoice kind must be sale or purchase")
	}
	if input.Number == "" {
		return nil, errors.New("billing: invoice number required")
	}
	if input.PartnerID == "" {
		return nil, errors.New("billing: partner ID required")
	}
	if input.AmountInclTax != nil && *input.AmountInclTax < 0 {
		return nil, errors.New("billing: gross amount must not be negative")
	}

	now := time.Now()
	inv := &Invoice{
		ID:            uuid.NewString(),
		Number:        input.Number,
		Kind:          input.Kind,
		PartnerID:     input.PartnerID,
		Date:          input.Date,
		AmountExclTax: input.AmountExclTax,
		AmountInclTax: input.AmountInclTax,
		VATAmount:     input.VATAmount,
		VATRate:       input.VATRate,
		DiscountRate:  input.DiscountRate,
		MovementType:  input.MovementType,
		Nature:        input.Nature,
		Classifiers:   input.Classifiers,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if inv.AmountInclTax != nil {
		remaining := math.Abs(*inv.AmountInclTax)
		inv.RemainingAmount = &remaining
	}
	s.recompute(inv)

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	s.notifyInvoice(ctx, inv)
	return inv, nil
}

// UpdateInvoice replaces the invoice's primitive fields and recomputes every
// derived field from scratch.
func (s *Service) UpdateInvoice(ctx context.Context, id string, input CreateInvoiceInput) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Date = input.Date
	inv.AmountExclTax = input.AmountExclTax
	inv.AmountInclTax = input.AmountInclTax
	inv.VATAmount = input.VATAmount
	inv.VATRate = input.VATRate
	inv.DiscountRate = input.DiscountRate
	inv.MovementType = input.MovementType
	inv.Nature = input.Nature
	inv.Classifiers = input.Classifiers
	inv.UpdatedAt = time.Now()
	s.recompute(inv)

	if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns all invoices of one kind.
func (s *Service) ListInvoices(ctx context.Context, kind DocumentKind) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, kind)
}

// RecomputeInvoice re-derives one invoice's computed fields and stores them.
func (s *Service) RecomputeInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recompute(inv)
	inv.UpdatedAt = time.Now()
	if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// RecomputeAll re-derives every stored invoice. Used after a change to the
// exclusion rules.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	count := 0
	for _, kind := range []DocumentKind{KindSaleInvoice, KindPurchaseInvoice} {
		invoices, err := s.repo.ListInvoices(ctx, kind)
		if err != nil {
			return count, err
		}
		for i := range invoices {
			inv := &invoices[i]
			s.recompute(inv)
			inv.UpdatedAt = time.Now()
			if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// RegisterPaymentInput carries a new payment. Exactly one invoice link must
// be set.
type RegisterPaymentInput struct {
	Reference string
	Date      *time.Time
	Amount    *float64
	VATRate   *float64

	MovementType *string
	Nature       *string
	Classifiers  Classifiers

	SaleInvoiceID     *string
	PurchaseInvoiceID *string
}

// RegisterPayment stores a payment, settles it against its invoice and
// advances the invoice's forecast schedule.
func (s *Service) RegisterPayment(ctx context.Context, input RegisterPaymentInput) (*Payment, error) {
	if (input.SaleInvoiceID == nil) == (input.PurchaseInvoiceID == nil) {
		return nil, ErrPaymentUnlinked
	}
	if input.Amount == nil || *input.Amount <= 0 {
		return nil, errors.New("billing: payment amount must be positive")
	}

	invoiceID := ""
	if input.SaleInvoiceID != nil {
		invoiceID = *input.SaleInvoiceID
	} else {
		invoiceID = *input.PurchaseInvoiceID
	}
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &Payment{
		ID:                uuid.NewString(),
		Reference:         input.Reference,
		Date:              input.Date,
		Amount:            input.Amount,
		VATRate:           input.VATRate,
		MovementType:      input.MovementType,
		Nature:            input.Nature,
		Classifiers:       input.Classifiers,
		SaleInvoiceID:     input.SaleInvoiceID,
		PurchaseInvoiceID: input.PurchaseInvoiceID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.VATRate == nil {
		p.VATRate = inv.VATRate
	}
	doc := p.Document()
	s.calc.Compute(&doc)
	p.MovementType = doc.MovementType
	p.Nature = doc.Nature
	p.VATRate = doc.VATRate
	p.Derived = doc.Derived

	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	s.settle(inv, *p.Amount)
	inv.UpdatedAt = now
	if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	s.notifyPayment(ctx, p, inv)
	return p, nil
}

// GetPayment returns one payment.
func (s *Service) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns all payments.
func (s *Service) ListPayments(ctx context.Context) ([]Payment, error) {
	return s.repo.ListPayments(ctx)
}

// ScheduleForecastInput plans a future settlement against an invoice.
type ScheduleForecastInput struct {
	InvoiceID string
	DueDate   time.Time
	Amount    float64
	Note      string
}

// ScheduleForecast attaches a planned settlement to an invoice.
func (s *Service) ScheduleForecast(ctx context.Context, input ScheduleForecastInput) (*PaymentForecast, error) {
	if input.Amount <= 0 {
		return nil, errors.New("billing: forecast amount must be positive")
	}
	if input.DueDate.IsZero() {
		return nil, errors.New("billing: forecast due date required")
	}
	if _, err := s.repo.GetInvoice(ctx, input.InvoiceID); err != nil {
		return nil, err
	}
	f := PaymentForecast{
		ID:              uuid.NewString(),
		DueDate:         input.DueDate,
		PlannedAmount:   input.Amount,
		RemainingAmount: input.Amount,
		Status:          ForecastPlanned,
		Note:            input.Note,
		CreatedAt:       time.Now(),
	}
	if err := s.repo.AddForecast(ctx, input.InvoiceID, f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListForecastsDueBetween returns planned settlements in [from, to].
func (s *Service) ListForecastsDueBetween(ctx context.Context, from, to time.Time) ([]ScheduledForecast, error) {
	return s.repo.ListForecastsDueBetween(ctx, from, to)
}

// ListOpenInvoices returns unsettled invoices with a remaining balance.
func (s *Service) ListOpenInvoices(ctx context.Context) ([]Invoice, error) {
	return s.repo.ListOpenInvoices(ctx)
}

func (s *Service) recompute(inv *Invoice) {
	doc := inv.Document()
	s.calc.Compute(&doc)
	inv.VATRate = doc.VATRate
	inv.DiscountRate = doc.DiscountRate
	inv.MovementType = doc.MovementType
	inv.Nature = doc.Nature
	inv.Derived = doc.Derived
}

// settle reduces the invoice's remaining balance and walks the forecast
// schedule oldest first, consuming planned amounts.
func (s *Service) settle(inv *Invoice, amount float64) {
	if inv.RemainingAmount != nil {
		remaining := *inv.RemainingAmount - amount
		if remaining < 0 {
			remaining = 0
		}
		inv.RemainingAmount = &remaining
		inv.Settled = remaining <= 0.01
	}

	left := amount
	for i := range inv.Forecasts {
		f := &inv.Forecasts[i]
		if left <= 0 || f.Status == ForecastRealized {
			continue
		}
		applied := math.Min(left, f.RemainingAmount)
		f.PaidAmount += applied
		f.RemainingAmount -= applied
		left -= applied
		if f.RemainingAmount <= 0.01 {
			f.RemainingAmount = 0
			f.Status = ForecastRealized
		}
	}
}

func (s *Service) notifyInvoice(ctx context.Context, inv *Invoice) {
	for _, l := range s.listeners {
		if err := l.InvoiceRecorded(ctx, inv); err != nil {
			s.logger.Error("invoice listener failed",
				slog.String("invoice_id", inv.ID), slog.Any("error", err))
		}
	}
}

func (s *Service) notifyPayment(ctx context.Context, p *Payment, inv *Invoice) {
	for _, l := range s.listeners {
		if err := l.PaymentRecorded(ctx, p, inv); err != nil {
			s.logger.Error("payment listener failed",
				slog.String("payment_id", p.ID), slog.Any("error", err))
		}
	}
}
