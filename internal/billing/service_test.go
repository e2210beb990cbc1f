package billing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	invoices map[string]*Invoice
	payments map[string]*Payment
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices: make(map[string]*Invoice),
		payments: make(map[string]*Payment),
	}
}

func (r *memoryRepo) CreateInvoice(_ context.Context, inv *Invoice) error {
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *memoryRepo) UpdateInvoice(_ context.Context, inv *Invoice) error {
	if _, ok := r.invoices[inv.ID]; !ok {
		return ErrInvoiceNotFound
	}
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *memoryRepo) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryRepo) ListInvoices(_ context.Context, kind DocumentKind) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.Kind == kind {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListOpenInvoices(_ context.Context) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if !inv.Settled && inv.RemainingAmount != nil && *inv.RemainingAmount > 0 {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreatePayment(_ context.Context, p *Payment) error {
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *memoryRepo) GetPayment(_ context.Context, id string) (*Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) ListPayments(_ context.Context) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryRepo) ListPaymentsForInvoice(_ context.Context, invoiceID string) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if (p.SaleInvoiceID != nil && *p.SaleInvoiceID == invoiceID) ||
			(p.PurchaseInvoiceID != nil && *p.PurchaseInvoiceID == invoiceID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRepo) AddForecast(_ context.Context, invoiceID string, f PaymentForecast) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Forecasts = append(inv.Forecasts, f)
	return nil
}

func (r *memoryRepo) UpdateForecast(_ context.Context, invoiceID string, f PaymentForecast) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	for i := range inv.Forecasts {
		if inv.Forecasts[i].ID == f.ID {
			inv.Forecasts[i] = f
		}
	}
	return nil
}

func (r *memoryRepo) ListForecastsDueBetween(_ context.Context, from, to time.Time) ([]ScheduledForecast, error) {
	var out []ScheduledForecast
	for _, inv := range r.invoices {
		for _, f := range inv.Forecasts {
			if !f.DueDate.Before(from) && !f.DueDate.After(to) {
				out = append(out, ScheduledForecast{
					InvoiceID:     inv.ID,
					InvoiceNumber: inv.Number,
					Kind:          inv.Kind,
					PartnerID:     inv.PartnerID,
					Forecast:      f,
				})
			}
		}
	}
	return out, nil
}

type recordingListener struct {
	invoices []string
	payments []string
}

func (l *recordingListener) InvoiceRecorded(_ context.Context, inv *Invoice) error {
	l.invoices = append(l.invoices, inv.ID)
	return nil
}

func (l *recordingListener) PaymentRecorded(_ context.Context, p *Payment, _ *Invoice) error {
	l.payments = append(l.payments, p.ID)
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	calc := NewCalculator(ExclusionRules{})
	return NewService(repo, calc, slog.Default())
}

func saleInput() CreateInvoiceInput {
	return CreateInvoiceInput{
		Kind:          KindSaleInvoice,
		Number:        "FV-2024-001",
		PartnerID:     "client-1",
		Date:          date(2024, time.March, 15),
		AmountExclTax: f(1000),
		AmountInclTax: f(1200),
		VATRate:       f(0.20),
	}
}

func TestCreateInvoiceComputesDerivedFields(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	listener := &recordingListener{}
	svc.Subscribe(listener)

	inv, err := svc.CreateInvoice(context.Background(), saleInput())
	require.NoError(t, err)
	require.NotEmpty(t, inv.ID)
	require.Equal(t, MovementClient, *inv.MovementType)
	require.Equal(t, 1200.0, *inv.Derived.BalanceSigned)
	require.Equal(t, 1200.0, *inv.RemainingAmount)
	require.False(t, inv.Settled)
	require.Equal(t, []string{inv.ID}, listener.invoices)
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	input := saleInput()
	input.Number = ""
	_, err := svc.CreateInvoice(ctx, input)
	require.Error(t, err)

	input = saleInput()
	input.Kind = KindPayment
	_, err = svc.CreateInvoice(ctx, input)
	require.Error(t, err)

	input = saleInput()
	input.AmountInclTax = f(-5)
	_, err = svc.CreateInvoice(ctx, input)
	require.Error(t, err)
}

func TestUpdateInvoiceRecomputes(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, saleInput())
	require.NoError(t, err)

	input := saleInput()
	input.DiscountRate = f(0.05)
	updated, err := svc.UpdateInvoice(ctx, inv.ID, input)
	require.NoError(t, err)
	require.InDelta(t, 1140.0, *updated.Derived.InclTaxAfterDiscount, 1e-9)
	require.InDelta(t, 60.0, *updated.Derived.DiscountInclTax, 1e-9)
}

func TestRegisterPaymentSettlesInvoice(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	listener := &recordingListener{}
	svc.Subscribe(listener)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, saleInput())
	require.NoError(t, err)

	p, err := svc.RegisterPayment(ctx, RegisterPaymentInput{
		Date:          date(2024, time.April, 1),
		Amount:        f(600),
		SaleInvoiceID: &inv.ID,
	})
	require.NoError(t, err)
	require.Equal(t, MovementClient, *p.MovementType)
	require.Equal(t, NaturePayment, *p.Nature)
	// VAT rate is inherited from the linked invoice.
	require.Equal(t, 0.20, *p.VATRate)
	require.InDelta(t, 500.0, *p.Derived.ExclTaxPaid, 1e-9)

	stored, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 600.0, *stored.RemainingAmount)
	require.False(t, stored.Settled)

	_, err = svc.RegisterPayment(ctx, RegisterPaymentInput{
		Amount:        f(600),
		SaleInvoiceID: &inv.ID,
	})
	require.NoError(t, err)

	stored, err = svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, *stored.RemainingAmount)
	require.True(t, stored.Settled)
	require.Len(t, listener.payments, 2)
}

func TestRegisterPaymentRequiresExactlyOneLink(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.RegisterPayment(ctx, RegisterPaymentInput{Amount: f(100)})
	require.ErrorIs(t, err, ErrPaymentUnlinked)

	id1, id2 := "a", "b"
	_, err = svc.RegisterPayment(ctx, RegisterPaymentInput{
		Amount: f(100), SaleInvoiceID: &id1, PurchaseInvoiceID: &id2,
	})
	require.ErrorIs(t, err, ErrPaymentUnlinked)

	_, err = svc.RegisterPayment(ctx, RegisterPaymentInput{
		Amount: f(100), SaleInvoiceID: &id1,
	})
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestRegisterPaymentAdvancesForecasts(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, saleInput())
	require.NoError(t, err)

	_, err = svc.ScheduleForecast(ctx, ScheduleForecastInput{
		InvoiceID: inv.ID,
		DueDate:   time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC),
		Amount:    700,
	})
	require.NoError(t, err)
	_, err = svc.ScheduleForecast(ctx, ScheduleForecastInput{
		InvoiceID: inv.ID,
		DueDate:   time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC),
		Amount:    500,
	})
	require.NoError(t, err)

	_, err = svc.RegisterPayment(ctx, RegisterPaymentInput{
		Amount:        f(900),
		SaleInvoiceID: &inv.ID,
	})
	require.NoError(t, err)

	stored, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Forecasts, 2)
	require.Equal(t, ForecastRealized, stored.Forecasts[0].Status)
	require.Equal(t, 0.0, stored.Forecasts[0].RemainingAmount)
	require.Equal(t, ForecastPlanned, stored.Forecasts[1].Status)
	require.InDelta(t, 300.0, stored.Forecasts[1].RemainingAmount, 1e-9)
}

func TestRecomputeAllCountsInvoices(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, saleInput())
	require.NoError(t, err)
	purchase := saleInput()
	purchase.Kind = KindPurchaseInvoice
	purchase.Number = "FA-2024-001"
	_, err = svc.CreateInvoice(ctx, purchase)
	require.NoError(t, err)

	count, err := svc.RecomputeAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
