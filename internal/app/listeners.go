package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/negoce-erp/negoce-erp/internal/billing"
	"github.com/negoce-erp/negoce-erp/internal/expenses"
	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/ledger/reports"
	"github.com/negoce-erp/negoce-erp/internal/treasury"
)

// AccountingBridge forwards stored billing documents to the ledger and
// the treasury, and invalidates the report caches afterwards.
type AccountingBridge struct {
	Ledger     *ledger.Service
	Treasury   *treasury.Service
	Reports    *reports.Service
	Forecaster *treasury.Forecaster
	Logger     *slog.Logger
}

var _ billing.Listener = (*AccountingBridge)(nil)

func (b *AccountingBridge) InvoiceRecorded(ctx context.Context, inv *billing.Invoice) error {
	src := ledger.InvoiceSource{
		ID:            inv.ID,
		Number:        inv.Number,
		Date:          derefDate(inv.Date),
		AmountExclTax: derefOr(inv.AmountExclTax, derefOr(inv.Derived.InvoiceExclTaxWithDiscount, 0)),
		VATAmount:     derefOr(inv.VATAmount, 0),
		AmountInclTax: derefOr(inv.AmountInclTax, 0),
	}

	var err error
	var txType treasury.TransactionType
	switch inv.Kind {
	case billing.KindSaleInvoice:
		_, err = b.Ledger.PostSaleInvoice(ctx, src)
		txType = treasury.TxSaleInvoice
	case billing.KindPurchaseInvoice:
		_, err = b.Ledger.PostPurchaseInvoice(ctx, src)
		txType = treasury.TxPurchaseInvoice
	default:
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := b.Treasury.RecordTransaction(ctx, treasury.RecordInput{
		Type:       txType,
		Amount:     abs(src.AmountInclTax),
		Label:      "Facture " + inv.Number,
		PartnerID:  &inv.PartnerID,
		SourceID:   &inv.ID,
		OccurredAt: src.Date,
	}); err != nil {
		b.Logger.Error("record invoice cash movement", slog.Any("error", err))
	}
	b.invalidate(ctx)
	return nil
}

func (b *AccountingBridge) PaymentRecorded(ctx context.Context, p *billing.Payment, inv *billing.Invoice) error {
	src := ledger.PaymentSource{
		ID:             p.ID,
		Date:           derefDate(p.Date),
		Amount:         derefOr(p.Amount, 0),
		SaleLinked:     p.SaleInvoiceID != nil,
		PurchaseLinked: p.PurchaseInvoiceID != nil,
	}
	if _, err := b.Ledger.PostPayment(ctx, src); err != nil {
		return err
	}

	txType := treasury.TxClientPayment
	if p.PurchaseInvoiceID != nil {
		txType = treasury.TxSupplierPayment
	}
	if _, err := b.Treasury.RecordTransaction(ctx, treasury.RecordInput{
		Type:       txType,
		Amount:     abs(src.Amount),
		Label:      "Reglement facture " + inv.Number,
		PartnerID:  &inv.PartnerID,
		SourceID:   &p.ID,
		OccurredAt: src.Date,
	}); err != nil {
		b.Logger.Error("record payment cash movement", slog.Any("error", err))
	}
	b.invalidate(ctx)
	return nil
}

func (b *AccountingBridge) invalidate(ctx context.Context) {
	if b.Reports != nil {
		b.Reports.Invalidate(ctx)
	}
	if b.Forecaster != nil {
		b.Forecaster.Invalidate(ctx)
	}
}

// ExpenseBridge books paid expenses into the ledger and the treasury.
type ExpenseBridge struct {
	Ledger     *ledger.Service
	Treasury   *treasury.Service
	Reports    *reports.Service
	Forecaster *treasury.Forecaster
	Logger     *slog.Logger
}

var _ expenses.Listener = (*ExpenseBridge)(nil)

func (b *ExpenseBridge) ExpensePaid(ctx context.Context, e *expenses.Expense) {
	date := time.Now()
	if e.PaidAt != nil {
		date = *e.PaidAt
	}
	if _, err := b.Ledger.PostExpense(ctx, ledger.ExpenseSource{
		ID:       e.ID,
		Date:     date,
		Category: e.Category,
		Label:    e.Label,
		Amount:   e.Amount,
	}); err != nil {
		b.Logger.Error("post expense", slog.Any("error", err))
		return
	}

	txType := treasury.TxNonTaxableExpense
	if e.Taxable {
		txType = treasury.TxTaxableExpense
	}
	if _, err := b.Treasury.RecordTransaction(ctx, treasury.RecordInput{
		Type:       txType,
		Amount:     e.Amount,
		Label:      e.Label,
		SourceID:   &e.ID,
		OccurredAt: date,
	}); err != nil {
		b.Logger.Error("record expense cash movement", slog.Any("error", err))
	}
	if b.Reports != nil {
		b.Reports.Invalidate(ctx)
	}
	if b.Forecaster != nil {
		b.Forecaster.Invalidate(ctx)
	}
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func derefDate(t *time.Time) time.Time {
	if t == nil {
		return time.Now()
	}
	return *t
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
