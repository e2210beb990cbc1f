package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, kind, partner_id, doc_date, amount_excl_tax, amount_incl_tax,
vat_amount, vat_rate, discount_rate, movement_type, nature,
origin_label, bank_group, settlement_code, bank_ref,
settled, remaining_amount, derived, created_at, updated_at`

// CreateInvoice inserts a new invoice row.
func (r *Repository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	derived, err := json.Marshal(inv.Derived)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		inv.ID, inv.Number, inv.Kind, inv.PartnerID, inv.Date, inv.AmountExclTax, inv.AmountInclTax,
		inv.VATAmount, inv.VATRate, inv.DiscountRate, inv.MovementType, inv.Nature,
		inv.Classifiers.OriginLabel, inv.Classifiers.BankGroup, inv.Classifiers.SettlementCode, inv.Classifiers.BankRef,
		inv.Settled, inv.RemainingAmount, derived, inv.CreatedAt, inv.UpdatedAt)
	return err
}

// UpdateInvoice replaces an invoice row, forecasts included.
func (r *Repository) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	derived, err := json.Marshal(inv.Derived)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET
doc_date=$2, amount_excl_tax=$3, amount_incl_tax=$4, vat_amount=$5, vat_rate=$6, discount_rate=$7,
movement_type=$8, nature=$9, origin_label=$10, bank_group=$11, settlement_code=$12, bank_ref=$13,
settled=$14, remaining_amount=$15, derived=$16, updated_at=$17
WHERE id=$1`,
		inv.ID, inv.Date, inv.AmountExclTax, inv.AmountInclTax, inv.VATAmount, inv.VATRate, inv.DiscountRate,
		inv.MovementType, inv.Nature,
		inv.Classifiers.OriginLabel, inv.Classifiers.BankGroup, inv.Classifiers.SettlementCode, inv.Classifiers.BankRef,
		inv.Settled, inv.RemainingAmount, derived, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	for _, f := range inv.Forecasts {
		if err := r.UpdateForecast(ctx, inv.ID, f); err != nil {
			return err
		}
	}
	return nil
}

// GetInvoice loads one invoice with its forecast schedule.
func (r *Repository) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	forecasts, err := r.listForecasts(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Forecasts = forecasts
	return inv, nil
}

// ListInvoices returns all invoices of one kind ordered by document date.
func (r *Repository) ListInvoices(ctx context.Context, kind DocumentKind) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE kind=$1 ORDER BY doc_date NULLS LAST, created_at`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// ListOpenInvoices returns unsettled invoices with a remaining balance.
func (r *Repository) ListOpenInvoices(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE NOT settled AND remaining_amount IS NOT NULL AND remaining_amount > 0
ORDER BY doc_date NULLS LAST, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

const paymentColumns = `id, reference, pay_date, amount, vat_rate, movement_type, nature,
origin_label, bank_group, settlement_code, bank_ref,
sale_invoice_id, purchase_invoice_id, derived, created_at, updated_at`

// CreatePayment inserts a new payment row.
func (r *Repository) CreatePayment(ctx context.Context, p *Payment) error {
	derived, err := json.Marshal(p.Derived)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.Reference, p.Date, p.Amount, p.VATRate, p.MovementType, p.Nature,
		p.Classifiers.OriginLabel, p.Classifiers.BankGroup, p.Classifiers.SettlementCode, p.Classifiers.BankRef,
		p.SaleInvoiceID, p.PurchaseInvoiceID, derived, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetPayment loads one payment.
func (r *Repository) GetPayment(ctx context.Context, id string) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPayments returns all payments ordered by payment date.
func (r *Repository) ListPayments(ctx context.Context) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY pay_date NULLS LAST, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

// ListPaymentsForInvoice returns the payments settling one invoice.
func (r *Repository) ListPaymentsForInvoice(ctx context.Context, invoiceID string) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE sale_invoice_id=$1 OR purchase_invoice_id=$1 ORDER BY pay_date NULLS LAST, created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

// AddForecast attaches a planned settlement to an invoice.
func (r *Repository) AddForecast(ctx context.Context, invoiceID string, f PaymentForecast) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payment_forecasts
(id, invoice_id, due_date, planned_amount, paid_amount, remaining_amount, status, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, invoiceID, f.DueDate, f.PlannedAmount, f.PaidAmount, f.RemainingAmount, f.Status, f.Note, f.CreatedAt)
	return err
}

// UpdateForecast stores an advanced forecast state.
func (r *Repository) UpdateForecast(ctx context.Context, invoiceID string, f PaymentForecast) error {
	_, err := r.pool.Exec(ctx, `UPDATE payment_forecasts
SET paid_amount=$3, remaining_amount=$4, status=$5 WHERE id=$1 AND invoice_id=$2`,
		f.ID, invoiceID, f.PaidAmount, f.RemainingAmount, f.Status)
	return err
}

// ListForecastsDueBetween returns every forecast due in [from, to] with its
// invoice heading.
func (r *Repository) ListForecastsDueBetween(ctx context.Context, from, to time.Time) ([]ScheduledForecast, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.number, i.kind, i.partner_id,
f.id, f.due_date, f.planned_amount, f.paid_amount, f.remaining_amount, f.status, f.note, f.created_at
FROM payment_forecasts f JOIN invoices i ON i.id = f.invoice_id
WHERE f.due_date >= $1 AND f.due_date <= $2
ORDER BY f.due_date, f.created_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduledForecast
	for rows.Next() {
		var sf ScheduledForecast
		if err := rows.Scan(&sf.InvoiceID, &sf.InvoiceNumber, &sf.Kind, &sf.PartnerID,
			&sf.Forecast.ID, &sf.Forecast.DueDate, &sf.Forecast.PlannedAmount, &sf.Forecast.PaidAmount,
			&sf.Forecast.RemainingAmount, &sf.Forecast.Status, &sf.Forecast.Note, &sf.Forecast.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) listForecasts(ctx context.Context, invoiceID string) ([]PaymentForecast, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, due_date, planned_amount, paid_amount, remaining_amount, status, note, created_at
FROM payment_forecasts WHERE invoice_id=$1 ORDER BY due_date, created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentForecast
	for rows.Next() {
		var f PaymentForecast
		if err := rows.Scan(&f.ID, &f.DueDate, &f.PlannedAmount, &f.PaidAmount, &f.RemainingAmount, &f.Status, &f.Note, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var derived []byte
	if err := row.Scan(&inv.ID, &inv.Number, &inv.Kind, &inv.PartnerID, &inv.Date,
		&inv.AmountExclTax, &inv.AmountInclTax, &inv.VATAmount, &inv.VATRate, &inv.DiscountRate,
		&inv.MovementType, &inv.Nature,
		&inv.Classifiers.OriginLabel, &inv.Classifiers.BankGroup, &inv.Classifiers.SettlementCode, &inv.Classifiers.BankRef,
		&inv.Settled, &inv.RemainingAmount, &derived, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	if len(derived) > 0 {
		if err := json.Unmarshal(derived, &inv.Derived); err != nil {
			return nil, err
		}
	}
	return &inv, nil
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var derived []byte
	if err := row.Scan(&p.ID, &p.Reference, &p.Date, &p.Amount, &p.VATRate, &p.MovementType, &p.Nature,
		&p.Classifiers.OriginLabel, &p.Classifiers.BankGroup, &p.Classifiers.SettlementCode, &p.Classifiers.BankRef,
		&p.SaleInvoiceID, &p.PurchaseInvoiceID, &derived, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(derived) > 0 {
		if err := json.Unmarshal(derived, &p.Derived); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
