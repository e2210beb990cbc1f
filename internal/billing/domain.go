package billing

import (
	"errors"
	"time"
)

// DocumentKind enumerates the business document variants the calculator
// understands.
type DocumentKind string

const (
	KindSaleInvoice     DocumentKind = "SALE_INVOICE"
	KindPurchaseInvoice DocumentKind = "PURCHASE_INVOICE"
	KindPayment         DocumentKind = "PAYMENT"
)

// Movement type codes classify the counterparty role of a ledger row.
const (
	MovementClient       = "C"   // client sale
	MovementSupplier     = "F"   // supplier purchase
	MovementInterBank    = "IB"  // internal bank transfer
	MovementCapital      = "CS"  // capital / special operation
	MovementSupplierBank = "FB"  // supplier bank payment
	MovementContribution = "CTP" // partner contribution
	MovementDistribution = "CTD" // partner distribution
)

// Nature values carried by invoices and payments.
const (
	NatureInvoice = "facture"
	NaturePayment = "paiement"
	NatureRent    = "loy"
)

// DefaultVATRate applies when a rate can be neither read nor derived.
const DefaultVATRate = 0.20

// Classifiers groups the auxiliary classification labels inherited from the
// legacy manual ledger. They only ever feed guard conditions, never amounts.
type Classifiers struct {
	OriginLabel    *string // equity marker; "CAPITAL" excludes the row from the balance-sheet column
	BankGroup      *string // bank grouping label compared against BankRef for inter-bank rows
	SettlementCode *string // settlement marker; "CCA" and the closure code suppress payment totals
	BankRef        *string // bank reference label compared against BankGroup for inter-bank rows
}

// DerivedFields holds every computed monetary column. All fields are optional:
// an absent input propagates as an absent output, never as zero.
type DerivedFields struct {
	VATPeriodLabel             *string  `json:"vatPeriodLabel,omitempty"`
	BalanceSigned              *float64 `json:"balanceSigned,omitempty"`
	InclTaxAfterDiscount       *float64 `json:"amountInclTaxAfterDiscount,omitempty"`
	InclTaxAfterDiscountSigned *float64 `json:"amountInclTaxAfterDiscountSigned,omitempty"`
	PaymentTotalInclTax        *float64 `json:"paymentTotalInclTax,omitempty"`
	DiscountInclTax            *float64 `json:"discountInclTax,omitempty"`
	DiscountExclTax            *float64 `json:"discountExclTax,omitempty"`
	InvoiceExclTaxWithDiscount *float64 `json:"invoiceExclTaxIncludingDiscount,omitempty"`
	ExclTaxPaid                *float64 `json:"amountExclTaxPaid,omitempty"`
	VATOnInvoiceWithDiscount   *float64 `json:"vatOnInvoiceIncludingDiscount,omitempty"`
	VATPaid                    *float64 `json:"vatPaid,omitempty"`
	BalanceSheetContribution   *float64 `json:"balanceSheetContribution,omitempty"`
}

// Document is the tagged variant the calculator operates on. Invoices carry
// the full field set; payments carry their amount in AmountInclTax and link
// to exactly one invoice.
type Document struct {
	Kind DocumentKind
	Date *time.Time

	AmountExclTax *float64
	AmountInclTax *float64
	VATAmount     *float64
	VATRate       *float64
	DiscountRate  *float64

	MovementType *string
	Nature       *string

	Classifiers Classifiers

	// Payment-only invoice links.
	SaleInvoiceID     *string
	PurchaseInvoiceID *string

	Derived DerivedFields
}

// ForecastStatus enumerates payment forecast states.
type ForecastStatus string

const (
	ForecastPlanned  ForecastStatus = "PLANNED"
	ForecastRealized ForecastStatus = "REALIZED"
	ForecastOverdue  ForecastStatus = "OVERDUE"
)

// PaymentForecast schedules an expected settlement against an invoice.
type PaymentForecast struct {
	ID              string
	DueDate         time.Time
	PlannedAmount   float64
	PaidAmount      float64
	RemainingAmount float64
	Status          ForecastStatus
	Note            string
	CreatedAt       time.Time
}

// Invoice models a sale or purchase invoice. Derived fields are recomputed in
// full whenever a primitive field changes.
type Invoice struct {
	ID        string
	Number    string
	Kind      DocumentKind
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

	Settled         bool
	RemainingAmount *float64
	Forecasts       []PaymentForecast

	Derived DerivedFields

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Payment models a settlement linked to exactly one invoice.
type Payment struct {
	ID        string
	Reference string

	Date         *time.Time
	Amount       *float64
	VATRate      *float64
	MovementType *string
	Nature       *string
	Classifiers  Classifiers

	SaleInvoiceID     *string
	PurchaseInvoiceID *string

	Derived DerivedFields

	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrInvoiceNotFound indicates an unknown invoice id.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
	// ErrPaymentNotFound indicates an unknown payment id.
	ErrPaymentNotFound = errors.New("billing: payment not found")
	// ErrPaymentUnlinked indicates a payment attached to no invoice.
	ErrPaymentUnlinked = errors.New("billing: payment linked to no invoice")
)

// Document projects the invoice into the calculator's input shape.
func (inv *Invoice) Document() Document {
	return Document{
		Kind:          inv.Kind,
		Date:          inv.Date,
		AmountExclTax: inv.AmountExclTax,
		AmountInclTax: inv.AmountInclTax,
		VATAmount:     inv.VATAmount,
		VATRate:       inv.VATRate,
		DiscountRate:  inv.DiscountRate,
		MovementType:  inv.MovementType,
		Nature:        inv.Nature,
		Classifiers:   inv.Classifiers,
	}
}

// Document projects the payment into the calculator's input shape. The
// payment amount rides in AmountInclTax.
func (p *Payment) Document() Document {
	return Document{
		Kind:              KindPayment,
		Date:              p.Date,
		AmountInclTax:     p.Amount,
		VATRate:           p.VATRate,
		MovementType:      p.MovementType,
		Nature:            p.Nature,
		Classifiers:       p.Classifiers,
		SaleInvoiceID:     p.SaleInvoiceID,
		PurchaseInvoiceID: p.PurchaseInvoiceID,
	}
}
