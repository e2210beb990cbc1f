package billing

import (
	"fmt"
	"math"
	"slices"

	"github.com/negoce-erp/negoce-erp/internal/money"
)

// ExclusionRules configures the classification codes that suppress a row's
// balance-sheet contribution. Empty values disable the matching check.
type ExclusionRules struct {
	// ClosureCode marks settlement rows belonging to a closed accounting
	// cycle.
	ClosureCode string
	// ExcludedMovementCodes lists movement type codes whose rows never feed
	// the balance-sheet column.
	ExcludedMovementCodes []string
}

// Calculator derives every computed monetary column of a document from its
// primitive fields. Computation is deterministic and idempotent: running it
// twice on the same primitives yields the same derived values.
//
// All arithmetic keeps full float64 precision; rounding to two decimals
// happens only when values leave the system, via DerivedFields.Rounded.
type Calculator struct {
	rules ExclusionRules
}

func NewCalculator(rules ExclusionRules) *Calculator {
	return &Calculator{rules: rules}
}

// Compute normalizes the document's defaults and recomputes the full derived
// field set in dependency order. Missing inputs propagate as missing outputs.
func (c *Calculator) Compute(doc *Document) {
	c.applyDefaults(doc)

	d := DerivedFields{}

	d.VATPeriodLabel = vatPeriodLabel(doc)

	switch doc.Kind {
	case KindPayment:
		d.PaymentTotalInclTax = paymentTotalInclTax(doc)
		d.ExclTaxPaid = exclTaxPaid(doc, d.PaymentTotalInclTax)
		d.VATPaid = vatPaid(d.PaymentTotalInclTax, d.ExclTaxPaid)
	default:
		d.BalanceSigned = balanceSigned(doc)
		d.InclTaxAfterDiscount = inclTaxAfterDiscount(doc)
		d.InclTaxAfterDiscountSigned = inclTaxAfterDiscountSigned(doc, d.InclTaxAfterDiscount)
		d.PaymentTotalInclTax = paymentTotalInclTax(doc)
		d.DiscountInclTax = discountInclTax(doc, d.InclTaxAfterDiscountSigned)
		d.DiscountExclTax = discountExclTax(doc, d.DiscountInclTax)
		d.InvoiceExclTaxWithDiscount = invoiceExclTaxWithDiscount(doc, d.InclTaxAfterDiscountSigned, d.DiscountInclTax)
		d.ExclTaxPaid = exclTaxPaid(doc, d.PaymentTotalInclTax)
		d.VATOnInvoiceWithDiscount = vatOnInvoiceWithDiscount(doc, d.InvoiceExclTaxWithDiscount)
		d.VATPaid = vatPaid(d.PaymentTotalInclTax, d.ExclTaxPaid)
		d.BalanceSheetContribution = c.balanceSheetContribution(doc, d.InvoiceExclTaxWithDiscount)
	}

	doc.Derived = d
}

// applyDefaults fills the optional classification fields the way the manual
// ledger did: a missing VAT rate is recovered from the gross/net spread when
// possible, otherwise the standard rate applies.
func (c *Calculator) applyDefaults(doc *Document) {
	if doc.VATRate == nil {
		rate := DefaultVATRate
		if doc.Kind != KindPayment &&
			doc.AmountExclTax != nil && doc.AmountInclTax != nil && *doc.AmountExclTax > 0 {
			rate = (*doc.AmountInclTax - *doc.AmountExclTax) / *doc.AmountExclTax
		}
		doc.VATRate = &rate
	}
	if doc.DiscountRate == nil {
		zero := 0.0
		doc.DiscountRate = &zero
	}
	if doc.MovementType == nil {
		switch {
		case doc.Kind == KindSaleInvoice:
			doc.MovementType = strPtr(MovementClient)
		case doc.Kind == KindPurchaseInvoice:
			doc.MovementType = strPtr(MovementSupplier)
		case doc.SaleInvoiceID != nil:
			doc.MovementType = strPtr(MovementClient)
		case doc.PurchaseInvoiceID != nil:
			doc.MovementType = strPtr(MovementSupplier)
		}
	}
	if doc.Nature == nil {
		if doc.Kind == KindPayment {
			doc.Nature = strPtr(NaturePayment)
		} else {
			doc.Nature = strPtr(NatureInvoice)
		}
	}
}

// vatPeriodLabel renders the document date's month as "MM/YYYY".
func vatPeriodLabel(doc *Document) *string {
	if doc.Date == nil {
		return nil
	}
	return strPtr(fmt.Sprintf("%02d/%d", int(doc.Date.Month()), doc.Date.Year()))
}

// balanceSigned orients the gross amount by counterparty role. Client rows
// are receivables (positive), every other role is an outflow (negative).
// Inter-bank rows flip to negative only when the bank reference matches the
// bank group; sale invoices never carry a bank group, so their inter-bank
// rows always stay positive.
func balanceSigned(doc *Document) *float64 {
	if doc.AmountInclTax == nil || doc.MovementType == nil {
		return nil
	}
	ttc := *doc.AmountInclTax
	switch *doc.MovementType {
	case MovementClient:
		return &ttc
	case MovementInterBank:
		refs := doc.Classifiers
		if refs.BankRef != nil && refs.BankGroup != nil && *refs.BankRef == *refs.BankGroup {
			v := -ttc
			return &v
		}
		return &ttc
	default:
		v := -ttc
		return &v
	}
}

func inclTaxAfterDiscount(doc *Document) *float64 {
	if doc.AmountInclTax == nil {
		return nil
	}
	v := *doc.AmountInclTax * (1 - *doc.DiscountRate)
	return &v
}

func inclTaxAfterDiscountSigned(doc *Document, afterDiscount *float64) *float64 {
	if afterDiscount == nil || doc.MovementType == nil {
		return nil
	}
	v := *afterDiscount
	if *doc.MovementType != MovementClient {
		v = -v
	}
	return &v
}

// paymentTotalInclTax orients the cash amount. Closed-cycle advances ("CCA")
// and inter-bank moves are not payments and yield nothing.
func paymentTotalInclTax(doc *Document) *float64 {
	if doc.AmountInclTax == nil || doc.MovementType == nil {
		return nil
	}
	if doc.Classifiers.SettlementCode != nil && *doc.Classifiers.SettlementCode == "CCA" {
		return nil
	}
	if *doc.MovementType == MovementInterBank {
		return nil
	}
	v := *doc.AmountInclTax
	if *doc.MovementType != MovementClient {
		v = -v
	}
	return &v
}

// discountInclTax grosses the retained-guarantee portion back up from the
// discounted amount: signed/(1-rate)*rate.
func discountInclTax(doc *Document, signedAfterDiscount *float64) *float64 {
	if signedAfterDiscount == nil || doc.Nature == nil || *doc.Nature != NatureInvoice {
		return nil
	}
	rate := *doc.DiscountRate
	if rate <= 0 {
		return nil
	}
	v := *signedAfterDiscount / (1 - rate) * rate
	return &v
}

func discountExclTax(doc *Document, discountInclTax *float64) *float64 {
	if discountInclTax == nil {
		return nil
	}
	v := *discountInclTax / (1 + *doc.VATRate)
	return &v
}

// invoiceExclTaxWithDiscount reconstitutes the pre-discount net amount from
// the discounted gross plus the retained portion.
func invoiceExclTaxWithDiscount(doc *Document, signedAfterDiscount, discountInclTax *float64) *float64 {
	if signedAfterDiscount == nil || doc.Nature == nil || *doc.Nature != NatureInvoice {
		return nil
	}
	vat := 1 + *doc.VATRate
	retained := 0.0
	if discountInclTax != nil {
		retained = math.Abs(*discountInclTax)
	}
	v := math.Abs(*signedAfterDiscount)/vat + retained/vat
	return &v
}

var paidMovementCodes = []string{
	MovementClient, MovementSupplier, MovementSupplierBank,
	MovementContribution, MovementDistribution,
}

func exclTaxPaid(doc *Document, paymentTotal *float64) *float64 {
	if paymentTotal == nil || doc.Nature == nil || *doc.Nature != NaturePayment {
		return nil
	}
	if doc.MovementType == nil || !slices.Contains(paidMovementCodes, *doc.MovementType) {
		return nil
	}
	v := math.Abs(*paymentTotal) / (1 + *doc.VATRate)
	return &v
}

func vatOnInvoiceWithDiscount(doc *Document, invoiceExclTax *float64) *float64 {
	if invoiceExclTax == nil {
		return nil
	}
	v := *invoiceExclTax * *doc.VATRate
	return &v
}

func vatPaid(paymentTotal, exclTaxPaid *float64) *float64 {
	if paymentTotal == nil || exclTaxPaid == nil {
		return nil
	}
	v := math.Abs(*paymentTotal) - *exclTaxPaid
	return &v
}

// balanceSheetContribution decides how much of the row feeds the year-end
// balance column. Equity rows, closed-cycle settlements and the configured
// movement codes contribute nothing.
func (c *Calculator) balanceSheetContribution(doc *Document, invoiceExclTax *float64) *float64 {
	refs := doc.Classifiers
	if c.rules.ClosureCode != "" && refs.SettlementCode != nil && *refs.SettlementCode == c.rules.ClosureCode {
		return nil
	}
	if refs.OriginLabel != nil && *refs.OriginLabel == "CAPITAL" {
		return nil
	}
	if doc.MovementType != nil {
		if slices.Contains(c.rules.ExcludedMovementCodes, *doc.MovementType) {
			return nil
		}
		if *doc.MovementType == MovementCapital {
			return nil
		}
	}

	if doc.Nature != nil && (*doc.Nature == NatureInvoice || *doc.Nature == NatureRent) {
		if invoiceExclTax == nil {
			return nil
		}
		v := *invoiceExclTax
		return &v
	}
	if doc.MovementType != nil {
		switch *doc.MovementType {
		case MovementSupplier, MovementClient, NatureRent:
			return nil
		}
	}
	if doc.AmountInclTax == nil {
		return nil
	}
	v := -*doc.AmountInclTax / (1 + *doc.VATRate)
	return &v
}

// Rounded returns a presentation copy with every amount rounded half-up to
// two decimals.
func (d DerivedFields) Rounded() DerivedFields {
	return DerivedFields{
		VATPeriodLabel:             d.VATPeriodLabel,
		BalanceSigned:              money.RoundPtr(d.BalanceSigned),
		InclTaxAfterDiscount:       money.RoundPtr(d.InclTaxAfterDiscount),
		InclTaxAfterDiscountSigned: money.RoundPtr(d.InclTaxAfterDiscountSigned),
		PaymentTotalInclTax:        money.RoundPtr(d.PaymentTotalInclTax),
		DiscountInclTax:            money.RoundPtr(d.DiscountInclTax),
		DiscountExclTax:            money.RoundPtr(d.DiscountExclTax),
		InvoiceExclTaxWithDiscount: money.RoundPtr(d.InvoiceExclTaxWithDiscount),
		ExclTaxPaid:                money.RoundPtr(d.ExclTaxPaid),
		VATOnInvoiceWithDiscount:   money.RoundPtr(d.VATOnInvoiceWithDiscount),
		VATPaid:                    money.RoundPtr(d.VATPaid),
		BalanceSheetContribution:   money.RoundPtr(d.BalanceSheetContribution),
	}
}

func strPtr(s string) *string { return &s }
