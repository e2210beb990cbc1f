package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func saleDoc() Document {
	return Document{
		Kind:          KindSaleInvoice,
		Date:          date(2024, time.March, 15),
		AmountExclTax: f(1000),
		AmountInclTax: f(1200),
		VATAmount:     f(200),
		VATRate:       f(0.20),
		MovementType:  s(MovementClient),
		Nature:        s(NatureInvoice),
	}
}

func TestComputeSaleInvoice(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})
	doc := saleDoc()
	calc.Compute(&doc)

	d := doc.Derived.Rounded()
	require.Equal(t, "03/2024", *d.VATPeriodLabel)
	require.Equal(t, 1200.0, *d.BalanceSigned)
	require.Equal(t, 1200.0, *d.InclTaxAfterDiscount)
	require.Equal(t, 1200.0, *d.InclTaxAfterDiscountSigned)
	require.Equal(t, 1000.0, *d.InvoiceExclTaxWithDiscount)
	require.Equal(t, 200.0, *d.VATOnInvoiceWithDiscount)
	require.Equal(t, 1000.0, *d.BalanceSheetContribution)
	require.Nil(t, d.DiscountInclTax)
	require.Nil(t, d.DiscountExclTax)
	require.Nil(t, d.ExclTaxPaid)
	require.Nil(t, d.VATPaid)
}

func TestComputeSaleInvoiceWithRetainedGuarantee(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})
	doc := saleDoc()
	doc.DiscountRate = f(0.05)
	calc.Compute(&doc)

	d := doc.Derived.Rounded()
	require.Equal(t, 1140.0, *d.InclTaxAfterDiscount)
	require.Equal(t, 1140.0, *d.InclTaxAfterDiscountSigned)
	require.Equal(t, 60.0, *d.DiscountInclTax)
	require.Equal(t, 50.0, *d.DiscountExclTax)
	// The discounted net plus the retained share reconstitutes the full net.
	require.Equal(t, 1000.0, *d.InvoiceExclTaxWithDiscount)
	require.Equal(t, 200.0, *d.VATOnInvoiceWithDiscount)
}

func TestComputePurchaseInvoiceSignsNegative(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})
	doc := Document{
		Kind:          KindPurchaseInvoice,
		Date:          date(2024, time.January, 10),
		AmountExclTax: f(500),
		AmountInclTax: f(600),
		VATRate:       f(0.20),
	}
	calc.Compute(&doc)

	require.Equal(t, MovementSupplier, *doc.MovementType)
	require.Equal(t, NatureInvoice, *doc.Nature)
	d := doc.Derived.Rounded()
	require.Equal(t, -600.0, *d.BalanceSigned)
	require.Equal(t, -600.0, *d.InclTaxAfterDiscountSigned)
	require.Equal(t, -600.0, *d.PaymentTotalInclTax)
	require.Equal(t, 500.0, *d.InvoiceExclTaxWithDiscount)
}

// Sale invoices never carry a bank group label, so an inter-bank sale row
// always keeps the positive orientation. The negative branch is reachable
// only when both bank labels are present and equal.
func TestComputeInterBankSignFlip(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})

	doc := saleDoc()
	doc.MovementType = s(MovementInterBank)
	calc.Compute(&doc)
	require.Equal(t, 1200.0, *doc.Derived.BalanceSigned)

	doc = saleDoc()
	doc.MovementType = s(MovementInterBank)
	doc.Classifiers.BankRef = s("BQ1")
	calc.Compute(&doc)
	require.Equal(t, 1200.0, *doc.Derived.BalanceSigned)

	doc = saleDoc()
	doc.MovementType = s(MovementInterBank)
	doc.Classifiers.BankRef = s("BQ1")
	doc.Classifiers.BankGroup = s("BQ1")
	calc.Compute(&doc)
	require.Equal(t, -1200.0, *doc.Derived.BalanceSigned)

	// Inter-bank rows never count as payments.
	require.Nil(t, doc.Derived.PaymentTotalInclTax)
}

func TestComputePayment(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})
	doc := Document{
		Kind:          KindPayment,
		Date:          date(2024, time.April, 2),
		AmountInclTax: f(600),
		VATRate:       f(0.20),
		SaleInvoiceID: s("inv-1"),
	}
	calc.Compute(&doc)

	require.Equal(t, MovementClient, *doc.MovementType)
	require.Equal(t, NaturePayment, *doc.Nature)
	d := doc.Derived.Rounded()
	require.Equal(t, 600.0, *d.PaymentTotalInclTax)
	require.Equal(t, 500.0, *d.ExclTaxPaid)
	require.Equal(t, 100.0, *d.VATPaid)
	require.Nil(t, d.BalanceSigned)
	require.Nil(t, d.InvoiceExclTaxWithDiscount)
}

func TestComputePaymentClosedCycleAdvance(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})
	doc := Document{
		Kind:              KindPayment,
		AmountInclTax:     f(600),
		VATRate:           f(0.20),
		PurchaseInvoiceID: s("inv-2"),
		Classifiers:       Classifiers{SettlementCode: s("CCA")},
	}
	calc.Compute(&doc)

	require.Nil(t, doc.Derived.PaymentTotalInclTax)
	require.Nil(t, doc.Derived.ExclTaxPaid)
	require.Nil(t, doc.Derived.VATPaid)
}

func TestComputeVATRateDefaults(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})

	doc := Document{
		Kind:          KindSaleInvoice,
		AmountExclTax: f(1000),
		AmountInclTax: f(1140),
	}
	calc.Compute(&doc)
	require.InDelta(t, 0.14, *doc.VATRate, 1e-9)

	doc = Document{Kind: KindSaleInvoice, AmountInclTax: f(1200)}
	calc.Compute(&doc)
	require.Equal(t, DefaultVATRate, *doc.VATRate)
}

func TestComputeMissingInputsPropagate(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})
	doc := Document{Kind: KindSaleInvoice}
	calc.Compute(&doc)

	d := doc.Derived
	require.Nil(t, d.VATPeriodLabel)
	require.Nil(t, d.BalanceSigned)
	require.Nil(t, d.InclTaxAfterDiscount)
	require.Nil(t, d.InclTaxAfterDiscountSigned)
	require.Nil(t, d.PaymentTotalInclTax)
	require.Nil(t, d.InvoiceExclTaxWithDiscount)
	require.Nil(t, d.BalanceSheetContribution)
}

func TestBalanceSheetExclusions(t *testing.T) {
	calc := NewCalculator(ExclusionRules{
		ClosureCode:           "CL-2023",
		ExcludedMovementCodes: []string{"X1", "X2"},
	})

	cases := map[string]func(*Document){
		"closure code":      func(d *Document) { d.Classifiers.SettlementCode = s("CL-2023") },
		"capital origin":    func(d *Document) { d.Classifiers.OriginLabel = s("CAPITAL") },
		"excluded movement": func(d *Document) { d.MovementType = s("X1") },
		"capital movement":  func(d *Document) { d.MovementType = s(MovementCapital) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			doc := saleDoc()
			mutate(&doc)
			calc.Compute(&doc)
			require.Nil(t, doc.Derived.BalanceSheetContribution)
		})
	}

	// An empty rule set excludes nothing beyond the capital markers.
	open := NewCalculator(ExclusionRules{})
	doc := saleDoc()
	calc.Compute(&doc)
	openDoc := saleDoc()
	open.Compute(&openDoc)
	require.Equal(t, *doc.Derived.BalanceSheetContribution, *openDoc.Derived.BalanceSheetContribution)
}

func TestBalanceSheetNonInvoiceRow(t *testing.T) {
	calc := NewCalculator(ExclusionRules{})

	// Non-invoice client and supplier rows contribute nothing.
	doc := saleDoc()
	doc.Nature = s(NaturePayment)
	calc.Compute(&doc)
	require.Nil(t, doc.Derived.BalanceSheetContribution)

	// Other movement codes contribute the negated net amount.
	doc = saleDoc()
	doc.Nature = s(NaturePayment)
	doc.MovementType = s(MovementSupplierBank)
	calc.Compute(&doc)
	require.InDelta(t, -1000.0, *doc.Derived.BalanceSheetContribution, 1e-9)
}

func TestComputeIsIdempotent(t *testing.T) {
	calc := NewCalculator(ExclusionRules{ClosureCode: "CL"})
	doc := saleDoc()
	doc.DiscountRate = f(0.05)

	calc.Compute(&doc)
	first := doc.Derived
	calc.Compute(&doc)
	require.Equal(t, first, doc.Derived)
}
