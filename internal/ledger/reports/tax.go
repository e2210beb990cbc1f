package reports

import (
	"time"

	"github.com/negoce-erp/negoce-erp/internal/money"
)

// Corporate tax scale: progressive slices on taxable income, with a minimum
// contribution on revenue that floors the amount due.
const (
	minContributionRate  = 0.005
	minContributionFloor = 3000
)

type taxBracket struct {
	upTo float64
	rate float64
}

var taxBrackets = []taxBracket{
	{upTo: 300000, rate: 0.10},
	{upTo: 1000000, rate: 0.20},
	{upTo: 0, rate: 0.31}, // no upper bound
}

// Instalment is one quarterly advance on the prior year's tax.
type Instalment struct {
	DueDate time.Time `json:"dueDate"`
	Amount  float64   `json:"amount"`
}

// TaxAssessment is the corporate tax computation for one fiscal year.
type TaxAssessment struct {
	Year                int          `json:"year"`
	TaxableIncome       float64      `json:"taxableIncome"`
	Revenue             float64      `json:"revenue"`
	ProgressiveTax      float64      `json:"progressiveTax"`
	MinimumContribution float64      `json:"minimumContribution"`
	Due                 float64      `json:"due"`
	Instalments         []Instalment `json:"instalments,omitempty"`
}

// ProgressiveTax applies the bracket scale to taxable income. A loss owes
// nothing on this component.
func ProgressiveTax(income float64) float64 {
	if income <= 0 {
		return 0
	}
	var tax, lower float64
	for _, b := range taxBrackets {
		upper := b.upTo
		if upper == 0 || income < upper {
			upper = income
		}
		if upper > lower {
			tax += (upper - lower) * b.rate
		}
		if b.upTo == 0 || income <= b.upTo {
			break
		}
		lower = b.upTo
	}
	return money.Round(tax)
}

// MinimumContribution computes the revenue-based floor.
func MinimumContribution(revenue float64) float64 {
	if revenue < 0 {
		revenue = 0
	}
	cm := revenue * minContributionRate
	if cm < minContributionFloor {
		cm = minContributionFloor
	}
	return money.Round(cm)
}

// AssessCorporateTax combines the progressive scale and the minimum
// contribution: the higher of the two is due.
func AssessCorporateTax(year int, taxableIncome, revenue float64) TaxAssessment {
	progressive := ProgressiveTax(taxableIncome)
	minimum := MinimumContribution(revenue)
	due := progressive
	if minimum > due {
		due = minimum
	}
	return TaxAssessment{
		Year:                year,
		TaxableIncome:       money.Round(taxableIncome),
		Revenue:             money.Round(revenue),
		ProgressiveTax:      progressive,
		MinimumContribution: minimum,
		Due:                 due,
	}
}

// Instalments schedules the four quarterly advances for year, each one
// quarter of the prior year's tax.
func Instalments(priorYearTax float64, year int) []Instalment {
	if priorYearTax <= 0 {
		return nil
	}
	quarter := money.Round(priorYearTax * 0.25)
	dates := []time.Time{
		time.Date(year, time.March, 31, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.June, 30, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.September, 30, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
	out := make([]Instalment, 0, len(dates))
	for _, d := range dates {
		out = append(out, Instalment{DueDate: d, Amount: quarter})
	}
	return out
}
