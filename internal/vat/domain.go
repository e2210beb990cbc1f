// Package vat builds monthly VAT declarations from the ledger. Collected
// tax is read from the output VAT account, deductible tax from the input
// VAT account, both bucketed by applied rate.
package vat

import (
	"errors"
	"time"
)

// Status values of a declaration.
type Status string

const (
	StatusDraft Status = "DRAFT"
	StatusFiled Status = "FILED"
)

// RateLine aggregates one rate bucket of a declaration.
type RateLine struct {
	Rate string  `json:"rate"`
	Base float64 `json:"base"`
	VAT  float64 `json:"vat"`
}

// Declaration is a monthly VAT return.
type Declaration struct {
	ID     string `json:"id"`
	Period string `json:"period"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Status Status `json:"status"`

	Collected  []RateLine `json:"collected"`
	Deductible []RateLine `json:"deductible"`

	TotalCollected  float64 `json:"totalCollected"`
	TotalDeductible float64 `json:"totalDeductible"`
	NetDue          float64 `json:"netDue"`
	Credit          float64 `json:"credit"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	FiledAt   *time.Time `json:"filedAt,omitempty"`
}

var (
	ErrDeclarationNotFound = errors.New("vat: declaration not found")
	ErrDeclarationFiled    = errors.New("vat: declaration already filed")
	ErrInvalidPeriod       = errors.New("vat: invalid declaration period")
)
