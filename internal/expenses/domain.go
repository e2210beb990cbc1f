// Package expenses manages operating charges. A charge starts life as a
// planned disbursement feeding the cash forecast, then is marked paid,
// which books it to the ledger and debits the cash position.
package expenses

import (
	"errors"
	"time"
)

// Status values of an expense.
type Status string

const (
	StatusPlanned Status = "PLANNED"
	StatusPaid    Status = "PAID"
)

// Expense is a single operating charge.
type Expense struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Category  string     `json:"category"`
	Amount    float64    `json:"amount"`
	Taxable   bool       `json:"taxable"`
	Status    Status     `json:"status"`
	DueDate   time.Time  `json:"dueDate"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

var (
	ErrExpenseNotFound = errors.New("expenses: expense not found")
	ErrAlreadyPaid     = errors.New("expenses: expense already paid")
	ErrPaidImmutable   = errors.New("expenses: paid expense cannot be deleted")
)
