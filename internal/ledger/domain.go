package ledger

import (
	"errors"
	"fmt"
	"time"
)

// AccountType enumerates chart of accounts categories. Balance orientation
// follows the type: asset, expense and treasury accounts carry debit minus
// credit, the others credit minus debit.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeTreasury  AccountType = "TREASURY"
)

// Journal codes group entries by origin.
const (
	JournalSales     = "VT"
	JournalPurchases = "AC"
	JournalBank      = "BQ"
	JournalSundry    = "OD"
)

// Source types identify the business document behind an entry. One document
// posts at most one entry.
const (
	SourceSaleInvoice     = "SALE_INVOICE"
	SourcePurchaseInvoice = "PURCHASE_INVOICE"
	SourcePayment         = "PAYMENT"
	SourceExpense         = "EXPENSE"
)

// Account models a chart of accounts node with a running balance.
type Account struct {
	ID          int64
	Code        string
	Name        string
	Type        AccountType
	Class       int
	TotalDebit  float64
	TotalCredit float64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Balance returns the account balance oriented by account type.
func (a Account) Balance() float64 {
	switch a.Type {
	case AccountTypeAsset, AccountTypeExpense, AccountTypeTreasury:
		return a.TotalDebit - a.TotalCredit
	default:
		return a.TotalCredit - a.TotalDebit
	}
}

// Period represents a fiscal year window.
type Period struct {
	ID        int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Closed    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d time.Time) bool {
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// JournalEntry captures one balanced posting.
type JournalEntry struct {
	ID         int64
	PieceRef   string
	Journal    string
	PeriodID   int64
	Date       time.Time
	Label      string
	SourceType string
	SourceID   string
	CreatedAt  time.Time
	Lines      []JournalLine
}

// JournalLine stores a debit or credit amount for one account.
type JournalLine struct {
	ID          int64
	EntryID     int64
	AccountCode string
	Label       string
	Debit       float64
	Credit      float64
}

// AccountedLine pairs a journal line with its entry metadata, for report
// replay and tax extraction.
type AccountedLine struct {
	AccountCode string
	Label       string
	Debit       float64
	Credit      float64
	Journal     string
	PieceRef    string
	Date        time.Time
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	PieceRef   string
	Journal    string
	Date       time.Time
	Label      string
	SourceType string
	SourceID   string
	Lines      []PostingLineInput
}

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountCode string
	Label       string
	Debit       float64
	Credit      float64
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrSourceAlreadyPosted indicates idempotency conflict.
	ErrSourceAlreadyPosted = errors.New("ledger: source already posted")
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrEntryNotFound indicates missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrPeriodNotFound indicates missing fiscal period.
	ErrPeriodNotFound = errors.New("ledger: period not found")
	// ErrPeriodOverlap indicates a new period crossing an existing one.
	ErrPeriodOverlap = errors.New("ledger: period overlaps an existing period")
	// ErrPeriodInvalid indicates inconsistent period dates.
	ErrPeriodInvalid = errors.New("ledger: period start must precede end")
	// ErrPeriodClosed indicates posting into a closed period.
	ErrPeriodClosed = errors.New("ledger: period closed")
)

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return ErrUnbalanced
	}
	if in.SourceType == "" || in.SourceID == "" {
		return errors.New("ledger: source reference required")
	}
	return nil
}
