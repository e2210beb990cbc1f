package reports

import (
	"math"
	"sort"

	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/money"
)

// AccountBalance models an account with totals replayed from journal lines.
type AccountBalance struct {
	Code   string
	Name   string
	Type   ledger.AccountType
	Debit  float64
	Credit float64
}

// Balance computes the oriented balance for the account.
func (a AccountBalance) Balance() float64 {
	switch a.Type {
	case ledger.AccountTypeAsset, ledger.AccountTypeExpense, ledger.AccountTypeTreasury:
		return a.Debit - a.Credit
	default:
		return a.Credit - a.Debit
	}
}

// Replay folds journal lines into fresh per-account totals. Stored running
// totals are ignored: the report is always rebuilt from the lines.
func Replay(accounts []ledger.Account, lines []ledger.AccountedLine) []AccountBalance {
	index := make(map[string]*AccountBalance, len(accounts))
	out := make([]AccountBalance, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, AccountBalance{Code: acc.Code, Name: acc.Name, Type: acc.Type})
	}
	for i := range out {
		index[out[i].Code] = &out[i]
	}
	for _, line := range lines {
		acc, ok := index[line.AccountCode]
		if !ok {
			continue
		}
		acc.Debit += line.Debit
		acc.Credit += line.Credit
	}
	return out
}

// TrialBalanceRow is one account line of the trial balance.
type TrialBalanceRow struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Debit   float64 `json:"debit"`
	Credit  float64 `json:"credit"`
	Balance float64 `json:"balance"`
}

// TrialBalance is the rendered report.
type TrialBalance struct {
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  float64           `json:"totalDebit"`
	TotalCredit float64           `json:"totalCredit"`
}

// BuildTrialBalance keeps accounts with activity or a non-trivial balance,
// sorted by code.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	var tb TrialBalance
	for _, acc := range accounts {
		balance := acc.Balance()
		if acc.Debit <= 0 && acc.Credit <= 0 && math.Abs(balance) <= 0.01 {
			continue
		}
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			Code:    acc.Code,
			Name:    acc.Name,
			Type:    string(acc.Type),
			Debit:   money.Round(acc.Debit),
			Credit:  money.Round(acc.Credit),
			Balance: money.Round(balance),
		})
		tb.TotalDebit += acc.Debit
		tb.TotalCredit += acc.Credit
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	tb.TotalDebit = money.Round(tb.TotalDebit)
	tb.TotalCredit = money.Round(tb.TotalCredit)
	return tb
}
