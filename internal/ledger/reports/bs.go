package reports

import (
	"sort"
	"strings"

	"github.com/negoce-erp/negoce-erp/internal/money"
)

// BalanceSheetAccount summarises one account inside a section.
type BalanceSheetAccount struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

// BalanceSheetSection contains the accounts and total for one heading.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    float64               `json:"total"`
}

// BalanceSheet is the structured report. Result is the balancing figure
// between the asset and liability sides.
type BalanceSheet struct {
	FixedAssets      BalanceSheetSection `json:"fixedAssets"`
	CurrentAssets    BalanceSheetSection `json:"currentAssets"`
	Receivables      BalanceSheetSection `json:"receivables"`
	Equity           BalanceSheetSection `json:"equity"`
	Payables         BalanceSheetSection `json:"payables"`
	TotalAssets      float64             `json:"totalAssets"`
	TotalLiabilities float64             `json:"totalLiabilities"`
	Result           float64             `json:"result"`
}

// BuildBalanceSheet partitions replayed balances into the statement headings.
// Only positive balances appear: a receivable that turned negative belongs on
// the other side and is left to manual review.
func BuildBalanceSheet(accounts []AccountBalance) BalanceSheet {
	bs := BalanceSheet{
		FixedAssets:   BalanceSheetSection{Label: "Immobilisations"},
		CurrentAssets: BalanceSheetSection{Label: "Actif circulant et tresorerie"},
		Receivables:   BalanceSheetSection{Label: "Creances clients"},
		Equity:        BalanceSheetSection{Label: "Capitaux propres"},
		Payables:      BalanceSheetSection{Label: "Dettes fournisseurs"},
	}

	for _, acc := range accounts {
		balance := money.Round(acc.Balance())
		if balance <= 0 {
			continue
		}
		row := BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: balance}
		class := 0
		if len(acc.Code) > 0 {
			class = int(acc.Code[0] - '0')
		}
		switch {
		case strings.HasPrefix(acc.Code, "4111"):
			appendRow(&bs.Receivables, row)
		case strings.HasPrefix(acc.Code, "4411"):
			appendRow(&bs.Payables, row)
		case class == 2:
			appendRow(&bs.FixedAssets, row)
		case class == 3 || class == 5:
			appendRow(&bs.CurrentAssets, row)
		case class == 1:
			appendRow(&bs.Equity, row)
		}
	}

	for _, sec := range []*BalanceSheetSection{&bs.FixedAssets, &bs.CurrentAssets, &bs.Receivables, &bs.Equity, &bs.Payables} {
		sort.Slice(sec.Accounts, func(i, j int) bool { return sec.Accounts[i].Code < sec.Accounts[j].Code })
		sec.Total = money.Round(sec.Total)
	}

	bs.TotalAssets = money.Round(bs.FixedAssets.Total + bs.CurrentAssets.Total + bs.Receivables.Total)
	bs.TotalLiabilities = money.Round(bs.Equity.Total + bs.Payables.Total)
	bs.Result = money.Round(bs.TotalAssets - bs.TotalLiabilities)
	return bs
}

func appendRow(sec *BalanceSheetSection, row BalanceSheetAccount) {
	sec.Accounts = append(sec.Accounts, row)
	sec.Total += row.Balance
}
