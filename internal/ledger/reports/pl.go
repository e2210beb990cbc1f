package reports

import (
	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/money"
)

// IncomeStatement is the period profit and loss, split between operating and
// financial activity.
type IncomeStatement struct {
	OperatingRevenue  float64 `json:"operatingRevenue"`
	OperatingExpenses float64 `json:"operatingExpenses"`
	OperatingResult   float64 `json:"operatingResult"`
	FinancialRevenue  float64 `json:"financialRevenue"`
	FinancialExpenses float64 `json:"financialExpenses"`
	FinancialResult   float64 `json:"financialResult"`
	CurrentResult     float64 `json:"currentResult"`
	IncomeTax         float64 `json:"incomeTax"`
	NetResult         float64 `json:"netResult"`
}

// BuildIncomeStatement aggregates replayed balances into the statement.
// Interest accounts and the income tax account are carved out of the
// operating section.
func BuildIncomeStatement(accounts []AccountBalance) IncomeStatement {
	var st IncomeStatement
	for _, acc := range accounts {
		balance := acc.Balance()
		class := 0
		if len(acc.Code) > 0 {
			class = int(acc.Code[0] - '0')
		}
		switch {
		case acc.Code == ledger.AccountInterestEarned:
			st.FinancialRevenue += balance
		case acc.Code == ledger.AccountInterestPaid:
			st.FinancialExpenses += balance
		case acc.Code == ledger.AccountIncomeTax:
			st.IncomeTax += balance
		case class == 7:
			st.OperatingRevenue += balance
		case class == 6:
			st.OperatingExpenses += balance
		}
	}
	st.OperatingResult = st.OperatingRevenue - st.OperatingExpenses
	st.FinancialResult = st.FinancialRevenue - st.FinancialExpenses
	st.CurrentResult = st.OperatingResult + st.FinancialResult
	st.NetResult = st.CurrentResult - st.IncomeTax

	st.OperatingRevenue = money.Round(st.OperatingRevenue)
	st.OperatingExpenses = money.Round(st.OperatingExpenses)
	st.OperatingResult = money.Round(st.OperatingResult)
	st.FinancialRevenue = money.Round(st.FinancialRevenue)
	st.FinancialExpenses = money.Round(st.FinancialExpenses)
	st.FinancialResult = money.Round(st.FinancialResult)
	st.CurrentResult = money.Round(st.CurrentResult)
	st.IncomeTax = money.Round(st.IncomeTax)
	st.NetResult = money.Round(st.NetResult)
	return st
}
