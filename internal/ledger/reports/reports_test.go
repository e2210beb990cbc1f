package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/negoce-erp/negoce-erp/internal/ledger"
)

func testAccounts() []ledger.Account {
	var out []ledger.Account
	for _, def := range ledger.DefaultChart() {
		out = append(out, ledger.Account{Code: def.Code, Name: def.Name, Type: def.Type})
	}
	return out
}

func line(code string, debit, credit float64) ledger.AccountedLine {
	return ledger.AccountedLine{AccountCode: code, Debit: debit, Credit: credit}
}

// One sale of 1000 + 200 VAT, fully collected through the bank.
func saleAndCollection() []ledger.AccountedLine {
	return []ledger.AccountedLine{
		line(ledger.AccountClientSales, 1200, 0),
		line(ledger.AccountSales, 0, 1000),
		line(ledger.AccountVATCollected, 0, 200),
		line(ledger.AccountBank, 1200, 0),
		line(ledger.AccountClientSales, 0, 1200),
	}
}

func TestReplayIgnoresStoredTotals(t *testing.T) {
	accounts := testAccounts()
	// Stale stored totals must not leak into the report.
	accounts[0].TotalDebit = 99999

	balances := Replay(accounts, saleAndCollection())
	byCode := map[string]AccountBalance{}
	for _, b := range balances {
		byCode[b.Code] = b
	}
	require.Equal(t, 0.0, byCode[accounts[0].Code].Debit)
	require.Equal(t, 1200.0, byCode[ledger.AccountBank].Debit)
	require.Equal(t, 1200.0, byCode[ledger.AccountClientSales].Debit)
	require.Equal(t, 1200.0, byCode[ledger.AccountClientSales].Credit)
}

func TestBuildTrialBalanceFiltersAndSorts(t *testing.T) {
	tb := BuildTrialBalance(Replay(testAccounts(), saleAndCollection()))

	// Only touched accounts appear.
	codes := make([]string, 0, len(tb.Rows))
	for _, row := range tb.Rows {
		codes = append(codes, row.Code)
	}
	require.Equal(t, []string{
		ledger.AccountClientSales,
		ledger.AccountVATCollected,
		ledger.AccountBank,
		ledger.AccountSales,
	}, codes)

	require.Equal(t, tb.TotalDebit, tb.TotalCredit)
	require.Equal(t, 2400.0, tb.TotalDebit)
}

func TestBuildBalanceSheetPartition(t *testing.T) {
	lines := []ledger.AccountedLine{
		line(ledger.AccountCapital, 0, 10000),
		line(ledger.AccountBank, 10000, 0),
		line(ledger.AccountClientSales, 1200, 0),
		line(ledger.AccountSales, 0, 1000),
		line(ledger.AccountVATCollected, 0, 200),
		line(ledger.AccountPurchases, 500, 0),
		line(ledger.AccountSupplierBuys, 0, 600),
		line(ledger.AccountVATDeductible, 100, 0),
	}
	bs := BuildBalanceSheet(Replay(testAccounts(), lines))

	require.Equal(t, 10000.0, bs.CurrentAssets.Total)
	require.Equal(t, 1200.0, bs.Receivables.Total)
	require.Equal(t, 10000.0, bs.Equity.Total)
	require.Equal(t, 600.0, bs.Payables.Total)
	require.Equal(t, 11200.0, bs.TotalAssets)
	require.Equal(t, 10600.0, bs.TotalLiabilities)
	require.Equal(t, 600.0, bs.Result)

	// Negative balances never appear on the statement.
	negative := []ledger.AccountedLine{line(ledger.AccountClientSales, 0, 50)}
	empty := BuildBalanceSheet(Replay(testAccounts(), negative))
	require.Empty(t, empty.Receivables.Accounts)
}

func TestBuildIncomeStatement(t *testing.T) {
	lines := []ledger.AccountedLine{
		line(ledger.AccountSales, 0, 5000),
		line(ledger.AccountPurchases, 2000, 0),
		line(ledger.AccountRent, 500, 0),
		line(ledger.AccountInterestEarned, 0, 100),
		line(ledger.AccountInterestPaid, 40, 0),
		line(ledger.AccountIncomeTax, 300, 0),
	}
	st := BuildIncomeStatement(Replay(testAccounts(), lines))

	require.Equal(t, 5000.0, st.OperatingRevenue)
	require.Equal(t, 2500.0, st.OperatingExpenses)
	require.Equal(t, 2500.0, st.OperatingResult)
	require.Equal(t, 60.0, st.FinancialResult)
	require.Equal(t, 2560.0, st.CurrentResult)
	require.Equal(t, 300.0, st.IncomeTax)
	require.Equal(t, 2260.0, st.NetResult)
}

func TestProgressiveTax(t *testing.T) {
	require.Equal(t, 0.0, ProgressiveTax(-5000))
	require.Equal(t, 0.0, ProgressiveTax(0))
	require.Equal(t, 10000.0, ProgressiveTax(100000))
	require.Equal(t, 30000.0, ProgressiveTax(300000))
	// 300000 at 10% plus 100000 at 20%.
	require.Equal(t, 50000.0, ProgressiveTax(400000))
	// Full second slice then the 31% tail.
	require.Equal(t, 30000.0+140000.0+310000.0, ProgressiveTax(2000000))
}

func TestMinimumContribution(t *testing.T) {
	require.Equal(t, 3000.0, MinimumContribution(0))
	require.Equal(t, 3000.0, MinimumContribution(100000))
	require.Equal(t, 5000.0, MinimumContribution(1000000))
	require.Equal(t, 3000.0, MinimumContribution(-10))
}

func TestAssessCorporateTax(t *testing.T) {
	// Progressive tax dominates.
	a := AssessCorporateTax(2024, 400000, 1000000)
	require.Equal(t, 50000.0, a.ProgressiveTax)
	require.Equal(t, 5000.0, a.MinimumContribution)
	require.Equal(t, 50000.0, a.Due)

	// Minimum contribution floors a weak result.
	b := AssessCorporateTax(2024, 10000, 2000000)
	require.Equal(t, 1000.0, b.ProgressiveTax)
	require.Equal(t, 10000.0, b.MinimumContribution)
	require.Equal(t, 10000.0, b.Due)

	// A loss still owes the minimum contribution.
	c := AssessCorporateTax(2024, -50000, 400000)
	require.Equal(t, 0.0, c.ProgressiveTax)
	require.Equal(t, 3000.0, c.Due)
}

func TestInstalments(t *testing.T) {
	require.Nil(t, Instalments(0, 2024))

	inst := Instalments(50000, 2024)
	require.Len(t, inst, 4)
	for _, i := range inst {
		require.Equal(t, 12500.0, i.Amount)
	}
	require.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), inst[0].DueDate)
	require.Equal(t, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), inst[3].DueDate)
}
