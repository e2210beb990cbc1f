package ledger

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLedgerRepo struct {
	accounts map[string]*Account
	entries  []*JournalEntry
	periods  map[string]*Period
	nextID   int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		accounts: make(map[string]*Account),
		periods:  make(map[string]*Period),
	}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryLedgerRepo) ListAccounts(_ context.Context) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListEntries(_ context.Context, _ int) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListPeriods(_ context.Context) ([]Period, error) {
	var out []Period
	for _, p := range r.periods {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListLines(_ context.Context, from, to time.Time) ([]AccountedLine, error) {
	var out []AccountedLine
	for _, e := range r.entries {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		for _, l := range e.Lines {
			out = append(out, AccountedLine{
				AccountCode: l.AccountCode,
				Label:       l.Label,
				Debit:       l.Debit,
				Credit:      l.Credit,
				Journal:     e.Journal,
				PieceRef:    e.PieceRef,
				Date:        e.Date,
			})
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) GetAccountByCode(_ context.Context, code string) (*Account, error) {
	a, ok := r.accounts[code]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryLedgerRepo) CreateAccount(_ context.Context, def AccountDef) (*Account, error) {
	r.nextID++
	a := &Account{
		ID: r.nextID, Code: def.Code, Name: def.Name, Type: def.Type,
		Class: Class(def.Code), IsActive: true,
	}
	r.accounts[def.Code] = a
	cp := *a
	return &cp, nil
}

func (r *memoryLedgerRepo) AddToAccountTotals(_ context.Context, code string, debit, credit float64) error {
	a, ok := r.accounts[code]
	if !ok {
		return ErrAccountNotFound
	}
	a.TotalDebit += debit
	a.TotalCredit += credit
	return nil
}

func (r *memoryLedgerRepo) CountAccounts(_ context.Context) (int, error) {
	return len(r.accounts), nil
}

func (r *memoryLedgerRepo) InsertEntry(_ context.Context, entry *JournalEntry) error {
	for _, e := range r.entries {
		if e.SourceType == entry.SourceType && e.SourceID == entry.SourceID {
			return ErrSourceAlreadyPosted
		}
	}
	r.nextID++
	entry.ID = r.nextID
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *memoryLedgerRepo) FindEntryBySource(_ context.Context, sourceType, sourceID string) (*JournalEntry, error) {
	for _, e := range r.entries {
		if e.SourceType == sourceType && e.SourceID == sourceID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *memoryLedgerRepo) CreatePeriod(_ context.Context, p *Period) error {
	r.nextID++
	p.ID = r.nextID
	cp := *p
	r.periods[p.Code] = &cp
	return nil
}

func (r *memoryLedgerRepo) GetPeriodCovering(_ context.Context, d time.Time) (*Period, error) {
	for _, p := range r.periods {
		if !p.StartDate.After(d) && !p.EndDate.Before(d) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPeriodNotFound
}

func (r *memoryLedgerRepo) AnyPeriodOverlapping(_ context.Context, start, end time.Time) (bool, error) {
	for _, p := range r.periods {
		if !p.StartDate.After(end) && !p.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func newTestLedger() (*Service, *memoryLedgerRepo) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, slog.Default())
	return svc, repo
}

func saleSource() InvoiceSource {
	return InvoiceSource{
		ID:            "inv-1",
		Number:        "2024-001",
		Date:          time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC),
		AmountExclTax: 1000,
		VATAmount:     200,
		AmountInclTax: 1200,
	}
}

func TestSeedChartOnlyWhenEmpty(t *testing.T) {
	svc, repo := newTestLedger()
	ctx := context.Background()

	require.NoError(t, svc.SeedChart(ctx))
	seeded := len(repo.accounts)
	require.Equal(t, len(DefaultChart()), seeded)

	require.NoError(t, svc.SeedChart(ctx))
	require.Equal(t, seeded, len(repo.accounts))
}

func TestPostSaleInvoice(t *testing.T) {
	svc, repo := newTestLedger()
	ctx := context.Background()

	entry, err := svc.PostSaleInvoice(ctx, saleSource())
	require.NoError(t, err)
	require.Equal(t, "FV-2024-001", entry.PieceRef)
	require.Equal(t, JournalSales, entry.Journal)
	require.Len(t, entry.Lines, 3)

	var debit, credit float64
	for _, l := range entry.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	require.InDelta(t, debit, credit, 1e-9)

	require.Equal(t, 1200.0, repo.accounts[AccountClientSales].TotalDebit)
	require.Equal(t, 1000.0, repo.accounts[AccountSales].TotalCredit)
	require.Equal(t, 200.0, repo.accounts[AccountVATCollected].TotalCredit)

	// Fiscal period was opened lazily for the invoice year.
	p, ok := repo.periods["2024"]
	require.True(t, ok)
	require.True(t, p.Contains(entry.Date))
}

func TestPostSaleInvoiceIdempotent(t *testing.T) {
	svc, repo := newTestLedger()
	ctx := context.Background()

	first, err := svc.PostSaleInvoice(ctx, saleSource())
	require.NoError(t, err)
	second, err := svc.PostSaleInvoice(ctx, saleSource())
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.entries, 1)
	// Balances folded exactly once.
	require.Equal(t, 1200.0, repo.accounts[AccountClientSales].TotalDebit)
}

// racingLedgerRepo misses the idempotency lookup a fixed number of times,
// as if a concurrent posting committed between the lookup and the insert.
type racingLedgerRepo struct {
	*memoryLedgerRepo
	misses int
}

func (r *racingLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *racingLedgerRepo) FindEntryBySource(ctx context.Context, sourceType, sourceID string) (*JournalEntry, error) {
	if r.misses > 0 {
		r.misses--
		return nil, ErrEntryNotFound
	}
	return r.memoryLedgerRepo.FindEntryBySource(ctx, sourceType, sourceID)
}

func TestPostReturnsExistingEntryWhenInsertLosesRace(t *testing.T) {
	inner := newMemoryLedgerRepo()
	repo := &racingLedgerRepo{memoryLedgerRepo: inner}
	svc := NewService(repo, slog.Default())
	ctx := context.Background()

	first, err := svc.PostSaleInvoice(ctx, saleSource())
	require.NoError(t, err)

	repo.misses = 1
	second, err := svc.PostSaleInvoice(ctx, saleSource())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, inner.entries, 1)
	// Balances folded exactly once.
	require.Equal(t, 1200.0, inner.accounts[AccountClientSales].TotalDebit)
}

func TestPostSaleInvoiceZeroVATOmitsVATLine(t *testing.T) {
	svc, _ := newTestLedger()
	src := saleSource()
	src.VATAmount = 0
	src.AmountExclTax = 1200

	entry, err := svc.PostSaleInvoice(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
}

func TestPostPurchaseInvoice(t *testing.T) {
	svc, repo := newTestLedger()
	src := InvoiceSource{
		ID:            "inv-2",
		Number:        "2024-002",
		Date:          time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC),
		AmountExclTax: 500,
		VATAmount:     100,
		AmountInclTax: 600,
	}

	entry, err := svc.PostPurchaseInvoice(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, JournalPurchases, entry.Journal)
	require.Equal(t, 500.0, repo.accounts[AccountPurchases].TotalDebit)
	require.Equal(t, 100.0, repo.accounts[AccountVATDeductible].TotalDebit)
	require.Equal(t, 600.0, repo.accounts[AccountSupplierBuys].TotalCredit)
}

func TestPostPayment(t *testing.T) {
	svc, repo := newTestLedger()
	ctx := context.Background()

	entry, err := svc.PostPayment(ctx, PaymentSource{
		ID: "11112222-3333", Date: time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		Amount: 600, SaleLinked: true,
	})
	require.NoError(t, err)
	require.Equal(t, "PAY-11112222", entry.PieceRef)
	require.Equal(t, JournalBank, entry.Journal)
	require.Equal(t, 600.0, repo.accounts[AccountBank].TotalDebit)
	require.Equal(t, 600.0, repo.accounts[AccountClientSales].TotalCredit)

	entry, err = svc.PostPayment(ctx, PaymentSource{
		ID: "p2", Date: time.Date(2024, time.April, 3, 0, 0, 0, 0, time.UTC),
		Amount: 300, PurchaseLinked: true,
	})
	require.NoError(t, err)
	require.Equal(t, 300.0, repo.accounts[AccountSupplierBuys].TotalDebit)
	require.Equal(t, 300.0, repo.accounts[AccountBank].TotalCredit)
}

func TestPostPaymentWithoutLinkIsSkipped(t *testing.T) {
	svc, repo := newTestLedger()

	entry, err := svc.PostPayment(context.Background(), PaymentSource{ID: "p3", Amount: 100})
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Empty(t, repo.entries)
}

func TestPostExpenseRoutesByCategory(t *testing.T) {
	svc, repo := newTestLedger()
	ctx := context.Background()

	cases := map[string]string{
		"Loyer bureau":  AccountRent,
		"SALAIRES":      AccountSalaries,
		"Electricite":   AccountUtilities,
		"Divers achats": AccountGeneralCharge,
	}
	i := 0
	for category, account := range cases {
		i++
		entry, err := svc.PostExpense(ctx, ExpenseSource{
			ID:       string(rune('a' + i)),
			Date:     time.Date(2024, time.May, i, 0, 0, 0, 0, time.UTC),
			Category: category,
			Amount:   100,
		})
		require.NoError(t, err)
		require.Equal(t, JournalSundry, entry.Journal)
		require.Equal(t, account, entry.Lines[0].AccountCode)
		require.Equal(t, AccountBank, entry.Lines[1].AccountCode)
	}
	require.Equal(t, float64(len(cases))*100, repo.accounts[AccountBank].TotalCredit)
}

func TestPostIntoClosedPeriodRejected(t *testing.T) {
	svc, repo := newTestLedger()
	ctx := context.Background()

	_, err := svc.CreatePeriod(ctx,
		time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	repo.periods["2023"].Closed = true

	src := saleSource()
	src.Date = time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.PostSaleInvoice(ctx, src)
	require.ErrorIs(t, err, ErrPeriodClosed)
}

func TestCreatePeriodValidation(t *testing.T) {
	svc, _ := newTestLedger()
	ctx := context.Background()

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreatePeriod(ctx, end, start)
	require.ErrorIs(t, err, ErrPeriodInvalid)

	p, err := svc.CreatePeriod(ctx, start, end)
	require.NoError(t, err)
	require.Equal(t, "2024", p.Code)

	_, err = svc.CreatePeriod(ctx, start.AddDate(0, 6, 0), end.AddDate(0, 6, 0))
	require.ErrorIs(t, err, ErrPeriodOverlap)

	crossed, err := svc.CreatePeriod(ctx,
		time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "2025-2026", crossed.Code)
}

func TestPostReusesCrossYearPeriod(t *testing.T) {
	svc, repo := newTestLedger()
	ctx := context.Background()

	crossed, err := svc.CreatePeriod(ctx,
		time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	src := saleSource()
	src.Date = time.Date(2024, time.September, 15, 0, 0, 0, 0, time.UTC)
	entry, err := svc.PostSaleInvoice(ctx, src)
	require.NoError(t, err)
	require.Equal(t, crossed.ID, entry.PeriodID)

	require.Len(t, repo.periods, 1)
	_, ok := repo.periods["2024"]
	require.False(t, ok)

	// A date outside the explicit span would still need a full calendar
	// year, which overlaps the cross-year period.
	src2 := saleSource()
	src2.ID = "inv-overlap"
	src2.Date = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	_, err = svc.PostSaleInvoice(ctx, src2)
	require.ErrorIs(t, err, ErrPeriodOverlap)
}

func TestEnsureEssentialAccountsCreatesOnce(t *testing.T) {
	svc, repo := newTestLedger()
	ctx := context.Background()

	require.NoError(t, svc.EnsureEssentialAccounts(ctx))
	require.Len(t, repo.accounts, len(essentialAccounts))
	ids := map[string]int64{}
	for code, a := range repo.accounts {
		ids[code] = a.ID
	}

	require.NoError(t, svc.EnsureEssentialAccounts(ctx))
	require.Len(t, repo.accounts, len(essentialAccounts))
	for code, a := range repo.accounts {
		require.Equal(t, ids[code], a.ID)
	}
}

func TestAccountBalanceOrientation(t *testing.T) {
	asset := Account{Type: AccountTypeAsset, TotalDebit: 100, TotalCredit: 40}
	require.Equal(t, 60.0, asset.Balance())

	liability := Account{Type: AccountTypeLiability, TotalDebit: 40, TotalCredit: 100}
	require.Equal(t, 60.0, liability.Balance())

	treasury := Account{Type: AccountTypeTreasury, TotalDebit: 500, TotalCredit: 200}
	require.Equal(t, 300.0, treasury.Balance())
}

func TestPostingInputValidate(t *testing.T) {
	base := PostingInput{
		SourceType: SourceSaleInvoice,
		SourceID:   "x",
		Lines: []PostingLineInput{
			{AccountCode: AccountBank, Debit: 100},
			{AccountCode: AccountSales, Credit: 100},
		},
	}
	require.NoError(t, base.Validate())

	unbalanced := base
	unbalanced.Lines = []PostingLineInput{
		{AccountCode: AccountBank, Debit: 100},
		{AccountCode: AccountSales, Credit: 99},
	}
	require.ErrorIs(t, unbalanced.Validate(), ErrUnbalanced)

	short := base
	short.Lines = base.Lines[:1]
	require.ErrorIs(t, short.Validate(), ErrTooFewLines)

	both := base
	both.Lines = []PostingLineInput{
		{AccountCode: AccountBank, Debit: 100, Credit: 100},
		{AccountCode: AccountSales, Credit: 0, Debit: 0},
	}
	require.Error(t, both.Validate())
}
