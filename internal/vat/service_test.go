package vat

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/negoce-erp/negoce-erp/internal/ledger"
)

type staticLedger struct {
	lines []ledger.AccountedLine
}

func (s *staticLedger) ListLines(_ context.Context, from, to time.Time) ([]ledger.AccountedLine, error) {
	var out []ledger.AccountedLine
	for _, l := range s.lines {
		if l.Date.Before(from) || l.Date.After(to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

type memoryDeclRepo struct {
	declarations map[string]Declaration
}

func newMemoryDeclRepo() *memoryDeclRepo {
	return &memoryDeclRepo{declarations: map[string]Declaration{}}
}

func (m *memoryDeclRepo) Save(_ context.Context, d *Declaration) error {
	m.declarations[d.ID] = *d
	return nil
}

func (m *memoryDeclRepo) Get(_ context.Context, id string) (*Declaration, error) {
	d, ok := m.declarations[id]
	if !ok {
		return nil, ErrDeclarationNotFound
	}
	out := d
	return &out, nil
}

func (m *memoryDeclRepo) GetByPeriod(_ context.Context, period string) (*Declaration, error) {
	for _, d := range m.declarations {
		if d.Period == period {
			out := d
			return &out, nil
		}
	}
	return nil, ErrDeclarationNotFound
}

func (m *memoryDeclRepo) List(_ context.Context) ([]Declaration, error) {
	var out []Declaration
	for _, d := range m.declarations {
		out = append(out, d)
	}
	return out, nil
}

func newVATService(t *testing.T) (*Service, *staticLedger, *memoryDeclRepo) {
	t.Helper()
	reader := &staticLedger{}
	repo := newMemoryDeclRepo()
	svc := NewService(reader, repo, slog.Default())
	return svc, reader, repo
}

func marchDay(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func saleLines(piece string, date time.Time, base, vat float64) []ledger.AccountedLine {
	return []ledger.AccountedLine{
		{AccountCode: ledger.AccountClientSales, Debit: base + vat, Journal: ledger.JournalSales, PieceRef: piece, Date: date},
		{AccountCode: ledger.AccountSales, Credit: base, Journal: ledger.JournalSales, PieceRef: piece, Date: date},
		{AccountCode: ledger.AccountVATCollected, Credit: vat, Journal: ledger.JournalSales, PieceRef: piece, Date: date},
	}
}

func purchaseLines(piece string, date time.Time, base, vat float64) []ledger.AccountedLine {
	return []ledger.AccountedLine{
		{AccountCode: ledger.AccountPurchases, Debit: base, Journal: ledger.JournalPurchases, PieceRef: piece, Date: date},
		{AccountCode: ledger.AccountVATDeductible, Debit: vat, Journal: ledger.JournalPurchases, PieceRef: piece, Date: date},
		{AccountCode: ledger.AccountSupplierBuys, Credit: base + vat, Journal: ledger.JournalPurchases, PieceRef: piece, Date: date},
	}
}

func TestComputeDeclarationBucketsByRate(t *testing.T) {
	svc, reader, _ := newVATService(t)

	var lines []ledger.AccountedLine
	lines = append(lines, saleLines("FV-2024-001", marchDay(5), 1000, 200)...)
	lines = append(lines, saleLines("FV-2024-002", marchDay(12), 2000, 280)...)
	lines = append(lines, purchaseLines("FA-2024-001", marchDay(8), 500, 100)...)
	// Outside the declaration month, must be ignored.
	lines = append(lines, saleLines("FV-2024-003", time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC), 9000, 1800)...)
	reader.lines = lines

	d, err := svc.Compute(context.Background(), 2024, 3)
	require.NoError(t, err)
	require.Equal(t, "03/2024", d.Period)
	require.Equal(t, StatusDraft, d.Status)

	require.Len(t, d.Collected, 2)
	require.Equal(t, "20%", d.Collected[0].Rate)
	require.Equal(t, 1000.0, d.Collected[0].Base)
	require.Equal(t, 200.0, d.Collected[0].VAT)
	require.Equal(t, "14%", d.Collected[1].Rate)
	require.Equal(t, 280.0, d.Collected[1].VAT)

	require.Len(t, d.Deductible, 1)
	require.Equal(t, "20%", d.Deductible[0].Rate)
	require.Equal(t, 100.0, d.Deductible[0].VAT)

	require.Equal(t, 480.0, d.TotalCollected)
	require.Equal(t, 100.0, d.TotalDeductible)
	require.Equal(t, 380.0, d.NetDue)
	require.Equal(t, 0.0, d.Credit)
}

func TestComputeDeclarationCreditWhenDeductibleExceeds(t *testing.T) {
	svc, reader, _ := newVATService(t)

	var lines []ledger.AccountedLine
	lines = append(lines, saleLines("FV-2024-001", marchDay(3), 500, 100)...)
	lines = append(lines, purchaseLines("FA-2024-001", marchDay(4), 3000, 600)...)
	reader.lines = lines

	d, err := svc.Compute(context.Background(), 2024, 3)
	require.NoError(t, err)
	require.Equal(t, 0.0, d.NetDue)
	require.Equal(t, 500.0, d.Credit)
}

func TestComputeDeclarationOtherRateBucket(t *testing.T) {
	svc, reader, _ := newVATService(t)

	reader.lines = saleLines("FV-2024-001", marchDay(3), 1000, 35)
	d, err := svc.Compute(context.Background(), 2024, 3)
	require.NoError(t, err)
	require.Len(t, d.Collected, 1)
	require.Equal(t, "other", d.Collected[0].Rate)
}

func TestComputeInvalidPeriod(t *testing.T) {
	svc, _, _ := newVATService(t)
	_, err := svc.Compute(context.Background(), 2024, 13)
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestRecomputeDraftKeepsIdentity(t *testing.T) {
	svc, reader, _ := newVATService(t)
	ctx := context.Background()

	reader.lines = saleLines("FV-2024-001", marchDay(3), 1000, 200)
	first, err := svc.Compute(ctx, 2024, 3)
	require.NoError(t, err)

	reader.lines = append(reader.lines, saleLines("FV-2024-002", marchDay(9), 1000, 200)...)
	second, err := svc.Compute(ctx, 2024, 3)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 400.0, second.TotalCollected)
}

func TestFiledDeclarationIsFrozen(t *testing.T) {
	svc, reader, _ := newVATService(t)
	ctx := context.Background()

	reader.lines = saleLines("FV-2024-001", marchDay(3), 1000, 200)
	d, err := svc.Compute(ctx, 2024, 3)
	require.NoError(t, err)

	filed, err := svc.File(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFiled, filed.Status)
	require.NotNil(t, filed.FiledAt)

	_, err = svc.Compute(ctx, 2024, 3)
	require.ErrorIs(t, err, ErrDeclarationFiled)

	_, err = svc.File(ctx, d.ID)
	require.ErrorIs(t, err, ErrDeclarationFiled)
}
