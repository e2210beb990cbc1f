package vat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/money"
)

// LedgerReader exposes the accounted lines the declaration is built from.
type LedgerReader interface {
	ListLines(ctx context.Context, from, to time.Time) ([]ledger.AccountedLine, error)
}

// RepositoryPort persists declarations.
type RepositoryPort interface {
	Save(ctx context.Context, d *Declaration) error
	Get(ctx context.Context, id string) (*Declaration, error)
	GetByPeriod(ctx context.Context, period string) (*Declaration, error)
	List(ctx context.Context) ([]Declaration, error)
}

// Service computes and files monthly declarations.
type Service struct {
	ledger LedgerReader
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(reader LedgerReader, repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{ledger: reader, repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Standard Moroccan VAT rates. Anything else lands in the other bucket.
var standardRates = []float64{0.20, 0.14, 0.10, 0.07}

const otherRateLabel = "other"

// Compute builds the declaration for one month from the ledger and stores
// it as a draft. A filed declaration for the same period is never
// recomputed.
func (s *Service) Compute(ctx context.Context, year, month int) (*Declaration, error) {
	if year < 2000 || month < 1 || month > 12 {
		return nil, ErrInvalidPeriod
	}
	period := fmt.Sprintf("%02d/%d", month, year)

	existing, err := s.repo.GetByPeriod(ctx, period)
	if err != nil && !errors.Is(err, ErrDeclarationNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == StatusFiled {
		return nil, ErrDeclarationFiled
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	lines, err := s.ledger.ListLines(ctx, from, to)
	if err != nil {
		return nil, err
	}

	collected, deductible := bucketByRate(lines)
	now := s.now()
	d := &Declaration{
		ID:         uuid.NewString(),
		Period:     period,
		Year:       year,
		Month:      month,
		Status:     StatusDraft,
		Collected:  collected,
		Deductible: deductible,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	}
	for _, l := range collected {
		d.TotalCollected += l.VAT
	}
	for _, l := range deductible {
		d.TotalDeductible += l.VAT
	}
	d.TotalCollected = money.Round(d.TotalCollected)
	d.TotalDeductible = money.Round(d.TotalDeductible)
	net := money.Round(d.TotalCollected - d.TotalDeductible)
	if net >= 0 {
		d.NetDue = net
	} else {
		d.Credit = -net
	}

	if err := s.repo.Save(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("vat declaration computed",
		slog.String("period", period),
		slog.Float64("collected", d.TotalCollected),
		slog.Float64("deductible", d.TotalDeductible),
		slog.Float64("netDue", d.NetDue))
	return d, nil
}

// File freezes a draft declaration.
func (s *Service) File(ctx context.Context, id string) (*Declaration, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusFiled {
		return nil, ErrDeclarationFiled
	}
	now := s.now()
	d.Status = StatusFiled
	d.FiledAt = &now
	d.UpdatedAt = now
	if err := s.repo.Save(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("vat declaration filed", slog.String("period", d.Period))
	return d, nil
}

// Get returns one declaration by id.
func (s *Service) Get(ctx context.Context, id string) (*Declaration, error) {
	return s.repo.Get(ctx, id)
}

// List returns all declarations.
func (s *Service) List(ctx context.Context) ([]Declaration, error) {
	return s.repo.List(ctx)
}

// bucketByRate walks the accounted lines piece by piece. Inside one piece
// the collected VAT is matched against the revenue base and the
// deductible VAT against the expense base, which yields the applied rate.
func bucketByRate(lines []ledger.AccountedLine) (collected, deductible []RateLine) {
	type pieceAgg struct {
		collectedVAT  float64
		revenueBase   float64
		deductibleVAT float64
		expenseBase   float64
	}
	pieces := map[string]*pieceAgg{}
	order := []string{}
	for _, l := range lines {
		agg, ok := pieces[l.PieceRef]
		if !ok {
			agg = &pieceAgg{}
			pieces[l.PieceRef] = agg
			order = append(order, l.PieceRef)
		}
		switch {
		case l.AccountCode == ledger.AccountVATCollected:
			agg.collectedVAT += l.Credit - l.Debit
		case l.AccountCode == ledger.AccountVATDeductible:
			agg.deductibleVAT += l.Debit - l.Credit
		case ledger.Class(l.AccountCode) == 7:
			agg.revenueBase += l.Credit - l.Debit
		case ledger.Class(l.AccountCode) == 6:
			agg.expenseBase += l.Debit - l.Credit
		}
	}

	collectedBuckets := map[string]*RateLine{}
	deductibleBuckets := map[string]*RateLine{}
	for _, ref := range order {
		agg := pieces[ref]
		if agg.collectedVAT > 0 {
			addBucket(collectedBuckets, agg.revenueBase, agg.collectedVAT)
		}
		if agg.deductibleVAT > 0 {
			addBucket(deductibleBuckets, agg.expenseBase, agg.deductibleVAT)
		}
	}
	return sortBuckets(collectedBuckets), sortBuckets(deductibleBuckets)
}

func addBucket(buckets map[string]*RateLine, base, vat float64) {
	label := rateLabel(base, vat)
	b, ok := buckets[label]
	if !ok {
		b = &RateLine{Rate: label}
		buckets[label] = b
	}
	b.Base = money.Round(b.Base + base)
	b.VAT = money.Round(b.VAT + vat)
}

// rateLabel matches the observed ratio against the standard rates with a
// half-point tolerance for rounding noise.
func rateLabel(base, vat float64) string {
	if base <= 0 {
		return otherRateLabel
	}
	ratio := vat / base
	for _, r := range standardRates {
		if math.Abs(ratio-r) < 0.005 {
			return fmt.Sprintf("%.0f%%", r*100)
		}
	}
	return otherRateLabel
}

// sortBuckets orders rate lines from the highest standard rate down, the
// other bucket last.
func sortBuckets(buckets map[string]*RateLine) []RateLine {
	out := make([]RateLine, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return rateRank(out[i].Rate) < rateRank(out[j].Rate) })
	return out
}

func rateRank(label string) int {
	for i, r := range standardRates {
		if label == fmt.Sprintf("%.0f%%", r*100) {
			return i
		}
	}
	return len(standardRates)
}
