package reports

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/platform/cache"
)

// LedgerReader provides the raw material for report building.
type LedgerReader interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	ListLines(ctx context.Context, from, to time.Time) ([]ledger.AccountedLine, error)
}

// Service builds financial reports from replayed ledger lines, memoised in
// the versioned cache until the next posting bumps it.
type Service struct {
	reader LedgerReader
	cache  *cache.Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs the report service. The cache may be nil.
func NewService(reader LedgerReader, c *cache.Cache, logger *slog.Logger) *Service {
	return &Service{reader: reader, cache: c, logger: logger}
}

const dayFormat = "2006-01-02"

// TrialBalance builds the trial balance over [from, to].
func (s *Service) TrialBalance(ctx context.Context, from, to time.Time) (TrialBalance, error) {
	var tb TrialBalance
	key, err := s.cache.BuildKey(ctx, "reports", "tb", from.Format(dayFormat), to.Format(dayFormat))
	if err != nil {
		return tb, err
	}
	err = s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (interface{}, error) {
		balances, err := s.replay(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(balances), nil
	})
	return tb, err
}

// BalanceSheet builds the statement of position as of a date. All activity up
// to that date is replayed.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	var bs BalanceSheet
	key, err := s.cache.BuildKey(ctx, "reports", "bs", asOf.Format(dayFormat))
	if err != nil {
		return bs, err
	}
	err = s.cache.FetchJSON(ctx, key, &bs, func(ctx context.Context) (interface{}, error) {
		balances, err := s.replay(ctx, time.Time{}, asOf)
		if err != nil {
			return nil, err
		}
		return BuildBalanceSheet(balances), nil
	})
	return bs, err
}

// IncomeStatement builds the profit and loss over [from, to].
func (s *Service) IncomeStatement(ctx context.Context, from, to time.Time) (IncomeStatement, error) {
	var st IncomeStatement
	key, err := s.cache.BuildKey(ctx, "reports", "pl", from.Format(dayFormat), to.Format(dayFormat))
	if err != nil {
		return st, err
	}
	err = s.cache.FetchJSON(ctx, key, &st, func(ctx context.Context) (interface{}, error) {
		balances, err := s.replay(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return BuildIncomeStatement(balances), nil
	})
	return st, err
}

// CorporateTax assesses the year's tax from its income statement. The
// quarterly instalments derive from the prior year's assessment.
func (s *Service) CorporateTax(ctx context.Context, year int) (TaxAssessment, error) {
	current, err := s.IncomeStatement(ctx, yearStart(year), yearEnd(year))
	if err != nil {
		return TaxAssessment{}, err
	}
	assessment := AssessCorporateTax(year, current.CurrentResult, current.OperatingRevenue)

	prior, err := s.IncomeStatement(ctx, yearStart(year-1), yearEnd(year-1))
	if err != nil {
		return TaxAssessment{}, err
	}
	priorDue := AssessCorporateTax(year-1, prior.CurrentResult, prior.OperatingRevenue).Due
	assessment.Instalments = Instalments(priorDue, year)
	return assessment, nil
}

// Invalidate drops every cached report. Called after each posting.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

// replay folds the accounted lines onto a zeroed chart. Concurrent
// requests for the same window share one pass.
func (s *Service) replay(ctx context.Context, from, to time.Time) ([]AccountBalance, error) {
	key := from.Format(dayFormat) + ":" + to.Format(dayFormat)
	out, err, _ := s.group.Do(key, func() (interface{}, error) {
		accounts, err := s.reader.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		lines, err := s.reader.ListLines(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return Replay(accounts, lines), nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]AccountBalance), nil
}

func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func yearEnd(year int) time.Time {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}
