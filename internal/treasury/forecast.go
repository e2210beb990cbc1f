package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/negoce-erp/negoce-erp/internal/billing"
	"github.com/negoce-erp/negoce-erp/internal/expenses"
	"github.com/negoce-erp/negoce-erp/internal/money"
	"github.com/negoce-erp/negoce-erp/internal/platform/cache"
)

// ItemKind classifies a forecast line as money in or money out.
type ItemKind string

const (
	ItemReceipt      ItemKind = "RECEIPT"
	ItemDisbursement ItemKind = "DISBURSEMENT"
)

// ForecastItem is one expected cash event inside the forecast window.
type ForecastItem struct {
	Date   time.Time              `json:"date"`
	Kind   ItemKind               `json:"kind"`
	Amount float64                `json:"amount"`
	Status billing.ForecastStatus `json:"status"`
	Label  string                 `json:"label"`
	Source string                 `json:"source"`
}

// DailyForecast is the projected position at the end of one day.
type DailyForecast struct {
	Date             time.Time `json:"date"`
	Inflows          float64   `json:"inflows"`
	Outflows         float64   `json:"outflows"`
	ProjectedBalance float64   `json:"projectedBalance"`
}

// CashForecast is the full projection over a date window. Days covers
// every calendar day from From to To inclusive.
type CashForecast struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance float64         `json:"openingBalance"`
	TotalInflows   float64         `json:"totalInflows"`
	TotalOutflows  float64         `json:"totalOutflows"`
	ClosingBalance float64         `json:"closingBalance"`
	Items          []ForecastItem  `json:"items"`
	Days           []DailyForecast `json:"days"`
}

// ForecastSource exposes scheduled invoice settlements.
type ForecastSource interface {
	ListForecastsDueBetween(ctx context.Context, from, to time.Time) ([]billing.ScheduledForecast, error)
}

// PlannedExpenseSource exposes planned charges.
type PlannedExpenseSource interface {
	ListPlannedBetween(ctx context.Context, from, to time.Time) ([]expenses.Expense, error)
}

// Forecaster projects the cash position day by day from the scheduled
// settlements and the planned charges.
type Forecaster struct {
	treasury *Service
	invoices ForecastSource
	expenses PlannedExpenseSource
	cache    *cache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

func NewForecaster(treasury *Service, invoices ForecastSource, planned PlannedExpenseSource, cache *cache.Cache, logger *slog.Logger) *Forecaster {
	return &Forecaster{
		treasury: treasury,
		invoices: invoices,
		expenses: planned,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock. Test hook.
func (f *Forecaster) WithNow(now func() time.Time) *Forecaster {
	f.now = now
	return f
}

const dayFormat = "2006-01-02"

// Build computes the forecast for [from, to]. Results are cached per
// window until a new movement bumps the cache version.
func (f *Forecaster) Build(ctx context.Context, from, to time.Time) (*CashForecast, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("treasury: forecast window ends before it starts")
	}
	from = truncateDay(from)
	to = truncateDay(to)

	key, err := f.cache.BuildKey(ctx, "forecast", from.Format(dayFormat), to.Format(dayFormat))
	if err != nil {
		return nil, err
	}
	var out CashForecast
	err = f.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		fc, err := f.build(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return *fc, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *Forecaster) build(ctx context.Context, from, to time.Time) (*CashForecast, error) {
	global, err := f.treasury.Balance(ctx)
	if err != nil {
		return nil, err
	}
	items, err := f.gather(ctx, from, to)
	if err != nil {
		return nil, err
	}

	byDay := map[string][2]float64{}
	var totalIn, totalOut float64
	for _, it := range items {
		k := it.Date.Format(dayFormat)
		agg := byDay[k]
		if it.Kind == ItemReceipt {
			agg[0] += it.Amount
			totalIn += it.Amount
		} else {
			agg[1] += it.Amount
			totalOut += it.Amount
		}
		byDay[k] = agg
	}

	fc := &CashForecast{
		From:           from,
		To:             to,
		OpeningBalance: money.Round(global.Amount),
		TotalInflows:   money.Round(totalIn),
		TotalOutflows:  money.Round(totalOut),
		Items:          items,
	}
	running := global.Amount
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		agg := byDay[day.Format(dayFormat)]
		running += agg[0] - agg[1]
		fc.Days = append(fc.Days, DailyForecast{
			Date:             day,
			Inflows:          money.Round(agg[0]),
			Outflows:         money.Round(agg[1]),
			ProjectedBalance: money.Round(running),
		})
	}
	fc.ClosingBalance = money.Round(running)
	return fc, nil
}

// gather collects scheduled settlements and planned charges, marking the
// past-due ones overdue, sorted by date.
func (f *Forecaster) gather(ctx context.Context, from, to time.Time) ([]ForecastItem, error) {
	today := truncateDay(f.now())

	scheduled, err := f.invoices.ListForecastsDueBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	items := make([]ForecastItem, 0, len(scheduled))
	for _, sf := range scheduled {
		if sf.Forecast.Status == billing.ForecastRealized || sf.Forecast.RemainingAmount <= 0 {
			continue
		}
		kind := ItemReceipt
		if sf.Kind == billing.KindPurchaseInvoice {
			kind = ItemDisbursement
		}
		items = append(items, ForecastItem{
			Date:   truncateDay(sf.Forecast.DueDate),
			Kind:   kind,
			Amount: money.Round(sf.Forecast.RemainingAmount),
			Status: forecastStatus(sf.Forecast.DueDate, today),
			Label:  "Echeance facture " + sf.InvoiceNumber,
			Source: sf.InvoiceID,
		})
	}

	planned, err := f.expenses.ListPlannedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for i := range planned {
		items = append(items, ForecastItem{
			Date:   truncateDay(planned[i].DueDate),
			Kind:   ItemDisbursement,
			Amount: money.Round(planned[i].Amount),
			Status: forecastStatus(planned[i].DueDate, today),
			Label:  planned[i].Label,
			Source: planned[i].ID,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.Before(items[j].Date) })
	return items, nil
}

// Invalidate bumps the forecast cache version.
func (f *Forecaster) Invalidate(ctx context.Context) {
	if err := f.cache.Bump(ctx); err != nil {
		f.logger.Warn("forecast cache bump failed", slog.Any("error", err))
	}
}

func forecastStatus(due, today time.Time) billing.ForecastStatus {
	if truncateDay(due).Before(today) {
		return billing.ForecastOverdue
	}
	return billing.ForecastPlanned
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
