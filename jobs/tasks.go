package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/negoce-erp/negoce-erp/internal/billing"
	"github.com/negoce-erp/negoce-erp/internal/ledger"
	"github.com/negoce-erp/negoce-erp/internal/money"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPaymentReminder scans overdue payment forecasts.
	TaskPaymentReminder = "billing:payment_reminder"
	// TaskLedgerIntegrity compares stored account totals with replayed lines.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskCashConservation replays the cash history against the stored balance.
	TaskCashConservation = "treasury:conservation"
)

// NewPaymentReminderTask constructs the reminder task.
func NewPaymentReminderTask() *asynq.Task {
	return asynq.NewTask(TaskPaymentReminder, nil)
}

// NewLedgerIntegrityTask constructs the integrity task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewCashConservationTask constructs the conservation task.
func NewCashConservationTask() *asynq.Task {
	return asynq.NewTask(TaskCashConservation, nil)
}

// ForecastReader lists scheduled settlements for the reminder scan.
type ForecastReader interface {
	ListForecastsDueBetween(ctx context.Context, from, to time.Time) ([]billing.ScheduledForecast, error)
}

// HandlePaymentReminder logs every forecast past due and still open. The
// scan window reaches one year back.
func HandlePaymentReminder(reader ForecastReader, logger *slog.Logger, metrics *Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("payment_reminder")
		now := time.Now()
		forecasts, err := reader.ListForecastsDueBetween(ctx, now.AddDate(-1, 0, 0), now)
		if err != nil {
			return tracker.End(err)
		}
		overdue := 0
		for _, f := range forecasts {
			if f.Forecast.Status == billing.ForecastRealized || f.Forecast.RemainingAmount <= 0 {
				continue
			}
			overdue++
			logger.Warn("payment overdue",
				slog.String("invoice", f.InvoiceNumber),
				slog.String("partner", f.PartnerID),
				slog.Time("dueDate", f.Forecast.DueDate),
				slog.Float64("remaining", f.Forecast.RemainingAmount))
		}
		metrics.SetOverduePayments(overdue)
		logger.Info("payment reminder scan done", slog.Int("overdue", overdue))
		return tracker.End(nil)
	}
}

// LedgerReader exposes the data the integrity check replays.
type LedgerReader interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	ListLines(ctx context.Context, from, to time.Time) ([]ledger.AccountedLine, error)
}

// HandleLedgerIntegrity replays every accounted line and compares the
// result with the stored account accumulators.
func HandleLedgerIntegrity(reader LedgerReader, logger *slog.Logger, metrics *Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("ledger_integrity")
		accounts, err := reader.ListAccounts(ctx)
		if err != nil {
			return tracker.End(err)
		}
		lines, err := reader.ListLines(ctx, time.Time{}, time.Now())
		if err != nil {
			return tracker.End(err)
		}
		type totals struct{ debit, credit float64 }
		replayed := map[string]*totals{}
		for _, l := range lines {
			t, ok := replayed[l.AccountCode]
			if !ok {
				t = &totals{}
				replayed[l.AccountCode] = t
			}
			t.debit += l.Debit
			t.credit += l.Credit
		}
		drift := 0
		for _, a := range accounts {
			t := replayed[a.Code]
			if t == nil {
				t = &totals{}
			}
			if !money.Equal(a.TotalDebit, t.debit) || !money.Equal(a.TotalCredit, t.credit) {
				drift++
				logger.Error("account totals drifted from journal",
					slog.String("account", a.Code),
					slog.Float64("storedDebit", a.TotalDebit),
					slog.Float64("replayedDebit", money.Round(t.debit)),
					slog.Float64("storedCredit", a.TotalCredit),
					slog.Float64("replayedCredit", money.Round(t.credit)))
			}
		}
		logger.Info("ledger integrity scan done",
			slog.Int("accounts", len(accounts)),
			slog.Int("drifted", drift))
		return tracker.End(nil)
	}
}

// ConservationChecker verifies the cash history against the stored balance.
type ConservationChecker interface {
	VerifyConservation(ctx context.Context) (bool, error)
}

// HandleCashConservation runs the treasury conservation check.
func HandleCashConservation(checker ConservationChecker, logger *slog.Logger, metrics *Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("cash_conservation")
		ok, err := checker.VerifyConservation(ctx)
		if err != nil {
			return tracker.End(err)
		}
		logger.Info("cash conservation scan done", slog.Bool("ok", ok))
		return tracker.End(nil)
	}
}
