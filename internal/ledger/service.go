package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/negoce-erp/negoce-erp/internal/money"
)

// RepositoryPort abstracts ledger persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAccounts(ctx context.Context) ([]Account, error)
	ListEntries(ctx context.Context, limit int) ([]JournalEntry, error)
	ListPeriods(ctx context.Context) ([]Period, error)
	ListLines(ctx context.Context, from, to time.Time) ([]AccountedLine, error)
}

// Service coordinates chart maintenance, fiscal periods and document posting.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SeedChart installs the default chart of accounts when the store is empty.
func (s *Service) SeedChart(ctx context.Context) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.CountAccounts(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for _, def := range DefaultChart() {
			if _, err := tx.CreateAccount(ctx, def); err != nil {
				return err
			}
		}
		s.logger.Info("chart of accounts seeded", slog.Int("accounts", len(DefaultChart())))
		return nil
	})
}

// EnsureEssentialAccounts recreates the accounts the posting rules depend on.
// Each missing account is created exactly once.
func (s *Service) EnsureEssentialAccounts(ctx context.Context) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, def := range essentialAccounts {
			if _, err := s.accountOrCreate(ctx, tx, def.Code); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreatePeriod opens a new fiscal period. The code is derived from the year
// span.
func (s *Service) CreatePeriod(ctx context.Context, start, end time.Time) (*Period, error) {
	if !start.Before(end) {
		return nil, ErrPeriodInvalid
	}
	var period *Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		overlap, err := tx.AnyPeriodOverlapping(ctx, start, end)
		if err != nil {
			return err
		}
		if overlap {
			return ErrPeriodOverlap
		}
		code := fmt.Sprintf("%d", start.Year())
		if end.Year() != start.Year() {
			code = fmt.Sprintf("%d-%d", start.Year(), end.Year())
		}
		now := s.now()
		p := &Period{Code: code, StartDate: start, EndDate: end, CreatedAt: now, UpdatedAt: now}
		if err := tx.CreatePeriod(ctx, p); err != nil {
			return err
		}
		period = p
		return nil
	})
	return period, err
}

// CurrentPeriod returns the period covering today, creating the calendar
// year when none does.
func (s *Service) CurrentPeriod(ctx context.Context) (*Period, error) {
	var period *Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := s.periodOrCreate(ctx, tx, s.now())
		if err != nil {
			return err
		}
		period = p
		return nil
	})
	return period, err
}

// ListAccounts returns the stored chart.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// ListEntries returns recent journal entries.
func (s *Service) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, limit)
}

// ListPeriods returns all fiscal periods.
func (s *Service) ListPeriods(ctx context.Context) ([]Period, error) {
	return s.repo.ListPeriods(ctx)
}

// InvoiceSource carries the amounts of an invoice to post.
type InvoiceSource struct {
	ID            string
	Number        string
	Date          time.Time
	AmountExclTax float64
	VATAmount     float64
	AmountInclTax float64
}

// PaymentSource carries a settlement to post.
type PaymentSource struct {
	ID             string
	Date           time.Time
	Amount         float64
	SaleLinked     bool
	PurchaseLinked bool
}

// ExpenseSource carries a paid operating expense to post.
type ExpenseSource struct {
	ID       string
	Date     time.Time
	Category string
	Label    string
	Amount   float64
}

// PostSaleInvoice books a sale: the client owes the gross, revenue takes the
// net, collected VAT the difference.
func (s *Service) PostSaleInvoice(ctx context.Context, src InvoiceSource) (*JournalEntry, error) {
	label := "Facture de vente " + src.Number
	lines := []PostingLineInput{
		{AccountCode: AccountClientSales, Label: label, Debit: money.Round(src.AmountInclTax)},
		{AccountCode: AccountSales, Label: label, Credit: money.Round(src.AmountExclTax)},
	}
	if src.VATAmount > 0 {
		lines = append(lines, PostingLineInput{AccountCode: AccountVATCollected, Label: label, Credit: money.Round(src.VATAmount)})
	}
	return s.post(ctx, PostingInput{
		PieceRef:   "FV-" + src.Number,
		Journal:    JournalSales,
		Date:       src.Date,
		Label:      label,
		SourceType: SourceSaleInvoice,
		SourceID:   src.ID,
		Lines:      lines,
	})
}

// PostPurchaseInvoice books a purchase: expense takes the net, deductible VAT
// the difference, the supplier is owed the gross.
func (s *Service) PostPurchaseInvoice(ctx context.Context, src InvoiceSource) (*JournalEntry, error) {
	label := "Facture d'achat " + src.Number
	lines := []PostingLineInput{
		{AccountCode: AccountPurchases, Label: label, Debit: money.Round(src.AmountExclTax)},
	}
	if src.VATAmount > 0 {
		lines = append(lines, PostingLineInput{AccountCode: AccountVATDeductible, Label: label, Debit: money.Round(src.VATAmount)})
	}
	lines = append(lines, PostingLineInput{AccountCode: AccountSupplierBuys, Label: label, Credit: money.Round(src.AmountInclTax)})
	return s.post(ctx, PostingInput{
		PieceRef:   "FA-" + src.Number,
		Journal:    JournalPurchases,
		Date:       src.Date,
		Label:      label,
		SourceType: SourcePurchaseInvoice,
		SourceID:   src.ID,
		Lines:      lines,
	})
}

// PostPayment books a settlement through the bank account. A payment linked
// to no invoice is skipped with a warning rather than failed: the cash side
// still tracks it.
func (s *Service) PostPayment(ctx context.Context, src PaymentSource) (*JournalEntry, error) {
	amount := money.Round(src.Amount)
	var lines []PostingLineInput
	var label string
	switch {
	case src.SaleLinked:
		label = "Reglement client"
		lines = []PostingLineInput{
			{AccountCode: AccountBank, Label: label, Debit: amount},
			{AccountCode: AccountClientSales, Label: label, Credit: amount},
		}
	case src.PurchaseLinked:
		label = "Reglement fournisseur"
		lines = []PostingLineInput{
			{AccountCode: AccountSupplierBuys, Label: label, Debit: amount},
			{AccountCode: AccountBank, Label: label, Credit: amount},
		}
	default:
		s.logger.Warn("payment linked to no invoice, not posted", slog.String("payment_id", src.ID))
		return nil, nil
	}
	return s.post(ctx, PostingInput{
		PieceRef:   "PAY-" + shortID(src.ID),
		Journal:    JournalBank,
		Date:       src.Date,
		Label:      label,
		SourceType: SourcePayment,
		SourceID:   src.ID,
		Lines:      lines,
	})
}

// PostExpense books a paid operating expense against its category account.
func (s *Service) PostExpense(ctx context.Context, src ExpenseSource) (*JournalEntry, error) {
	amount := money.Round(src.Amount)
	label := src.Label
	if label == "" {
		label = "Charge " + src.Category
	}
	account := ExpenseAccountCode(src.Category)
	return s.post(ctx, PostingInput{
		PieceRef:   "CHG-" + shortID(src.ID),
		Journal:    JournalSundry,
		Date:       src.Date,
		Label:      label,
		SourceType: SourceExpense,
		SourceID:   src.ID,
		Lines: []PostingLineInput{
			{AccountCode: account, Label: label, Debit: amount},
			{AccountCode: AccountBank, Label: label, Credit: amount},
		},
	})
}

// post runs the shared posting pipeline: idempotency check, account and
// period self-healing, insert, balance fold.
func (s *Service) post(ctx context.Context, input PostingInput) (*JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	var entry *JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindEntryBySource(ctx, input.SourceType, input.SourceID)
		if err == nil {
			s.logger.Info("source already posted, returning existing entry",
				slog.String("source_type", input.SourceType), slog.String("source_id", input.SourceID))
			entry = existing
			return nil
		}
		if !errors.Is(err, ErrEntryNotFound) {
			return err
		}

		for _, line := range input.Lines {
			if _, err := s.accountOrCreate(ctx, tx, line.AccountCode); err != nil {
				return err
			}
		}
		period, err := s.periodOrCreate(ctx, tx, input.Date)
		if err != nil {
			return err
		}
		if period.Closed {
			return ErrPeriodClosed
		}

		e := &JournalEntry{
			PieceRef:   input.PieceRef,
			Journal:    input.Journal,
			PeriodID:   period.ID,
			Date:       input.Date,
			Label:      input.Label,
			SourceType: input.SourceType,
			SourceID:   input.SourceID,
			CreatedAt:  s.now(),
		}
		for _, line := range input.Lines {
			e.Lines = append(e.Lines, JournalLine{
				AccountCode: line.AccountCode,
				Label:       line.Label,
				Debit:       line.Debit,
				Credit:      line.Credit,
			})
		}
		if err := tx.InsertEntry(ctx, e); err != nil {
			return err
		}
		for _, line := range e.Lines {
			if err := tx.AddToAccountTotals(ctx, line.AccountCode, line.Debit, line.Credit); err != nil {
				return err
			}
		}
		entry = e
		return nil
	})
	if errors.Is(err, ErrSourceAlreadyPosted) {
		// A concurrent posting won the race after our idempotency miss.
		// The winner committed, so the entry is there to read back.
		return s.findPosted(ctx, input.SourceType, input.SourceID)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) findPosted(ctx context.Context, sourceType, sourceID string) (*JournalEntry, error) {
	var entry *JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindEntryBySource(ctx, sourceType, sourceID)
		if err != nil {
			return err
		}
		entry = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("source already posted, returning existing entry",
		slog.String("source_type", sourceType), slog.String("source_id", sourceID))
	return entry, nil
}

// accountOrCreate looks the account up and recreates it from the default
// chart when missing.
func (s *Service) accountOrCreate(ctx context.Context, tx TxRepository, code string) (*Account, error) {
	account, err := tx.GetAccountByCode(ctx, code)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	def, ok := chartDef(code)
	if !ok {
		return nil, fmt.Errorf("ledger: no chart definition for account %s", code)
	}
	created, err := tx.CreateAccount(ctx, def)
	if err != nil {
		return nil, err
	}
	s.logger.Info("created missing account", slog.String("code", def.Code), slog.String("name", def.Name))
	return created, nil
}

// periodOrCreate returns the period containing d. An explicitly opened
// period of any span wins; only when none covers the date is a calendar-year
// period created lazily. Periods never overlap.
func (s *Service) periodOrCreate(ctx context.Context, tx TxRepository, d time.Time) (*Period, error) {
	period, err := tx.GetPeriodCovering(ctx, d)
	if err == nil {
		return period, nil
	}
	if !errors.Is(err, ErrPeriodNotFound) {
		return nil, err
	}
	code := fmt.Sprintf("%d", d.Year())
	now := s.now()
	p := &Period{
		Code:      code,
		StartDate: time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(d.Year(), time.December, 31, 0, 0, 0, 0, time.UTC),
		CreatedAt: now,
		UpdatedAt: now,
	}
	// An explicit period may straddle part of the year without covering d.
	overlap, err := tx.AnyPeriodOverlapping(ctx, p.StartDate, p.EndDate)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, ErrPeriodOverlap
	}
	if err := tx.CreatePeriod(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("fiscal period opened", slog.String("code", p.Code))
	return p, nil
}

func chartDef(code string) (AccountDef, bool) {
	for _, def := range DefaultChart() {
		if def.Code == code {
			return def, true
		}
	}
	return AccountDef{}, false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
