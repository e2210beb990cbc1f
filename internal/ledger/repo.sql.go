package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetAccountByCode(ctx context.Context, code string) (*Account, error)
	CreateAccount(ctx context.Context, def AccountDef) (*Account, error)
	AddToAccountTotals(ctx context.Context, code string, debit, credit float64) error
	CountAccounts(ctx context.Context) (int, error)

	InsertEntry(ctx context.Context, entry *JournalEntry) error
	FindEntryBySource(ctx context.Context, sourceType, sourceID string) (*JournalEntry, error)

	CreatePeriod(ctx context.Context, p *Period) error
	GetPeriodCovering(ctx context.Context, d time.Time) (*Period, error)
	AnyPeriodOverlapping(ctx context.Context, start, end time.Time) (bool, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const accountColumns = `id, code, name, type, class, total_debit, total_credit, is_active, created_at, updated_at`

// ListAccounts returns the stored chart ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Class, &a.TotalDebit, &a.TotalCredit, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListLines returns every journal line dated in [from, to] with its entry
// metadata, ordered by entry date.
func (r *Repository) ListLines(ctx context.Context, from, to time.Time) ([]AccountedLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.account_code, l.label, l.debit, l.credit, e.journal, e.piece_ref, e.entry_date
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.entry_date >= $1 AND e.entry_date <= $2
ORDER BY e.entry_date, e.id, l.id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []AccountedLine
	for rows.Next() {
		var l AccountedLine
		if err := rows.Scan(&l.AccountCode, &l.Label, &l.Debit, &l.Credit, &l.Journal, &l.PieceRef, &l.Date); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// ListEntries returns journal entries with their lines, newest first.
func (r *Repository) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, piece_ref, journal, period_id, entry_date, label, source_type, source_id, created_at
FROM journal_entries ORDER BY entry_date DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.PieceRef, &e.Journal, &e.PeriodID, &e.Date, &e.Label, &e.SourceType, &e.SourceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		lines, err := r.listEntryLines(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

// ListPeriods returns all fiscal periods ordered by start date.
func (r *Repository) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, start_date, end_date, closed, created_at, updated_at FROM periods ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Closed, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *Repository) listEntryLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, account_code, label, debit, credit FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountCode, &l.Label, &l.Debit, &l.Credit); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (t *txRepo) GetAccountByCode(ctx context.Context, code string) (*Account, error) {
	var a Account
	err := t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Class, &a.TotalDebit, &a.TotalCredit, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (t *txRepo) CreateAccount(ctx context.Context, def AccountDef) (*Account, error) {
	now := time.Now()
	a := Account{
		Code:      def.Code,
		Name:      def.Name,
		Type:      def.Type,
		Class:     Class(def.Code),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, class, total_debit, total_credit, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0, 0, TRUE, $5, $6) RETURNING id`, a.Code, a.Name, a.Type, a.Class, a.CreatedAt, a.UpdatedAt).Scan(&a.ID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *txRepo) AddToAccountTotals(ctx context.Context, code string, debit, credit float64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET total_debit = total_debit + $2, total_credit = total_credit + $3, updated_at = $4 WHERE code=$1`,
		code, debit, credit, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *txRepo) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

// InsertEntry stores an entry with its lines. The unique constraint on
// (source_type, source_id) makes posting idempotent per source document.
func (t *txRepo) InsertEntry(ctx context.Context, entry *JournalEntry) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO journal_entries (piece_ref, journal, period_id, entry_date, label, source_type, source_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		entry.PieceRef, entry.Journal, entry.PeriodID, entry.Date, entry.Label, entry.SourceType, entry.SourceID, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_entries_source" {
			return ErrSourceAlreadyPosted
		}
		return err
	}
	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.EntryID = entry.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_code, label, debit, credit)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, line.EntryID, line.AccountCode, line.Label, line.Debit, line.Credit).Scan(&line.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) FindEntryBySource(ctx context.Context, sourceType, sourceID string) (*JournalEntry, error) {
	var e JournalEntry
	err := t.tx.QueryRow(ctx, `SELECT id, piece_ref, journal, period_id, entry_date, label, source_type, source_id, created_at
FROM journal_entries WHERE source_type=$1 AND source_id=$2`, sourceType, sourceID).
		Scan(&e.ID, &e.PieceRef, &e.Journal, &e.PeriodID, &e.Date, &e.Label, &e.SourceType, &e.SourceID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	rows, err := t.tx.Query(ctx, `SELECT id, entry_id, account_code, label, debit, credit FROM journal_lines WHERE entry_id=$1 ORDER BY id`, e.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountCode, &l.Label, &l.Debit, &l.Credit); err != nil {
			return nil, err
		}
		e.Lines = append(e.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *txRepo) CreatePeriod(ctx context.Context, p *Period) error {
	return t.tx.QueryRow(ctx, `INSERT INTO periods (code, start_date, end_date, closed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, p.Code, p.StartDate, p.EndDate, p.Closed, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
}

func (t *txRepo) GetPeriodCovering(ctx context.Context, d time.Time) (*Period, error) {
	var p Period
	err := t.tx.QueryRow(ctx, `SELECT id, code, start_date, end_date, closed, created_at, updated_at FROM periods
WHERE start_date <= $1 AND end_date >= $1 ORDER BY start_date LIMIT 1`, d).
		Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Closed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPeriodNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *txRepo) AnyPeriodOverlapping(ctx context.Context, start, end time.Time) (bool, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM periods WHERE start_date <= $2 AND end_date >= $1`, start, end).Scan(&n)
	return n > 0, err
}
