package treasury

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the cash position in PostgreSQL. The global balance
// is a singleton row, partner balances one row per partner, movements an
// append-only history.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
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

func (r *Repository) GetGlobalBalance(ctx context.Context) (*CashBalance, error) {
	return getGlobal(ctx, r.pool, false)
}

func (r *Repository) GetPartnerBalance(ctx context.Context, partnerID string) (*PartnerBalance, error) {
	return getPartner(ctx, r.pool, partnerID, false)
}

func (r *Repository) ListPartnerBalances(ctx context.Context) ([]PartnerBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT partner_id, partner_type, amount, updated_at FROM partner_balances
		ORDER BY partner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PartnerBalance
	for rows.Next() {
		var b PartnerBalance
		if err := rows.Scan(&b.PartnerID, &b.Type, &b.Amount, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) ListMovements(ctx context.Context, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+movementColumns+` FROM cash_movements
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

func (r *Repository) ListMovementsByPartner(ctx context.Context, partnerID string, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+movementColumns+` FROM cash_movements
		WHERE partner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, partnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

func (r *Repository) ListAllMovements(ctx context.Context) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+movementColumns+` FROM cash_movements
		ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

func (r *Repository) LatestMovement(ctx context.Context) (*Movement, error) {
	return latestMovement(ctx, r.pool)
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetGlobalBalanceForUpdate(ctx context.Context) (*CashBalance, error) {
	return getGlobal(ctx, t.tx, true)
}

func (t *txRepo) SetGlobalBalance(ctx context.Context, amount float64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cash_balance (id, amount, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
		amount, at)
	return err
}

func (t *txRepo) InitializeGlobalBalance(ctx context.Context, amount float64, startDate, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cash_balance (id, amount, initial_balance, start_date, updated_at)
		VALUES (1, $1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET amount = EXCLUDED.amount,
			initial_balance = EXCLUDED.initial_balance,
			start_date = EXCLUDED.start_date,
			updated_at = EXCLUDED.updated_at`,
		amount, startDate, at)
	return err
}

func (t *txRepo) GetPartnerBalanceForUpdate(ctx context.Context, partnerID string) (*PartnerBalance, error) {
	return getPartner(ctx, t.tx, partnerID, true)
}

func (t *txRepo) SetPartnerBalance(ctx context.Context, partnerID string, kind PartnerType, amount float64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO partner_balances (partner_id, partner_type, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partner_id) DO UPDATE SET partner_type = EXCLUDED.partner_type,
			amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
		partnerID, kind, amount, at)
	return err
}

func (t *txRepo) InsertMovement(ctx context.Context, m *Movement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cash_movements (id, type, amount, label, partner_id, partner_type, source_id,
			global_before, global_after, partner_before, partner_after, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.Type, m.Amount, m.Label, m.PartnerID, m.PartnerType, m.SourceID,
		m.GlobalBefore, m.GlobalAfter, m.PartnerBefore, m.PartnerAfter, m.OccurredAt, m.CreatedAt)
	return err
}

func (t *txRepo) LatestMovement(ctx context.Context) (*Movement, error) {
	return latestMovement(ctx, t.tx)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const movementColumns = `id, type, amount, label, partner_id, partner_type, source_id,
	global_before, global_after, partner_before, partner_after, occurred_at, created_at`

func getGlobal(ctx context.Context, q querier, forUpdate bool) (*CashBalance, error) {
	query := `SELECT amount, initial_balance, start_date, updated_at FROM cash_balance WHERE id = 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var b CashBalance
	err := q.QueryRow(ctx, query).Scan(&b.Amount, &b.InitialBalance, &b.StartDate, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &CashBalance{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func getPartner(ctx context.Context, q querier, partnerID string, forUpdate bool) (*PartnerBalance, error) {
	query := `SELECT partner_type, amount, updated_at FROM partner_balances WHERE partner_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b := PartnerBalance{PartnerID: partnerID}
	err := q.QueryRow(ctx, query, partnerID).Scan(&b.Type, &b.Amount, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &PartnerBalance{PartnerID: partnerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func latestMovement(ctx context.Context, q querier) (*Movement, error) {
	row := q.QueryRow(ctx, `
		SELECT `+movementColumns+` FROM cash_movements
		ORDER BY created_at DESC, id DESC
		LIMIT 1`)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMovementNotFound
	}
	return m, err
}

func scanMovement(row pgx.Row) (*Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.Type, &m.Amount, &m.Label, &m.PartnerID, &m.PartnerType, &m.SourceID,
		&m.GlobalBefore, &m.GlobalAfter, &m.PartnerBefore, &m.PartnerAfter, &m.OccurredAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
