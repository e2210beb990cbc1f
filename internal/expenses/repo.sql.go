package expenses

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const expenseColumns = `id, label, category, amount, taxable, status, due_date, paid_at, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, e *Expense) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO expenses (id, label, category, amount, taxable, status, due_date, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Label, e.Category, e.Amount, e.Taxable, e.Status, e.DueDate, e.PaidAt, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *Repository) Update(ctx context.Context, e *Expense) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE expenses
		SET label = $2, category = $3, amount = $4, taxable = $5, status = $6,
		    due_date = $7, paid_at = $8, updated_at = $9
		WHERE id = $1`,
		e.ID, e.Label, e.Category, e.Amount, e.Taxable, e.Status, e.DueDate, e.PaidAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Expense, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExpenseNotFound
	}
	return e, err
}

func (r *Repository) List(ctx context.Context, status Status) ([]Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY due_date, created_at`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func (r *Repository) ListPlannedBetween(ctx context.Context, from, to time.Time) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE status = $1 AND due_date >= $2 AND due_date <= $3
		ORDER BY due_date`,
		StatusPlanned, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func scanExpense(row pgx.Row) (*Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Label, &e.Category, &e.Amount, &e.Taxable, &e.Status,
		&e.DueDate, &e.PaidAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectExpenses(rows pgx.Rows) ([]Expense, error) {
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
