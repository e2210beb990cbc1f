package vat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists VAT declarations. Rate buckets are stored as a
// jsonb document since they are always written and read as a unit.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const declarationColumns = `id, period, year, month, status, collected, deductible,
	total_collected, total_deductible, net_due, credit, created_at, updated_at, filed_at`

func (r *Repository) Save(ctx context.Context, d *Declaration) error {
	collected, err := json.Marshal(d.Collected)
	if err != nil {
		return err
	}
	deductible, err := json.Marshal(d.Deductible)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO vat_declarations (id, period, year, month, status, collected, deductible,
			total_collected, total_deductible, net_due, credit, created_at, updated_at, filed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			collected = EXCLUDED.collected,
			deductible = EXCLUDED.deductible,
			total_collected = EXCLUDED.total_collected,
			total_deductible = EXCLUDED.total_deductible,
			net_due = EXCLUDED.net_due,
			credit = EXCLUDED.credit,
			updated_at = EXCLUDED.updated_at,
			filed_at = EXCLUDED.filed_at`,
		d.ID, d.Period, d.Year, d.Month, d.Status, collected, deductible,
		d.TotalCollected, d.TotalDeductible, d.NetDue, d.Credit, d.CreatedAt, d.UpdatedAt, d.FiledAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (*Declaration, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+declarationColumns+` FROM vat_declarations WHERE id = $1`, id)
	return scanDeclaration(row)
}

func (r *Repository) GetByPeriod(ctx context.Context, period string) (*Declaration, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+declarationColumns+` FROM vat_declarations WHERE period = $1`, period)
	return scanDeclaration(row)
}

func (r *Repository) List(ctx context.Context) ([]Declaration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+declarationColumns+` FROM vat_declarations ORDER BY year DESC, month DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDeclaration(row pgx.Row) (*Declaration, error) {
	var d Declaration
	var collected, deductible []byte
	err := row.Scan(&d.ID, &d.Period, &d.Year, &d.Month, &d.Status, &collected, &deductible,
		&d.TotalCollected, &d.TotalDeductible, &d.NetDue, &d.Credit, &d.CreatedAt, &d.UpdatedAt, &d.FiledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeclarationNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(collected) > 0 {
		if err := json.Unmarshal(collected, &d.Collected); err != nil {
			return nil, err
		}
	}
	if len(deductible) > 0 {
		if err := json.Unmarshal(deductible, &d.Deductible); err != nil {
			return nil, err
		}
	}
	return &d, nil
}
