package expenses

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/negoce-erp/negoce-erp/internal/money"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	Create(ctx context.Context, e *Expense) error
	Update(ctx context.Context, e *Expense) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Expense, error)
	List(ctx context.Context, status Status) ([]Expense, error)
	ListPlannedBetween(ctx context.Context, from, to time.Time) ([]Expense, error)
}

// Listener is notified after an expense is paid. Failures are logged and
// never undo the payment.
type Listener interface {
	ExpensePaid(ctx context.Context, e *Expense)
}

// Service implements expense lifecycle operations.
type Service struct {
	repo      RepositoryPort
	logger    *slog.Logger
	listeners []Listener
	now       func() time.Time
}

func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Subscribe registers a post-payment listener.
func (s *Service) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

// CreateInput carries the fields of a new planned expense.
type CreateInput struct {
	Label    string
	Category string
	Amount   float64
	Taxable  bool
	DueDate  time.Time
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Label) == "" {
		return errors.New("expenses: label is required")
	}
	if in.Amount <= 0 {
		return errors.New("expenses: amount must be strictly positive")
	}
	if in.DueDate.IsZero() {
		return errors.New("expenses: due date is required")
	}
	return nil
}

// Create records a planned expense.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Expense, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	e := &Expense{
		ID:        uuid.NewString(),
		Label:     strings.TrimSpace(in.Label),
		Category:  strings.TrimSpace(in.Category),
		Amount:    money.Round(in.Amount),
		Taxable:   in.Taxable,
		Status:    StatusPlanned,
		DueDate:   in.DueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("expense planned",
		slog.String("id", e.ID),
		slog.String("category", e.Category),
		slog.Float64("amount", e.Amount))
	return e, nil
}

// Pay marks a planned expense as paid at the given date and notifies the
// ledger and treasury listeners.
func (s *Service) Pay(ctx context.Context, id string, paidAt time.Time) (*Expense, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == StatusPaid {
		return nil, ErrAlreadyPaid
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	e.Status = StatusPaid
	e.PaidAt = &paidAt
	e.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	for _, l := range s.listeners {
		l.ExpensePaid(ctx, e)
	}
	s.logger.Info("expense paid",
		slog.String("id", e.ID),
		slog.Float64("amount", e.Amount),
		slog.Time("paidAt", paidAt))
	return e, nil
}

// Delete removes a planned expense. Paid expenses are immutable history.
func (s *Service) Delete(ctx context.Context, id string) error {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status == StatusPaid {
		return ErrPaidImmutable
	}
	return s.repo.Delete(ctx, id)
}

// Get returns one expense by id.
func (s *Service) Get(ctx context.Context, id string) (*Expense, error) {
	return s.repo.Get(ctx, id)
}

// List returns expenses, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Expense, error) {
	return s.repo.List(ctx, status)
}

// ListPlannedBetween returns planned expenses due in [from, to], for the
// cash forecast.
func (s *Service) ListPlannedBetween(ctx context.Context, from, to time.Time) ([]Expense, error) {
	return s.repo.ListPlannedBetween(ctx, from, to)
}
