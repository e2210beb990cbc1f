package treasury

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/negoce-erp/negoce-erp/internal/billing"
	"github.com/negoce-erp/negoce-erp/internal/money"
)

// TxRepository is the transactional persistence surface of a recording.
type TxRepository interface {
	GetGlobalBalanceForUpdate(ctx context.Context) (*CashBalance, error)
	SetGlobalBalance(ctx context.Context, amount float64, at time.Time) error
	InitializeGlobalBalance(ctx context.Context, amount float64, startDate, at time.Time) error
	GetPartnerBalanceForUpdate(ctx context.Context, partnerID string) (*PartnerBalance, error)
	SetPartnerBalance(ctx context.Context, partnerID string, kind PartnerType, amount float64, at time.Time) error
	InsertMovement(ctx context.Context, m *Movement) error
	LatestMovement(ctx context.Context) (*Movement, error)
}

// RepositoryPort is the full persistence surface of the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetGlobalBalance(ctx context.Context) (*CashBalance, error)
	GetPartnerBalance(ctx context.Context, partnerID string) (*PartnerBalance, error)
	ListPartnerBalances(ctx context.Context) ([]PartnerBalance, error)
	ListMovements(ctx context.Context, limit int) ([]Movement, error)
	ListMovementsByPartner(ctx context.Context, partnerID string, limit int) ([]Movement, error)
	ListAllMovements(ctx context.Context) ([]Movement, error)
	LatestMovement(ctx context.Context) (*Movement, error)
}

// OpenItemsSource exposes the open invoice book for the projected balance.
type OpenItemsSource interface {
	ListOpenInvoices(ctx context.Context) ([]billing.Invoice, error)
}

// Service maintains the cash position and its movement history.
type Service struct {
	repo      RepositoryPort
	openItems OpenItemsSource
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryPort, openItems OpenItemsSource, logger *slog.Logger) *Service {
	return &Service{repo: repo, openItems: openItems, logger: logger, now: time.Now}
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Initialize opens the treasury with its starting funds. It is a one-shot
// operation: once a start date is set, or once any movement exists, the
// opening figures are frozen.
func (s *Service) Initialize(ctx context.Context, amount float64, startDate time.Time) (*CashBalance, error) {
	if amount < 0 {
		return nil, ErrAmountNotPositive
	}
	amount = money.Round(amount)
	var out *CashBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		global, err := tx.GetGlobalBalanceForUpdate(ctx)
		if err != nil {
			return err
		}
		if global.StartDate != nil {
			return ErrAlreadyInitialized
		}
		if _, err := tx.LatestMovement(ctx); !errors.Is(err, ErrMovementNotFound) {
			if err != nil {
				return err
			}
			return ErrAlreadyInitialized
		}
		now := s.now()
		if err := tx.InitializeGlobalBalance(ctx, amount, startDate, now); err != nil {
			return err
		}
		out = &CashBalance{Amount: amount, InitialBalance: amount, StartDate: &startDate, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("treasury opened",
		slog.Float64("initialBalance", out.InitialBalance),
		slog.Time("startDate", startDate))
	return out, nil
}

// RecordInput carries one cash movement to apply.
type RecordInput struct {
	Type       TransactionType
	Amount     float64
	Label      string
	PartnerID  *string
	SourceID   *string
	OccurredAt time.Time
}

func (in *RecordInput) validate() error {
	if _, _, err := deltas(in.Type, 1); err != nil {
		return err
	}
	if in.Amount <= 0 {
		return ErrAmountNotPositive
	}
	if touchesPartner(in.Type) && (in.PartnerID == nil || *in.PartnerID == "") {
		return ErrPartnerRequired
	}
	// Contributions, charges and transfer orders must say what the money
	// was for; the label is the only trace left in the history.
	switch in.Type {
	case TxExternalContribution, TxTaxableExpense, TxNonTaxableExpense, TxTransferOrder:
		if strings.TrimSpace(in.Label) == "" {
			return ErrLabelRequired
		}
	}
	return nil
}

// RecordTransaction applies a movement atomically: the global balance,
// the partner balance when relevant, and the immutable history row are
// written in the same transaction.
func (s *Service) RecordTransaction(ctx context.Context, in RecordInput) (*Movement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	amount := money.Round(in.Amount)
	globalDelta, partnerDelta, err := deltas(in.Type, amount)
	if err != nil {
		return nil, err
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	var out *Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		global, err := s.globalOrRepair(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		m := &Movement{
			ID:           uuid.NewString(),
			Type:         in.Type,
			Amount:       amount,
			Label:        strings.TrimSpace(in.Label),
			PartnerID:    in.PartnerID,
			SourceID:     in.SourceID,
			GlobalBefore: global.Amount,
			GlobalAfter:  money.Round(global.Amount + globalDelta),
			OccurredAt:   occurredAt,
			CreatedAt:    now,
		}

		if touchesPartner(in.Type) {
			pb, err := tx.GetPartnerBalanceForUpdate(ctx, *in.PartnerID)
			if err != nil {
				return err
			}
			kind := partnerKind(in.Type)
			before := pb.Amount
			after := money.Round(before + partnerDelta)
			m.PartnerType = &kind
			m.PartnerBefore = &before
			m.PartnerAfter = &after
			if err := tx.SetPartnerBalance(ctx, *in.PartnerID, kind, after, now); err != nil {
				return err
			}
		}

		if err := tx.SetGlobalBalance(ctx, m.GlobalAfter, now); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("cash movement recorded",
		slog.String("id", out.ID),
		slog.String("type", string(out.Type)),
		slog.Float64("amount", out.Amount),
		slog.Float64("globalAfter", out.GlobalAfter))
	return out, nil
}

// globalOrRepair loads the stored global balance. A missing or stale row
// is restored from the last history movement, the history being the
// source of truth.
func (s *Service) globalOrRepair(ctx context.Context, tx TxRepository) (*CashBalance, error) {
	global, err := tx.GetGlobalBalanceForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	last, err := tx.LatestMovement(ctx)
	if err != nil {
		if errors.Is(err, ErrMovementNotFound) {
			return global, nil
		}
		return nil, err
	}
	if !money.Equal(global.Amount, last.GlobalAfter) {
		s.logger.Warn("stored cash balance diverged from history, repairing",
			slog.Float64("stored", global.Amount),
			slog.Float64("replayed", last.GlobalAfter))
		global.Amount = last.GlobalAfter
		if err := tx.SetGlobalBalance(ctx, global.Amount, s.now()); err != nil {
			return nil, err
		}
	}
	return global, nil
}

// Balance returns the stored global bank balance.
func (s *Service) Balance(ctx context.Context) (*CashBalance, error) {
	return s.repo.GetGlobalBalance(ctx)
}

// PartnerBalance returns the outstanding position of one partner.
func (s *Service) PartnerBalance(ctx context.Context, partnerID string) (*PartnerBalance, error) {
	return s.repo.GetPartnerBalance(ctx, partnerID)
}

// Movements returns the most recent history rows.
func (s *Service) Movements(ctx context.Context, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, clampLimit(limit))
}

// PartnerMovements returns the most recent history rows of one partner.
func (s *Service) PartnerMovements(ctx context.Context, partnerID string, limit int) ([]Movement, error) {
	return s.repo.ListMovementsByPartner(ctx, partnerID, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// ProjectedBalance returns the bank balance adjusted by the open invoice
// book: open client invoices add, open supplier invoices subtract.
func (s *Service) ProjectedBalance(ctx context.Context) (*ProjectedBalance, error) {
	global, err := s.repo.GetGlobalBalance(ctx)
	if err != nil {
		return nil, err
	}
	open, err := s.openItems.ListOpenInvoices(ctx)
	if err != nil {
		return nil, err
	}
	var receivables, payables float64
	for i := range open {
		if open[i].RemainingAmount == nil {
			continue
		}
		switch open[i].Kind {
		case billing.KindSaleInvoice:
			receivables += *open[i].RemainingAmount
		case billing.KindPurchaseInvoice:
			payables += *open[i].RemainingAmount
		}
	}
	return &ProjectedBalance{
		Bank:            money.Round(global.Amount),
		OpenReceivables: money.Round(receivables),
		OpenPayables:    money.Round(payables),
		Projected:       money.Round(global.Amount + receivables - payables),
	}, nil
}

// VerifyConservation replays the whole history and compares the result
// with the stored balances: the global balance from the opening funds, and
// every partner position from zero. Used by the integrity job.
func (s *Service) VerifyConservation(ctx context.Context) (bool, error) {
	global, err := s.repo.GetGlobalBalance(ctx)
	if err != nil {
		return false, err
	}
	movements, err := s.repo.ListAllMovements(ctx)
	if err != nil {
		return false, err
	}
	replayed := global.InitialBalance
	partnerReplayed := map[string]float64{}
	for i := range movements {
		globalDelta, partnerDelta, err := deltas(movements[i].Type, movements[i].Amount)
		if err != nil {
			return false, err
		}
		replayed += globalDelta
		if movements[i].PartnerID != nil {
			partnerReplayed[*movements[i].PartnerID] += partnerDelta
		}
	}

	ok := money.Equal(replayed, global.Amount)
	if !ok {
		s.logger.Error("cash balance conservation violated",
			slog.Float64("stored", global.Amount),
			slog.Float64("replayed", money.Round(replayed)))
	}

	stored, err := s.repo.ListPartnerBalances(ctx)
	if err != nil {
		return false, err
	}
	storedByID := make(map[string]float64, len(stored))
	for i := range stored {
		storedByID[stored[i].PartnerID] = stored[i].Amount
	}
	for id, want := range partnerReplayed {
		if !money.Equal(want, storedByID[id]) {
			ok = false
			s.logger.Error("partner balance conservation violated",
				slog.String("partnerId", id),
				slog.Float64("stored", storedByID[id]),
				slog.Float64("replayed", money.Round(want)))
		}
		delete(storedByID, id)
	}
	// A stored position with no history row behind it is a violation too.
	for id, amount := range storedByID {
		if !money.Equal(amount, 0) {
			ok = false
			s.logger.Error("partner balance conservation violated",
				slog.String("partnerId", id),
				slog.Float64("stored", amount),
				slog.Float64("replayed", 0))
		}
	}
	return ok, nil
}
