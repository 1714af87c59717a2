package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	domain "github.com/mamadbah2/farmledger/internal/domain/ledger"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/instrumentation"
	"github.com/mamadbah2/farmledger/internal/repository"
	"github.com/mamadbah2/farmledger/internal/service/notify"
)

// Service exposes the append-only stock ledger.
type Service struct {
	store    repository.Store
	notifier *notify.Fanout
	logger   *zap.Logger
	newID    func() string
}

// NewService wires a ledger service over store.
func NewService(store repository.Store, notifier *notify.Fanout, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Provision creates the empty ledger of key, or returns the existing one
// with created false.
func (s *Service) Provision(ctx context.Context, key models.LedgerKey) (models.FarmLedger, bool, error) {
	if !key.Valid() {
		return models.FarmLedger{}, false, errs.ErrInvalidKey
	}
	l, created, err := s.store.Provision(ctx, key)
	if err != nil {
		s.logger.Error("provision ledger failed", zap.String("ledger", key.String()), zap.Error(err))
		return models.FarmLedger{}, false, err
	}
	if created {
		s.logger.Info("ledger provisioned", zap.String("ledger", key.String()))
	}
	return domain.Recompute(l), created, nil
}

// AppendStockEvent validates ev against the current ledger and appends it in
// one read-modify-write. The returned ledger carries ev with its remaining stock.
func (s *Service) AppendStockEvent(ctx context.Context, key models.LedgerKey, ev models.StockEvent) (models.FarmLedger, error) {
	if !key.Valid() {
		return models.FarmLedger{}, errs.ErrInvalidKey
	}
	if ev.ID == "" {
		ev.ID = s.newID()
	}
	if err := domain.ValidateEvent(ev); err != nil {
		instrumentation.StockEvents.WithLabelValues(string(ev.Kind), instrumentation.Outcome(err)).Inc()
		return models.FarmLedger{}, err
	}

	var (
		saved    models.FarmLedger
		appended models.StockEvent
	)
	err := s.store.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.Ledger(ctx, key)
		if err != nil {
			return err
		}
		next, stamped, err := domain.Apply(current, ev)
		if err != nil {
			return err
		}
		saved, err = tx.SaveLedger(ctx, next)
		appended = stamped
		return err
	})
	instrumentation.StockEvents.WithLabelValues(string(ev.Kind), instrumentation.Outcome(err)).Inc()
	if err != nil {
		s.logFailure("append stock event", key, err)
		return models.FarmLedger{}, err
	}

	s.logger.Info("stock event appended",
		zap.String("ledger", key.String()),
		zap.String("kind", string(appended.Kind)),
		zap.Int("quantity", appended.Quantity),
		zap.Int("remaining", appended.RemainingStock))

	s.notifier.Publish(ctx, notify.Change{Kind: notify.ChangeStockEvent, Key: key, Ledger: &saved, Event: &appended})
	return saved, nil
}

// Ledger reads the aggregate and refreshes its counters from the history.
// Drift between stored and folded values is logged, the fold wins.
func (s *Service) Ledger(ctx context.Context, key models.LedgerKey) (models.FarmLedger, error) {
	l, err := s.store.Ledger(ctx, key)
	if err != nil {
		return models.FarmLedger{}, err
	}
	if err := domain.Verify(l); err != nil {
		s.logger.Warn("ledger cache drift, recomputing", zap.String("ledger", key.String()), zap.Error(err))
	}
	return domain.Recompute(l), nil
}

// Verify reports whether the stored ledger agrees with its own history.
func (s *Service) Verify(ctx context.Context, key models.LedgerKey) error {
	l, err := s.store.Ledger(ctx, key)
	if err != nil {
		return err
	}
	return domain.Verify(l)
}

// Reset destroys the ledger of key together with its sales and snapshots.
// The caller must have obtained explicit confirmation.
func (s *Service) Reset(ctx context.Context, key models.LedgerKey, confirmed bool) error {
	if !key.Valid() {
		return errs.ErrInvalidKey
	}
	if !confirmed {
		return errs.ErrResetNotConfirmed
	}
	if err := s.store.Reset(ctx, key); err != nil {
		s.logFailure("reset ledger", key, err)
		return err
	}
	s.logger.Warn("ledger reset", zap.String("ledger", key.String()))
	s.notifier.Publish(ctx, notify.Change{Kind: notify.ChangeReset, Key: key})
	return nil
}

func (s *Service) logFailure(op string, key models.LedgerKey, err error) {
	fields := []zap.Field{zap.String("ledger", key.String()), zap.Error(err)}
	switch {
	case errs.IsValidation(err), errs.IsConsistency(err), errs.IsNotFound(err):
		s.logger.Debug(op+" rejected", fields...)
	case errs.IsTransient(err):
		s.logger.Warn(op+" unavailable", fields...)
	case errors.Is(err, context.Canceled):
		s.logger.Info(op+" abandoned", fields...)
	default:
		s.logger.Error(fmt.Sprintf("%s failed", op), fields...)
	}
}
