package sales

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/ledger"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/instrumentation"
	"github.com/mamadbah2/farmledger/internal/repository"
	"github.com/mamadbah2/farmledger/internal/service/notify"
)

// Request is a proposed sale.
type Request struct {
	// TransactionID is generated by the client; resubmitting the same id is a no-op.
	TransactionID string            `json:"transactionId"`
	Quantity      int               `json:"quantity"`
	PricePerUnit  float64           `json:"pricePerUnit"`
	CostPerUnit   *float64          `json:"costPerUnit,omitempty"`
	OccurredAt    models.OccurredAt `json:"occurredAt"`
}

// Receipt is the outcome of a committed sale.
type Receipt struct {
	Sale   models.Sale       `json:"sale"`
	Ledger models.FarmLedger `json:"ledger"`
	// Replayed is set when TransactionID matched an earlier commit.
	Replayed bool `json:"replayed"`
}

// Coordinator commits a sale record and the matching ledger decrement as one unit.
type Coordinator struct {
	store    repository.Store
	notifier *notify.Fanout
	logger   *zap.Logger
	newID    func() string
	now      func() time.Time
}

// NewCoordinator wires a sale coordinator.
func NewCoordinator(store repository.Store, notifier *notify.Fanout, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Validate checks the request fields that do not need ledger state.
func Validate(req Request) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0, got %d", errs.ErrInvalidQuantity, req.Quantity)
	}
	if !finite(req.PricePerUnit) || req.PricePerUnit <= 0 {
		return fmt.Errorf("%w: price must be > 0, got %v", errs.ErrInvalidPrice, req.PricePerUnit)
	}
	if req.CostPerUnit != nil && (!finite(*req.CostPerUnit) || *req.CostPerUnit < 0) {
		return fmt.Errorf("%w: cost must be >= 0, got %v", errs.ErrInvalidPrice, *req.CostPerUnit)
	}
	if _, err := req.OccurredAt.Parse(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidDateTime, err)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CommitSale validates req, then in a single store transaction checks stock,
// appends the sale event to the ledger and inserts the sale record. The store
// transaction is attempted once; a transient failure is returned as
// errs.ErrTemporarilyUnavailable and left to the caller.
func (c *Coordinator) CommitSale(ctx context.Context, key models.LedgerKey, req Request) (Receipt, error) {
	receipt, err := c.commit(ctx, key, req)
	instrumentation.Sales.WithLabelValues(instrumentation.Outcome(err)).Inc()
	if err != nil {
		c.logFailure(key, req, err)
		return Receipt{}, err
	}

	if receipt.Replayed {
		c.logger.Info("sale replayed", zap.String("ledger", key.String()), zap.String("transaction_id", req.TransactionID))
		return receipt, nil
	}

	c.logger.Info("sale committed",
		zap.String("ledger", key.String()),
		zap.String("sale_id", receipt.Sale.ID),
		zap.Int("quantity", receipt.Sale.Quantity),
		zap.Float64("total_amount", receipt.Sale.TotalAmount),
		zap.Int("remaining", receipt.Ledger.CurrentStock))

	sale := receipt.Sale
	l := receipt.Ledger
	c.notifier.Publish(ctx, notify.Change{Kind: notify.ChangeSale, Key: key, Ledger: &l, Sale: &sale})
	return receipt, nil
}

func (c *Coordinator) commit(ctx context.Context, key models.LedgerKey, req Request) (Receipt, error) {
	if !key.Valid() {
		return Receipt{}, errs.ErrInvalidKey
	}
	if err := Validate(req); err != nil {
		return Receipt{}, err
	}

	sale := buildSale(req)
	sale.ID = c.newID()
	sale.Key = key
	sale.CreatedAt = c.now().UTC()

	ev := models.StockEvent{
		ID:         c.newID(),
		Kind:       models.EventSale,
		Quantity:   req.Quantity,
		OccurredAt: req.OccurredAt,
	}

	var receipt Receipt
	err := c.store.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
		if req.TransactionID != "" {
			previous, err := tx.SaleByTransactionID(ctx, key, req.TransactionID)
			if err != nil {
				return err
			}
			if previous != nil {
				current, err := tx.Ledger(ctx, key)
				if err != nil {
					return err
				}
				receipt = Receipt{Sale: *previous, Ledger: ledger.Recompute(current), Replayed: true}
				return nil
			}
		}

		current, err := tx.Ledger(ctx, key)
		if err != nil {
			return err
		}
		next, _, err := ledger.Apply(current, ev)
		if err != nil {
			return err
		}
		saved, err := tx.SaveLedger(ctx, next)
		if err != nil {
			return err
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		receipt = Receipt{Sale: sale, Ledger: saved}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// buildSale derives the monetary fields of req, rounded to cents.
func buildSale(req Request) models.Sale {
	qty := decimal.NewFromInt(int64(req.Quantity))
	price := decimal.NewFromFloat(req.PricePerUnit)
	cost := decimal.Zero
	if req.CostPerUnit != nil {
		cost = decimal.NewFromFloat(*req.CostPerUnit)
	}
	profitPerUnit := price.Sub(cost)

	return models.Sale{
		TransactionID: req.TransactionID,
		Quantity:      req.Quantity,
		PricePerUnit:  req.PricePerUnit,
		CostPerUnit:   req.CostPerUnit,
		TotalAmount:   qty.Mul(price).Round(2).InexactFloat64(),
		ProfitPerUnit: profitPerUnit.Round(2).InexactFloat64(),
		TotalProfit:   qty.Mul(profitPerUnit).Round(2).InexactFloat64(),
		OccurredAt:    req.OccurredAt,
	}
}

func (c *Coordinator) logFailure(key models.LedgerKey, req Request, err error) {
	fields := []zap.Field{
		zap.String("ledger", key.String()),
		zap.Int("quantity", req.Quantity),
		zap.String("transaction_id", req.TransactionID),
		zap.Error(err),
	}
	switch {
	case errs.IsValidation(err), errs.IsNotFound(err):
		c.logger.Debug("sale rejected", fields...)
	case errs.IsConsistency(err):
		c.logger.Warn("sale conflicted", fields...)
	case errs.IsTransient(err):
		c.logger.Warn("sale store unavailable, not retried", fields...)
	default:
		c.logger.Error("sale commit failed", fields...)
	}
}
