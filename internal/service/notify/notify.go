package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// ChangeKind names what was committed.
type ChangeKind string

const (
	ChangeStockEvent ChangeKind = "stock_event"
	ChangeSale       ChangeKind = "sale"
	ChangeMetric     ChangeKind = "metric"
	ChangeReset      ChangeKind = "reset"
)

// Change is published after a write has been committed.
type Change struct {
	Kind   ChangeKind
	Key    models.LedgerKey
	Ledger *models.FarmLedger
	Event  *models.StockEvent
	Sale   *models.Sale
	Metric *models.PerformanceMetricSnapshot
}

// Notifier receives committed changes. Implementations must not assume they
// can veto the change.
type Notifier interface {
	Notify(ctx context.Context, change Change) error
}

// Fanout delivers each change to every subscriber in order and logs failures.
// Subscribe is safe while changes are being published.
type Fanout struct {
	mu          sync.RWMutex
	subscribers []Notifier
	logger      *zap.Logger
}

// NewFanout builds a Fanout over subscribers; nil entries are skipped.
func NewFanout(logger *zap.Logger, subscribers ...Notifier) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fanout{logger: logger}
	for _, s := range subscribers {
		if s != nil {
			f.subscribers = append(f.subscribers, s)
		}
	}
	return f
}

// Subscribe adds a subscriber.
func (f *Fanout) Subscribe(n Notifier) {
	if n == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, n)
}

// Publish never fails: the change is already durable.
func (f *Fanout) Publish(ctx context.Context, change Change) {
	if f == nil {
		return
	}
	f.mu.RLock()
	subscribers := append([]Notifier(nil), f.subscribers...)
	f.mu.RUnlock()

	for _, s := range subscribers {
		if err := s.Notify(ctx, change); err != nil {
			f.logger.Warn("change subscriber failed",
				zap.String("kind", string(change.Kind)),
				zap.String("ledger", change.Key.String()),
				zap.Error(err))
		}
	}
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, change Change) error

func (fn Func) Notify(ctx context.Context, change Change) error {
	return fn(ctx, change)
}
