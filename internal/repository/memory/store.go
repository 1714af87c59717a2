// Package memory is an in-process repository.Store used by tests and by the
// service when STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/repository"
)

// Store keeps every aggregate and collection in maps guarded by one mutex.
type Store struct {
	mu      sync.RWMutex
	ledgers map[models.LedgerKey]models.FarmLedger
	sales   map[models.LedgerKey][]models.Sale
	metrics map[models.LedgerKey][]models.PerformanceMetricSnapshot
	now     func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		ledgers: make(map[models.LedgerKey]models.FarmLedger),
		sales:   make(map[models.LedgerKey][]models.Sale),
		metrics: make(map[models.LedgerKey][]models.PerformanceMetricSnapshot),
		now:     time.Now,
	}
}

// Atomically serializes fn against every other writer and applies the staged
// writes only when fn succeeds. fn must not call back into the Store.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:   s,
		ledgers: make(map[models.LedgerKey]models.FarmLedger),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for key, l := range tx.ledgers {
		s.ledgers[key] = l
	}
	for _, sale := range tx.sales {
		s.sales[sale.Key] = append(s.sales[sale.Key], sale)
	}
	return nil
}

// Provision creates an empty ledger when none exists.
func (s *Store) Provision(_ context.Context, key models.LedgerKey) (models.FarmLedger, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.ledgers[key]; ok {
		return l.Clone(), false, nil
	}
	l := models.NewFarmLedger(key, s.now().UTC())
	l.Version = 1
	s.ledgers[key] = l
	return l.Clone(), true, nil
}

// Ledger returns a copy of the stored aggregate.
func (s *Store) Ledger(_ context.Context, key models.LedgerKey) (models.FarmLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.ledgers[key]
	if !ok {
		return models.FarmLedger{}, fmt.Errorf("ledger %s: %w", key, errs.ErrLedgerNotFound)
	}
	return l.Clone(), nil
}

// Reset drops everything stored under key.
func (s *Store) Reset(_ context.Context, key models.LedgerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ledgers, key)
	delete(s.sales, key)
	delete(s.metrics, key)
	return nil
}

// Sales returns a copy of the sales of key.
func (s *Store) Sales(_ context.Context, key models.LedgerKey) ([]models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Sale, len(s.sales[key]))
	copy(out, s.sales[key])
	return out, nil
}

// InsertMetric appends snapshot unless its date is already taken.
func (s *Store) InsertMetric(_ context.Context, snapshot models.PerformanceMetricSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.metrics[snapshot.Key] {
		if existing.Date == snapshot.Date {
			return fmt.Errorf("metric %s on %s: %w", snapshot.Key, snapshot.Date, errs.ErrDuplicateSnapshot)
		}
	}
	s.metrics[snapshot.Key] = append(s.metrics[snapshot.Key], snapshot)
	return nil
}

// MetricByDate finds the snapshot of key for date.
func (s *Store) MetricByDate(_ context.Context, key models.LedgerKey, date string) (*models.PerformanceMetricSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, existing := range s.metrics[key] {
		if existing.Date == date {
			found := existing
			return &found, nil
		}
	}
	return nil, nil
}

// Metrics returns a copy of the snapshots of key.
func (s *Store) Metrics(_ context.Context, key models.LedgerKey) ([]models.PerformanceMetricSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PerformanceMetricSnapshot, len(s.metrics[key]))
	copy(out, s.metrics[key])
	return out, nil
}

type memTx struct {
	store   *Store
	ledgers map[models.LedgerKey]models.FarmLedger
	sales   []models.Sale
}

func (t *memTx) Ledger(_ context.Context, key models.LedgerKey) (models.FarmLedger, error) {
	if l, ok := t.ledgers[key]; ok {
		return l.Clone(), nil
	}
	l, ok := t.store.ledgers[key]
	if !ok {
		return models.FarmLedger{}, fmt.Errorf("ledger %s: %w", key, errs.ErrLedgerNotFound)
	}
	return l.Clone(), nil
}

func (t *memTx) SaveLedger(ctx context.Context, ledger models.FarmLedger) (models.FarmLedger, error) {
	current, err := t.Ledger(ctx, ledger.Key)
	if err != nil {
		return models.FarmLedger{}, err
	}
	if current.Version != ledger.Version {
		return models.FarmLedger{}, fmt.Errorf("ledger %s at version %d, write based on %d: %w",
			ledger.Key, current.Version, ledger.Version, errs.ErrConcurrentUpdate)
	}

	saved := ledger.Clone()
	saved.Version++
	saved.UpdatedAt = t.store.now().UTC()
	t.ledgers[ledger.Key] = saved
	return saved.Clone(), nil
}

func (t *memTx) InsertSale(_ context.Context, sale models.Sale) error {
	t.sales = append(t.sales, sale)
	return nil
}

func (t *memTx) SaleByTransactionID(_ context.Context, key models.LedgerKey, transactionID string) (*models.Sale, error) {
	if transactionID == "" {
		return nil, nil
	}
	for _, list := range [][]models.Sale{t.store.sales[key], t.sales} {
		for _, sale := range list {
			if sale.Key == key && sale.TransactionID == transactionID {
				found := sale
				return &found, nil
			}
		}
	}
	return nil, nil
}
