// Package repository declares the persistence contract the ledger, sale and
// metrics services depend on. Implementations live in the memory and mongodb
// subpackages.
package repository

import (
	"context"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// Tx is the view of the store inside one atomic unit of work. Writes made
// through a Tx are visible only after the surrounding Atomically call
// returns nil.
type Tx interface {
	// Ledger loads the aggregate or returns errs.ErrLedgerNotFound.
	Ledger(ctx context.Context, key models.LedgerKey) (models.FarmLedger, error)
	// SaveLedger replaces the aggregate. ledger.Version must match the stored
	// version, otherwise errs.ErrConcurrentUpdate; the stored version is bumped.
	SaveLedger(ctx context.Context, ledger models.FarmLedger) (models.FarmLedger, error)
	// InsertSale appends to the sales collection of sale.Key.
	InsertSale(ctx context.Context, sale models.Sale) error
	// SaleByTransactionID returns nil when no sale carries the id.
	SaleByTransactionID(ctx context.Context, key models.LedgerKey, transactionID string) (*models.Sale, error)
}

// Store is the persistence collaborator of the core.
type Store interface {
	// Atomically runs fn as a single attempt; either every write made through
	// tx is committed or none is. It never retries.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Provision creates an empty ledger unless one exists. It returns the stored ledger.
	Provision(ctx context.Context, key models.LedgerKey) (ledger models.FarmLedger, created bool, err error)
	// Ledger reads the aggregate outside of a unit of work.
	Ledger(ctx context.Context, key models.LedgerKey) (models.FarmLedger, error)
	// Reset drops the ledger, its sales and its metric snapshots.
	Reset(ctx context.Context, key models.LedgerKey) error

	// Sales lists the sales of key in insertion order.
	Sales(ctx context.Context, key models.LedgerKey) ([]models.Sale, error)

	// InsertMetric appends a snapshot; errs.ErrDuplicateSnapshot when one
	// already exists for (key, snapshot.Date).
	InsertMetric(ctx context.Context, snapshot models.PerformanceMetricSnapshot) error
	// MetricByDate returns nil when no snapshot exists for the date.
	MetricByDate(ctx context.Context, key models.LedgerKey, date string) (*models.PerformanceMetricSnapshot, error)
	// Metrics lists the snapshots of key in insertion order.
	Metrics(ctx context.Context, key models.LedgerKey) ([]models.PerformanceMetricSnapshot, error)
}
