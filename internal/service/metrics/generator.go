package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/domain/performance"
	"github.com/mamadbah2/farmledger/internal/instrumentation"
	"github.com/mamadbah2/farmledger/internal/repository"
	"github.com/mamadbah2/farmledger/internal/service/notify"
)

// Generator produces at most one performance snapshot per farm, category and date.
type Generator struct {
	store    repository.Store
	notifier *notify.Fanout
	logger   *zap.Logger
	newID    func() string
	now      func() time.Time
}

// NewGenerator wires a metrics generator.
func NewGenerator(store repository.Store, notifier *notify.Fanout, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		store:    store,
		notifier: notifier,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// GenerateMetricSnapshot computes the snapshot of in.Date from the ledger as
// visible now and stores it. When a snapshot already exists for the date the
// stored one is returned with created=false and nothing is written.
func (g *Generator) GenerateMetricSnapshot(ctx context.Context, key models.LedgerKey, in performance.Input) (models.PerformanceMetricSnapshot, bool, error) {
	snap, created, err := g.generate(ctx, key, in)
	outcome := instrumentation.Outcome(err)
	if err == nil && !created {
		outcome = "duplicate"
	}
	instrumentation.MetricSnapshots.WithLabelValues(outcome).Inc()

	if err != nil {
		if errs.IsValidation(err) || errs.IsNotFound(err) {
			g.logger.Debug("metric snapshot rejected", zap.String("ledger", key.String()), zap.Error(err))
		} else {
			g.logger.Error("metric snapshot failed", zap.String("ledger", key.String()), zap.Error(err))
		}
		return models.PerformanceMetricSnapshot{}, false, err
	}
	if !created {
		g.logger.Debug("metric snapshot already exists", zap.String("ledger", key.String()), zap.String("date", in.Date))
		return snap, false, nil
	}

	g.logger.Info("metric snapshot generated",
		zap.String("ledger", key.String()),
		zap.String("date", snap.Date),
		zap.Float64("mortality_rate", snap.MortalityRate),
		zap.Float64("fcr", snap.FeedConversionRatio))
	g.notifier.Publish(ctx, notify.Change{Kind: notify.ChangeMetric, Key: key, Metric: &snap})
	return snap, true, nil
}

func (g *Generator) generate(ctx context.Context, key models.LedgerKey, in performance.Input) (models.PerformanceMetricSnapshot, bool, error) {
	if !key.Valid() {
		return models.PerformanceMetricSnapshot{}, false, errs.ErrInvalidKey
	}
	if err := in.Validate(); err != nil {
		return models.PerformanceMetricSnapshot{}, false, err
	}

	existing, err := g.store.MetricByDate(ctx, key, in.Date)
	if err != nil {
		return models.PerformanceMetricSnapshot{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	l, err := g.store.Ledger(ctx, key)
	if err != nil {
		return models.PerformanceMetricSnapshot{}, false, err
	}
	snap, err := performance.Compute(l, in)
	if err != nil {
		return models.PerformanceMetricSnapshot{}, false, err
	}
	snap.ID = g.newID()
	snap.CreatedAt = g.now().UTC()

	if err := g.store.InsertMetric(ctx, snap); err != nil {
		// Lost a race against another generation for the same date.
		if errors.Is(err, errs.ErrDuplicateSnapshot) {
			stored, lookupErr := g.store.MetricByDate(ctx, key, in.Date)
			if lookupErr == nil && stored != nil {
				return *stored, false, nil
			}
		}
		return models.PerformanceMetricSnapshot{}, false, err
	}
	return snap, true, nil
}
