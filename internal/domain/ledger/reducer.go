// Package ledger holds the pure stock fold and the append rules of a farm ledger.
// Nothing here performs I/O; the services own persistence.
package ledger

import (
	"fmt"
	"math"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// Stats are the counters derived from an event history.
type Stats struct {
	CurrentStock  int
	TotalDeaths   int
	MaxSampleSize int
}

// MortalityRate returns deaths over lifetime introduced stock as a percentage.
func (s Stats) MortalityRate() float64 {
	return MortalityRate(s.TotalDeaths, s.MaxSampleSize)
}

// Fold applies one event to s.
func Fold(s Stats, ev models.StockEvent) Stats {
	switch ev.Kind {
	case models.EventInitial, models.EventAddition:
		s.CurrentStock += ev.Quantity
		s.MaxSampleSize += ev.Quantity
	case models.EventDeath:
		s.CurrentStock -= ev.Quantity
		s.TotalDeaths += ev.Quantity
	case models.EventSale:
		s.CurrentStock -= ev.Quantity
	}
	return s
}

// Reduce folds the whole history from zero.
func Reduce(events []models.StockEvent) Stats {
	var s Stats
	for _, ev := range events {
		s = Fold(s, ev)
	}
	return s
}

// MortalityRate is 0 without any introduced stock, otherwise rounded to one decimal and kept in [0, 100].
func MortalityRate(deaths, maxSampleSize int) float64 {
	if maxSampleSize <= 0 || deaths <= 0 {
		return 0
	}
	rate := float64(deaths) / float64(maxSampleSize) * 100
	rate = math.Round(rate*10) / 10
	return math.Min(rate, 100)
}

// Recompute refreshes the cached counters of l from its events.
func Recompute(l models.FarmLedger) models.FarmLedger {
	s := Reduce(l.Events)
	l.CurrentStock = s.CurrentStock
	l.TotalDeaths = s.TotalDeaths
	l.MaxSampleSize = s.MaxSampleSize
	l.MortalityRate = s.MortalityRate()
	return l
}

// ValidateEvent checks the parts of an event that do not depend on ledger state.
func ValidateEvent(ev models.StockEvent) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: %q", errs.ErrInvalidKind, ev.Kind)
	}
	if ev.Quantity < 0 {
		return fmt.Errorf("%w: quantity %d is negative", errs.ErrInvalidQuantity, ev.Quantity)
	}
	if _, err := ev.OccurredAt.Parse(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidDateTime, err)
	}
	return nil
}

// Apply appends ev to a copy of l. The returned ledger carries the stamped
// remaining stock and refreshed counters; l itself is never modified.
func Apply(l models.FarmLedger, ev models.StockEvent) (models.FarmLedger, models.StockEvent, error) {
	if err := ValidateEvent(ev); err != nil {
		return l, ev, err
	}

	current := Reduce(l.Events)
	if (ev.Kind == models.EventDeath || ev.Kind == models.EventSale) && ev.Quantity > current.CurrentStock {
		return l, ev, &errs.InsufficientStockError{Available: current.CurrentStock, Requested: ev.Quantity}
	}

	next := Fold(current, ev)
	if next.CurrentStock < 0 {
		return l, ev, fmt.Errorf("%w: stock would be %d", errs.ErrNegativeStock, next.CurrentStock)
	}
	ev.RemainingStock = next.CurrentStock

	out := l.Clone()
	out.Events = append(out.Events, ev)
	return Recompute(out), ev, nil
}

// Verify replays the history and reports the first drift between the stored
// remaining stock and the fold, or between the cached counters and the fold.
func Verify(l models.FarmLedger) error {
	var s Stats
	for i, ev := range l.Events {
		s = Fold(s, ev)
		if s.CurrentStock < 0 {
			return fmt.Errorf("%w: event %s drives stock to %d", errs.ErrNegativeStock, ev.ID, s.CurrentStock)
		}
		if ev.RemainingStock != s.CurrentStock {
			return &errs.DriftError{EventID: ev.ID, Index: i, Stored: ev.RemainingStock, Computed: s.CurrentStock}
		}
	}
	if l.CurrentStock != s.CurrentStock || l.TotalDeaths != s.TotalDeaths || l.MaxSampleSize != s.MaxSampleSize {
		return fmt.Errorf("%w: cached counters %d/%d/%d, fold gives %d/%d/%d", errs.ErrLedgerInconsistent,
			l.CurrentStock, l.TotalDeaths, l.MaxSampleSize, s.CurrentStock, s.TotalDeaths, s.MaxSampleSize)
	}
	return nil
}
