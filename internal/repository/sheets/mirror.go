package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/service/notify"
)

const (
	eventsRange  = "Events!A:H"
	salesRange   = "Sales!A:J"
	metricsRange = "Metrics!A:J"
	resetsRange  = "Resets!A:C"
)

var headers = map[string][]interface{}{
	eventsRange:  {"farm", "category", "event_id", "kind", "quantity", "date", "time", "remaining_stock"},
	salesRange:   {"farm", "category", "sale_id", "quantity", "price_per_unit", "cost_per_unit", "total_amount", "total_profit", "date", "time"},
	metricsRange: {"farm", "category", "date", "daily_weight_gain", "fcr", "mortality_rate", "feed_cost_per_kg", "profit_margin", "egg_production", "laying_rate"},
	resetsRange:  {"farm", "category", "reset_at"},
}

// Mirror copies committed changes into a spreadsheet so farm managers can
// browse them. It is a read model only; the store stays authoritative.
type Mirror struct {
	repo   Repository
	logger *zap.Logger
	now    func() string

	mu     sync.Mutex
	primed map[string]bool
}

// NewMirror builds a change subscriber writing through repo.
func NewMirror(repo Repository, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		repo:   repo,
		logger: logger,
		now:    nowStamp,
		primed: make(map[string]bool),
	}
}

// Notify implements notify.Notifier.
func (m *Mirror) Notify(ctx context.Context, change notify.Change) error {
	sheetRange, row := m.rowFor(change)
	if row == nil {
		return nil
	}
	if err := m.ensureHeader(ctx, sheetRange); err != nil {
		return err
	}
	if err := m.repo.WriteRow(ctx, sheetRange, row); err != nil {
		return fmt.Errorf("mirror %s: %w", change.Kind, err)
	}
	return nil
}

func (m *Mirror) rowFor(change notify.Change) (string, []interface{}) {
	farm, category := change.Key.FarmID, string(change.Key.Category)

	switch change.Kind {
	case notify.ChangeStockEvent:
		if change.Event == nil {
			return "", nil
		}
		ev := change.Event
		return eventsRange, []interface{}{farm, category, ev.ID, string(ev.Kind), ev.Quantity, ev.OccurredAt.Date, ev.OccurredAt.Time, ev.RemainingStock}
	case notify.ChangeSale:
		if change.Sale == nil {
			return "", nil
		}
		s := change.Sale
		cost := ""
		if s.CostPerUnit != nil {
			cost = fmt.Sprintf("%.2f", *s.CostPerUnit)
		}
		return salesRange, []interface{}{farm, category, s.ID, s.Quantity, s.PricePerUnit, cost, s.TotalAmount, s.TotalProfit, s.OccurredAt.Date, s.OccurredAt.Time}
	case notify.ChangeMetric:
		if change.Metric == nil {
			return "", nil
		}
		snap := change.Metric
		eggs, laying := "", ""
		if cs := snap.CategorySpecific; cs != nil {
			if cs.EggProduction != nil {
				eggs = fmt.Sprint(*cs.EggProduction)
			}
			if cs.LayingRate != nil {
				laying = fmt.Sprintf("%.1f", *cs.LayingRate)
			}
		}
		return metricsRange, []interface{}{farm, category, snap.Date, snap.DailyWeightGain, snap.FeedConversionRatio, snap.MortalityRate, snap.FeedCostPerKg, snap.ProfitMargin, eggs, laying}
	case notify.ChangeReset:
		return resetsRange, []interface{}{farm, category, m.now()}
	default:
		m.logger.Debug("mirror ignoring change", zap.String("kind", string(change.Kind)))
		return "", nil
	}
}

// ensureHeader writes the column titles once per sheet when the sheet is empty.
func (m *Mirror) ensureHeader(ctx context.Context, sheetRange string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.primed[sheetRange] {
		return nil
	}

	rows, err := m.repo.ReadRange(ctx, headerCell(sheetRange))
	if err != nil {
		return fmt.Errorf("probe header of %s: %w", sheetRange, err)
	}
	if len(rows) == 0 {
		if err := m.repo.WriteRow(ctx, sheetRange, headers[sheetRange]); err != nil {
			return fmt.Errorf("write header of %s: %w", sheetRange, err)
		}
		m.logger.Info("sheet header written", zap.String("range", sheetRange))
	}
	m.primed[sheetRange] = true
	return nil
}

// headerCell turns "Events!A:H" into "Events!A1:H1".
func headerCell(sheetRange string) string {
	sheet, cols, _ := strings.Cut(sheetRange, "!")
	from, to, ok := strings.Cut(cols, ":")
	if !ok {
		to = from
	}
	return fmt.Sprintf("%s!%s1:%s1", sheet, from, to)
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
