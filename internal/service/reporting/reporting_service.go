package reporting

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	domain "github.com/mamadbah2/farmledger/internal/domain/ledger"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/repository"
)

const (
	eventsSheet = "Events"
	salesSheet  = "Sales"
)

// Service builds dashboard digests and workbook exports of a ledger.
type Service struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a new reporting service instance.
func NewService(store repository.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Dashboard is the headline state of one ledger.
type Dashboard struct {
	Key           models.LedgerKey                  `json:"key"`
	CurrentStock  int                               `json:"currentStock"`
	TotalDeaths   int                               `json:"totalDeaths"`
	MortalityRate float64                           `json:"mortalityRate"`
	SalesCount    int                               `json:"salesCount"`
	UnitsSold     int                               `json:"unitsSold"`
	SalesTotal    decimal.Decimal                   `json:"salesTotal"`
	ProfitTotal   decimal.Decimal                   `json:"profitTotal"`
	LatestMetric  *models.PerformanceMetricSnapshot `json:"latestMetric,omitempty"`
}

// BuildDashboard gathers the ledger counters, sales totals and the most recent
// metric snapshot for key. Counters come from the event history.
func (s *Service) BuildDashboard(ctx context.Context, key models.LedgerKey) (Dashboard, error) {
	l, err := s.store.Ledger(ctx, key)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load ledger: %w", err)
	}
	l = domain.Recompute(l)

	sales, err := s.store.Sales(ctx, key)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load sales: %w", err)
	}
	snaps, err := s.store.Metrics(ctx, key)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load metrics: %w", err)
	}

	d := Dashboard{
		Key:           key,
		CurrentStock:  l.CurrentStock,
		TotalDeaths:   l.TotalDeaths,
		MortalityRate: l.MortalityRate,
		SalesCount:    len(sales),
		SalesTotal:    decimal.Zero,
		ProfitTotal:   decimal.Zero,
	}
	for _, sale := range sales {
		d.UnitsSold += sale.Quantity
		d.SalesTotal = d.SalesTotal.Add(decimal.NewFromFloat(sale.TotalAmount))
		d.ProfitTotal = d.ProfitTotal.Add(decimal.NewFromFloat(sale.TotalProfit))
	}
	for i := range snaps {
		if d.LatestMetric == nil || snaps[i].Date > d.LatestMetric.Date {
			d.LatestMetric = &snaps[i]
		}
	}
	return d, nil
}

// Digest renders the dashboard of key as a short text message.
func (s *Service) Digest(ctx context.Context, key models.LedgerKey) (string, error) {
	d, err := s.BuildDashboard(ctx, key)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dashboard %s (%s)\n", key, s.now().Format(models.DateLayout))
	fmt.Fprintf(&b, "Stock: %d head\n", d.CurrentStock)
	fmt.Fprintf(&b, "Deaths: %d (mortality %.1f%%)\n", d.TotalDeaths, d.MortalityRate)
	if d.SalesCount == 0 {
		b.WriteString("Sales: none yet\n")
	} else {
		fmt.Fprintf(&b, "Sales: %d (%d head, total %s, profit %s)\n",
			d.SalesCount, d.UnitsSold, d.SalesTotal.StringFixed(2), d.ProfitTotal.StringFixed(2))
	}
	if m := d.LatestMetric; m != nil {
		fmt.Fprintf(&b, "Metrics %s: ADG %.3f kg, FCR %.2f, feed cost/kg %.2f, margin %.2f",
			m.Date, m.DailyWeightGain, m.FeedConversionRatio, m.FeedCostPerKg, m.ProfitMargin)
		if cs := m.CategorySpecific; cs != nil {
			if cs.LayingRate != nil {
				fmt.Fprintf(&b, ", laying %.1f%%", *cs.LayingRate)
			}
			if cs.WeaningRate != nil {
				fmt.Fprintf(&b, ", weaning %.1f%%", *cs.WeaningRate)
			}
		}
	} else {
		b.WriteString("Metrics: no snapshot yet")
	}
	return b.String(), nil
}

// ExportWorkbook writes the event history and the sales of key into an XLSX
// workbook with one sheet each, in recording order.
func (s *Service) ExportWorkbook(ctx context.Context, key models.LedgerKey) ([]byte, error) {
	l, err := s.store.Ledger(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	sales, err := s.store.Sales(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), eventsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(salesSheet); err != nil {
		return nil, fmt.Errorf("create sales sheet: %w", err)
	}

	eventRows := make([][]interface{}, 0, len(l.Events))
	for _, ev := range l.Events {
		var cost interface{} = ""
		if ev.CostBreakdown != nil {
			cost = ev.CostBreakdown.Total()
		}
		eventRows = append(eventRows, []interface{}{
			ev.OccurredAt.Date, ev.OccurredAt.Time, string(ev.Kind), ev.Quantity, ev.RemainingStock, cost, ev.ID,
		})
	}
	if err := writeSheet(f, eventsSheet, []interface{}{"date", "time", "kind", "quantity", "remaining_stock", "cost_total", "event_id"}, eventRows); err != nil {
		return nil, err
	}

	saleRows := make([][]interface{}, 0, len(sales))
	for _, sale := range sales {
		var cost interface{} = ""
		if sale.CostPerUnit != nil {
			cost = *sale.CostPerUnit
		}
		saleRows = append(saleRows, []interface{}{
			sale.OccurredAt.Date, sale.OccurredAt.Time, sale.Quantity, sale.PricePerUnit, cost,
			sale.TotalAmount, sale.ProfitPerUnit, sale.TotalProfit, sale.ID,
		})
	}
	if err := writeSheet(f, salesSheet, []interface{}{"date", "time", "quantity", "price_per_unit", "cost_per_unit", "total_amount", "profit_per_unit", "total_profit", "sale_id"}, saleRows); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Debug("workbook exported",
		zap.String("ledger", key.String()),
		zap.Int("events", len(eventRows)),
		zap.Int("sales", len(saleRows)))
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("%s cell: %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
