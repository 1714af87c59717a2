package reporting

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/repository/memory"
	ledgersvc "github.com/mamadbah2/farmledger/internal/service/ledger"
	salessvc "github.com/mamadbah2/farmledger/internal/service/sales"
)

var key = models.LedgerKey{FarmID: "farm-1", Category: models.CategoryLayers}

func at(date, clock string) models.OccurredAt {
	return models.OccurredAt{Date: date, Time: clock}
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	ledgers := ledgersvc.NewService(store, nil, nil)
	_, _, err := ledgers.Provision(ctx, key)
	require.NoError(t, err)
	for _, ev := range []models.StockEvent{
		{Kind: models.EventInitial, Quantity: 100, OccurredAt: at("2025-01-01", "08:00")},
		{Kind: models.EventDeath, Quantity: 5, OccurredAt: at("2025-01-02", "08:00")},
		{Kind: models.EventAddition, Quantity: 20, OccurredAt: at("2025-01-03", "08:00"), CostBreakdown: &models.CostBreakdown{Stock: 100, Feed: 20}},
	} {
		_, err := ledgers.AppendStockEvent(ctx, key, ev)
		require.NoError(t, err)
	}

	cost := 2000.0
	_, err = salessvc.NewCoordinator(store, nil, nil).CommitSale(ctx, key, salessvc.Request{
		Quantity: 10, PricePerUnit: 3500.5, CostPerUnit: &cost, OccurredAt: at("2025-01-04", "10:00"),
	})
	require.NoError(t, err)
	return store
}

func TestDigest(t *testing.T) {
	store := seed(t)
	ctx := context.Background()
	laying := 76.2
	require.NoError(t, store.InsertMetric(ctx, models.PerformanceMetricSnapshot{ID: "m1", Key: key, Date: "2025-01-03", FeedConversionRatio: 1.8}))
	require.NoError(t, store.InsertMetric(ctx, models.PerformanceMetricSnapshot{ID: "m2", Key: key, Date: "2025-01-04", FeedConversionRatio: 1.75,
		CategorySpecific: &models.CategorySpecific{LayingRate: &laying}}))

	svc := NewService(store, nil)
	svc.now = func() time.Time { return time.Date(2025, 1, 5, 20, 0, 0, 0, time.UTC) }

	d, err := svc.BuildDashboard(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 105, d.CurrentStock)
	assert.Equal(t, 5, d.TotalDeaths)
	assert.Equal(t, "35005.00", d.SalesTotal.StringFixed(2))
	assert.Equal(t, "15005.00", d.ProfitTotal.StringFixed(2))
	require.NotNil(t, d.LatestMetric)
	assert.Equal(t, "2025-01-04", d.LatestMetric.Date)

	text, err := svc.Digest(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, text, "Dashboard farm-1/layers (2025-01-05)")
	assert.Contains(t, text, "Stock: 105 head")
	assert.Contains(t, text, "Deaths: 5 (mortality 4.2%)")
	assert.Contains(t, text, "Sales: 1 (10 head, total 35005.00, profit 15005.00)")
	assert.Contains(t, text, "FCR 1.75")
	assert.Contains(t, text, "laying 76.2%")
}

func TestDigest_EmptyLedger(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	_, _, err := store.Provision(ctx, key)
	require.NoError(t, err)

	text, err := NewService(store, nil).Digest(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, text, "Stock: 0 head")
	assert.Contains(t, text, "mortality 0.0%")
	assert.Contains(t, text, "Sales: none yet")
	assert.Contains(t, text, "Metrics: no snapshot yet")
}

func TestDigest_UnknownLedger(t *testing.T) {
	_, err := NewService(memory.NewStore(), nil).Digest(context.Background(), key)
	assert.ErrorIs(t, err, errs.ErrLedgerNotFound)
}

func TestExportWorkbook(t *testing.T) {
	store := seed(t)

	data, err := NewService(store, nil).ExportWorkbook(context.Background(), key)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	events, err := f.GetRows(eventsSheet)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "kind", events[0][2])
	assert.Equal(t, []string{"2025-01-01", "08:00", "initial", "100", "100"}, events[1][:5])
	assert.Equal(t, "120", events[3][5])
	assert.Equal(t, "sale", events[4][2])
	assert.Equal(t, "105", events[4][4])

	sales, err := f.GetRows(salesSheet)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "10", sales[1][2])
	assert.Equal(t, "35005", sales[1][5])
}
