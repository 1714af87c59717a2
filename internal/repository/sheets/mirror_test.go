package sheets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/notify"
)

type fakeRepo struct {
	rows     map[string][][]interface{}
	reads    []string
	writeErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string][][]interface{})}
}

func (f *fakeRepo) WriteRow(_ context.Context, sheetRange string, values []interface{}) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.rows[sheetRange] = append(f.rows[sheetRange], values)
	return nil
}

func (f *fakeRepo) ReadRange(_ context.Context, sheetRange string) ([][]interface{}, error) {
	f.reads = append(f.reads, sheetRange)
	return nil, nil
}

var key = models.LedgerKey{FarmID: "farm-1", Category: models.CategoryBroilers}

func TestMirror_StockEventWritesHeaderOnce(t *testing.T) {
	repo := newFakeRepo()
	m := NewMirror(repo, nil)
	ctx := context.Background()

	for i, qty := range []int{100, 5} {
		ev := models.StockEvent{
			ID:             "ev",
			Kind:           models.EventAddition,
			Quantity:       qty,
			OccurredAt:     models.OccurredAt{Date: "2025-01-01", Time: "08:00"},
			RemainingStock: 100 + i*5,
		}
		require.NoError(t, m.Notify(ctx, notify.Change{Kind: notify.ChangeStockEvent, Key: key, Event: &ev}))
	}

	rows := repo.rows[eventsRange]
	require.Len(t, rows, 3)
	assert.Equal(t, "farm", rows[0][0])
	assert.Equal(t, []interface{}{"farm-1", "broilers", "ev", "addition", 5, "2025-01-01", "08:00", 105}, rows[2])
	assert.Equal(t, []string{"Events!A1:H1"}, repo.reads)
}

func TestMirror_SaleAndMetricRows(t *testing.T) {
	repo := newFakeRepo()
	m := NewMirror(repo, nil)
	ctx := context.Background()

	cost := 2000.0
	sale := models.Sale{ID: "s1", Quantity: 3, PricePerUnit: 3500, CostPerUnit: &cost, TotalAmount: 10500, TotalProfit: 4500,
		OccurredAt: models.OccurredAt{Date: "2025-02-01", Time: "10:00"}}
	require.NoError(t, m.Notify(ctx, notify.Change{Kind: notify.ChangeSale, Key: key, Sale: &sale}))

	eggs := 80
	snap := models.PerformanceMetricSnapshot{Date: "2025-02-01", MortalityRate: 4.2, CategorySpecific: &models.CategorySpecific{EggProduction: &eggs}}
	require.NoError(t, m.Notify(ctx, notify.Change{Kind: notify.ChangeMetric, Key: key, Metric: &snap}))

	require.Len(t, repo.rows[salesRange], 2)
	assert.Equal(t, "2000.00", repo.rows[salesRange][1][5])
	require.Len(t, repo.rows[metricsRange], 2)
	assert.Equal(t, "80", repo.rows[metricsRange][1][8])
	assert.Equal(t, "", repo.rows[metricsRange][1][9])
}

func TestMirror_ResetAndIgnoredChanges(t *testing.T) {
	repo := newFakeRepo()
	m := NewMirror(repo, nil)
	m.now = func() string { return "2025-03-01T00:00:00Z" }

	require.NoError(t, m.Notify(context.Background(), notify.Change{Kind: notify.ChangeReset, Key: key}))
	require.NoError(t, m.Notify(context.Background(), notify.Change{Kind: notify.ChangeSale, Key: key}))

	assert.Equal(t, []interface{}{"farm-1", "broilers", "2025-03-01T00:00:00Z"}, repo.rows[resetsRange][1])
	assert.Empty(t, repo.rows[salesRange])
}

func TestMirror_WriteFailureSurfaces(t *testing.T) {
	repo := newFakeRepo()
	repo.writeErr = errors.New("quota exceeded")
	ev := models.StockEvent{Kind: models.EventDeath, Quantity: 1}

	err := NewMirror(repo, nil).Notify(context.Background(), notify.Change{Kind: notify.ChangeStockEvent, Key: key, Event: &ev})
	assert.ErrorIs(t, err, repo.writeErr)
}

func TestHeaderCell(t *testing.T) {
	assert.Equal(t, "Sales!A1:J1", headerCell("Sales!A:J"))
	assert.Equal(t, "Notes!B1:B1", headerCell("Notes!B"))
}
