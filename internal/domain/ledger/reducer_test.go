package ledger_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/ledger"
	"github.com/mamadbah2/farmledger/internal/domain/models"
)

var (
	testKey = models.LedgerKey{FarmID: "farm-1", Category: models.CategoryLayers}
	day0    = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
)

func event(id string, kind models.EventKind, qty int, offset int) models.StockEvent {
	return models.StockEvent{
		ID:         id,
		Kind:       kind,
		Quantity:   qty,
		OccurredAt: models.NewOccurredAt(day0.AddDate(0, 0, offset)),
	}
}

func applyAll(t *testing.T, events ...models.StockEvent) models.FarmLedger {
	t.Helper()
	l := models.NewFarmLedger(testKey, day0)
	for _, ev := range events {
		var err error
		l, _, err = ledger.Apply(l, ev)
		require.NoError(t, err)
	}
	return l
}

func TestReduce_Scenario(t *testing.T) {
	l := applyAll(t,
		event("e1", models.EventInitial, 100, 0),
		event("e2", models.EventAddition, 20, 1),
		event("e3", models.EventDeath, 5, 2),
		event("e4", models.EventSale, 10, 3),
	)

	assert.Equal(t, 105, l.CurrentStock)
	assert.Equal(t, 5, l.TotalDeaths)
	assert.Equal(t, 120, l.MaxSampleSize)
	assert.Equal(t, 4.2, l.MortalityRate)

	remaining := make([]int, 0, len(l.Events))
	for _, ev := range l.Events {
		remaining = append(remaining, ev.RemainingStock)
	}
	assert.Equal(t, []int{100, 120, 115, 105}, remaining)
	assert.NoError(t, ledger.Verify(l))
}

func TestMortalityRate_ZeroSample(t *testing.T) {
	assert.Equal(t, 0.0, ledger.MortalityRate(0, 0))
	assert.Equal(t, 0.0, ledger.MortalityRate(7, 0))
	assert.Equal(t, 100.0, ledger.MortalityRate(10, 10))
	assert.Equal(t, 33.3, ledger.MortalityRate(1, 3))
}

func TestApply_RejectsOverdraw(t *testing.T) {
	l := applyAll(t, event("e1", models.EventInitial, 20, 0))

	for _, kind := range []models.EventKind{models.EventDeath, models.EventSale} {
		_, _, err := ledger.Apply(l, event("x", kind, 21, 1))
		var stockErr *errs.InsufficientStockError
		require.ErrorAs(t, err, &stockErr, kind)
		assert.Equal(t, 20, stockErr.Available)
		assert.Equal(t, 21, stockErr.Requested)
		assert.ErrorIs(t, err, errs.ErrInsufficientStock)
	}
	assert.Len(t, l.Events, 1, "source ledger must be untouched")
}

func TestApply_RejectsInvalidEvents(t *testing.T) {
	l := models.NewFarmLedger(testKey, day0)

	_, _, err := ledger.Apply(l, event("neg", models.EventAddition, -1, 0))
	assert.ErrorIs(t, err, errs.ErrInvalidQuantity)

	_, _, err = ledger.Apply(l, event("kind", models.EventKind("gift"), 1, 0))
	assert.ErrorIs(t, err, errs.ErrInvalidKind)

	bad := event("time", models.EventAddition, 1, 0)
	bad.OccurredAt.Time = "25:99"
	_, _, err = ledger.Apply(l, bad)
	assert.ErrorIs(t, err, errs.ErrInvalidDateTime)

	assert.Empty(t, l.Events)
}

func TestApply_ZeroQuantityAllowed(t *testing.T) {
	l := applyAll(t, event("e1", models.EventInitial, 0, 0), event("e2", models.EventDeath, 0, 1))
	assert.Equal(t, 0, l.CurrentStock)
	assert.Equal(t, 0.0, l.MortalityRate)
}

func TestVerify_DetectsDrift(t *testing.T) {
	l := applyAll(t,
		event("e1", models.EventInitial, 50, 0),
		event("e2", models.EventDeath, 2, 1),
	)
	l.Events[1].RemainingStock = 49

	err := ledger.Verify(l)
	var drift *errs.DriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, "e2", drift.EventID)
	assert.Equal(t, 48, drift.Computed)
	assert.True(t, errs.IsConsistency(err))
}

func TestVerify_DetectsStaleCache(t *testing.T) {
	l := applyAll(t, event("e1", models.EventInitial, 50, 0))
	l.CurrentStock = 10

	assert.ErrorIs(t, ledger.Verify(l), errs.ErrLedgerInconsistent)
	assert.NoError(t, ledger.Verify(ledger.Recompute(l)))
}

func genEvents(t *rapid.T) []models.StockEvent {
	kinds := []models.EventKind{models.EventInitial, models.EventAddition, models.EventDeath, models.EventSale}
	n := rapid.IntRange(0, 60).Draw(t, "n")
	events := make([]models.StockEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, event(
			fmt.Sprintf("e%d", i),
			rapid.SampledFrom(kinds).Draw(t, "kind"),
			rapid.IntRange(0, 500).Draw(t, "qty"),
			i,
		))
	}
	return events
}

func TestReduce_MatchesIncrementalFold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		events := genEvents(t)

		l := models.NewFarmLedger(testKey, day0)
		var incremental ledger.Stats
		manual := 0
		for _, ev := range events {
			next, _, err := ledger.Apply(l, ev)
			if err != nil {
				continue
			}
			l = next
			incremental = ledger.Fold(incremental, ev)
			if ev.Kind.Inbound() {
				manual += ev.Quantity
			} else {
				manual -= ev.Quantity
			}
		}

		full := ledger.Reduce(l.Events)
		if full != incremental {
			t.Fatalf("fold mismatch: full %+v incremental %+v", full, incremental)
		}
		if full.CurrentStock != manual || l.CurrentStock != manual {
			t.Fatalf("current stock %d, manual sum %d", full.CurrentStock, manual)
		}
		if full.CurrentStock < 0 {
			t.Fatalf("negative stock %d", full.CurrentStock)
		}
		rate := l.MortalityRate
		if rate < 0 || rate > 100 {
			t.Fatalf("mortality rate %v out of range", rate)
		}
		if l.MaxSampleSize == 0 && rate != 0 {
			t.Fatalf("mortality rate %v with empty sample", rate)
		}
		if err := ledger.Verify(l); err != nil {
			t.Fatalf("verify: %v", err)
		}
	})
}

func TestReduce_SplitHistoryIsAssociative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		events := genEvents(t)
		cut := rapid.IntRange(0, len(events)).Draw(t, "cut")

		head := ledger.Reduce(events[:cut])
		for _, ev := range events[cut:] {
			head = ledger.Fold(head, ev)
		}
		if head != ledger.Reduce(events) {
			t.Fatalf("split fold %+v differs from full fold %+v", head, ledger.Reduce(events))
		}
	})
}
