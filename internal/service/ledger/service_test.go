package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/repository"
	"github.com/mamadbah2/farmledger/internal/repository/memory"
	"github.com/mamadbah2/farmledger/internal/service/notify"
)

var key = models.LedgerKey{FarmID: "farm-1", Category: models.CategoryPigs}

func newTestService(t *testing.T) (*Service, *memory.Store, *[]notify.Change) {
	t.Helper()
	store := memory.NewStore()
	var changes []notify.Change
	fanout := notify.NewFanout(zap.NewNop(), notify.Func(func(_ context.Context, c notify.Change) error {
		changes = append(changes, c)
		return nil
	}))
	return NewService(store, fanout, zap.NewNop()), store, &changes
}

func stockEvent(kind models.EventKind, qty int) models.StockEvent {
	return models.StockEvent{
		Kind:       kind,
		Quantity:   qty,
		OccurredAt: models.NewOccurredAt(time.Date(2025, time.April, 2, 9, 30, 0, 0, time.UTC)),
	}
}

func TestService_AppendStockEvent(t *testing.T) {
	svc, _, changes := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Provision(ctx, key)
	require.NoError(t, err)

	l, err := svc.AppendStockEvent(ctx, key, stockEvent(models.EventInitial, 40))
	require.NoError(t, err)
	l, err = svc.AppendStockEvent(ctx, key, stockEvent(models.EventDeath, 4))
	require.NoError(t, err)

	assert.Equal(t, 36, l.CurrentStock)
	assert.Equal(t, 10.0, l.MortalityRate)
	require.Len(t, l.Events, 2)
	assert.NotEmpty(t, l.Events[0].ID)
	assert.Equal(t, 36, l.Events[1].RemainingStock)

	require.Len(t, *changes, 2)
	assert.Equal(t, notify.ChangeStockEvent, (*changes)[1].Kind)
	assert.Equal(t, 36, (*changes)[1].Event.RemainingStock)
}

func TestService_AppendRejectsOverdrawWithoutWriting(t *testing.T) {
	svc, store, changes := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Provision(ctx, key)
	require.NoError(t, err)
	_, err = svc.AppendStockEvent(ctx, key, stockEvent(models.EventInitial, 3))
	require.NoError(t, err)

	_, err = svc.AppendStockEvent(ctx, key, stockEvent(models.EventDeath, 4))
	assert.ErrorIs(t, err, errs.ErrInsufficientStock)

	stored, err := store.Ledger(ctx, key)
	require.NoError(t, err)
	assert.Len(t, stored.Events, 1)
	assert.Len(t, *changes, 1)
}

func TestService_AppendRequiresProvisionedLedger(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.AppendStockEvent(context.Background(), key, stockEvent(models.EventInitial, 3))
	assert.ErrorIs(t, err, errs.ErrLedgerNotFound)

	_, err = svc.AppendStockEvent(context.Background(), models.LedgerKey{}, stockEvent(models.EventInitial, 3))
	assert.ErrorIs(t, err, errs.ErrInvalidKey)
}

func TestService_LedgerRecomputesStaleCache(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Provision(ctx, key)
	require.NoError(t, err)
	_, err = svc.AppendStockEvent(ctx, key, stockEvent(models.EventInitial, 10))
	require.NoError(t, err)

	_ = store.Reset(ctx, key)
	l := models.NewFarmLedger(key, time.Now())
	l.Events = []models.StockEvent{{ID: "e1", Kind: models.EventInitial, Quantity: 10, RemainingStock: 10}}
	l.CurrentStock = 3
	seedLedger(t, store, l)

	assert.ErrorIs(t, svc.Verify(ctx, key), errs.ErrLedgerInconsistent)

	got, err := svc.Ledger(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 10, got.CurrentStock)
}

func TestService_ResetNeedsConfirmation(t *testing.T) {
	svc, store, changes := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Provision(ctx, key)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Reset(ctx, key, false), errs.ErrResetNotConfirmed)
	_, err = store.Ledger(ctx, key)
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx, key, true))
	_, err = store.Ledger(ctx, key)
	assert.ErrorIs(t, err, errs.ErrLedgerNotFound)
	assert.Equal(t, notify.ChangeReset, (*changes)[len(*changes)-1].Kind)
}

func seedLedger(t *testing.T, store *memory.Store, l models.FarmLedger) {
	t.Helper()
	ctx := context.Background()
	current, _, err := store.Provision(ctx, l.Key)
	require.NoError(t, err)
	l.Version = current.Version
	require.NoError(t, store.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.SaveLedger(ctx, l)
		return err
	}))
}

func TestService_ProvisionReportsCreation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, created, err := svc.Provision(ctx, key)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = svc.Provision(ctx, key)
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = svc.Provision(ctx, models.LedgerKey{})
	assert.ErrorIs(t, err, errs.ErrInvalidKey)
}
