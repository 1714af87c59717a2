package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

func TestSessionManager_ExpiresAndForgets(t *testing.T) {
	clock := time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC)
	sm := NewSessionManager()
	sm.now = func() time.Time { return clock }

	layers := models.LedgerKey{FarmID: "farm-1", Category: models.CategoryLayers}
	pigs := models.LedgerKey{FarmID: "farm-2", Category: models.CategoryPigs}
	sm.UpdateSession("a", layers)
	sm.UpdateSession("b", layers)
	sm.UpdateSession("c", pigs)

	key, ok := sm.GetSession("a")
	assert.True(t, ok)
	assert.Equal(t, layers, key)

	assert.Equal(t, 2, sm.ForgetLedger(layers))
	_, ok = sm.GetSession("b")
	assert.False(t, ok)

	clock = clock.Add(13 * time.Hour)
	_, ok = sm.GetSession("c")
	assert.False(t, ok)
}
