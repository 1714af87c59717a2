package whatsapp

import (
	"sync"
	"time"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// sessionTTL bounds how long a remembered ledger is reused. A worker starting
// a new shift names the ledger again.
const sessionTTL = 12 * time.Hour

type session struct {
	key    models.LedgerKey
	usedAt time.Time
}

// SessionManager remembers the last ledger each worker addressed so follow-up
// commands can omit the farm and category.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]session),
		ttl:      sessionTTL,
		now:      time.Now,
	}
}

// GetSession retrieves the last ledger used by a worker, if still fresh.
func (sm *SessionManager) GetSession(userID string) (models.LedgerKey, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, exists := sm.sessions[userID]
	if !exists || sm.now().Sub(s.usedAt) > sm.ttl {
		return models.LedgerKey{}, false
	}
	return s.key, true
}

// UpdateSession records the ledger used by a worker.
func (sm *SessionManager) UpdateSession(userID string, key models.LedgerKey) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[userID] = session{key: key, usedAt: sm.now()}
}

// ForgetLedger drops every session pointing at key and reports how many.
func (sm *SessionManager) ForgetLedger(key models.LedgerKey) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for user, s := range sm.sessions {
		if s.key == key {
			delete(sm.sessions, user)
			n++
		}
	}
	return n
}
