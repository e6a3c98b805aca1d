package server

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Maximum number of OAuth states to keep in memory.
const maxOAuthStates = 10000

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	ctx        context.Context
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB) *Handlers {
	return &Handlers{
		db:         db,
		ctx:        ctx,
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states. Callers hold stateMu.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState records a pending OAuth state, pruning expired ones as it goes.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Over the cap the flow fails rather than growing without bound.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}

// consumeOAuthState validates and removes a state token, returning whether it was live.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.RLock()
	exp, ok := h.stateStore[state]
	h.stateMu.RUnlock()
	if !ok || time.Now().After(exp) {
		return false
	}
	h.stateMu.Lock()
	delete(h.stateStore, state)
	h.stateMu.Unlock()
	return true
}
