package infrastructure

import (
	"sync"
	"time"

	"bnbconcierge/internal/entities"
)

// Conversation is the in-memory state for one contact: the last
// resolved guest context, the signal that produced it and a turn
// counter. Only that contact's own requests mutate it.
type Conversation struct {
	Contact string

	mu       sync.Mutex
	guest    *entities.GuestContext
	signal   string
	turns    int
	lastSeen time.Time
}

// Guest returns the cached context and the signal it was resolved from.
func (c *Conversation) Guest() (*entities.GuestContext, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guest, c.signal
}

// SetGuest caches a resolution result (guest may be nil for "tried and
// not found", so the same failed signal is not retried every turn).
func (c *Conversation) SetGuest(guest *entities.GuestContext, signal string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guest = guest
	c.signal = signal
}

// Bump records one handled message and returns the turn count.
func (c *Conversation) Bump() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns++
	c.lastSeen = time.Now()
	return c.turns
}

// SessionManager caches Conversations keyed by contact. Entries are
// evicted after sitting idle for the configured TTL; a background
// sweeper runs at half the TTL interval.
type SessionManager struct {
	conversations map[string]*Conversation
	mu            sync.RWMutex
	ttl           time.Duration
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	sm := &SessionManager{
		conversations: make(map[string]*Conversation),
		ttl:           ttl,
	}
	go sm.sweep()
	return sm
}

// GetOrCreate returns or creates the conversation for a contact.
func (sm *SessionManager) GetOrCreate(contact string) *Conversation {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	conv, exists := sm.conversations[contact]
	if !exists {
		conv = &Conversation{Contact: contact, lastSeen: time.Now()}
		sm.conversations[contact] = conv
	}
	return conv
}

// Evict drops a conversation explicitly (session end).
func (sm *SessionManager) Evict(contact string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.conversations, contact)
}

// Len reports the number of live conversations.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.conversations)
}

func (sm *SessionManager) sweep() {
	ticker := time.NewTicker(sm.ttl / 2)
	for range ticker.C {
		sm.evictStale(time.Now())
	}
}

func (sm *SessionManager) evictStale(now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for contact, conv := range sm.conversations {
		conv.mu.Lock()
		idle := now.Sub(conv.lastSeen)
		conv.mu.Unlock()
		if idle > sm.ttl {
			delete(sm.conversations, contact)
		}
	}
}
