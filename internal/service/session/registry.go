package session

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/callsim/backend/internal/model/conversation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRegistryClosed  = errors.New("session registry closed")
)

// Registry maps session ids to live sessions. Created at process start and torn down at
// shutdown; no lock is held across a backend call.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*conversation.Session
	closed   bool
	now      func() time.Time
	newID    func() string
}

// NewRegistry bootstraps an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*conversation.Session),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newSessionID,
	}
}

// newSessionID renders a v4 uuid (122 random bits) as an opaque token.
func newSessionID() string {
	return "sess-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create allocates and registers a fresh active session.
func (r *Registry) Create(operatorID, personaID string) (*conversation.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	id := r.newID()
	for {
		if _, taken := r.sessions[id]; !taken {
			break
		}
		id = r.newID()
	}

	s := conversation.NewSession(id, operatorID, personaID, r.now())
	r.sessions[id] = s
	return s, nil
}

// Get retrieves a session by identifier.
func (r *Registry) Get(id string) (*conversation.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove deregisters a session. Removing an absent id is a no-op; it reports whether
// anything was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close drops every session and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	if n := len(r.sessions); n > 0 {
		log.Printf("[registry] dropping %d live sessions on shutdown", n)
	}
	r.sessions = make(map[string]*conversation.Session)
}
