package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("session not found")

// Registry is the in-memory keyed store of session state. All mutation goes
// through Update, which serializes concurrent operations on the same id via
// a per-entry lock. Operations on distinct ids do not block each other.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Create allocates a new session in the initial status and returns a snapshot
// copy of it.
func (r *Registry) Create() Session {
	now := r.now().UTC()
	s := Session{
		ID:        uuid.NewString(),
		Status:    StatusAwaitingFrontID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.entries[s.ID] = &entry{session: s}
	r.mu.Unlock()

	return s
}

// Get returns a copy of the session's current state.
func (r *Registry) Get(id string) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

// Update applies the mutator atomically with respect to other operations on
// the same id. The mutator receives a working copy; if it returns an error
// the stored session is left untouched and the error is propagated.
func (r *Registry) Update(id string, mutate func(*Session) error) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.session
	if err := mutate(&working); err != nil {
		return Session{}, err
	}
	working.UpdatedAt = r.now().UTC()
	e.session = working
	return working, nil
}

// Delete evicts a session. It reports whether the id existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}
