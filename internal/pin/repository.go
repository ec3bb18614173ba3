package pin

import (
	"context"
	"sync"
)

// Repository is the document-store contract for pins: create, read and filter by field.
// List methods return pins in insertion order.
type Repository interface {
	// Insert stores a new pin. The pin's ID must be set by the caller.
	Insert(ctx context.Context, p *Pin) error

	// GetByID retrieves a pin by its ID. Returns ErrPinNotFound if absent.
	GetByID(ctx context.Context, id string) (*Pin, error)

	// List returns every pin.
	List(ctx context.Context) ([]*Pin, error)

	// ListByUsername returns the pins owned by username.
	ListByUsername(ctx context.Context, username string) ([]*Pin, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe.
type InMemoryRepository struct {
	mu    sync.RWMutex
	pins  map[string]*Pin
	order []string
}

// NewInMemoryRepository creates a new in-memory pin repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		pins: make(map[string]*Pin),
	}
}

// Insert stores a copy of p.
func (r *InMemoryRepository) Insert(_ context.Context, p *Pin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pins[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.pins[p.ID] = p.clone()
	return nil
}

// GetByID retrieves a copy of the pin with the given ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Pin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pins[id]
	if !ok {
		return nil, ErrPinNotFound
	}
	return p.clone(), nil
}

// List returns copies of all pins in insertion order.
func (r *InMemoryRepository) List(_ context.Context) ([]*Pin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.pins[id].clone())
	}
	return out, nil
}

// ListByUsername returns copies of username's pins in insertion order.
func (r *InMemoryRepository) ListByUsername(_ context.Context, username string) ([]*Pin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pin, 0)
	for _, id := range r.order {
		if p := r.pins[id]; p.Username == username {
			out = append(out, p.clone())
		}
	}
	return out, nil
}
