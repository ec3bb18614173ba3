package mapstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/pinmap/internal/pin"
)

// PinSource fetches every pin from the backend.
type PinSource interface {
	ListPins(ctx context.Context) ([]pin.Pin, error)
}

// PinStore is the shared pin cache. It is loaded once per view mount and
// projected per view. A failed load leaves the store empty; views cannot tell
// it apart from a backend with no pins.
type PinStore struct {
	source  PinSource
	session *Session
	logger  *slog.Logger

	mu     sync.RWMutex
	pins   []pin.Pin
	err    error
	loads  uint64
	staged *pin.Point
	// added holds pins added since the current load started.
	added []pin.Pin
}

// NewPinStore creates an empty store. logger may be nil.
func NewPinStore(source PinSource, session *Session, logger *slog.Logger) *PinStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PinStore{source: source, session: session, logger: logger}
}

// LoadAll replaces the store contents with a fresh fetch. Only the most
// recently started load may land.
func (s *PinStore) LoadAll(ctx context.Context) {
	s.mu.Lock()
	s.loads++
	gen := s.loads
	s.added = nil
	s.mu.Unlock()

	pins, err := s.source.ListPins(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.loads {
		s.logger.DebugContext(ctx, "dropping stale pin load")
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load pins", "error", err)
		s.pins = mergeAdded(nil, s.added)
		s.err = err
		return
	}
	s.pins = mergeAdded(pins, s.added)
	s.err = nil
	s.logger.DebugContext(ctx, "pins loaded", "count", len(pins))
}

// All returns every loaded pin in backend order.
func (s *PinStore) All() []pin.Pin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pin.Pin, len(s.pins))
	copy(out, s.pins)
	return out
}

// FilterByOwner returns the loaded pins owned by username, order preserved.
func (s *PinStore) FilterByOwner(username string) []pin.Pin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pin.FilterByOwner(s.pins, username)
}

// Add appends a pin created during this session.
func (s *PinStore) Add(p pin.Pin) {
	s.mu.Lock()
	s.pins = append(s.pins, p)
	s.added = append(s.added, p)
	s.mu.Unlock()
}

// mergeAdded appends the added pins that a fetch did not already return.
func mergeAdded(fetched, added []pin.Pin) []pin.Pin {
	if len(added) == 0 {
		return fetched
	}
	seen := make(map[string]struct{}, len(fetched))
	for _, p := range fetched {
		seen[p.ID] = struct{}{}
	}
	for _, p := range added {
		if _, ok := seen[p.ID]; !ok {
			fetched = append(fetched, p)
		}
	}
	return fetched
}

// Err returns the error of the last load, for diagnostics only.
func (s *PinStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// StageNewPin records center as the anchor of the next review. It requires a
// session user.
func (s *PinStore) StageNewPin(center pin.Point) error {
	if s.session == nil || s.session.User() == nil {
		return ErrNoSession
	}
	if !pin.ValidCoordinates(center.Lat, center.Long) {
		return fmt.Errorf("%w: lat %f long %f", ErrInvalidViewport, center.Lat, center.Long)
	}
	s.mu.Lock()
	s.staged = &center
	s.mu.Unlock()
	return nil
}

// Staged returns the staged anchor, if any.
func (s *PinStore) Staged() (pin.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.staged == nil {
		return pin.Point{}, false
	}
	return *s.staged, true
}

// ClearStaged discards the staged anchor.
func (s *PinStore) ClearStaged() {
	s.mu.Lock()
	s.staged = nil
	s.mu.Unlock()
}
