// Package mapstate holds the client-side map state shared by the pinmap views:
// session, pin store, geolocation gate, place search and the map viewport.
//
// Every controller serializes its own events behind a mutex. Network and device
// I/O run outside the lock and re-enter through a generation check, so a late
// response can never overwrite logically newer state.
package mapstate

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/onnwee/pinmap/internal/pin"
)

// Zoom levels applied by programmatic recentering.
const (
	ZoomGeolocated = 14
	ZoomSuggestion = 12
)

// ErrInvalidViewport is returned when a viewport has out-of-range coordinates
// or a negative zoom.
var ErrInvalidViewport = errors.New("invalid viewport")

// Viewport is the visible map region.
type Viewport struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport is shown until the map is recentered.
var DefaultViewport = Viewport{Lat: 6.927079, Long: 79.861244, Zoom: 2}

// Validate checks the coordinate and zoom invariants.
func (v Viewport) Validate() error {
	if math.IsNaN(v.Lat) || math.IsNaN(v.Long) || math.IsNaN(v.Zoom) || math.IsInf(v.Zoom, 0) {
		return fmt.Errorf("%w: NaN or infinite value", ErrInvalidViewport)
	}
	if !pin.ValidCoordinates(v.Lat, v.Long) {
		return fmt.Errorf("%w: lat %f long %f", ErrInvalidViewport, v.Lat, v.Long)
	}
	if v.Zoom < 0 {
		return fmt.Errorf("%w: zoom %f", ErrInvalidViewport, v.Zoom)
	}
	return nil
}

// Center returns the viewport center as a point.
func (v Viewport) Center() pin.Point {
	return pin.Point{Lat: v.Lat, Long: v.Long}
}

// ViewportController owns the current viewport. Updates replace the whole
// value, so readers never see a latitude from one move and a longitude from
// another. The last successful mutation wins.
type ViewportController struct {
	mu      sync.RWMutex
	current Viewport
	subs    map[int]func(Viewport)
	nextSub int
}

// NewViewportController starts at initial, or DefaultViewport when initial is invalid.
func NewViewportController(initial Viewport) *ViewportController {
	if initial.Validate() != nil {
		initial = DefaultViewport
	}
	return &ViewportController{
		current: initial,
		subs:    make(map[int]func(Viewport)),
	}
}

// Current returns the current viewport.
func (c *ViewportController) Current() Viewport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Move replaces the viewport. Map widget moves pass through verbatim.
func (c *ViewportController) Move(v Viewport) error {
	if err := v.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.current = v
	subs := make([]func(Viewport), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	// Subscribers run outside the lock and may read or move the viewport.
	for _, fn := range subs {
		fn(v)
	}
	return nil
}

// CenterOn moves to lat/long at the given zoom.
func (c *ViewportController) CenterOn(lat, long, zoom float64) error {
	return c.Move(Viewport{Lat: lat, Long: long, Zoom: zoom})
}

// Subscribe registers fn to receive every accepted viewport. The returned
// function removes the subscription.
func (c *ViewportController) Subscribe(fn func(Viewport)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
