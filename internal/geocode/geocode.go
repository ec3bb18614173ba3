// Package geocode turns free-text place queries into ranked coordinate suggestions.
package geocode

import (
	"context"
	"errors"
)

// DefaultLimit is the number of suggestions requested per lookup.
const DefaultLimit = 5

var (
	// ErrEmptyQuery is returned when Search is called with blank text.
	ErrEmptyQuery = errors.New("empty geocode query")

	// ErrUpstream is returned when the geocoding provider responds with a non-2xx status.
	ErrUpstream = errors.New("geocoding provider error")

	// ErrBreakerOpen is reported by health checks while lookups are short-circuited.
	ErrBreakerOpen = errors.New("geocoding circuit breaker open")
)

// Suggestion is one ranked geocoding result.
// Center is [longitude, latitude], the provider's wire order.
type Suggestion struct {
	ID        string     `json:"id"`
	PlaceName string     `json:"place_name"`
	Center    [2]float64 `json:"center"`
}

// Lat returns the suggestion's latitude.
func (s Suggestion) Lat() float64 { return s.Center[1] }

// Long returns the suggestion's longitude.
func (s Suggestion) Long() float64 { return s.Center[0] }

// Geocoder resolves a query into at most limit suggestions in relevance order.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]Suggestion, error)
}
