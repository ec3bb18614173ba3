// Package pin provides the pin (geo-anchored review) model, its repositories
// and the service that keeps the spatial index and live feed in sync with storage.
package pin

import (
	"errors"
	"time"
)

// Rating scale bounds (inclusive).
const (
	MinRating = 0
	MaxRating = 5
)

// GeohashPrecision is the geohash length stored with every pin.
// Seven characters is roughly a 150m cell, enough to group pins on one street.
const GeohashPrecision = 7

var (
	// ErrPinNotFound is returned when a pin does not exist.
	ErrPinNotFound = errors.New("pin not found")

	// ErrInvalidRating is returned when a rating falls outside MinRating..MaxRating.
	ErrInvalidRating = errors.New("rating out of range")

	// ErrInvalidCoordinates is returned for latitude/longitude outside valid bounds.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Pin is a review dropped at a geographic location by a user.
type Pin struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Title       string     `json:"title"`
	Description string     `json:"desc"`
	Rating      int        `json:"rating"`
	Lat         float64    `json:"lat"`
	Long        float64    `json:"long"`
	Geohash     string     `json:"geohash,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Point is a bare coordinate pair, used for staged pins and viewport centers.
type Point struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// ValidCoordinates reports whether lat/long are within WGS84 bounds.
func ValidCoordinates(lat, long float64) bool {
	return lat >= -90 && lat <= 90 && long >= -180 && long <= 180
}

// Validate checks the rating and coordinate invariants.
func (p *Pin) Validate() error {
	if p.Rating < MinRating || p.Rating > MaxRating {
		return ErrInvalidRating
	}
	if !ValidCoordinates(p.Lat, p.Long) {
		return ErrInvalidCoordinates
	}
	return nil
}

// Point returns the pin's location.
func (p *Pin) Point() Point {
	return Point{Lat: p.Lat, Long: p.Long}
}

// clone returns a deep copy so stored pins cannot be mutated by callers.
func (p *Pin) clone() *Pin {
	c := *p
	if p.CreatedAt != nil {
		t := *p.CreatedAt
		c.CreatedAt = &t
	}
	return &c
}

// FilterByOwner returns the pins owned by username, preserving order.
// The input slice is not modified.
func FilterByOwner(pins []Pin, username string) []Pin {
	out := make([]Pin, 0, len(pins))
	for _, p := range pins {
		if p.Username == username {
			out = append(out, p)
		}
	}
	return out
}
