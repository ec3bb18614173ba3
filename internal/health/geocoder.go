package health

import (
	"context"
	"errors"
)

// ErrGeocoderNotConfigured is reported when no geocoding token is set.
var ErrGeocoderNotConfigured = errors.New("geocoder not configured")

// BreakerReporter is implemented by geocoders that guard the provider with a
// circuit breaker.
type BreakerReporter interface {
	CheckHealth(ctx context.Context) error
}

// GeocoderChecker reports the geocoding provider as down while its circuit
// breaker is open.
type GeocoderChecker struct {
	geocoder BreakerReporter
}

// NewGeocoderChecker creates a checker for g. A nil g always reports
// ErrGeocoderNotConfigured.
func NewGeocoderChecker(g BreakerReporter) *GeocoderChecker {
	return &GeocoderChecker{geocoder: g}
}

// HealthCheck implements Checker.
func (g *GeocoderChecker) HealthCheck(ctx context.Context) error {
	if g.geocoder == nil {
		return ErrGeocoderNotConfigured
	}
	return g.geocoder.CheckHealth(ctx)
}
