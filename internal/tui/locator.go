package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/onnwee/pinmap/internal/mapstate"
)

// StaticLocator reports a fixed position or a fixed error. Terminals have no
// location API, so the position comes from configuration.
type StaticLocator struct {
	Fix mapstate.Fix
	Err error
}

// Locate implements mapstate.Locator.
func (s StaticLocator) Locate(ctx context.Context) (mapstate.Fix, error) {
	if err := ctx.Err(); err != nil {
		return mapstate.Fix{}, err
	}
	return s.Fix, s.Err
}

// ParseLocation builds a locator from a flag value:
//
//	"6.9271,79.8612"  a fix
//	"denied"          permission denied
//	"" or "none"      no location capability (nil locator)
func ParseLocation(value string) (mapstate.Locator, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "none":
		return nil, nil
	case "denied":
		return StaticLocator{Err: mapstate.ErrPermissionDenied}, nil
	}

	latStr, longStr, ok := strings.Cut(value, ",")
	if !ok {
		return nil, fmt.Errorf("location must be lat,long, denied or none: %q", value)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", latStr, err)
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(longStr), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", longStr, err)
	}
	v := mapstate.Viewport{Lat: lat, Long: long}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return StaticLocator{Fix: mapstate.Fix{Lat: lat, Long: long}}, nil
}
