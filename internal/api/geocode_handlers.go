package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/pinmap/internal/geocode"
	"github.com/onnwee/pinmap/internal/validate"
)

// GeocodeHandlers proxies place search to the configured geocoder so the
// provider token never reaches clients.
type GeocodeHandlers struct {
	geocoder geocode.Geocoder
}

// NewGeocodeHandlers creates a new GeocodeHandlers instance. A nil geocoder
// makes every lookup return 503.
func NewGeocodeHandlers(g geocode.Geocoder) *GeocodeHandlers {
	return &GeocodeHandlers{geocoder: g}
}

// GeocodeResponse wraps suggestions in the provider's envelope shape.
type GeocodeResponse struct {
	Features []geocode.Suggestion `json:"features"`
}

// Search handles GET /api/geocode?q=...
func (h *GeocodeHandlers) Search(w http.ResponseWriter, r *http.Request) {
	if h.geocoder == nil {
		WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeUnavailable, "Geocoding is not configured")
		return
	}

	q, err := validate.SearchQuery(r.URL.Query().Get("q"))
	if errors.Is(err, validate.ErrEmpty) {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "q is required")
		return
	}
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "q: "+err.Error())
		return
	}

	suggestions, err := h.geocoder.Search(r.Context(), q, geocode.DefaultLimit)
	switch {
	case err == nil:
	case errors.Is(err, geocode.ErrEmptyQuery):
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "q is required")
		return
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		return
	default:
		slog.WarnContext(r.Context(), "geocode lookup failed", "error", err)
		WriteError(w, r.Context(), http.StatusBadGateway, ErrCodeUpstream, "Geocoding provider unavailable")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, GeocodeResponse{Features: suggestions})
}
