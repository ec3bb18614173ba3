package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/onnwee/pinmap/internal/geo"
	"github.com/onnwee/pinmap/internal/middleware"
	"github.com/onnwee/pinmap/internal/pin"
	"github.com/onnwee/pinmap/internal/validate"
)

// PinHandlers holds dependencies for pin HTTP handlers.
type PinHandlers struct {
	svc      *pin.Service
	metrics  *pin.Metrics
	upgrader websocket.Upgrader
}

// NewPinHandlers creates a new PinHandlers instance. metrics may be nil.
// allowedOrigins restricts live feed WebSocket upgrades; empty allows same-origin only.
func NewPinHandlers(svc *pin.Service, metrics *pin.Metrics, allowedOrigins []string) *PinHandlers {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimSpace(o)] = true
	}
	return &PinHandlers{
		svc:     svc,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if origins[origin] {
					return true
				}
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}
}

// CreatePinRequest is the body of POST /api/pins.
// Pointers distinguish a missing field from a zero value.
type CreatePinRequest struct {
	Title       string   `json:"title" validate:"required,max=100"`
	Description string   `json:"desc" validate:"max=1000"`
	Rating      *int     `json:"rating" validate:"required,gte=0,lte=5"`
	Lat         *float64 `json:"lat" validate:"required,latitude"`
	Long        *float64 `json:"long" validate:"required,longitude"`
}

// maxGeohashPrefix bounds the geohash filter to the stored precision.
const maxGeohashPrefix = pin.GeohashPrecision

// ListPins handles GET /api/pins.
// Optional filters: username, geohash (prefix) and bbox=minLat,minLng,maxLat,maxLng.
func (h *PinHandlers) ListPins(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter pin.Filter

	if username := strings.TrimSpace(query.Get("username")); username != "" {
		filter.Username = username
	}

	if raw := query.Get("geohash"); raw != "" {
		prefix := geo.NormalizePrefix(raw, maxGeohashPrefix)
		if prefix == "" {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "geohash must use the geohash alphabet")
			return
		}
		filter.GeohashPrefix = prefix
	}

	if raw := query.Get("bbox"); raw != "" {
		box, err := parseBBox(raw)
		if err != nil {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidBBox, err.Error())
			return
		}
		filter.BBox = &box
	}

	pins, err := h.svc.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, geo.ErrInvalidBBox) {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidBBox, "bbox is out of range or inverted")
			return
		}
		slog.ErrorContext(r.Context(), "failed to list pins", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list pins")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, pins)
}

// parseBBox parses "minLat,minLng,maxLat,maxLng".
func parseBBox(raw string) (geo.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geo.BBox{}, errors.New("bbox must be in format: minLat,minLng,maxLat,maxLng")
	}
	var vals [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geo.BBox{}, errors.New("bbox values must be numbers")
		}
		vals[i] = v
	}
	box := geo.BBox{MinLat: vals[0], MinLng: vals[1], MaxLat: vals[2], MaxLng: vals[3]}
	if err := box.Validate(); err != nil {
		return geo.BBox{}, errors.New("bbox is out of range or inverted")
	}
	return box, nil
}

// GetPin handles GET /api/pins/{id}.
func (h *PinHandlers) GetPin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, pin.ErrPinNotFound) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Pin not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to get pin", "error", err, "pin_id", id)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to get pin")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, p)
}

// CreatePin handles POST /api/pins. The owner is the authenticated user.
func (h *PinHandlers) CreatePin(w http.ResponseWriter, r *http.Request) {
	username := middleware.GetUsername(r.Context())
	if username == "" {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthRequired, "Authentication required")
		return
	}

	var req CreatePinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		writeStructError(w, r, "Invalid pin", err)
		return
	}

	title, err := validate.PinTitle(req.Title)
	if err != nil {
		WriteValidationError(w, r.Context(), "Invalid pin", []FieldIssue{{Field: "title", Message: "title: " + err.Error()}})
		return
	}
	desc, err := validate.Description(req.Description)
	if err != nil {
		WriteValidationError(w, r.Context(), "Invalid pin", []FieldIssue{{Field: "desc", Message: "desc: " + err.Error()}})
		return
	}

	created, err := h.svc.Create(r.Context(), username, pin.NewPin{
		Title:       title,
		Description: desc,
		Rating:      *req.Rating,
		Lat:         *req.Lat,
		Long:        *req.Long,
	})
	switch {
	case errors.Is(err, pin.ErrInvalidRating), errors.Is(err, pin.ErrInvalidCoordinates):
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "failed to create pin", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to create pin")
		return
	}

	slog.InfoContext(r.Context(), "pin created",
		"pin_id", created.ID,
		"username", username,
		"geohash", created.Geohash,
	)
	writeJSON(w, r.Context(), http.StatusCreated, created)
}

// LiveFeed handles GET /api/pins/live, upgrading to a WebSocket that receives
// every newly created pin as a JSON text message.
func (h *PinHandlers) LiveFeed(w http.ResponseWriter, r *http.Request) {
	feed := h.svc.Feed()
	if feed == nil {
		WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeUnavailable, "Live feed is not enabled")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		slog.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	feed.Subscribe(conn)
	h.recordClients(feed)
	defer func() {
		feed.Unsubscribe(conn)
		h.recordClients(feed)
		conn.Close()
	}()

	// Clients only listen; the read loop detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *PinHandlers) recordClients(feed *pin.Broadcaster) {
	if h.metrics != nil {
		h.metrics.SetLiveFeedClients(feed.ConnectionCount())
	}
}

// writeStructError converts a validate.Error into a validation response.
func writeStructError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var verr *validate.Error
	if !errors.As(err, &verr) {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, message)
		return
	}
	issues := make([]FieldIssue, len(verr.Fields))
	for i, f := range verr.Fields {
		issues[i] = FieldIssue{Field: f.Field, Message: f.Message}
	}
	WriteValidationError(w, r.Context(), message, issues)
}
