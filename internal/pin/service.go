package pin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/pinmap/internal/geo"
)

// NewPin carries the caller-supplied fields of a pin being created.
// The owner comes from the authenticated session, never from the request body.
type NewPin struct {
	Title       string
	Description string
	Rating      int
	Lat         float64
	Long        float64
}

// Filter narrows a List call. Zero-valued fields are ignored; set fields are ANDed.
type Filter struct {
	Username      string
	GeohashPrefix string
	BBox          *geo.BBox
}

// Service coordinates pin storage with the spatial index, metrics and live feed.
type Service struct {
	repo    Repository
	index   *geo.Index
	feed    *Broadcaster
	metrics *Metrics
	now     func() time.Time
}

// NewService creates a pin service. index, feed and metrics may be nil;
// a nil index is replaced by an empty one.
func NewService(repo Repository, index *geo.Index, feed *Broadcaster, metrics *Metrics) *Service {
	if index == nil {
		index = geo.NewIndex()
	}
	return &Service{
		repo:    repo,
		index:   index,
		feed:    feed,
		metrics: metrics,
		now:     time.Now,
	}
}

// Feed returns the live feed broadcaster, or nil if none was configured.
func (s *Service) Feed() *Broadcaster {
	return s.feed
}

// Warm loads every stored pin into the spatial index. Call once at startup.
func (s *Service) Warm(ctx context.Context) error {
	pins, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm pin index: %w", err)
	}
	for _, p := range pins {
		s.index.Insert(p.ID, p.Lat, p.Long)
	}
	if s.metrics != nil {
		s.metrics.SetIndexSize(s.index.Len())
	}
	slog.InfoContext(ctx, "pin index warmed", "pins", len(pins))
	return nil
}

// Create validates and stores a new pin owned by username.
func (s *Service) Create(ctx context.Context, username string, in NewPin) (*Pin, error) {
	now := s.now().UTC()
	p := &Pin{
		ID:          uuid.New().String(),
		Username:    username,
		Title:       in.Title,
		Description: in.Description,
		Rating:      in.Rating,
		Lat:         in.Lat,
		Long:        in.Long,
		CreatedAt:   &now,
	}

	if err := p.Validate(); err != nil {
		if s.metrics != nil {
			reason := "coordinates"
			if err == ErrInvalidRating {
				reason = "rating"
			}
			s.metrics.IncPinsRejected(reason)
		}
		return nil, err
	}

	p.Geohash = geo.Encode(p.Lat, p.Long, GeohashPrecision)

	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, err
	}

	s.index.Insert(p.ID, p.Lat, p.Long)
	if s.metrics != nil {
		s.metrics.IncPinsCreated()
		s.metrics.SetIndexSize(s.index.Len())
	}
	if s.feed != nil {
		s.feed.Broadcast(p)
	}
	return p, nil
}

// Get returns a single pin.
func (s *Service) Get(ctx context.Context, id string) (*Pin, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns pins matching f in insertion order.
func (s *Service) List(ctx context.Context, f Filter) ([]*Pin, error) {
	var (
		pins []*Pin
		err  error
	)
	if f.Username != "" {
		pins, err = s.repo.ListByUsername(ctx, f.Username)
	} else {
		pins, err = s.repo.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	if f.GeohashPrefix != "" {
		pins = keep(pins, func(p *Pin) bool { return strings.HasPrefix(p.Geohash, f.GeohashPrefix) })
	}

	if f.BBox != nil {
		ids, err := s.index.SearchBox(*f.BBox)
		if err != nil {
			return nil, err
		}
		inBox := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			inBox[id] = struct{}{}
		}
		pins = keep(pins, func(p *Pin) bool {
			_, ok := inBox[p.ID]
			return ok
		})
	}

	return pins, nil
}

func keep(pins []*Pin, pred func(*Pin) bool) []*Pin {
	out := pins[:0]
	for _, p := range pins {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}
