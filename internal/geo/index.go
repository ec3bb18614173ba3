package geo

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dhconnelly/rtreego"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50
	// pointTolerance gives indexed points a tiny non-zero extent; rtreego
	// rejects zero-length rectangles.
	pointTolerance = 1e-9
)

// ErrInvalidBBox is returned for boxes whose min corner is not below/left of the max corner
// or whose corners are outside valid coordinate bounds.
var ErrInvalidBBox = errors.New("invalid bounding box")

// BBox is a latitude/longitude bounding box. Boxes crossing the antimeridian are not supported.
type BBox struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
}

// Validate checks corner ordering and coordinate bounds.
func (b BBox) Validate() error {
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLng < -180 || b.MaxLng > 180 {
		return fmt.Errorf("%w: corners out of range", ErrInvalidBBox)
	}
	if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
		return fmt.Errorf("%w: min corner must not exceed max corner", ErrInvalidBBox)
	}
	return nil
}

// Contains reports whether the coordinate lies inside the box (edges inclusive).
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

type indexedPoint struct {
	id   string
	lat  float64
	lng  float64
	rect *rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (p *indexedPoint) Bounds() *rtreego.Rect {
	return p.rect
}

// Index is a thread-safe R-tree of identified points.
type Index struct {
	mu    sync.RWMutex
	tree  *rtreego.Rtree
	items map[string]*indexedPoint
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
		items: make(map[string]*indexedPoint),
	}
}

// Insert adds or replaces the point stored under id.
func (x *Index) Insert(id string, lat, lng float64) {
	item := &indexedPoint{
		id:   id,
		lat:  lat,
		lng:  lng,
		rect: rtreego.Point{lat, lng}.ToRect(pointTolerance),
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.items[id]; ok {
		x.tree.Delete(old)
	}
	x.items[id] = item
	x.tree.Insert(item)
}

// Remove deletes the point stored under id, if any.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.items[id]; ok {
		x.tree.Delete(old)
		delete(x.items, id)
	}
}

// Len returns the number of indexed points.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items)
}

// SearchBox returns the ids of all points inside box. Order is unspecified.
func (x *Index) SearchBox(box BBox) ([]string, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}

	latSpan := box.MaxLat - box.MinLat
	lngSpan := box.MaxLng - box.MinLng
	if latSpan == 0 {
		latSpan = pointTolerance
	}
	if lngSpan == 0 {
		lngSpan = pointTolerance
	}

	bounds, err := rtreego.NewRect(rtreego.Point{box.MinLat, box.MinLng}, []float64{latSpan, lngSpan})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBBox, err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	results := x.tree.SearchIntersect(bounds)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		item, ok := r.(*indexedPoint)
		if !ok {
			continue
		}
		// The tolerance padding can pull in points just outside the box.
		if box.Contains(item.lat, item.lng) {
			ids = append(ids, item.id)
		}
	}
	return ids, nil
}
