package mapstate

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/onnwee/pinmap/internal/geocode"
	"github.com/onnwee/pinmap/internal/pin"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGeocoder records queries. When gates holds a channel for a query, the
// lookup blocks until that channel is closed.
type fakeGeocoder struct {
	mu      sync.Mutex
	queries []string
	results map[string][]geocode.Suggestion
	gates   map[string]chan struct{}
	err     error
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{
		results: make(map[string][]geocode.Suggestion),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeGeocoder) Search(ctx context.Context, query string, _ int) ([]geocode.Suggestion, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	gate := f.gates[query]
	res := f.results[query]
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res, err
}

func (f *fakeGeocoder) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

func (f *fakeGeocoder) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func suggestion(id, name string, lat, long float64) geocode.Suggestion {
	return geocode.Suggestion{ID: id, PlaceName: name, Center: [2]float64{long, lat}}
}

// fakeLocator returns fix or err. When block is non-nil Locate waits for it
// to close or for ctx to end.
type fakeLocator struct {
	mu    sync.Mutex
	fix   Fix
	err   error
	block chan struct{}
	calls int
}

func (f *fakeLocator) Locate(ctx context.Context) (Fix, error) {
	f.mu.Lock()
	f.calls++
	fix, err, block := f.fix, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		}
	}
	return fix, err
}

func (f *fakeLocator) set(fix Fix, err error) {
	f.mu.Lock()
	f.fix, f.err = fix, err
	f.mu.Unlock()
}

func (f *fakeLocator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQuerier struct {
	state PermissionState
	err   error
}

func (f fakeQuerier) QueryPermission(context.Context) (PermissionState, error) {
	return f.state, f.err
}

// fakeSource serves pins. When gate is non-nil ListPins snapshots the pins,
// signals started and then waits for gate to close.
type fakeSource struct {
	mu      sync.Mutex
	pins    []pin.Pin
	err     error
	calls   int
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeSource) ListPins(context.Context) ([]pin.Pin, error) {
	f.mu.Lock()
	f.calls++
	err, gate, started := f.err, f.gate, f.started
	out := make([]pin.Pin, len(f.pins))
	copy(out, f.pins)
	f.mu.Unlock()

	if gate != nil {
		if started != nil {
			close(started)
		}
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func samplePins() []pin.Pin {
	return []pin.Pin{
		{ID: "1", Username: "alice", Title: "Cafe", Rating: 4, Lat: 6.9, Long: 79.8},
		{ID: "2", Username: "bob", Title: "Park", Rating: 3, Lat: 7.0, Long: 80.0},
		{ID: "3", Username: "alice", Title: "Beach", Rating: 5, Lat: 6.0, Long: 80.2},
		{ID: "4", Username: "carol", Title: "Museum", Rating: 2, Lat: 6.5, Long: 79.9},
		{ID: "5", Username: "alice", Title: "Temple", Rating: 5, Lat: 7.29, Long: 80.63},
	}
}
