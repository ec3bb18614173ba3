package mapstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultLocateTimeout bounds a single device location request.
const DefaultLocateTimeout = 5 * time.Second

var (
	// ErrPermissionDenied is returned by a Locator when the user refuses access.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrLocationUnavailable is returned by a Locator when the device has no
	// location capability. It is terminal for the session.
	ErrLocationUnavailable = errors.New("location unavailable")
)

// PermissionState is the device location permission as seen by the gate.
type PermissionState string

// Permission states.
const (
	PermissionUnrequested PermissionState = "unrequested"
	PermissionPrompt      PermissionState = "prompt"
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
	PermissionUnavailable PermissionState = "unavailable"
)

// Fix is a device position.
type Fix struct {
	Lat  float64
	Long float64
}

// Locator requests the device position, prompting for permission if needed.
type Locator interface {
	Locate(ctx context.Context) (Fix, error)
}

// PermissionQuerier reports the current permission without prompting.
type PermissionQuerier interface {
	QueryPermission(ctx context.Context) (PermissionState, error)
}

// Policy selects how a view behaves while location is not granted.
type Policy int

const (
	// PolicyBlocking hides the map behind a retry prompt until a fix arrives.
	PolicyBlocking Policy = iota
	// PolicyBanner shows the map at the default viewport with a dismissible
	// banner. Permission is queried passively before prompting.
	PolicyBanner
)

func (p Policy) String() string {
	if p == PolicyBanner {
		return "banner"
	}
	return "blocking"
}

// ParsePolicy maps "blocking" or "banner" to a Policy. Anything else is blocking.
func ParsePolicy(s string) Policy {
	if s == "banner" {
		return PolicyBanner
	}
	return PolicyBlocking
}

// GateConfig configures a GeolocationGate.
type GateConfig struct {
	Policy  Policy
	Timeout time.Duration     // 0 uses DefaultLocateTimeout
	Querier PermissionQuerier // optional; consulted only under PolicyBanner
	Logger  *slog.Logger
}

// GeolocationGate requests the device location on mount and recenters the
// viewport on a fix. It makes no network calls.
type GeolocationGate struct {
	locator  Locator
	viewport *ViewportController
	policy   Policy
	timeout  time.Duration
	querier  PermissionQuerier
	logger   *slog.Logger

	mu       sync.Mutex
	state    PermissionState
	ready    bool
	requests int
	subs     []func(PermissionState)
}

// NewGeolocationGate creates a gate in the unrequested state. A nil locator
// behaves like a device without location capability.
func NewGeolocationGate(locator Locator, viewport *ViewportController, cfg GateConfig) *GeolocationGate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLocateTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GeolocationGate{
		locator:  locator,
		viewport: viewport,
		policy:   cfg.Policy,
		timeout:  cfg.Timeout,
		querier:  cfg.Querier,
		logger:   cfg.Logger,
		state:    PermissionUnrequested,
	}
}

// Policy returns the configured policy.
func (g *GeolocationGate) Policy() Policy {
	return g.policy
}

// State returns the current permission state.
func (g *GeolocationGate) State() PermissionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ready reports whether a fix was granted and the viewport recentered on it.
func (g *GeolocationGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Requests returns how many device requests the gate has issued.
func (g *GeolocationGate) Requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests
}

// Subscribe registers fn for state changes.
func (g *GeolocationGate) Subscribe(fn func(PermissionState)) {
	g.mu.Lock()
	g.subs = append(g.subs, fn)
	g.mu.Unlock()
}

// Mount requests location when user is non-nil and returns the resulting
// state. Without a user the gate stays unrequested.
func (g *GeolocationGate) Mount(ctx context.Context, user *User) PermissionState {
	if user == nil {
		return g.State()
	}

	if g.policy == PolicyBanner && g.querier != nil {
		current, err := g.querier.QueryPermission(ctx)
		if err != nil {
			g.logger.DebugContext(ctx, "permission query failed", "error", err)
		}
		switch {
		case err != nil:
		case current == PermissionDenied, current == PermissionUnavailable:
			// Already refused: show the banner without prompting again.
			g.setState(current)
			return current
		}
	}
	return g.request(ctx)
}

// Retry issues a new request after a denial. It is a no-op once location is
// unavailable or while a request is in flight.
func (g *GeolocationGate) Retry(ctx context.Context) PermissionState {
	return g.request(ctx)
}

func (g *GeolocationGate) request(ctx context.Context) PermissionState {
	g.mu.Lock()
	switch g.state {
	case PermissionUnavailable, PermissionPrompt:
		state := g.state
		g.mu.Unlock()
		return state
	}
	if g.locator == nil {
		g.mu.Unlock()
		g.logger.InfoContext(ctx, "geolocation capability missing")
		return g.setState(PermissionUnavailable)
	}
	previous := g.state
	g.state = PermissionPrompt
	g.requests++
	subs := g.subscribersLocked()
	g.mu.Unlock()
	notify(subs, PermissionPrompt)

	locateCtx, cancel := context.WithTimeout(ctx, g.timeout)
	fix, err := g.locator.Locate(locateCtx)
	cancel()

	switch {
	case err == nil:
		if moveErr := g.viewport.CenterOn(fix.Lat, fix.Long, ZoomGeolocated); moveErr != nil {
			g.logger.WarnContext(ctx, "discarding invalid location fix", "error", moveErr)
			return g.setState(PermissionDenied)
		}
		return g.setState(PermissionGranted)
	case errors.Is(err, ErrLocationUnavailable):
		g.logger.InfoContext(ctx, "geolocation unavailable", "error", err)
		return g.setState(PermissionUnavailable)
	case ctx.Err() != nil:
		// The view went away mid-request.
		return g.setState(previous)
	default:
		// Timeouts and position errors are reported as denial; both are retryable.
		g.logger.InfoContext(ctx, "geolocation denied", "error", err)
		return g.setState(PermissionDenied)
	}
}

func (g *GeolocationGate) setState(s PermissionState) PermissionState {
	g.mu.Lock()
	g.state = s
	g.ready = s == PermissionGranted
	subs := g.subscribersLocked()
	g.mu.Unlock()
	notify(subs, s)
	return s
}

func (g *GeolocationGate) subscribersLocked() []func(PermissionState) {
	subs := make([]func(PermissionState), len(g.subs))
	copy(subs, g.subs)
	return subs
}

func notify[T any](subs []func(T), v T) {
	for _, fn := range subs {
		fn(v)
	}
}
