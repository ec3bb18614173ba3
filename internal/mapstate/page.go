package mapstate

import (
	"context"
	"errors"
	"sync"

	"github.com/onnwee/pinmap/internal/geocode"
	"github.com/onnwee/pinmap/internal/pin"
)

// ViewStatus is the render state of a view.
type ViewStatus string

// View statuses.
const (
	StatusLoadingPermission ViewStatus = "loading-permission"
	StatusPermissionBlocked ViewStatus = "permission-blocked"
	StatusReady             ViewStatus = "ready"
)

var (
	// ErrMapNotReady is returned by map actions while the map is hidden.
	ErrMapNotReady = errors.New("map is not ready")

	// ErrPageClosed is returned when mounting a page that was unmounted.
	ErrPageClosed = errors.New("page already unmounted")
)

// MapPageDeps are the collaborators of a MapPage. Session and Store are shared
// across views; the rest belong to the page.
type MapPageDeps struct {
	Session  *Session
	Store    *PinStore
	Gate     *GeolocationGate
	Search   *SearchController
	Viewport *ViewportController
}

// MapPage composes the map view: markers, search box and the add-review action,
// all gated on location permission. A page is mounted at most once.
type MapPage struct {
	session  *Session
	store    *PinStore
	gate     *GeolocationGate
	search   *SearchController
	viewport *ViewportController

	mu              sync.Mutex
	mounted         bool
	closed          bool
	bannerDismissed bool
	cancel          context.CancelFunc
}

// NewMapPage creates an unmounted map page.
func NewMapPage(deps MapPageDeps) *MapPage {
	return &MapPage{
		session:  deps.Session,
		store:    deps.Store,
		gate:     deps.Gate,
		search:   deps.Search,
		viewport: deps.Viewport,
	}
}

// Mount loads pins and runs the geolocation gate concurrently, returning when
// both have settled. Unmount cancels both.
func (p *MapPage) Mount(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPageClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	p.mounted = true
	p.cancel = cancel
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.store.LoadAll(ctx)
	}()
	go func() {
		defer wg.Done()
		p.gate.Mount(ctx, p.session.User())
	}()
	wg.Wait()
	return nil
}

// Unmount cancels outstanding work and stops the search controller.
func (p *MapPage) Unmount() {
	p.mu.Lock()
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.search.Close()
}

// Retry asks for location permission again.
func (p *MapPage) Retry(ctx context.Context) PermissionState {
	return p.gate.Retry(ctx)
}

// Status returns the page's render state.
func (p *MapPage) Status() ViewStatus {
	p.mu.Lock()
	mounted := p.mounted
	p.mu.Unlock()

	if p.gate.Ready() {
		return StatusReady
	}
	if !mounted || p.gate.State() == PermissionPrompt {
		return StatusLoadingPermission
	}
	if p.gate.State() == PermissionUnrequested && p.session.User() != nil {
		// Mounted, request not yet issued.
		return StatusLoadingPermission
	}
	return StatusPermissionBlocked
}

// CanRenderMap reports whether live map content may be shown. Under
// PolicyBlocking only a granted fix unlocks the map; under PolicyBanner the
// map shows as soon as the page is mounted.
func (p *MapPage) CanRenderMap() bool {
	if p.gate.Policy() == PolicyBanner {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.mounted
	}
	return p.Status() == StatusReady
}

// BannerVisible reports whether the permission banner is shown.
func (p *MapPage) BannerVisible() bool {
	if p.gate.Policy() != PolicyBanner || p.Status() != StatusPermissionBlocked {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.bannerDismissed
}

// DismissBanner hides the permission banner for the life of the page.
func (p *MapPage) DismissBanner() {
	p.mu.Lock()
	p.bannerDismissed = true
	p.mu.Unlock()
}

// CanAddReview reports whether AddReview would succeed.
func (p *MapPage) CanAddReview() bool {
	return p.session.User() != nil && p.CanRenderMap()
}

// AddReview stages a new pin at the viewport center.
func (p *MapPage) AddReview() (pin.Point, error) {
	if p.session.User() == nil {
		return pin.Point{}, ErrNoSession
	}
	if !p.CanRenderMap() {
		return pin.Point{}, ErrMapNotReady
	}
	center := p.viewport.Current().Center()
	if err := p.store.StageNewPin(center); err != nil {
		return pin.Point{}, err
	}
	return center, nil
}

// OnInputChange forwards search box input while the map is shown.
func (p *MapPage) OnInputChange(text string) error {
	if !p.CanRenderMap() {
		return ErrMapNotReady
	}
	p.search.OnInputChange(text)
	return nil
}

// OnSuggestionSelect recenters on s while the map is shown.
func (p *MapPage) OnSuggestionSelect(s geocode.Suggestion) error {
	if !p.CanRenderMap() {
		return ErrMapNotReady
	}
	return p.search.OnSuggestionSelect(s)
}

// OnMapMove applies a widget move while the map is shown.
func (p *MapPage) OnMapMove(v Viewport) error {
	if !p.CanRenderMap() {
		return ErrMapNotReady
	}
	return p.viewport.Move(v)
}

// MapSnapshot is everything a renderer needs to draw the map page.
type MapSnapshot struct {
	Status        ViewStatus
	Permission    PermissionState
	Policy        Policy
	Viewport      Viewport
	ShowMap       bool
	BannerVisible bool
	Pins          []pin.Pin // nil unless ShowMap
	Query         string
	Suggestions   []geocode.Suggestion
	Username      string
	CanAddReview  bool
}

// Snapshot captures the page state for rendering.
func (p *MapPage) Snapshot() MapSnapshot {
	snap := MapSnapshot{
		Status:        p.Status(),
		Permission:    p.gate.State(),
		Policy:        p.gate.Policy(),
		Viewport:      p.viewport.Current(),
		ShowMap:       p.CanRenderMap(),
		BannerVisible: p.BannerVisible(),
		Query:         p.search.Query(),
		Username:      p.session.Username(),
		CanAddReview:  p.CanAddReview(),
	}
	if snap.ShowMap {
		snap.Pins = p.store.All()
		snap.Suggestions = p.search.Suggestions()
	}
	return snap
}

// PinsListPage lists the session user's pins.
type PinsListPage struct {
	session *Session
	store   *PinStore
}

// NewPinsListPage creates a list page over the shared session and store.
func NewPinsListPage(session *Session, store *PinStore) *PinsListPage {
	return &PinsListPage{session: session, store: store}
}

// Mount refreshes the shared store.
func (p *PinsListPage) Mount(ctx context.Context) {
	p.store.LoadAll(ctx)
}

// Pins returns the session user's pins in store order. Without a session user
// the list is empty.
func (p *PinsListPage) Pins() []pin.Pin {
	u := p.session.User()
	if u == nil {
		return []pin.Pin{}
	}
	return p.store.FilterByOwner(u.Username)
}
