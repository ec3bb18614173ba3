package mapstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = &User{Username: "alice", Token: "t"}

func newTestGate(locator Locator, cfg GateConfig) (*GeolocationGate, *ViewportController) {
	vp := NewViewportController(DefaultViewport)
	cfg.Logger = discardLogger()
	return NewGeolocationGate(locator, vp, cfg), vp
}

func TestGate_GrantedRecentersAtZoom14(t *testing.T) {
	loc := &fakeLocator{fix: Fix{Lat: 6.0535, Long: 80.221}}
	g, vp := newTestGate(loc, GateConfig{})

	state := g.Mount(context.Background(), alice)

	assert.Equal(t, PermissionGranted, state)
	assert.True(t, g.Ready())
	assert.Equal(t, Viewport{Lat: 6.0535, Long: 80.221, Zoom: ZoomGeolocated}, vp.Current())
}

func TestGate_NoUserStaysUnrequested(t *testing.T) {
	loc := &fakeLocator{fix: Fix{Lat: 1, Long: 1}}
	g, vp := newTestGate(loc, GateConfig{})

	state := g.Mount(context.Background(), nil)

	assert.Equal(t, PermissionUnrequested, state)
	assert.False(t, g.Ready())
	assert.Equal(t, 0, loc.Calls())
	assert.Equal(t, DefaultViewport, vp.Current())
}

func TestGate_DeniedThenRetryGranted(t *testing.T) {
	loc := &fakeLocator{err: ErrPermissionDenied}
	g, vp := newTestGate(loc, GateConfig{})

	require.Equal(t, PermissionDenied, g.Mount(context.Background(), alice))
	assert.False(t, g.Ready())
	assert.Equal(t, DefaultViewport, vp.Current())

	loc.set(Fix{Lat: 10, Long: 20}, nil)
	require.Equal(t, PermissionGranted, g.Retry(context.Background()))
	assert.True(t, g.Ready())
	assert.Equal(t, Viewport{Lat: 10, Long: 20, Zoom: ZoomGeolocated}, vp.Current())
	assert.Equal(t, 2, g.Requests())
}

func TestGate_UnavailableIsTerminal(t *testing.T) {
	loc := &fakeLocator{err: ErrLocationUnavailable}
	g, _ := newTestGate(loc, GateConfig{})

	require.Equal(t, PermissionUnavailable, g.Mount(context.Background(), alice))

	loc.set(Fix{Lat: 1, Long: 1}, nil)
	assert.Equal(t, PermissionUnavailable, g.Retry(context.Background()))
	assert.Equal(t, PermissionUnavailable, g.Mount(context.Background(), alice))
	assert.Equal(t, 1, loc.Calls(), "no request after unavailable")
	assert.False(t, g.Ready())
}

func TestGate_NilLocatorIsUnavailable(t *testing.T) {
	g, _ := newTestGate(nil, GateConfig{})

	assert.Equal(t, PermissionUnavailable, g.Mount(context.Background(), alice))
	assert.Equal(t, 0, g.Requests())
}

func TestGate_TimeoutIsDenied(t *testing.T) {
	loc := &fakeLocator{block: make(chan struct{})}
	g, _ := newTestGate(loc, GateConfig{Timeout: 20 * time.Millisecond})

	assert.Equal(t, PermissionDenied, g.Mount(context.Background(), alice))
}

func TestGate_OtherErrorsAreDenied(t *testing.T) {
	loc := &fakeLocator{err: errors.New("position unavailable: weak signal")}
	g, _ := newTestGate(loc, GateConfig{})

	assert.Equal(t, PermissionDenied, g.Mount(context.Background(), alice))
}

func TestGate_InvalidFixIsDenied(t *testing.T) {
	loc := &fakeLocator{fix: Fix{Lat: 123, Long: 0}}
	g, vp := newTestGate(loc, GateConfig{})

	assert.Equal(t, PermissionDenied, g.Mount(context.Background(), alice))
	assert.Equal(t, DefaultViewport, vp.Current())
}

func TestGate_PromptWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	loc := &fakeLocator{fix: Fix{Lat: 1, Long: 2}, block: release}
	g, _ := newTestGate(loc, GateConfig{})

	done := make(chan PermissionState)
	go func() { done <- g.Mount(context.Background(), alice) }()

	require.Eventually(t, func() bool { return g.State() == PermissionPrompt }, time.Second, time.Millisecond)
	// A retry while the prompt is up does not issue a second request.
	assert.Equal(t, PermissionPrompt, g.Retry(context.Background()))

	close(release)
	assert.Equal(t, PermissionGranted, <-done)
	assert.Equal(t, 1, loc.Calls())
}

func TestGate_CancelledMountRestoresState(t *testing.T) {
	loc := &fakeLocator{block: make(chan struct{})}
	g, _ := newTestGate(loc, GateConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan PermissionState)
	go func() { done <- g.Mount(ctx, alice) }()

	require.Eventually(t, func() bool { return g.State() == PermissionPrompt }, time.Second, time.Millisecond)
	cancel()

	assert.Equal(t, PermissionUnrequested, <-done)
}

func TestGate_BannerPolicyRespectsPriorDenial(t *testing.T) {
	loc := &fakeLocator{fix: Fix{Lat: 1, Long: 2}}
	g, _ := newTestGate(loc, GateConfig{
		Policy:  PolicyBanner,
		Querier: fakeQuerier{state: PermissionDenied},
	})

	assert.Equal(t, PermissionDenied, g.Mount(context.Background(), alice))
	assert.Equal(t, 0, loc.Calls(), "no prompt after a remembered denial")

	// An explicit retry still prompts.
	assert.Equal(t, PermissionGranted, g.Retry(context.Background()))
}

func TestGate_BannerPolicyPromptsWhenUndecided(t *testing.T) {
	loc := &fakeLocator{fix: Fix{Lat: 1, Long: 2}}
	g, _ := newTestGate(loc, GateConfig{
		Policy:  PolicyBanner,
		Querier: fakeQuerier{state: PermissionPrompt},
	})

	assert.Equal(t, PermissionGranted, g.Mount(context.Background(), alice))
	assert.Equal(t, 1, loc.Calls())
}

func TestGate_Subscribe(t *testing.T) {
	loc := &fakeLocator{fix: Fix{Lat: 1, Long: 2}}
	g, _ := newTestGate(loc, GateConfig{})

	var states []PermissionState
	g.Subscribe(func(s PermissionState) { states = append(states, s) })
	g.Mount(context.Background(), alice)

	assert.Equal(t, []PermissionState{PermissionPrompt, PermissionGranted}, states)
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PolicyBanner, ParsePolicy("banner"))
	assert.Equal(t, PolicyBlocking, ParsePolicy("blocking"))
	assert.Equal(t, PolicyBlocking, ParsePolicy(""))
	assert.Equal(t, "banner", PolicyBanner.String())
}
