package mapstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/pinmap/internal/geocode"
)

// DefaultLookupTimeout bounds a single geocoding request.
const DefaultLookupTimeout = 5 * time.Second

// SearchConfig configures a SearchController.
type SearchConfig struct {
	Clock    clock.Clock   // nil uses the wall clock
	Debounce time.Duration // 0 uses DefaultDebounce
	Timeout  time.Duration // 0 uses DefaultLookupTimeout
	Limit    int           // 0 uses geocode.DefaultLimit
	Logger   *slog.Logger
}

// SearchController drives the place search box: it debounces input, issues
// geocoding lookups and recenters the viewport on a chosen suggestion.
type SearchController struct {
	geocoder  geocode.Geocoder
	viewport  *ViewportController
	debouncer *Debouncer
	timeout   time.Duration
	limit     int
	logger    *slog.Logger

	// ctx is cancelled by Close to abort in-flight lookups.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	query       string
	suggestions []geocode.Suggestion
	issued      uint64
	calls       int
	closed      bool
	subs        []func()
}

// NewSearchController creates a controller that recenters viewport on selection.
func NewSearchController(g geocode.Geocoder, viewport *ViewportController, cfg SearchConfig) *SearchController {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLookupTimeout
	}
	if cfg.Limit <= 0 {
		cfg.Limit = geocode.DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SearchController{
		geocoder:  g,
		viewport:  viewport,
		debouncer: NewDebouncer(cfg.Clock, cfg.Debounce),
		timeout:   cfg.Timeout,
		limit:     cfg.Limit,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Query returns the search box text.
func (c *SearchController) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Suggestions returns the current suggestions in relevance order.
func (c *SearchController) Suggestions() []geocode.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]geocode.Suggestion, len(c.suggestions))
	copy(out, c.suggestions)
	return out
}

// Calls returns the number of geocoding requests issued.
func (c *SearchController) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Subscribe registers fn to run after every query or suggestion change.
func (c *SearchController) Subscribe(fn func()) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// OnInputChange stores text verbatim. Non-empty text schedules a debounced
// lookup; empty text clears suggestions immediately without a lookup.
func (c *SearchController) OnInputChange(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.query = text
	if text == "" {
		c.debouncer.Cancel()
		c.suggestions = nil
		c.issued++
		subs := c.subscribersLocked()
		c.mu.Unlock()
		runAll(subs)
		return
	}
	if c.geocoder != nil {
		c.debouncer.Trigger(func() { c.lookup(c.ctx, text) })
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	runAll(subs)
}

// OnSuggestionSelect recenters the viewport on s at ZoomSuggestion, puts the
// place name in the search box and clears the suggestions.
func (c *SearchController) OnSuggestionSelect(s geocode.Suggestion) error {
	if err := c.viewport.CenterOn(s.Lat(), s.Long(), ZoomSuggestion); err != nil {
		return err
	}

	c.mu.Lock()
	c.debouncer.Cancel()
	c.query = s.PlaceName
	c.suggestions = nil
	c.issued++
	subs := c.subscribersLocked()
	c.mu.Unlock()

	runAll(subs)
	return nil
}

// Close cancels the pending lookup and any in flight. Later input is ignored.
func (c *SearchController) Close() {
	c.mu.Lock()
	c.closed = true
	c.issued++
	c.mu.Unlock()

	c.debouncer.Stop()
	c.cancel()
}

// lookup issues one geocoding request. Only the most recently issued lookup
// may replace the suggestions; failures keep the previous list.
func (c *SearchController) lookup(ctx context.Context, query string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.issued++
	gen := c.issued
	c.calls++
	c.mu.Unlock()

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	results, err := c.geocoder.Search(lookupCtx, query, c.limit)
	cancel()

	c.mu.Lock()
	if gen != c.issued {
		c.mu.Unlock()
		c.logger.Debug("dropping stale geocode response", "query", query)
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("geocode lookup failed", "query", query, "error", err)
		return
	}
	c.suggestions = results
	subs := c.subscribersLocked()
	c.mu.Unlock()

	runAll(subs)
}

func (c *SearchController) subscribersLocked() []func() {
	subs := make([]func(), len(c.subs))
	copy(subs, c.subs)
	return subs
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
