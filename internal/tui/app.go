// Package tui renders the pinmap Map and My Pins pages in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/onnwee/pinmap/internal/geocode"
	"github.com/onnwee/pinmap/internal/mapstate"
	"github.com/onnwee/pinmap/internal/pin"
)

// Backend is what the terminal client needs from the pinmap API.
type Backend interface {
	mapstate.PinSource
	geocode.Geocoder
	CreatePin(ctx context.Context, token string, in pin.NewPin) (*pin.Pin, error)
}

// Screen identifies the active page.
type Screen int

// Screens.
const (
	ScreenMap Screen = iota
	ScreenPins
	ScreenReview
)

// Config wires the terminal client.
type Config struct {
	Backend Backend
	Session *mapstate.Session
	Locator mapstate.Locator // nil means no location capability
	Policy  mapstate.Policy
	Start   Screen
	Logger  *slog.Logger
}

const requestTimeout = 10 * time.Second

// Messages
type (
	mapMountedMsg struct{ page *mapstate.MapPage }
	retryDoneMsg  struct{ state mapstate.PermissionState }
	pinsLoadedMsg struct{}
	pinCreatedMsg struct{ pin *pin.Pin }
	errMsg        struct{ err error }
	refreshMsg    struct{}
)

// App is the root Bubble Tea model.
type App struct {
	cfg    Config
	store  *mapstate.PinStore
	logger *slog.Logger
	send   func(tea.Msg)

	screen Screen
	width  int
	height int
	info   string
	err    string

	// Map page, rebuilt on every visit.
	mapPage       *mapstate.MapPage
	searchInput   textinput.Model
	searchFocused bool
	cursor        int

	// My Pins page.
	list  *mapstate.PinsListPage
	table table.Model

	form *reviewForm
}

// New creates the root model. Session and store are shared by both pages.
func New(cfg Config) *App {
	if cfg.Session == nil {
		cfg.Session = mapstate.NewSession(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	in := textinput.New()
	in.Placeholder = "Search for location"
	in.CharLimit = 256
	in.Width = 40

	store := mapstate.NewPinStore(cfg.Backend, cfg.Session, cfg.Logger)
	return &App{
		cfg:         cfg,
		store:       store,
		logger:      cfg.Logger,
		screen:      cfg.Start,
		searchInput: in,
		list:        mapstate.NewPinsListPage(cfg.Session, store),
		table:       newPinsTable(),
	}
}

// SetSender lets background state changes reach the program, typically
// tea.Program.Send.
func (a *App) SetSender(send func(tea.Msg)) {
	a.send = send
}

// notify delivers msg without blocking the caller, which may be Update itself.
func (a *App) notify(msg tea.Msg) {
	if a.send != nil {
		go a.send(msg)
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	if a.screen == ScreenPins {
		return a.mountPins()
	}
	a.screen = ScreenMap
	return a.mountMap()
}

// mountMap builds a fresh map page and mounts it in the background.
func (a *App) mountMap() tea.Cmd {
	if a.mapPage != nil {
		a.mapPage.Unmount()
	}

	viewport := mapstate.NewViewportController(mapstate.DefaultViewport)
	search := mapstate.NewSearchController(a.cfg.Backend, viewport, mapstate.SearchConfig{Logger: a.logger})
	search.Subscribe(func() { a.notify(refreshMsg{}) })
	gate := mapstate.NewGeolocationGate(a.cfg.Locator, viewport, mapstate.GateConfig{
		Policy: a.cfg.Policy,
		Logger: a.logger,
	})

	page := mapstate.NewMapPage(mapstate.MapPageDeps{
		Session:  a.cfg.Session,
		Store:    a.store,
		Gate:     gate,
		Search:   search,
		Viewport: viewport,
	})
	a.mapPage = page
	a.searchInput.SetValue("")
	a.searchInput.Blur()
	a.searchFocused = false
	a.cursor = 0

	return func() tea.Msg {
		err := page.Mount(context.Background())
		if err != nil && !errors.Is(err, mapstate.ErrPageClosed) {
			return errMsg{err}
		}
		return mapMountedMsg{page: page}
	}
}

func (a *App) mountPins() tea.Cmd {
	if a.mapPage != nil {
		a.mapPage.Unmount()
		a.mapPage = nil
	}
	a.screen = ScreenPins
	list := a.list
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		list.Mount(ctx)
		return pinsLoadedMsg{}
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.table.SetHeight(max(3, a.height-8))
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.shutdown()
			return a, tea.Quit
		}
		switch a.screen {
		case ScreenPins:
			return a.updatePins(msg)
		case ScreenReview:
			return a.updateReview(msg)
		default:
			return a.updateMap(msg)
		}

	case mapMountedMsg:
		if msg.page != a.mapPage {
			return a, nil
		}
		a.err = ""
		return a, nil

	case retryDoneMsg:
		if msg.state == mapstate.PermissionGranted {
			a.info = "Location enabled"
		}
		return a, nil

	case pinsLoadedMsg:
		a.table.SetRows(pinRows(a.list.Pins()))
		return a, nil

	case pinCreatedMsg:
		a.store.Add(*msg.pin)
		a.store.ClearStaged()
		a.form = nil
		a.screen = ScreenMap
		a.info = fmt.Sprintf("Review %q saved", msg.pin.Title)
		a.err = ""
		return a, nil

	case errMsg:
		a.err = msg.err.Error()
		return a, nil

	case refreshMsg:
		a.clampCursor()
		return a, nil
	}
	return a, nil
}

func (a *App) shutdown() {
	if a.mapPage != nil {
		a.mapPage.Unmount()
	}
}

func (a *App) gridSize() (int, int) {
	w, h := 60, 15
	if a.width > 0 {
		w = max(20, a.width-4)
	}
	if a.height > 0 {
		h = max(5, a.height-14)
	}
	return w, h
}

func (a *App) updateMap(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := a.mapPage
	if page == nil {
		return a, nil
	}

	if a.searchFocused {
		return a.updateSearch(msg)
	}

	a.info = ""
	switch msg.String() {
	case "q":
		a.shutdown()
		return a, tea.Quit
	case "r":
		if page.Status() == mapstate.StatusPermissionBlocked {
			return a, func() tea.Msg {
				return retryDoneMsg{state: page.Retry(context.Background())}
			}
		}
		return a, nil
	}

	if !page.CanRenderMap() {
		return a, nil
	}

	w, h := a.gridSize()
	v := page.Snapshot().Viewport
	var moveErr error
	switch msg.String() {
	case "/":
		a.searchFocused = true
		return a, a.searchInput.Focus()
	case "b":
		page.DismissBanner()
	case "up", "k":
		moveErr = page.OnMapMove(pan(v, w, h, -1, 0))
	case "down", "j":
		moveErr = page.OnMapMove(pan(v, w, h, 1, 0))
	case "left", "h":
		moveErr = page.OnMapMove(pan(v, w, h, 0, -1))
	case "right", "l":
		moveErr = page.OnMapMove(pan(v, w, h, 0, 1))
	case "+", "=":
		moveErr = page.OnMapMove(zoom(v, 1))
	case "-":
		moveErr = page.OnMapMove(zoom(v, -1))
	case "a":
		center, err := page.AddReview()
		if err != nil {
			a.err = "Sign in to add a review"
			return a, nil
		}
		a.form = newReviewForm(center)
		a.screen = ScreenReview
		return a, a.form.focus()
	case "p":
		if a.cfg.Session.User() == nil {
			a.err = "Sign in to view your pins"
			return a, nil
		}
		return a, a.mountPins()
	}
	if moveErr != nil {
		a.logger.Debug("map move rejected", "error", moveErr)
	}
	return a, nil
}

func (a *App) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := a.mapPage
	suggestions := page.Snapshot().Suggestions

	switch msg.String() {
	case "esc":
		a.searchFocused = false
		a.searchInput.Blur()
		return a, nil
	case "up", "ctrl+p":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil
	case "down", "ctrl+n":
		if a.cursor < len(suggestions)-1 {
			a.cursor++
		}
		return a, nil
	case "enter":
		if a.cursor < len(suggestions) {
			s := suggestions[a.cursor]
			if err := page.OnSuggestionSelect(s); err != nil {
				a.err = err.Error()
				return a, nil
			}
			a.searchInput.SetValue(s.PlaceName)
			a.searchInput.CursorEnd()
			a.searchFocused = false
			a.searchInput.Blur()
			a.cursor = 0
		}
		return a, nil
	}

	before := a.searchInput.Value()
	var cmd tea.Cmd
	a.searchInput, cmd = a.searchInput.Update(msg)
	if after := a.searchInput.Value(); after != before {
		a.cursor = 0
		if err := page.OnInputChange(after); err != nil {
			a.logger.Debug("search input ignored", "error", err)
		}
	}
	return a, cmd
}

func (a *App) clampCursor() {
	if a.mapPage == nil {
		return
	}
	if n := len(a.mapPage.Snapshot().Suggestions); a.cursor >= n {
		a.cursor = max(0, n-1)
	}
}

func (a *App) updatePins(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "esc", "m":
		a.screen = ScreenMap
		return a, a.mountMap()
	}
	var cmd tea.Cmd
	a.table, cmd = a.table.Update(msg)
	return a, cmd
}

func (a *App) updateReview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.store.ClearStaged()
		a.form = nil
		a.screen = ScreenMap
		return a, nil
	case "enter", "ctrl+s":
		if msg.String() == "enter" && !a.form.onLastField() {
			return a, a.form.next()
		}
		in, err := a.form.newPin()
		if err != nil {
			a.err = err.Error()
			return a, nil
		}
		return a, a.createPin(in)
	case "tab", "down":
		return a, a.form.next()
	case "shift+tab", "up":
		return a, a.form.prev()
	}
	return a, a.form.update(msg)
}

func (a *App) createPin(in pin.NewPin) tea.Cmd {
	u := a.cfg.Session.User()
	if u == nil {
		return func() tea.Msg { return errMsg{mapstate.ErrNoSession} }
	}
	backend := a.cfg.Backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		created, err := backend.CreatePin(ctx, u.Token, in)
		if err != nil {
			return errMsg{err}
		}
		return pinCreatedMsg{pin: created}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	var body string
	switch a.screen {
	case ScreenPins:
		body = a.viewPins()
	case ScreenReview:
		body = a.viewReview()
	default:
		body = a.viewMap()
	}

	var status string
	if a.err != "" {
		status = ErrorStyle.Render(a.err)
	} else if a.info != "" {
		status = SuccessStyle.Render(a.info)
	}
	return lipgloss.JoinVertical(lipgloss.Left, a.header(), body, status)
}

func (a *App) header() string {
	title := "pinmap"
	if name := a.cfg.Session.Username(); name != "" {
		title += " · " + name
	} else {
		title += " · signed out"
	}
	return TitleStyle.Render(title)
}

func (a *App) viewMap() string {
	page := a.mapPage
	if page == nil {
		return ""
	}
	snap := page.Snapshot()

	switch {
	case snap.Status == mapstate.StatusLoadingPermission && !snap.ShowMap:
		return ModalStyle.Render("Requesting location access…")
	case !snap.ShowMap:
		return a.viewPermissionModal(snap)
	}

	var sections []string
	if snap.BannerVisible {
		sections = append(sections, BannerStyle.Render("Location is off; showing the default view. [r] enable  [b] dismiss"))
	}

	sections = append(sections, a.searchInput.View())
	for i, s := range snap.Suggestions {
		style := SuggestionStyle
		if a.searchFocused && i == a.cursor {
			style = SelectedSuggestionStyle
		}
		sections = append(sections, style.Render(s.PlaceName))
	}

	w, h := a.gridSize()
	grid := renderGrid(snap.Viewport, snap.Pins, w, h)
	sections = append(sections, MapStyle.Render(strings.Join(grid, "\n")))

	visible := visiblePins(snap.Viewport, snap.Pins, w, h)
	sections = append(sections, HelpDescStyle.Render(fmt.Sprintf(
		"%.5f, %.5f  zoom %.0f  %d of %d pins visible",
		snap.Viewport.Lat, snap.Viewport.Long, snap.Viewport.Zoom, len(visible), len(snap.Pins),
	)))

	help := []string{"/", "search", "←↑↓→", "pan", "+/-", "zoom"}
	if snap.CanAddReview {
		help = append(help, "a", "add review", "p", "my pins")
	}
	help = append(help, "q", "quit")
	sections = append(sections, FooterStyle.Render(helpLine(help...)))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a *App) viewPermissionModal(snap mapstate.MapSnapshot) string {
	lines := []string{
		LabelStyle.Render("Location Access Required"),
		"This application requires your location to function properly.",
		"",
	}
	switch snap.Permission {
	case mapstate.PermissionUnavailable:
		lines = append(lines, ErrorStyle.Render("Location is unavailable on this device."))
	case mapstate.PermissionDenied:
		lines = append(lines,
			HelpKeyStyle.Render("[r]")+" Enable Location Access",
			ErrorStyle.Render("Location access was denied. Please enable it in your settings."),
		)
	case mapstate.PermissionUnrequested:
		if snap.Username == "" {
			lines = append(lines, HelpDescStyle.Render("Sign in with `pinmap login` to use the map."))
		}
		lines = append(lines, HelpKeyStyle.Render("[r]")+" Enable Location Access")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		ModalStyle.Render(strings.Join(lines, "\n")),
		FooterStyle.Render(helpLine("r", "retry", "q", "quit")),
	)
}

func (a *App) viewPins() string {
	if a.cfg.Session.User() == nil {
		return ModalStyle.Render("Sign in to see your pins.")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		LabelStyle.Render(fmt.Sprintf("My Pins (%d)", len(a.table.Rows()))),
		a.table.View(),
		FooterStyle.Render(helpLine("↑↓", "move", "m", "map", "q", "quit")),
	)
}

func (a *App) viewReview() string {
	if a.form == nil {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		ModalStyle.Render(a.form.view()),
		FooterStyle.Render(helpLine("tab", "next field", "ctrl+s", "save", "esc", "cancel")),
	)
}

func newPinsTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Title", Width: 28},
			{Title: "Rating", Width: 8},
			{Title: "Lat", Width: 10},
			{Title: "Long", Width: 11},
			{Title: "Geohash", Width: 9},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(ColorAccent).Bold(true)
	styles.Selected = styles.Selected.Foreground(ColorBase).Background(ColorAccent)
	t.SetStyles(styles)
	return t
}

func pinRows(pins []pin.Pin) []table.Row {
	rows := make([]table.Row, len(pins))
	for i, p := range pins {
		rows[i] = table.Row{
			p.Title,
			stars(p.Rating),
			fmt.Sprintf("%.5f", p.Lat),
			fmt.Sprintf("%.5f", p.Long),
			p.Geohash,
		}
	}
	return rows
}

func stars(rating int) string {
	rating = min(max(rating, pin.MinRating), pin.MaxRating)
	return strings.Repeat("★", rating) + strings.Repeat("☆", pin.MaxRating-rating)
}
