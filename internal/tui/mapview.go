package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/onnwee/pinmap/internal/mapstate"
	"github.com/onnwee/pinmap/internal/pin"
)

// Zoom bounds for keyboard navigation.
const (
	minZoom = 0
	maxZoom = 20
)

// Terminal cells are roughly twice as tall as they are wide.
const cellAspect = 2.0

// span returns the longitude and latitude covered by a w x h grid at v.
func span(v mapstate.Viewport, w, h int) (lngSpan, latSpan float64) {
	lngSpan = 360 / math.Pow(2, v.Zoom)
	lngPerCell := lngSpan / float64(w)
	latSpan = lngPerCell * cellAspect * float64(h)
	return lngSpan, latSpan
}

// gridPos maps a coordinate to a cell, reporting false when it is off screen.
func gridPos(v mapstate.Viewport, w, h int, lat, long float64) (row, col int, ok bool) {
	lngSpan, latSpan := span(v, w, h)
	west := v.Long - lngSpan/2
	north := v.Lat + latSpan/2

	dx := long - west
	// Wrap across the antimeridian.
	for dx < 0 {
		dx += 360
	}
	for dx >= 360 {
		dx -= 360
	}

	col = int(dx / (lngSpan / float64(w)))
	row = int((north - lat) / (latSpan / float64(h)))
	if col < 0 || col >= w || row < 0 || row >= h || north-lat < 0 {
		return 0, 0, false
	}
	return row, col, true
}

// renderGrid draws pins as markers around the viewport center. Cells holding
// several pins show the count.
func renderGrid(v mapstate.Viewport, pins []pin.Pin, w, h int) []string {
	if w < 1 || h < 1 {
		return nil
	}
	counts := make([][]int, h)
	for i := range counts {
		counts[i] = make([]int, w)
	}
	for _, p := range pins {
		if row, col, ok := gridPos(v, w, h, p.Lat, p.Long); ok {
			counts[row][col]++
		}
	}

	cr, cc := h/2, w/2
	lines := make([]string, h)
	for r := 0; r < h; r++ {
		var b strings.Builder
		for c := 0; c < w; c++ {
			switch n := counts[r][c]; {
			case n == 1:
				b.WriteString(MarkerStyle.Render("●"))
			case n > 1 && n < 10:
				b.WriteString(MarkerStyle.Render(fmt.Sprint(n)))
			case n >= 10:
				b.WriteString(MarkerStyle.Render("+"))
			case r == cr && c == cc:
				b.WriteString(CenterStyle.Render("⌖"))
			default:
				b.WriteString(" ")
			}
		}
		lines[r] = b.String()
	}
	return lines
}

// visiblePins returns the pins inside the grid, in store order.
func visiblePins(v mapstate.Viewport, pins []pin.Pin, w, h int) []pin.Pin {
	var out []pin.Pin
	for _, p := range pins {
		if _, _, ok := gridPos(v, w, h, p.Lat, p.Long); ok {
			out = append(out, p)
		}
	}
	return out
}

// pan shifts v by a quarter screen in the given direction.
func pan(v mapstate.Viewport, w, h, dRow, dCol int) mapstate.Viewport {
	lngSpan, latSpan := span(v, w, h)
	v.Long += float64(dCol) * lngSpan / 4
	v.Lat -= float64(dRow) * latSpan / 4

	v.Lat = math.Max(-85, math.Min(85, v.Lat))
	for v.Long > 180 {
		v.Long -= 360
	}
	for v.Long < -180 {
		v.Long += 360
	}
	return v
}

// zoom changes v's zoom by delta within the keyboard bounds.
func zoom(v mapstate.Viewport, delta float64) mapstate.Viewport {
	v.Zoom = math.Max(minZoom, math.Min(maxZoom, math.Round(v.Zoom)+delta))
	return v
}
