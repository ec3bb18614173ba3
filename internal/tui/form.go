package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/onnwee/pinmap/internal/pin"
)

const (
	fieldTitle = iota
	fieldDesc
	fieldRating
	fieldCount
)

var errTitleRequired = errors.New("title is required")

// reviewForm collects a new review for the staged location.
type reviewForm struct {
	at     pin.Point
	inputs []textinput.Model
	active int
}

func newReviewForm(at pin.Point) *reviewForm {
	inputs := make([]textinput.Model, fieldCount)

	inputs[fieldTitle] = textinput.New()
	inputs[fieldTitle].Placeholder = "Title"
	inputs[fieldTitle].CharLimit = 120
	inputs[fieldTitle].Width = 40

	inputs[fieldDesc] = textinput.New()
	inputs[fieldDesc].Placeholder = "Description"
	inputs[fieldDesc].CharLimit = 1000
	inputs[fieldDesc].Width = 40

	inputs[fieldRating] = textinput.New()
	inputs[fieldRating].Placeholder = fmt.Sprintf("Rating %d-%d", pin.MinRating, pin.MaxRating)
	inputs[fieldRating].CharLimit = 1
	inputs[fieldRating].Width = 12
	inputs[fieldRating].Validate = func(s string) error {
		if s == "" {
			return nil
		}
		_, err := strconv.Atoi(s)
		return err
	}

	return &reviewForm{at: at, inputs: inputs}
}

func (f *reviewForm) focus() tea.Cmd {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	return f.inputs[f.active].Focus()
}

func (f *reviewForm) next() tea.Cmd {
	f.active = (f.active + 1) % fieldCount
	return f.focus()
}

func (f *reviewForm) prev() tea.Cmd {
	f.active = (f.active + fieldCount - 1) % fieldCount
	return f.focus()
}

func (f *reviewForm) onLastField() bool {
	return f.active == fieldCount-1
}

func (f *reviewForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.active], cmd = f.inputs[f.active].Update(msg)
	return cmd
}

// newPin validates the form into a create request.
func (f *reviewForm) newPin() (pin.NewPin, error) {
	title := strings.TrimSpace(f.inputs[fieldTitle].Value())
	if title == "" {
		return pin.NewPin{}, errTitleRequired
	}
	rating, err := strconv.Atoi(strings.TrimSpace(f.inputs[fieldRating].Value()))
	if err != nil || rating < pin.MinRating || rating > pin.MaxRating {
		return pin.NewPin{}, pin.ErrInvalidRating
	}
	return pin.NewPin{
		Title:       title,
		Description: strings.TrimSpace(f.inputs[fieldDesc].Value()),
		Rating:      rating,
		Lat:         f.at.Lat,
		Long:        f.at.Long,
	}, nil
}

func (f *reviewForm) view() string {
	labels := []string{"Title", "Description", "Rating"}
	lines := []string{
		LabelStyle.Render("Add Review"),
		HelpDescStyle.Render(fmt.Sprintf("at %.5f, %.5f", f.at.Lat, f.at.Long)),
		"",
	}
	for i, in := range f.inputs {
		lines = append(lines, HelpKeyStyle.Render(labels[i]), in.View(), "")
	}
	return strings.Join(lines, "\n")
}
