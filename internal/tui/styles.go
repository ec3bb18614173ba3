package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorBase    = lipgloss.Color("#1B2026")
	ColorSurface = lipgloss.Color("#283039")
	ColorMuted   = lipgloss.Color("#7D8895")
	ColorText    = lipgloss.Color("#D8DEE6")
	ColorAccent  = lipgloss.Color("#7FB4CA")
	ColorGreen   = lipgloss.Color("#a6e3a1")
	ColorRed     = lipgloss.Color("#f38ba8")
	ColorYellow  = lipgloss.Color("#f9e2af")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorMuted)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(ColorMuted)

	MapStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted)

	MarkerStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	CenterStyle = lipgloss.NewStyle().
			Foreground(ColorAccent)

	SuggestionStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(0, 1)

	SelectedSuggestionStyle = lipgloss.NewStyle().
				Foreground(ColorBase).
				Background(ColorAccent).
				Padding(0, 1)

	ModalStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(1, 3).
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(ColorAccent)

	BannerStyle = lipgloss.NewStyle().
			Foreground(ColorBase).
			Background(ColorYellow).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorAccent)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Padding(0, 1)
)

// helpLine renders "key desc" pairs for the footer.
func helpLine(pairs ...string) string {
	out := ""
	for i := 0; i+1 < len(pairs); i += 2 {
		if out != "" {
			out += HelpDescStyle.Render("  ")
		}
		out += HelpKeyStyle.Render(pairs[i]) + " " + HelpDescStyle.Render(pairs[i+1])
	}
	return out
}
