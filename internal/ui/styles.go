package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

func ParseColorMode(s string) (string, error) {
	switch s {
	case ColorAuto, ColorAlways, ColorNever:
		return s, nil
	}
	return "", fmt.Errorf("invalid color mode %q (want %s, %s or %s)", s, ColorAuto, ColorAlways, ColorNever)
}

// NewRenderer binds lipgloss to w. In auto mode the profile follows w, so
// piped output is plain.
func NewRenderer(w io.Writer, mode string) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	switch mode {
	case ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	}
	return r
}

type Styles struct {
	Title  lipgloss.Style
	Banner lipgloss.Style
	Header lipgloss.Style
	Error  lipgloss.Style
}

func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")),
		Banner: r.NewStyle().
			Foreground(lipgloss.Color("63")),
		Header: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")),
		Error: r.NewStyle().
			Foreground(lipgloss.Color("196")),
	}
}
