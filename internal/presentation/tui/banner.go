package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for appflow to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	// Using a subtle gradient-like color scheme (Indigo/Violet)
	lines := []struct {
		text  string
		color string
	}{
		{"                    __ _               ", "#818cf8"},
		{"   __ _ _ __  _ __ / _| | _____      __", "#a78bfa"},
		{"  / _` | '_ \\| '_ \\ |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
		{" | (_| | |_) | |_) |  _| | (_) \\ V  V / ", "#e879f9"},
		{"  \\__,_| .__/| .__/|_| |_|\\___/ \\_/\\_/  ", "#f472b6"},
		{"       |_|   |_|                        ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, out.String("  v"+version).Faint())
	}
	fmt.Fprintln(w)
}
