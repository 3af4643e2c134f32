package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"                         _                         _     ", "#818cf8"},
	{"   __ _  __ _  ___ _ __ | |_ __ _ _ __ __ _ _ __ | |__  ", "#a78bfa"},
	{"  / _` |/ _` |/ _ \\ '_ \\| __/ _` | '__/ _` | '_ \\| '_ \\ ", "#c084fc"},
	{" | (_| | (_| |  __/ | | | || (_| | | | (_| | |_) | | | |", "#e879f9"},
	{"  \\__,_|\\__, |\\___|_| |_|\\__\\__, |_|  \\__,_| .__/|_| |_|", "#f472b6"},
	{"        |___/               |___/          |_|          ", "#fb7185"},
}

// PrintBanner writes the agentgraph banner to w, colored when w supports it.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
