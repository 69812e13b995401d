package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var bannerColors = []lipgloss.Color{
	lipgloss.Color("#FF6B6B"),
	lipgloss.Color("#FFA86B"),
	lipgloss.Color("#95E1D3"),
	lipgloss.Color("#4ECDC4"),
	lipgloss.Color("#FF6B6B"),
}

var logoLines = []string{
	"┏━╸┏━╸┏━╸╺┳┓┏━┓",
	"┣╸ ┣╸ ┣╸  ┃┃┃┓┃",
	"╹  ┗━╸┗━╸╺┻┛┗┻┛",
}

func renderBanner(listen, feedURL string) string {
	lines := append([]string{}, logoLines...)
	lines = append(lines, "", "feed relay queue "+Version)

	var colored []string
	for i, line := range lines {
		if line == "" {
			colored = append(colored, line)
			continue
		}
		style := lipgloss.NewStyle().
			Foreground(bannerColors[i%len(bannerColors)]).
			Bold(i < len(logoLines))
		colored = append(colored, style.Render(line))
	}

	border := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(1, 3)

	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
	details := []string{muted.Render("feed  " + feedURL)}
	if listen != "" {
		details = append(details, muted.Render("admin http://"+listen))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		border.Render(lipgloss.JoinVertical(lipgloss.Center, colored...)),
		lipgloss.JoinVertical(lipgloss.Left, details...),
	)
}

func showBanner(w io.Writer, listen, feedURL string) {
	fmt.Fprintln(w, renderBanner(listen, feedURL))
	fmt.Fprintln(w)
}
