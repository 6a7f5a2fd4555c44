package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/mindbase/internal/models"
)

// Terminal palette.
var (
	colorAccent = lipgloss.Color("#5FAFD7")
	colorOK     = lipgloss.Color("#00D787")
	colorErr    = lipgloss.Color("#FF005F")
	colorDim    = lipgloss.Color("#6C6C6C")
	colorStar   = lipgloss.Color("#FFD700")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	idStyle     = lipgloss.NewStyle().Foreground(colorDim)
	starStyle   = lipgloss.NewStyle().Foreground(colorStar)
	labelStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	promptStyle = lipgloss.NewStyle().Foreground(colorAccent)
	hintStyle   = lipgloss.NewStyle().Foreground(colorDim).Italic(true)
	okStyle     = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(colorErr).Bold(true)
)

// itemTitle picks the best one-line label for an item.
func itemTitle(item models.SavedItem) string {
	if t := models.Deref(item.Title); t != "" {
		return t
	}
	if u := models.Deref(item.SourceURL); u != "" {
		return u
	}
	return models.Truncate(strings.Join(strings.Fields(item.RawContent), " "), 60, "...")
}

// printItemLine writes a compact listing entry.
func printItemLine(w io.Writer, n int, item models.SavedItem) {
	star := ""
	if item.IsStarred {
		star = starStyle.Render(" ★")
	}
	prefix := "-"
	if n > 0 {
		prefix = fmt.Sprintf("%d.", n)
	}
	fmt.Fprintf(w, "%s %s%s %s\n", prefix, titleStyle.Render(itemTitle(item)), star,
		idStyle.Render(fmt.Sprintf("(%s, %s)", item.ID, item.ContentType)))

	if summary := models.Deref(item.AISummary); summary != "" {
		fmt.Fprintf(w, "   %s\n", models.Truncate(summary, 120, "..."))
	}
	if verbose && len(item.Categories) > 0 {
		fmt.Fprintf(w, "   %s\n", labelStyle.Render(strings.Join(item.Categories, ", ")))
	}
}

// printItem writes every field of an item worth showing.
func printItem(w io.Writer, item models.SavedItem) {
	fmt.Fprintf(w, "%s\n", titleStyle.Render(itemTitle(item)))
	fmt.Fprintf(w, "  ID:        %s\n", item.ID)
	fmt.Fprintf(w, "  Type:      %s\n", item.ContentType)
	fmt.Fprintf(w, "  Platform:  %s\n", item.SourcePlatform)
	if u := models.Deref(item.SourceURL); u != "" {
		fmt.Fprintf(w, "  URL:       %s\n", u)
	}
	if len(item.Categories) > 0 {
		fmt.Fprintf(w, "  Categories: %s\n", labelStyle.Render(strings.Join(item.Categories, ", ")))
	}
	if item.IsStarred {
		fmt.Fprintf(w, "  Starred:   %s\n", starStyle.Render("★"))
	}
	fmt.Fprintf(w, "  Saved:     %s\n", item.CreatedAt.Local().Format(time.DateTime))

	if summary := models.Deref(item.AISummary); summary != "" {
		fmt.Fprintf(w, "\nSummary:\n  %s\n", summary)
	}
	if desc := models.Deref(item.Description); desc != "" {
		fmt.Fprintf(w, "\nDescription:\n  %s\n", desc)
	}
	if notes := models.Deref(item.Notes); notes != "" {
		fmt.Fprintf(w, "\nNotes:\n  %s\n", notes)
	}
	if verbose {
		if text := models.Deref(item.ExtractedText); text != "" {
			fmt.Fprintf(w, "\nExtracted text:\n%s\n", text)
		}
	}
}
