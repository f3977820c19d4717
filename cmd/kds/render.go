package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/appetiteclub/appetite-client/internal/kitchen"
	"github.com/appetiteclub/appetite-client/internal/order"
	"golang.org/x/term"
)

const clearScreen = "\033[H\033[2J"

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// terminalWidth falls back to 100 columns when stdout is not a terminal.
func terminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}

// renderView writes the board as plain text. Dish lists are cut to width.
func renderView(out io.Writer, v kitchen.View, width int) {
	header := fmt.Sprintf("%s | role %s | filter %s | %s", v.Profile, v.Role.Label(), v.Filter, v.Connection)
	if !v.LastRefresh.IsZero() {
		header += " | refreshed " + v.LastRefresh.Local().Format("15:04:05")
	}
	fmt.Fprintln(out, header)

	counts := make([]string, 0, len(kitchen.Filters))
	for _, f := range kitchen.Filters {
		counts = append(counts, fmt.Sprintf("%s:%d", f, v.Counts[f]))
	}
	fmt.Fprintln(out, strings.Join(counts, "  "))

	if v.Disconnected {
		fmt.Fprintln(out, "!! live updates lost, showing the last known queue")
	} else if v.Stale {
		fmt.Fprintln(out, "!! queue may be out of date")
	}
	if v.Banner != nil {
		fmt.Fprintf(out, "!! %s\n", v.Banner.Message)
		if v.Banner.Suggestion != "" {
			fmt.Fprintf(out, "   %s\n", v.Banner.Suggestion)
		}
	}
	fmt.Fprintln(out)

	if len(v.Rows) == 0 {
		fmt.Fprintln(out, "no orders")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tORDER\tTABLE\tSTATUS\tWAIT\tDISHES")
	for _, r := range v.Rows {
		fmt.Fprintf(tw, "%s\t#%d\t%d\t%s\t%s\t%s\n",
			marker(r), r.ID, r.Table, r.Meta.Label, r.Elapsed, truncate(dishes(r.Items), width/2))
	}
	tw.Flush()
}

func marker(r kitchen.Row) string {
	switch {
	case r.InFlight:
		return "~"
	case r.StatusUrgent || r.TimeUrgent:
		return "!"
	}
	return " "
}

func dishes(items []order.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		name := it.DishName
		if name == "" {
			name = fmt.Sprintf("dish %d", it.Dish)
		}
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, name))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
