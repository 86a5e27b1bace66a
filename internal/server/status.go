package server

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ice-blockchain/go-rwsplit/pool"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// RenderStatus prints one block per group. Colors are used only when color
// is set, e.g. when the output is a terminal.
func RenderStatus(w io.Writer, groups []pool.GroupHealth, color bool) error {
	paint := func(style lipgloss.Style, s string) string {
		if !color {
			return s
		}
		return style.Render(s)
	}

	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteString("\n")
		}
		status := paint(upStyle, g.Status)
		if g.Status != pool.StatusUp {
			status = paint(downStyle, g.Status)
		}
		fmt.Fprintf(&b, "%s %s (primary %s)\n", paint(headerStyle, g.Group), status, g.Primary)

		names := make([]string, 0, len(g.Replicas))
		for name := range g.Replicas {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			st := g.Replicas[name]
			state := paint(upStyle, "available")
			if !st.Available {
				state = paint(downStyle, "unavailable")
			}
			lag := paint(dimStyle, "lag unknown")
			if st.LagMs != nil {
				lag = fmt.Sprintf("lag %dms", *st.LagMs)
			}
			fmt.Fprintf(&b, "  %-24s %s  %s  failures=%d\n", name, state, lag, st.Failures)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
