// Package report formats league balance projections for people.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"

	"github.com/rewired-gh/kickbalance/internal/models"
)

// Kickbase amounts are whole euros, printed the German way: 1.234.567 €
var euro = money.NewFormatter(0, ",", ".", "€", "1 $")

// EUR formats a whole-euro amount.
func EUR(amount int64) string {
	return euro.Format(amount)
}

// Range formats an inclusive amount range, collapsing it when both ends agree.
func Range(min, max int64) string {
	if min == max {
		return EUR(min)
	}
	return EUR(min) + " – " + EUR(max)
}

// Markdown renders one league's projections as a markdown document with a table.
// Failed users are listed after the table with their error.
func Markdown(leagueName string, rows []models.UserProjection, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", leagueName)
	fmt.Fprintf(&b, "_Projected %s_\n\n", now.UTC().Format("2006-01-02 15:04 MST"))

	b.WriteString("| Manager | Points | Balance | Team value | Max bid |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")

	var failed []models.UserProjection
	for _, row := range rows {
		if row.Failed() {
			failed = append(failed, row)
			continue
		}
		p := row.Projection
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s |\n",
			escapeCell(row.User.Name),
			row.User.Points,
			Range(p.Balance.Min, p.Balance.Max),
			EUR(p.TeamValueNow),
			Range(p.MaxBid.Min, p.MaxBid.Max),
		)
	}

	if len(failed) > 0 {
		b.WriteString("\n**Not projected**\n\n")
		for _, row := range failed {
			fmt.Fprintf(&b, "- %s: %v\n", row.User.Name, row.Err)
		}
	}

	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Render turns markdown into styled terminal output. style is a glamour
// standard style name such as "dark", "light" or "notty".
func Render(markdown string, style string) (string, error) {
	out, err := glamour.Render(markdown, style)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}
