package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sessionhold/internal/probe"
	"github.com/sessionhold/internal/worker"
)

// newTable returns a table in the theme's style. failed reports whether a
// body row should be highlighted as a failure.
func newTable(headers []string, rows [][]string, failed func(row int) bool) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(SkyBlue)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return HeaderCellStyle
			case col == 0 && failed(row):
				return CellStyle.Foreground(Error)
			case col == 0:
				return CellStyle.Foreground(Success)
			default:
				return CellStyle
			}
		})
}

// RenderResults renders one row per probe result.
func RenderResults(results []probe.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		mark := CheckMark
		if !r.Passed {
			mark = CrossMark
		}

		detail := ""
		switch {
		case r.Err != nil:
			detail = r.Err.Error()
		case r.Response != nil:
			detail = fmt.Sprintf("%s, %d bytes", r.Response.ContentType(), r.Response.Len())
		}

		rows = append(rows, []string{
			mark,
			r.Target,
			statusText(r.StatusCode()),
			formatLatency(r.Duration),
			truncate(detail, 60),
		})
	}

	t := newTable([]string{"", "TARGET", "STATUS", "LATENCY", "DETAIL"}, rows, func(row int) bool {
		return !results[row].Passed
	})
	return t.Render()
}

// RenderSummary renders the aggregated results of a run.
func RenderSummary(summaries []worker.Summary, elapsed time.Duration) string {
	var total, failures int64
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		total += s.Probes
		failures += s.Failures

		mark := CheckMark
		if s.Failures > 0 {
			mark = CrossMark
		}
		rows = append(rows, []string{
			mark,
			s.Target,
			fmt.Sprintf("%d", s.Probes),
			fmt.Sprintf("%.1f%%", s.FailureRate()*100),
			fmt.Sprintf("%d", s.Allocations),
			formatLatency(s.P50),
			formatLatency(s.P95),
			formatLatency(s.P99),
			formatLatency(s.Max),
		})
	}

	t := newTable(
		[]string{"", "TARGET", "PROBES", "FAILED", "SESSIONS", "P50", "P95", "P99", "MAX"},
		rows,
		func(row int) bool { return summaries[row].Failures > 0 },
	)

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		MiniLogo(),
		"  ",
		TitleStyle.Render(" RUN SUMMARY "),
	)
	overview := fmt.Sprintf("%s %s   %s %s   %s %s",
		LabelStyle.Render("Duration:"), ValueStyle.Render(elapsed.Round(time.Second).String()),
		LabelStyle.Render("Probes:"), ValueStyle.Render(fmt.Sprintf("%d", total)),
		LabelStyle.Render("Failed:"), coloredFailures(failures, total),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, "", overview, t.Render())
}

func coloredFailures(failures, total int64) string {
	s := fmt.Sprintf("%d", failures)
	switch {
	case failures == 0:
		return SuccessStyle.Render(s)
	case total > 0 && float64(failures)/float64(total) < 0.05:
		return WarningStyle.Render(s)
	default:
		return ErrorStyle.Render(s)
	}
}

func statusText(code int) string {
	if code == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", code)
}

func formatLatency(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
