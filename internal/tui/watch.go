package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sessionhold/internal/health"
)

// checkedMsg carries the statuses produced by one round of checks.
type checkedMsg []health.Status

// recycledMsg is sent once every session has been closed on request.
type recycledMsg struct{ err error }

// tickMsg schedules the next round.
type tickMsg time.Time

// Watcher is the subset of health.Checker the dashboard drives.
type Watcher interface {
	CheckAll(ctx context.Context) []health.Status
	Statuses() []health.Status
	Recycle(ctx context.Context) error
}

// WatchModel is a live dashboard of target health. At most one round of
// checks is in flight at any time.
type WatchModel struct {
	ctx      context.Context
	checker  Watcher
	interval time.Duration
	spinner  spinner.Model
	statuses []health.Status
	checking bool
	rounds   int
	lastRun  time.Time
	notice   string
	width    int
}

// NewWatchModel creates the dashboard. ctx bounds every check it runs.
func NewWatchModel(ctx context.Context, checker Watcher, interval time.Duration) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = InfoStyle

	return WatchModel{
		ctx:      ctx,
		checker:  checker,
		interval: interval,
		spinner:  s,
		statuses: checker.Statuses(),
		width:    80,
	}
}

// Init starts the first round immediately.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg { return tickMsg(time.Now()) })
}

func (m WatchModel) check() tea.Cmd {
	return func() tea.Msg {
		return checkedMsg(m.checker.CheckAll(m.ctx))
	}
}

func (m WatchModel) recycle() tea.Cmd {
	return func() tea.Msg {
		return recycledMsg{err: m.checker.Recycle(m.ctx)}
	}
}

func (m WatchModel) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "c", "enter":
			if m.checking {
				return m, nil
			}
			m.checking = true
			return m, m.check()
		case "r":
			if m.checking {
				return m, nil
			}
			m.checking = true
			return m, m.recycle()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		if m.checking {
			return m, m.schedule()
		}
		m.checking = true
		return m, tea.Batch(m.check(), m.schedule())

	case checkedMsg:
		m.checking = false
		m.statuses = msg
		m.rounds++
		m.lastRun = time.Now()
		return m, nil

	case recycledMsg:
		m.checking = false
		m.statuses = m.checker.Statuses()
		if msg.err != nil {
			m.notice = ErrorStyle.Render("recycle: " + msg.err.Error())
		} else {
			m.notice = DimStyle.Render("sessions recycled")
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the dashboard
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString("\n")

	healthy := 0
	for _, st := range m.statuses {
		if st.Healthy {
			healthy++
		}
	}

	activity := DimStyle.Render("idle")
	if m.checking {
		activity = m.spinner.View() + " " + DimStyle.Render("checking")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		MiniLogo(),
		"  ",
		TitleStyle.Render(" WATCH "),
		"  ",
		activity,
	)
	b.WriteString(lipgloss.Place(m.width, 0, lipgloss.Center, lipgloss.Top, header))
	b.WriteString("\n\n")

	ratio := 0.0
	if len(m.statuses) > 0 {
		ratio = float64(healthy) / float64(len(m.statuses))
	}
	overview := lipgloss.JoinVertical(lipgloss.Left,
		SubtitleStyle.Render("Healthy targets"),
		fmt.Sprintf("  %s %s", ValueStyle.Render(fmt.Sprintf("%d", healthy)), DimStyle.Render(fmt.Sprintf("/ %d", len(m.statuses)))),
		"  "+ProgressBar(ratio, 40),
		"",
		fmt.Sprintf("%s %s   %s %s",
			LabelStyle.Render("Rounds:"), ValueStyle.Render(fmt.Sprintf("%d", m.rounds)),
			LabelStyle.Render("Last:"), ValueStyle.Render(lastRun(m.lastRun))),
	)

	rows := make([]string, 0, len(m.statuses))
	for _, st := range m.statuses {
		rows = append(rows, m.renderStatus(st))
	}
	targets := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{SubtitleStyle.Render("Targets"), ""}, rows...)...)

	content := lipgloss.JoinVertical(lipgloss.Left, overview, "", Divider(60), "", targets)
	b.WriteString(lipgloss.Place(m.width, 0, lipgloss.Center, lipgloss.Top, BorderStyle.Width(72).Render(content)))

	if m.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(lipgloss.Place(m.width, 0, lipgloss.Center, lipgloss.Top, m.notice))
	}

	b.WriteString("\n\n")
	b.WriteString(lipgloss.Place(m.width, 0, lipgloss.Center, lipgloss.Top,
		HelpStyle.Render("C: check now • R: recycle sessions • Q: exit")))

	return b.String()
}

func (m WatchModel) renderStatus(st health.Status) string {
	var mark string
	switch {
	case !st.Checked:
		mark = DimStyle.Render(Pending)
	case st.Healthy:
		mark = SuccessStyle.Render(CheckMark)
	default:
		mark = ErrorStyle.Render(CrossMark)
	}

	detail := DimStyle.Render("waiting")
	if st.Checked {
		detail = fmt.Sprintf("%s %s %s",
			ValueStyle.Render(statusText(st.Last.StatusCode())),
			DimStyle.Render(formatLatency(st.Last.Duration)),
			DimStyle.Render(fmt.Sprintf("%d/%d failed, %s for %s",
				st.Failures, st.Checks, st.Last.State, time.Since(st.Since).Round(time.Second))))
		if st.Last.Err != nil {
			detail += "\n    " + ErrorStyle.Render(truncate(st.Last.Err.Error(), 60))
		}
	}

	return fmt.Sprintf("  %s %s %s %s", mark, LabelStyle.Render(st.Target), DimStyle.Render("("+string(st.Backend)+")"), detail)
}

func lastRun(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.TimeOnly)
}
