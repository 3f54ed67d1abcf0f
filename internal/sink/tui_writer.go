package sink

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"loadprobe/internal/config"
	"loadprobe/internal/record"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a request line for the main viewport.
type logMsg struct{ line string }

// firstMsg carries a first-occurrence line for the breakpoint section.
type firstMsg struct{ line string }

// statusMsg carries a run status update.
type statusMsg struct{ record.RunStatus }

// adminMsg reports admin server status.
type adminMsg struct{ active bool }

const (
	maxLogLines         = 1000
	maxSectionHeightPct = 0.2
)

// TUIWriter renders a load run using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the TUI interrupts the process so the run stops and prints its report.
func NewTUIWriter(cfg *config.LoadTestConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteRequest implements RequestWriter.
func (w *TUIWriter) WriteRequest(row record.RequestRow) error {
	line := requestLine(row)
	w.program.Send(logMsg{line: line})
	if row.FirstOf != "" {
		w.program.Send(firstMsg{line: fmt.Sprintf("%s[%s]%s %s%s%s at iteration %d (vu=%d room=%s status=%d)",
			colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
			colorRed, row.FirstOf, colorReset, row.Iteration, row.VU, row.RoomID, row.Status)})
	}
	return nil
}

// WriteRequests sends multiple rows.
func (w *TUIWriter) WriteRequests(rows []record.RequestRow) error {
	for _, r := range rows {
		_ = w.WriteRequest(r)
	}
	return nil
}

// WriteStatus implements StatusWriter.
func (w *TUIWriter) WriteStatus(st record.RunStatus) error {
	w.program.Send(statusMsg{st})
	return nil
}

// SetAdminStatus updates the admin server indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg          *config.LoadTestConfig
	table        table.Model
	vp           viewport.Model
	firstVP      viewport.Model
	logs         []string
	firstLogs    []string
	status       record.RunStatus
	admin        bool
	wrap         bool
	autoscroll   bool
	help         bool
	header       string
	headerHeight int
	height       int
}

func newTUIModel(cfg *config.LoadTestConfig) tuiModel {
	if cfg == nil {
		cfg = &config.LoadTestConfig{}
	}
	cols := []table.Column{
		{Title: "Config", Width: 14},
		{Title: "Value", Width: 30},
		{Title: "Config", Width: 14},
		{Title: "Value", Width: 20},
	}
	budget := "unbounded"
	switch {
	case cfg.Iterations > 0:
		budget = fmt.Sprintf("%d iterations", cfg.Iterations)
	case cfg.Duration > 0:
		budget = cfg.Duration.String()
	}
	rows := []table.Row{
		{"Target", cfg.Target + cfg.Path, "Profile", cfg.Profile},
		{"Virtual Users", fmt.Sprintf("%d", cfg.VUs), "Budget", budget},
		{"Room Mode", string(cfg.RoomMode), "Think Time", fmt.Sprintf("%s-%s", cfg.ThinkMin, cfg.ThinkMax)},
		{"Timeout", cfg.Timeout.String(), "Max RPS", fmt.Sprintf("%.0f", cfg.MaxRPS)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	m := tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		firstVP:    viewport.New(0, 0),
		autoscroll: true,
	}
	m.header = m.renderHeader()
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.firstVP.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshFirsts()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.firstVP.GotoBottom()
			}
			return m, nil
		case "h", "?":
			m.help = !m.help
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case firstMsg:
		m.firstLogs = append(m.firstLogs, msg.line)
		m.updateViewportHeight()
		m.refreshFirsts()
		m.refreshViewport()
	case statusMsg:
		m.status = msg.RunStatus
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	if m.height == 0 {
		return
	}
	maxLines := int(float64(m.height) * maxSectionHeightPct)
	if maxLines < 1 {
		maxLines = 1
	}
	m.firstVP.Height = min(max(len(m.firstLogs), 1), maxLines)

	bottomHeight := lipgloss.Height(m.renderBottom())
	h := m.height - m.headerHeight - bottomHeight - (1 + m.firstVP.Height) - 3
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
		m.firstVP.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshFirsts() {
	content := "none detected"
	if len(m.firstLogs) > 0 {
		content = strings.Join(m.firstLogs, "\n")
	}
	m.firstVP.SetContent(content)
	if m.autoscroll {
		m.firstVP.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		"First Occurrences:",
		m.firstVP.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}

func (m tuiModel) renderHeader() string {
	return m.table.View()
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func latchText(it int64) string {
	if it == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", it)
}

func (m tuiModel) renderBottom() string {
	st := m.status
	state := fmt.Sprintf("%s | %sfirst timeout=%s error=%s slowdown=%s%s",
		statusLine(st), colorRed,
		latchText(st.FirstTimeout), latchText(st.FirstError), latchText(st.FirstRateLimit), colorReset)
	return fmt.Sprintf("%s\nAdmin %s | Wrap %s | Scroll %s | Help %s",
		state, indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), indicator(m.help))
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit and print the report",
		" w  toggle wrap for request lines",
		" s  toggle auto-scroll",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
