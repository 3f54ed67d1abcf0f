package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"loadprobe/internal/config"
	"loadprobe/internal/record"
)

// StdoutWriter prints request rows to STDOUT, colorized on a terminal and as
// JSON lines otherwise.
type StdoutWriter struct {
	cfg      *config.LoadTestConfig
	out      io.Writer
	colorize bool
	once     sync.Once
	mu       sync.Mutex
}

// NewStdoutWriter creates a StdoutWriter. Colors are used when STDOUT is a terminal.
func NewStdoutWriter(cfg *config.LoadTestConfig) *StdoutWriter {
	return &StdoutWriter{cfg: cfg, out: os.Stdout, colorize: StdoutIsTerminal()}
}

// NewJSONStdoutWriter creates a StdoutWriter that always prints JSON.
func NewJSONStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout}
}

func (w *StdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}
	c := w.cfg
	fmt.Fprintln(w.out, "Load Test Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Target:\t%s%s\n", c.Target, c.Path)
	fmt.Fprintf(tw, "Profile:\t%s\n", c.Profile)
	fmt.Fprintf(tw, "Virtual Users:\t%d\n", c.VUs)
	if c.Iterations > 0 {
		fmt.Fprintf(tw, "Iterations:\t%d\n", c.Iterations)
	}
	if c.Duration > 0 {
		fmt.Fprintf(tw, "Duration:\t%s\n", c.Duration)
	}
	fmt.Fprintf(tw, "Think Time:\t%s - %s\n", c.ThinkMin, c.ThinkMax)
	fmt.Fprintf(tw, "Timeout:\t%s\n", c.Timeout)
	fmt.Fprintf(tw, "Room Mode:\t%s\n", c.RoomMode)
	fmt.Fprintf(tw, "Rooms File:\t%s\n", c.RoomsFile)
	tw.Flush()
	fmt.Fprintln(w.out)
}

// WriteRequest outputs a single request row.
func (w *StdoutWriter) WriteRequest(row record.RequestRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.colorize {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		fmt.Fprintln(w.out, string(data))
		return nil
	}
	w.once.Do(w.printOverview)
	fmt.Fprintln(w.out, requestLine(row))
	return nil
}

// WriteRequests outputs multiple request rows.
func (w *StdoutWriter) WriteRequests(rows []record.RequestRow) error {
	for _, r := range rows {
		if err := w.WriteRequest(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteStatus prints a status line. JSON mode skips status to keep the
// stream one row type.
func (w *StdoutWriter) WriteStatus(st record.RunStatus) error {
	if !w.colorize {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, statusLine(st))
	return nil
}

func requestLine(row record.RequestRow) string {
	vuColor := vuPalette[row.VU%len(vuPalette)]
	line := fmt.Sprintf("%s[%s]%s %sit=%d%s %svu=%d%s %sroom=%s%s %sstatus=%d%s %s%s%s %slatency=%.1fms%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorWhite, row.Iteration, colorReset,
		vuColor, row.VU, colorReset,
		colorBlue, row.RoomID, colorReset,
		colorCyan, row.Status, colorReset,
		outcomeColor(row.Outcome), row.Outcome, colorReset,
		colorYellow, row.LatencyMs, colorReset,
	)
	if row.Marker != "" {
		line += fmt.Sprintf(" %smarker=%s%s", colorMagenta, row.Marker, colorReset)
	}
	if row.FirstOf != "" {
		line += fmt.Sprintf(" %sFIRST %s%s", colorRed, row.FirstOf, colorReset)
	}
	return line
}

func statusLine(st record.RunStatus) string {
	return fmt.Sprintf("%sSTATUS%s vus=%d %sreq=%d%s %sok=%d%s %serr=%d%s %stimeout=%d%s %sslowdown=%d%s %sstorage=%d%s",
		colorBlue, colorReset, st.ActiveVUs,
		colorWhite, st.Requests, colorReset,
		colorGreen, st.Successes, colorReset,
		colorRed, st.Errors, colorReset,
		colorMagenta, st.Timeouts, colorReset,
		colorYellow, st.RateLimited, colorReset,
		colorCyan, st.StorageError, colorReset,
	)
}
