package sink

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"loadprobe/internal/cluster"
	"loadprobe/internal/record"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	issueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ConsoleWriter renders a snapshot as human-readable tables.
type ConsoleWriter struct {
	out      io.Writer
	colorize bool
}

// NewConsoleWriter writes to STDOUT, styled when STDOUT is a terminal.
func NewConsoleWriter() *ConsoleWriter {
	return &ConsoleWriter{out: os.Stdout, colorize: StdoutIsTerminal()}
}

// NewPlainConsoleWriter writes unstyled tables to out.
func NewPlainConsoleWriter(out io.Writer) *ConsoleWriter {
	return &ConsoleWriter{out: out}
}

func (w *ConsoleWriter) style(s lipgloss.Style, text string) string {
	if !w.colorize {
		return text
	}
	return s.Render(text)
}

func (w *ConsoleWriter) section(name string) {
	fmt.Fprintf(w.out, "\n%s\n", w.style(sectionStyle, name))
}

func (w *ConsoleWriter) table(header string, rows [][]string) {
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	tw.Flush()
}

func (w *ConsoleWriter) statusText(status string) string {
	switch status {
	case "green":
		return w.style(okStyle, status)
	case "yellow":
		return w.style(warnStyle, status)
	default:
		return w.style(issueStyle, status)
	}
}

// WriteSnapshot prints every populated group followed by the summary.
func (w *ConsoleWriter) WriteSnapshot(s *record.Snapshot) error {
	fmt.Fprintln(w.out, w.style(titleStyle, fmt.Sprintf("Cluster metrics %s @ %s", s.Endpoint, s.Timestamp.Format(time.RFC3339))))

	if h := s.Health; h != nil {
		w.section("Cluster Health")
		w.table("Cluster\tStatus\tNodes\tData Nodes\tActive Shards\tUnassigned\tPending Tasks", [][]string{{
			h.ClusterName, w.statusText(h.Status), itoa(h.NumberOfNodes), itoa(h.NumberOfDataNodes),
			itoa(h.ActiveShards), itoa(h.UnassignedShards), itoa(h.PendingTasks),
		}})
	}
	if s.NodeResources != nil {
		w.section("Node Resources")
		var rows [][]string
		for _, id := range sortedIDs(s.NodeResources.Nodes) {
			n := s.NodeResources.Nodes[id]
			heap, cpu, oldGC := "-", "-", "-"
			if n.JVM != nil {
				heap = pct(n.JVM.Mem.HeapUsedPercent)
				oldGC = i64toa(n.JVM.OldGC().CollectionCount)
			}
			if n.OS != nil {
				cpu = pct(n.OS.CPU.Percent)
			}
			rows = append(rows, []string{displayName(id, n), heap, cpu, oldGC})
		}
		w.table("Node\tHeap\tCPU\tOld GC", rows)
	}
	if s.ThreadPools != nil {
		w.section("Thread Pools")
		var rows [][]string
		for _, id := range sortedIDs(s.ThreadPools.Nodes) {
			n := s.ThreadPools.Nodes[id]
			for _, name := range []string{"search", "write"} {
				tp, ok := n.ThreadPool[name]
				if !ok {
					continue
				}
				rows = append(rows, []string{displayName(id, n), name, i64toa(tp.Active), i64toa(tp.Queue), i64toa(tp.Rejected)})
			}
		}
		w.table("Node\tPool\tActive\tQueue\tRejected", rows)
	}
	if len(s.QueueSaturation) > 0 {
		w.section("Queue Saturation")
		var rows [][]string
		for _, r := range s.QueueSaturation {
			fill := "unbounded"
			if p, ok := r.FillPct(); ok {
				fill = pct(p)
			}
			rows = append(rows, []string{r.NodeName, r.Name, r.Queue, r.QueueSize, fill})
		}
		w.table("Node\tPool\tQueue\tQueue Size\tFill", rows)
	}
	if s.IndexStats != nil {
		w.section("Indices")
		var rows [][]string
		for _, name := range sortedIDs(s.IndexStats.Indices) {
			st := s.IndexStats.Indices[name].Total
			docs, size, queries := "-", "-", "-"
			if st.Docs != nil {
				docs = i64toa(st.Docs.Count)
			}
			if st.Store != nil {
				size = bytesText(st.Store.SizeBytes)
			}
			if st.Search != nil {
				queries = i64toa(st.Search.QueryTotal)
			}
			rows = append(rows, []string{name, docs, size, queries, fmt.Sprintf("%.1fms", st.RefreshAvgMs())})
		}
		w.table("Index\tDocs\tSize\tQueries\tAvg Refresh", rows)
	}
	if s.Segments != nil {
		w.section("Segments")
		var rows [][]string
		for _, name := range sortedIDs(s.Segments.Indices) {
			if seg := s.Segments.Indices[name].Total.Segments; seg != nil {
				rows = append(rows, []string{name, i64toa(seg.Count), bytesText(seg.MemoryBytes)})
			}
		}
		w.table("Index\tSegments\tMemory", rows)
	}
	if s.CircuitBreakers != nil {
		w.section("Circuit Breakers")
		var rows [][]string
		for _, id := range sortedIDs(s.CircuitBreakers.Nodes) {
			n := s.CircuitBreakers.Nodes[id]
			for _, name := range sortedIDs(n.Breakers) {
				b := n.Breakers[name]
				rows = append(rows, []string{displayName(id, n), name, pct(b.UsedPct()), i64toa(b.Tripped)})
			}
		}
		w.table("Node\tBreaker\tUsed\tTripped", rows)
	}
	if s.Caches != nil {
		w.section("Caches")
		var rows [][]string
		for _, id := range sortedIDs(s.Caches.Nodes) {
			n := s.Caches.Nodes[id]
			if n.Indices == nil {
				continue
			}
			c := n.Indices
			rows = append(rows, []string{
				displayName(id, n),
				bytesText(c.QueryCache.MemoryBytes), i64toa(c.QueryCache.Evictions),
				bytesText(c.Fielddata.MemoryBytes), i64toa(c.Fielddata.Evictions),
				bytesText(c.RequestCache.MemoryBytes), i64toa(c.RequestCache.Evictions),
			})
		}
		w.table("Node\tQuery Cache\tEvictions\tFielddata\tEvictions\tRequest Cache\tEvictions", rows)
	}

	w.printSummary(s)
	return nil
}

func (w *ConsoleWriter) printSummary(s *record.Snapshot) {
	sum := s.Summary
	w.section("Summary")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Status:\t%s\n", w.statusText(sum.Status))
	fmt.Fprintf(tw, "Active searches:\t%d (>5s %d, >10s %d, >30s %d)\n", sum.ActiveSearches, sum.LongQueries5s, sum.LongQueries10s, sum.LongQueries30s)
	fmt.Fprintf(tw, "Pending tasks:\t%d\n", sum.PendingTasks)
	fmt.Fprintf(tw, "Max heap / CPU:\t%s / %s\n", pct(sum.MaxHeapPct), pct(sum.MaxCPUPct))
	fmt.Fprintf(tw, "Max queue fill:\t%s\n", pct(sum.QueueSaturationPct))
	fmt.Fprintf(tw, "Breaker trips:\t%d\n", sum.BreakerTrips)
	fmt.Fprintf(tw, "Cache evictions:\t%d\n", sum.CacheEvictions)
	tw.Flush()

	if len(sum.Unavailable) > 0 {
		fmt.Fprintf(w.out, "%s %s\n", w.style(mutedStyle, "Unavailable:"), strings.Join(sum.Unavailable, ", "))
		for _, g := range sum.Unavailable {
			fmt.Fprintf(w.out, "  %s: %s\n", g, s.Errors[g])
		}
	}
	if len(sum.Issues) == 0 && len(sum.Warnings) == 0 {
		fmt.Fprintln(w.out, w.style(okStyle, "No issues detected"))
		return
	}
	for _, line := range sum.Issues {
		fmt.Fprintf(w.out, "%s %s\n", w.style(issueStyle, "CRITICAL"), line)
	}
	for _, line := range sum.Warnings {
		fmt.Fprintf(w.out, "%s %s\n", w.style(warnStyle, "WARNING "), line)
	}
}

func sortedIDs[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func displayName(id string, n cluster.NodeStats) string {
	if n.Name != "" {
		return n.Name
	}
	return id
}

func itoa(v int) string     { return fmt.Sprintf("%d", v) }
func i64toa(v int64) string { return fmt.Sprintf("%d", v) }
func pct(v float64) string  { return fmt.Sprintf("%.1f%%", v) }

func bytesText(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
