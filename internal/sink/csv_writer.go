package sink

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"loadprobe/internal/record"
)

// SummaryFileName is the CSV the collector appends one row per cycle to.
const SummaryFileName = "metrics_summary.csv"

// SummaryColumns is the fixed CSV column order.
var SummaryColumns = []string{
	"timestamp",
	"cluster_status",
	"nodes",
	"active_shards",
	"unassigned_shards",
	"pending_tasks",
	"active_searches",
	"long_queries_5s",
	"long_queries_10s",
	"long_queries_30s",
	"breaker_trips",
	"queue_saturation_pct",
	"max_heap_pct",
	"max_cpu_pct",
	"old_gc_count",
	"avg_refresh_ms",
	"max_segment_count",
	"cache_evictions",
	"search_rejected",
	"write_rejected",
	"issues",
	"warnings",
	"unavailable_groups",
}

// CSVWriter appends summary rows to a CSV file, writing the header only when
// it creates the file.
type CSVWriter struct {
	path string
}

// NewCSVWriter returns a writer appending to <dir>/metrics_summary.csv.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &CSVWriter{path: filepath.Join(dir, SummaryFileName)}, nil
}

// Path reports the CSV file location.
func (w *CSVWriter) Path() string { return w.path }

// WriteSnapshot appends the summary row of s.
func (w *CSVWriter) WriteSnapshot(s *record.Snapshot) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open summary csv: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat summary csv: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(SummaryColumns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	if err := cw.Write(SummaryRecord(s.Timestamp, s.Summary)); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// SummaryRecord renders one summary as CSV fields in SummaryColumns order.
// Missing values render as 0 and the issue, warning and unavailable-group
// columns hold counts.
func SummaryRecord(ts time.Time, sum record.Summary) []string {
	status := sum.Status
	if status == "" || status == "unknown" {
		status = "0"
	}
	i := strconv.Itoa
	i64 := func(v int64) string { return strconv.FormatInt(v, 10) }
	f := func(v float64) string { return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) }
	return []string{
		ts.UTC().Format(time.RFC3339),
		status,
		i(sum.Nodes),
		i(sum.ActiveShards),
		i(sum.UnassignedShards),
		i(sum.PendingTasks),
		i(sum.ActiveSearches),
		i(sum.LongQueries5s),
		i(sum.LongQueries10s),
		i(sum.LongQueries30s),
		i64(sum.BreakerTrips),
		f(sum.QueueSaturationPct),
		f(sum.MaxHeapPct),
		f(sum.MaxCPUPct),
		i64(sum.OldGCCount),
		f(sum.AvgRefreshMs),
		i64(sum.MaxSegmentCount),
		i64(sum.CacheEvictions),
		i64(sum.SearchRejected),
		i64(sum.WriteRejected),
		i(len(sum.Issues)),
		i(len(sum.Warnings)),
		i(len(sum.Unavailable)),
	}
}
