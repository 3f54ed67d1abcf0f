package breakpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Breakpoint is the state of one latch at report time.
type Breakpoint struct {
	Detected  bool  `json:"detected" yaml:"detected"`
	Iteration int64 `json:"iteration,omitempty" yaml:"iteration,omitempty"`
}

// String renders the latch the way the text report prints it.
func (b Breakpoint) String() string {
	if !b.Detected {
		return "none detected"
	}
	return fmt.Sprintf("first occurrence at iteration %d", b.Iteration)
}

// Breakpoints groups the three latches.
type Breakpoints struct {
	Timeout      Breakpoint `json:"timeout" yaml:"timeout"`
	GenericError Breakpoint `json:"generic_error" yaml:"generic_error"`
	RateLimit    Breakpoint `json:"rate_limit" yaml:"rate_limit"`
}

// LatencyStats summarizes the recorded round-trip times in milliseconds.
type LatencyStats struct {
	Samples int     `json:"samples" yaml:"samples"`
	MinMs   float64 `json:"min_ms" yaml:"min_ms"`
	AvgMs   float64 `json:"avg_ms" yaml:"avg_ms"`
	P50Ms   float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms   float64 `json:"p90_ms" yaml:"p90_ms"`
	P95Ms   float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms   float64 `json:"p99_ms" yaml:"p99_ms"`
	MaxMs   float64 `json:"max_ms" yaml:"max_ms"`
}

// Report is the fixed-shape end-of-run summary.
type Report struct {
	RunID               string       `json:"run_id" yaml:"run_id"`
	Start               time.Time    `json:"start" yaml:"start"`
	End                 time.Time    `json:"end" yaml:"end"`
	Duration            string       `json:"duration" yaml:"duration"`
	Breakpoints         Breakpoints  `json:"breakpoints" yaml:"breakpoints"`
	Totals              Totals       `json:"totals" yaml:"totals"`
	ErrorRate           float64      `json:"error_rate" yaml:"error_rate"`
	TimeoutRate         float64      `json:"timeout_rate" yaml:"timeout_rate"`
	SuccessRate         float64      `json:"success_rate" yaml:"success_rate"`
	Latency             LatencyStats `json:"latency" yaml:"latency"`
	IterationsPerSecond float64      `json:"iterations_per_second" yaml:"iterations_per_second"`
}

// Formatter serializes a report.
type Formatter func(*Report) ([]byte, error)

// JSONFormatter renders indented JSON.
func JSONFormatter(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// YAMLFormatter renders YAML.
func YAMLFormatter(r *Report) ([]byte, error) {
	return yaml.Marshal(r)
}

// FormatterFor maps a format name to a Formatter. Text is handled by Print.
func FormatterFor(name string) (Formatter, error) {
	switch strings.ToLower(name) {
	case "json":
		return JSONFormatter, nil
	case "yaml", "yml":
		return YAMLFormatter, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", name)
	}
}

// Generate serializes the report, defaulting to JSON.
func (r *Report) Generate(formatter Formatter) ([]byte, error) {
	if formatter == nil {
		formatter = JSONFormatter
	}
	return formatter(r)
}

// Print writes the human-readable report.
func (r *Report) Print(out io.Writer) {
	_, _ = fmt.Fprintf(out, "\nBreakpoint report %s\n", r.RunID)
	_, _ = fmt.Fprintf(out, "  start:    %s\n", r.Start.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "  end:      %s\n", r.End.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "  duration: %s\n", r.Duration)
	r.PrintBreakpoints(out)
	r.PrintTotals(out)
	r.PrintLatency(out)
}

// PrintBreakpoints writes the latch section.
func (r *Report) PrintBreakpoints(out io.Writer) {
	_, _ = fmt.Fprintf(out, "\nBreakpoints:\n")
	_, _ = fmt.Fprintf(out, "  timeout:       %s\n", r.Breakpoints.Timeout)
	_, _ = fmt.Fprintf(out, "  generic error: %s\n", r.Breakpoints.GenericError)
	_, _ = fmt.Fprintf(out, "  rate limit:    %s\n", r.Breakpoints.RateLimit)
}

// PrintTotals writes counters and rates.
func (r *Report) PrintTotals(out io.Writer) {
	t := r.Totals
	_, _ = fmt.Fprintf(out, "\nTotals:\n")
	_, _ = fmt.Fprintf(out, "  requests:       %d\n", t.Requests)
	_, _ = fmt.Fprintf(out, "  successes:      %d\n", t.Successes)
	_, _ = fmt.Fprintf(out, "  errors:         %d\n", t.Errors)
	_, _ = fmt.Fprintf(out, "  timeouts:       %d\n", t.Timeouts)
	_, _ = fmt.Fprintf(out, "  generic errors: %d\n", t.GenericErrors)
	_, _ = fmt.Fprintf(out, "  rate limited:   %d\n", t.RateLimited)
	_, _ = fmt.Fprintf(out, "  storage errors: %d\n", t.StorageErrors)
	_, _ = fmt.Fprintf(out, "  error_rate:     %.3f\n", r.ErrorRate)
	_, _ = fmt.Fprintf(out, "  timeout_rate:   %.3f\n", r.TimeoutRate)
	_, _ = fmt.Fprintf(out, "  success_rate:   %.3f\n", r.SuccessRate)
	_, _ = fmt.Fprintf(out, "  iterations/s:   %.2f\n", r.IterationsPerSecond)
}

// PrintLatency writes latency percentiles.
func (r *Report) PrintLatency(out io.Writer) {
	l := r.Latency
	_, _ = fmt.Fprintf(out, "\nLatency (%d samples):\n", l.Samples)
	_, _ = fmt.Fprintf(out, "  min %.1fms  avg %.1fms  p50 %.1fms  p90 %.1fms  p95 %.1fms  p99 %.1fms  max %.1fms\n",
		l.MinMs, l.AvgMs, l.P50Ms, l.P90Ms, l.P95Ms, l.P99Ms, l.MaxMs)
}

func latencyStats(sorted []time.Duration) LatencyStats {
	n := len(sorted)
	if n == 0 {
		return LatencyStats{}
	}
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return LatencyStats{
		Samples: n,
		MinMs:   ms(sorted[0]),
		AvgMs:   ms(sum / time.Duration(n)),
		P50Ms:   ms(Percentile(sorted, 50)),
		P90Ms:   ms(Percentile(sorted, 90)),
		P95Ms:   ms(Percentile(sorted, 95)),
		P99Ms:   ms(Percentile(sorted, 99)),
		MaxMs:   ms(sorted[n-1]),
	}
}

// Percentile uses the nearest-rank method on an ascending slice.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
