// Package threshold classifies snapshot observations against a static rule
// table and derives the per-cycle summary.
package threshold

import (
	"fmt"
	"strconv"
)

// Metric keys.
const (
	KeyClusterStatus    = "cluster_status"
	KeyThreadPoolReject = "thread_pool_rejected"
	KeyQueueFillPct     = "thread_pool_queue_fill_pct"
	KeyHeapUsedPct      = "jvm_heap_used_pct"
	KeyCPUPct           = "cpu_pct"
	KeyOldGCCount       = "old_gc_count"
	KeyRefreshAvgMs     = "refresh_avg_ms"
	KeyPendingTasks     = "pending_tasks"
	KeyQueriesOver30s   = "queries_over_30s"
	KeyQueriesOver10s   = "queries_over_10s"
	KeyBreakerTripped   = "breaker_tripped"
	KeySegmentCount     = "segment_count"
	KeyCacheEvictions   = "cache_evictions"
)

// Cmp says how a value is compared to a bound.
type Cmp int

const (
	// Above crosses when value > bound.
	Above Cmp = iota
	// AtLeast crosses when value >= bound.
	AtLeast
)

func (c Cmp) crossed(v, bound float64) bool {
	if c == AtLeast {
		return v >= bound
	}
	return v > bound
}

func (c Cmp) String() string {
	if c == AtLeast {
		return ">="
	}
	return ">"
}

// Level is the severity an observation maps to.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "ok"
	}
}

// Rule is one row of the threshold table. A nil bound is never crossed.
type Rule struct {
	Key    string
	Label  string
	Warn   *float64
	Crit   *float64
	Cmp    Cmp
	Unit   string
	Render func(float64) string
}

// Level classifies v, checking the critical bound first.
func (r Rule) Level(v float64) Level {
	if r.Crit != nil && r.Cmp.crossed(v, *r.Crit) {
		return LevelCritical
	}
	if r.Warn != nil && r.Cmp.crossed(v, *r.Warn) {
		return LevelWarning
	}
	return LevelOK
}

func (r Rule) format(v float64) string {
	if r.Render != nil {
		return r.Render(v)
	}
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10) + r.Unit
	}
	return strconv.FormatFloat(v, 'f', 1, 64) + r.Unit
}

func (r Rule) message(o Observation, lvl Level) string {
	bound := r.Warn
	if lvl == LevelCritical {
		bound = r.Crit
	}
	return fmt.Sprintf("[%s] %s = %s (%s %s %s)",
		o.Subject, r.Label, r.format(o.Value), lvl, r.Cmp, r.format(*bound))
}

func bound(v float64) *float64 { return &v }

func statusName(v float64) string {
	switch int(v) {
	case 0:
		return "green"
	case 1:
		return "yellow"
	default:
		return "red"
	}
}

// DefaultRules is the built-in threshold table.
func DefaultRules() []Rule {
	return []Rule{
		{Key: KeyClusterStatus, Label: "cluster status", Warn: bound(1), Crit: bound(2), Cmp: AtLeast, Render: statusName},
		{Key: KeyThreadPoolReject, Label: "thread pool rejections", Crit: bound(0)},
		{Key: KeyQueueFillPct, Label: "queue fill", Warn: bound(50), Crit: bound(80), Unit: "%"},
		{Key: KeyHeapUsedPct, Label: "JVM heap used", Warn: bound(75), Crit: bound(85), Unit: "%"},
		{Key: KeyCPUPct, Label: "CPU", Warn: bound(80), Crit: bound(90), Unit: "%"},
		{Key: KeyOldGCCount, Label: "old GC collections", Warn: bound(10)},
		{Key: KeyRefreshAvgMs, Label: "average refresh time", Warn: bound(50), Crit: bound(100), Unit: "ms"},
		{Key: KeyPendingTasks, Label: "pending cluster tasks", Warn: bound(10)},
		{Key: KeyQueriesOver30s, Label: "queries running over 30s", Crit: bound(0)},
		{Key: KeyQueriesOver10s, Label: "queries running over 10s", Warn: bound(0)},
		{Key: KeyBreakerTripped, Label: "circuit breaker trips", Crit: bound(0)},
		{Key: KeySegmentCount, Label: "segment count", Warn: bound(500)},
		{Key: KeyCacheEvictions, Label: "query cache + fielddata evictions", Warn: bound(5000)},
	}
}
