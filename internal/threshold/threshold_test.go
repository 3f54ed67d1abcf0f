package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadprobe/internal/cluster"
	"loadprobe/internal/record"
)

func matching(lines []string, substr string) []string {
	var out []string
	for _, l := range lines {
		if strings.Contains(l, substr) {
			out = append(out, l)
		}
	}
	return out
}

func nodeWithHeap(pct float64) cluster.NodeStats {
	n := cluster.NodeStats{Name: "node-1", JVM: &cluster.JVMStats{}}
	n.JVM.Mem.HeapUsedPercent = pct
	return n
}

func TestHeapNinetyIsOneCritical(t *testing.T) {
	s := record.NewSnapshot("https://search", time.Now())
	s.NodeResources = &cluster.NodesStats{Nodes: map[string]cluster.NodeStats{"n1": nodeWithHeap(90)}}

	sum := New(nil).Summarize(s)
	heapIssues := matching(sum.Issues, "JVM heap used")
	heapWarnings := matching(sum.Warnings, "JVM heap used")
	require.Len(t, heapIssues, 1)
	assert.Empty(t, heapWarnings)
	assert.Contains(t, heapIssues[0], "[node-1]")
	assert.Contains(t, heapIssues[0], "90%")
	assert.Equal(t, 90.0, sum.MaxHeapPct)
}

func TestQueueSixtyPercentIsOneWarning(t *testing.T) {
	s := record.NewSnapshot("https://search", time.Now())
	s.QueueSaturation = []cluster.CatThreadPool{
		{NodeName: "node-1", Name: "search", Queue: "600", QueueSize: "1000"},
	}

	sum := New(nil).Summarize(s)
	assert.Len(t, matching(sum.Warnings, "node-1/search"), 1)
	assert.Empty(t, matching(sum.Issues, "node-1/search"))
	assert.Equal(t, 60.0, sum.QueueSaturationPct)
}

func TestRuleTable(t *testing.T) {
	e := New(nil)
	cases := []struct {
		key   string
		value float64
		want  Level
	}{
		{KeyClusterStatus, 0, LevelOK},
		{KeyClusterStatus, 1, LevelWarning},
		{KeyClusterStatus, 2, LevelCritical},
		{KeyThreadPoolReject, 0, LevelOK},
		{KeyThreadPoolReject, 1, LevelCritical},
		{KeyQueueFillPct, 50, LevelOK},
		{KeyQueueFillPct, 51, LevelWarning},
		{KeyQueueFillPct, 80, LevelWarning},
		{KeyQueueFillPct, 81, LevelCritical},
		{KeyHeapUsedPct, 75, LevelOK},
		{KeyHeapUsedPct, 80, LevelWarning},
		{KeyHeapUsedPct, 86, LevelCritical},
		{KeyCPUPct, 85, LevelWarning},
		{KeyCPUPct, 95, LevelCritical},
		{KeyOldGCCount, 10, LevelOK},
		{KeyOldGCCount, 11, LevelWarning},
		{KeyOldGCCount, 1e6, LevelWarning},
		{KeyRefreshAvgMs, 60, LevelWarning},
		{KeyRefreshAvgMs, 101, LevelCritical},
		{KeyPendingTasks, 11, LevelWarning},
		{KeyQueriesOver30s, 1, LevelCritical},
		{KeyQueriesOver10s, 1, LevelWarning},
		{KeyBreakerTripped, 3, LevelCritical},
		{KeySegmentCount, 501, LevelWarning},
		{KeyCacheEvictions, 5000, LevelOK},
		{KeyCacheEvictions, 5001, LevelWarning},
	}
	for _, tc := range cases {
		r, ok := e.Rule(tc.key)
		require.True(t, ok, tc.key)
		assert.Equal(t, tc.want, r.Level(tc.value), "%s=%v", tc.key, tc.value)
	}
}

func TestLevelIsMonotonic(t *testing.T) {
	for _, r := range DefaultRules() {
		prev := LevelOK
		for v := 0.0; v <= 10000; v += 0.5 {
			lvl := r.Level(v)
			assert.GreaterOrEqual(t, lvl, prev, "%s at %v", r.Key, v)
			prev = lvl
		}
	}
}

func TestEvaluateOneEntryPerObservation(t *testing.T) {
	e := New(nil)
	obs := []Observation{
		{Key: KeyCPUPct, Subject: "a", Value: 99},
		{Key: KeyCPUPct, Subject: "b", Value: 85},
		{Key: KeyCPUPct, Subject: "c", Value: 10},
		{Key: "unknown_metric", Subject: "d", Value: 1e9},
	}
	issues, warnings := e.Evaluate(obs)
	assert.Equal(t, []string{"[a] CPU = 99% (critical > 90%)"}, issues)
	assert.Equal(t, []string{"[b] CPU = 85% (warning > 80%)"}, warnings)
}

func TestEvaluateEmptyIsNotNil(t *testing.T) {
	issues, warnings := New(nil).Evaluate(nil)
	assert.NotNil(t, issues)
	assert.NotNil(t, warnings)
}

func TestMissingGroupsProduceNoObservations(t *testing.T) {
	s := record.NewSnapshot("x", time.Now())
	s.Errors[record.GroupHealth] = "timeout"
	s.Errors[record.GroupNodeResources] = "503"
	assert.Empty(t, Observations(s))

	sum := New(nil).Summarize(s)
	assert.Equal(t, "unknown", sum.Status)
	assert.Empty(t, sum.Issues)
	assert.Equal(t, []string{record.GroupHealth, record.GroupNodeResources}, sum.Unavailable)
}

func fullSnapshot() *record.Snapshot {
	s := record.NewSnapshot("https://search", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	s.Health = &cluster.Health{Status: "red", NumberOfNodes: 3, ActiveShards: 10, UnassignedShards: 4, PendingTasks: 2}
	s.ThreadPools = &cluster.NodesStats{Nodes: map[string]cluster.NodeStats{
		"n1": {Name: "node-1", ThreadPool: map[string]cluster.ThreadPool{"search": {Rejected: 7}, "write": {Rejected: 0}}},
		"n2": {Name: "node-2", ThreadPool: map[string]cluster.ThreadPool{"search": {Rejected: 1}, "write": {Rejected: 2}}},
	}}
	n1 := nodeWithHeap(70)
	n1.OS = &cluster.OSStats{}
	n1.OS.CPU.Percent = 95
	n1.JVM.GC.Collectors = map[string]cluster.GCCollector{"old": {CollectionCount: 4}}
	n2 := nodeWithHeap(80)
	n2.Name = "node-2"
	n2.JVM.GC.Collectors = map[string]cluster.GCCollector{"old": {CollectionCount: 8}}
	s.NodeResources = &cluster.NodesStats{Nodes: map[string]cluster.NodeStats{"n1": n1, "n2": n2}}

	s.IndexStats = &cluster.IndicesStats{Indices: map[string]cluster.IndexStats{}}
	var msgs cluster.IndexStats
	msgs.Total.Refresh = &cluster.RefreshStats{Total: 10, Millis: 600}
	s.IndexStats.Indices["chat-messages"] = msgs

	s.PendingTasks = &cluster.PendingTasks{Tasks: make([]cluster.PendingTask, 12)}
	s.ActiveTasks = &cluster.TaskList{Nodes: map[string]cluster.TaskNode{"n1": {Tasks: map[string]cluster.Task{
		"a": {RunningNanos: int64(2 * time.Second)},
		"b": {RunningNanos: int64(6 * time.Second)},
		"c": {RunningNanos: int64(12 * time.Second)},
		"d": {RunningNanos: int64(45 * time.Second)},
	}}}}
	s.CircuitBreakers = &cluster.NodesStats{Nodes: map[string]cluster.NodeStats{
		"n1": {Name: "node-1", Breakers: map[string]cluster.Breaker{"parent": {Tripped: 2}, "request": {}}},
	}}
	s.Caches = &cluster.NodesStats{Nodes: map[string]cluster.NodeStats{
		"n1": {Indices: &cluster.NodeIndices{QueryCache: cluster.CacheStats{Evictions: 4000}, Fielddata: cluster.CacheStats{Evictions: 1500}}},
	}}
	var seg cluster.IndexStats
	seg.Total.Segments = &cluster.SegmentStats{Count: 640}
	s.Segments = &cluster.IndicesStats{Indices: map[string]cluster.IndexStats{"chat-messages": seg}}
	s.QueueSaturation = []cluster.CatThreadPool{
		{NodeName: "node-1", Name: "search", Queue: "900", QueueSize: "1000"},
		{NodeName: "node-2", Name: "write", Queue: "10", QueueSize: "-1"},
	}
	return s
}

func TestSummarizeProjections(t *testing.T) {
	s := fullSnapshot()
	sum := New(nil).Summarize(s)

	assert.Equal(t, "red", sum.Status)
	assert.Equal(t, 2, sum.StatusCode)
	assert.Equal(t, 3, sum.Nodes)
	assert.Equal(t, 4, sum.UnassignedShards)
	assert.Equal(t, 12, sum.PendingTasks)
	assert.Equal(t, 4, sum.ActiveSearches)
	assert.Equal(t, 3, sum.LongQueries5s)
	assert.Equal(t, 2, sum.LongQueries10s)
	assert.Equal(t, 1, sum.LongQueries30s)
	assert.Equal(t, int64(2), sum.BreakerTrips)
	assert.Equal(t, 90.0, sum.QueueSaturationPct)
	assert.Equal(t, 80.0, sum.MaxHeapPct)
	assert.Equal(t, 95.0, sum.MaxCPUPct)
	assert.Equal(t, int64(12), sum.OldGCCount)
	assert.Equal(t, 60.0, sum.AvgRefreshMs)
	assert.Equal(t, int64(640), sum.MaxSegmentCount)
	assert.Equal(t, int64(5500), sum.CacheEvictions)
	assert.Equal(t, int64(8), sum.SearchRejected)
	assert.Equal(t, int64(2), sum.WriteRejected)
	assert.Empty(t, sum.Unavailable)
	assert.Equal(t, sum, s.Summary)

	assert.Len(t, matching(sum.Issues, "cluster status"), 1)
	assert.Len(t, matching(sum.Issues, "thread pool rejections"), 3)
	assert.Len(t, matching(sum.Issues, "queries running over 30s"), 1)
	assert.Len(t, matching(sum.Issues, "circuit breaker trips"), 1)
	assert.Len(t, matching(sum.Issues, "[node-1] CPU"), 1)
	assert.Len(t, matching(sum.Issues, "queue fill"), 1)
	assert.Len(t, matching(sum.Warnings, "[node-2] JVM heap"), 1)
	assert.Len(t, matching(sum.Warnings, "queries running over 10s"), 1)
	assert.Len(t, matching(sum.Warnings, "pending cluster tasks"), 1)
	assert.Len(t, matching(sum.Warnings, "segment count"), 1)
	assert.Len(t, matching(sum.Warnings, "evictions"), 1)
	assert.Len(t, matching(sum.Warnings, "average refresh time"), 1)
}

func TestQueryOver30sAlsoWarnsOver10s(t *testing.T) {
	s := record.NewSnapshot("https://search.local", time.Now())
	s.ActiveTasks = &cluster.TaskList{Nodes: map[string]cluster.TaskNode{"n1": {Tasks: map[string]cluster.Task{
		"slow": {RunningNanos: int64(35 * time.Second)},
	}}}}
	sum := New(nil).Summarize(s)

	assert.Equal(t, 1, sum.LongQueries10s)
	assert.Equal(t, 1, sum.LongQueries30s)
	assert.Len(t, matching(sum.Issues, "queries running over 30s"), 1)
	assert.Len(t, matching(sum.Warnings, "queries running over 10s"), 1)
}

func TestSummarizeIsDeterministic(t *testing.T) {
	first := New(nil).Summarize(fullSnapshot())
	for i := 0; i < 20; i++ {
		again := New(nil).Summarize(fullSnapshot())
		assert.Equal(t, first.Issues, again.Issues)
		assert.Equal(t, first.Warnings, again.Warnings)
	}
}

func TestSummaryNotCarriedForward(t *testing.T) {
	s := fullSnapshot()
	e := New(nil)
	e.Summarize(s)
	require.NotEmpty(t, s.Summary.Issues)

	s.Health = nil
	s.ThreadPools = nil
	s.NodeResources = nil
	s.ActiveTasks = nil
	s.CircuitBreakers = nil
	s.QueueSaturation = nil
	sum := e.Summarize(s)
	assert.Equal(t, "unknown", sum.Status)
	assert.Empty(t, matching(sum.Issues, "cluster status"))
	assert.Zero(t, sum.BreakerTrips)
}
