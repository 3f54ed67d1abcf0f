package threshold

import (
	"sort"
	"time"

	"loadprobe/internal/cluster"
	"loadprobe/internal/record"
)

// Running-time bands for active search tasks.
const (
	LongQuery5s  = 5 * time.Second
	LongQuery10s = 10 * time.Second
	LongQuery30s = 30 * time.Second
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nodeName(id string, n cluster.NodeStats) string {
	if n.Name != "" {
		return n.Name
	}
	return id
}

// Observations projects a snapshot into rule inputs in a stable order.
// Groups that failed to fetch contribute nothing.
func Observations(s *record.Snapshot) []Observation {
	var obs []Observation
	add := func(key, subject string, v float64) {
		obs = append(obs, Observation{Key: key, Subject: subject, Value: v})
	}

	if s.Health != nil {
		add(KeyClusterStatus, "cluster", float64(cluster.StatusCode(s.Health.Status)))
	}
	if s.ThreadPools != nil {
		for _, id := range sortedKeys(s.ThreadPools.Nodes) {
			n := s.ThreadPools.Nodes[id]
			for _, pool := range sortedKeys(n.ThreadPool) {
				add(KeyThreadPoolReject, nodeName(id, n)+"/"+pool, float64(n.ThreadPool[pool].Rejected))
			}
		}
	}
	for _, row := range s.QueueSaturation {
		if pct, ok := row.FillPct(); ok {
			add(KeyQueueFillPct, row.NodeName+"/"+row.Name, pct)
		}
	}
	if s.NodeResources != nil {
		for _, id := range sortedKeys(s.NodeResources.Nodes) {
			n := s.NodeResources.Nodes[id]
			name := nodeName(id, n)
			if n.JVM != nil {
				add(KeyHeapUsedPct, name, n.JVM.Mem.HeapUsedPercent)
				add(KeyOldGCCount, name, float64(n.JVM.OldGC().CollectionCount))
			}
			if n.OS != nil {
				add(KeyCPUPct, name, n.OS.CPU.Percent)
			}
		}
	}
	if s.IndexStats != nil {
		for _, idx := range sortedKeys(s.IndexStats.Indices) {
			st := s.IndexStats.Indices[idx].Total
			if st.Refresh != nil {
				add(KeyRefreshAvgMs, idx, st.RefreshAvgMs())
			}
		}
	}
	if n, ok := pendingTasks(s); ok {
		add(KeyPendingTasks, "cluster", float64(n))
	}
	if s.ActiveTasks != nil {
		q := longQueries(s.ActiveTasks)
		add(KeyQueriesOver30s, "cluster", float64(q.over30))
		add(KeyQueriesOver10s, "cluster", float64(q.over10))
	}
	if s.CircuitBreakers != nil {
		for _, id := range sortedKeys(s.CircuitBreakers.Nodes) {
			n := s.CircuitBreakers.Nodes[id]
			for _, b := range sortedKeys(n.Breakers) {
				add(KeyBreakerTripped, nodeName(id, n)+"/"+b, float64(n.Breakers[b].Tripped))
			}
		}
	}
	if s.Segments != nil {
		for _, idx := range sortedKeys(s.Segments.Indices) {
			if seg := s.Segments.Indices[idx].Total.Segments; seg != nil {
				add(KeySegmentCount, idx, float64(seg.Count))
			}
		}
	}
	if s.Caches != nil {
		add(KeyCacheEvictions, "cluster", float64(cacheEvictions(s.Caches)))
	}
	return obs
}

type queryCounts struct {
	active, over5, over10, over30 int
}

func longQueries(tl *cluster.TaskList) queryCounts {
	var q queryCounts
	for _, t := range tl.All() {
		q.active++
		d := t.Running()
		if d > LongQuery5s {
			q.over5++
		}
		if d > LongQuery10s {
			q.over10++
		}
		if d > LongQuery30s {
			q.over30++
		}
	}
	return q
}

func pendingTasks(s *record.Snapshot) (int, bool) {
	switch {
	case s.PendingTasks != nil:
		return len(s.PendingTasks.Tasks), true
	case s.Health != nil:
		return s.Health.PendingTasks, true
	default:
		return 0, false
	}
}

func cacheEvictions(ns *cluster.NodesStats) int64 {
	var total int64
	for _, n := range ns.Nodes {
		if n.Indices != nil {
			total += n.Indices.QueryCache.Evictions + n.Indices.Fielddata.Evictions
		}
	}
	return total
}

// Summarize derives the summary from the snapshot's groups and stores it on s.
// Nothing from a previous summary is carried over.
func (e *Evaluator) Summarize(s *record.Snapshot) record.Summary {
	sum := record.Summary{Status: "unknown", StatusCode: -1}

	if h := s.Health; h != nil {
		sum.Status = h.Status
		sum.StatusCode = cluster.StatusCode(h.Status)
		sum.Nodes = h.NumberOfNodes
		sum.ActiveShards = h.ActiveShards
		sum.UnassignedShards = h.UnassignedShards
	}
	if n, ok := pendingTasks(s); ok {
		sum.PendingTasks = n
	}
	if s.ActiveTasks != nil {
		q := longQueries(s.ActiveTasks)
		sum.ActiveSearches = q.active
		sum.LongQueries5s = q.over5
		sum.LongQueries10s = q.over10
		sum.LongQueries30s = q.over30
	}
	if s.CircuitBreakers != nil {
		for _, n := range s.CircuitBreakers.Nodes {
			for _, b := range n.Breakers {
				sum.BreakerTrips += b.Tripped
			}
		}
	}
	for _, row := range s.QueueSaturation {
		if pct, ok := row.FillPct(); ok {
			sum.QueueSaturationPct = max(sum.QueueSaturationPct, pct)
		}
	}
	if s.NodeResources != nil {
		for _, n := range s.NodeResources.Nodes {
			if n.JVM != nil {
				sum.MaxHeapPct = max(sum.MaxHeapPct, n.JVM.Mem.HeapUsedPercent)
				sum.OldGCCount += n.JVM.OldGC().CollectionCount
			}
			if n.OS != nil {
				sum.MaxCPUPct = max(sum.MaxCPUPct, n.OS.CPU.Percent)
			}
		}
	}
	if s.IndexStats != nil {
		var total, millis int64
		for _, st := range s.IndexStats.Indices {
			if r := st.Total.Refresh; r != nil {
				total += r.Total
				millis += r.Millis
			}
		}
		if total > 0 {
			sum.AvgRefreshMs = float64(millis) / float64(total)
		}
	}
	if s.Segments != nil {
		for _, st := range s.Segments.Indices {
			if seg := st.Total.Segments; seg != nil {
				sum.MaxSegmentCount = max(sum.MaxSegmentCount, seg.Count)
			}
		}
	}
	if s.Caches != nil {
		sum.CacheEvictions = cacheEvictions(s.Caches)
	}
	if s.ThreadPools != nil {
		for _, n := range s.ThreadPools.Nodes {
			sum.SearchRejected += n.ThreadPool["search"].Rejected
			sum.WriteRejected += n.ThreadPool["write"].Rejected
		}
	}

	sum.Issues, sum.Warnings = e.Evaluate(Observations(s))
	sum.Unavailable = s.Unavailable()
	s.Summary = sum
	return sum
}
