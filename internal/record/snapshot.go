package record

import (
	"time"

	"loadprobe/internal/cluster"
)

// Metric group names, in fetch order.
const (
	GroupHealth          = "health"
	GroupThreadPools     = "thread_pools"
	GroupNodeResources   = "node_resources"
	GroupIndexStats      = "index_stats"
	GroupIndexSettings   = "index_settings"
	GroupClusterSettings = "cluster_settings"
	GroupPendingTasks    = "pending_tasks"
	GroupActiveTasks     = "active_tasks"
	GroupCircuitBreakers = "circuit_breakers"
	GroupCaches          = "caches"
	GroupSegments        = "segments"
	GroupQueueSaturation = "queue_saturation"
	GroupHotThreads      = "hot_threads"
	GroupClusterStats    = "cluster_stats"
)

// Groups lists every metric group in fetch order.
var Groups = []string{
	GroupHealth,
	GroupThreadPools,
	GroupNodeResources,
	GroupIndexStats,
	GroupIndexSettings,
	GroupClusterSettings,
	GroupPendingTasks,
	GroupActiveTasks,
	GroupCircuitBreakers,
	GroupCaches,
	GroupSegments,
	GroupQueueSaturation,
	GroupHotThreads,
	GroupClusterStats,
}

// Snapshot is one poll cycle's view of the cluster. A group that failed to
// fetch stays nil and its error text is recorded in Errors.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Endpoint  string    `json:"endpoint"`

	Health          *cluster.Health          `json:"health,omitempty"`
	ThreadPools     *cluster.NodesStats      `json:"thread_pools,omitempty"`
	NodeResources   *cluster.NodesStats      `json:"node_resources,omitempty"`
	IndexStats      *cluster.IndicesStats    `json:"index_stats,omitempty"`
	IndexSettings   cluster.IndexSettings    `json:"index_settings,omitempty"`
	ClusterSettings *cluster.ClusterSettings `json:"cluster_settings,omitempty"`
	PendingTasks    *cluster.PendingTasks    `json:"pending_tasks,omitempty"`
	ActiveTasks     *cluster.TaskList        `json:"active_tasks,omitempty"`
	CircuitBreakers *cluster.NodesStats      `json:"circuit_breakers,omitempty"`
	Caches          *cluster.NodesStats      `json:"caches,omitempty"`
	Segments        *cluster.IndicesStats    `json:"segments,omitempty"`
	QueueSaturation []cluster.CatThreadPool  `json:"queue_saturation,omitempty"`
	HotThreads      string                   `json:"hot_threads,omitempty"`
	ClusterStats    *cluster.ClusterStats    `json:"cluster_stats,omitempty"`

	Errors  map[string]string `json:"errors,omitempty"`
	Summary Summary           `json:"summary"`
}

// NewSnapshot starts an empty snapshot stamped at ts.
func NewSnapshot(endpoint string, ts time.Time) *Snapshot {
	return &Snapshot{Timestamp: ts.UTC(), Endpoint: endpoint, Errors: map[string]string{}}
}

// Unavailable lists failed groups in fetch order.
func (s *Snapshot) Unavailable() []string {
	var out []string
	for _, g := range Groups {
		if _, ok := s.Errors[g]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Summary is derived from the other snapshot fields every cycle.
type Summary struct {
	Status             string   `json:"status"`
	StatusCode         int      `json:"status_code"`
	Nodes              int      `json:"nodes"`
	ActiveShards       int      `json:"active_shards"`
	UnassignedShards   int      `json:"unassigned_shards"`
	PendingTasks       int      `json:"pending_tasks"`
	ActiveSearches     int      `json:"active_searches"`
	LongQueries5s      int      `json:"long_queries_5s"`
	LongQueries10s     int      `json:"long_queries_10s"`
	LongQueries30s     int      `json:"long_queries_30s"`
	BreakerTrips       int64    `json:"breaker_trips"`
	QueueSaturationPct float64  `json:"queue_saturation_pct"`
	MaxHeapPct         float64  `json:"max_heap_pct"`
	MaxCPUPct          float64  `json:"max_cpu_pct"`
	OldGCCount         int64    `json:"old_gc_count"`
	AvgRefreshMs       float64  `json:"avg_refresh_ms"`
	MaxSegmentCount    int64    `json:"max_segment_count"`
	CacheEvictions     int64    `json:"cache_evictions"`
	SearchRejected     int64    `json:"search_rejected"`
	WriteRejected      int64    `json:"write_rejected"`
	Issues             []string `json:"issues"`
	Warnings           []string `json:"warnings"`
	Unavailable        []string `json:"unavailable_groups,omitempty"`
}

// SummaryRow is the flattened summary persisted to time-series sinks.
type SummaryRow struct {
	Endpoint  string
	Timestamp time.Time
	Summary
}
