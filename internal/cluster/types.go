package cluster

import (
	"strconv"
	"time"
)

// Health is the _cluster/health response.
type Health struct {
	ClusterName         string  `json:"cluster_name"`
	Status              string  `json:"status"`
	TimedOut            bool    `json:"timed_out"`
	NumberOfNodes       int     `json:"number_of_nodes"`
	NumberOfDataNodes   int     `json:"number_of_data_nodes"`
	ActivePrimaryShards int     `json:"active_primary_shards"`
	ActiveShards        int     `json:"active_shards"`
	RelocatingShards    int     `json:"relocating_shards"`
	InitializingShards  int     `json:"initializing_shards"`
	UnassignedShards    int     `json:"unassigned_shards"`
	PendingTasks        int     `json:"number_of_pending_tasks"`
	ActiveShardsPercent float64 `json:"active_shards_percent_as_number"`
}

// StatusCode maps green/yellow/red to 0/1/2. Unknown values count as red.
func StatusCode(status string) int {
	switch status {
	case "green":
		return 0
	case "yellow":
		return 1
	default:
		return 2
	}
}

// NodesStats is the _nodes/stats response. Which sections are populated
// depends on the requested metrics.
type NodesStats struct {
	ClusterName string               `json:"cluster_name"`
	Nodes       map[string]NodeStats `json:"nodes"`
}

// NodeStats holds one node's stats sections.
type NodeStats struct {
	Name       string                `json:"name"`
	Host       string                `json:"host"`
	Roles      []string              `json:"roles,omitempty"`
	JVM        *JVMStats             `json:"jvm,omitempty"`
	OS         *OSStats              `json:"os,omitempty"`
	Process    *ProcessStats         `json:"process,omitempty"`
	ThreadPool map[string]ThreadPool `json:"thread_pool,omitempty"`
	Breakers   map[string]Breaker    `json:"breakers,omitempty"`
	Indices    *NodeIndices          `json:"indices,omitempty"`
}

// JVMStats holds heap and GC figures.
type JVMStats struct {
	UptimeMillis int64 `json:"uptime_in_millis"`
	Mem          struct {
		HeapUsedBytes   int64   `json:"heap_used_in_bytes"`
		HeapUsedPercent float64 `json:"heap_used_percent"`
		HeapMaxBytes    int64   `json:"heap_max_in_bytes"`
	} `json:"mem"`
	GC struct {
		Collectors map[string]GCCollector `json:"collectors"`
	} `json:"gc"`
}

// GCCollector is one garbage collector's counters.
type GCCollector struct {
	CollectionCount  int64 `json:"collection_count"`
	CollectionMillis int64 `json:"collection_time_in_millis"`
}

// OldGC returns the old-generation collector, if reported.
func (j *JVMStats) OldGC() GCCollector {
	if j == nil {
		return GCCollector{}
	}
	return j.GC.Collectors["old"]
}

// OSStats holds host CPU figures.
type OSStats struct {
	CPU struct {
		Percent     float64            `json:"percent"`
		LoadAverage map[string]float64 `json:"load_average,omitempty"`
	} `json:"cpu"`
	Mem struct {
		UsedPercent float64 `json:"used_percent"`
	} `json:"mem"`
}

// ProcessStats holds process CPU and file descriptor figures.
type ProcessStats struct {
	OpenFileDescriptors int64 `json:"open_file_descriptors"`
	CPU                 struct {
		Percent float64 `json:"percent"`
	} `json:"cpu"`
}

// ThreadPool is one named thread pool on a node.
type ThreadPool struct {
	Threads   int64 `json:"threads"`
	Queue     int64 `json:"queue"`
	Active    int64 `json:"active"`
	Rejected  int64 `json:"rejected"`
	Largest   int64 `json:"largest"`
	Completed int64 `json:"completed"`
}

// Breaker is one circuit breaker on a node.
type Breaker struct {
	LimitBytes     int64   `json:"limit_size_in_bytes"`
	EstimatedBytes int64   `json:"estimated_size_in_bytes"`
	Overhead       float64 `json:"overhead"`
	Tripped        int64   `json:"tripped"`
}

// UsedPct is the estimated size as a percentage of the limit.
func (b Breaker) UsedPct() float64 {
	if b.LimitBytes <= 0 {
		return 0
	}
	return float64(b.EstimatedBytes) / float64(b.LimitBytes) * 100
}

// NodeIndices holds the cache sections of node-level index stats.
type NodeIndices struct {
	QueryCache   CacheStats `json:"query_cache"`
	Fielddata    CacheStats `json:"fielddata"`
	RequestCache CacheStats `json:"request_cache"`
}

// CacheStats is the shared shape of query, fielddata and request cache stats.
type CacheStats struct {
	MemoryBytes int64 `json:"memory_size_in_bytes"`
	Evictions   int64 `json:"evictions"`
	HitCount    int64 `json:"hit_count"`
	MissCount   int64 `json:"miss_count"`
}

// IndicesStats is the <index>/_stats response.
type IndicesStats struct {
	All     IndexStats            `json:"_all"`
	Indices map[string]IndexStats `json:"indices"`
}

// IndexStats holds primaries and totals for one index.
type IndexStats struct {
	Primaries IndexSections `json:"primaries"`
	Total     IndexSections `json:"total"`
}

// IndexSections holds the per-index stat sections this tool reads.
type IndexSections struct {
	Docs     *DocsStats     `json:"docs,omitempty"`
	Store    *StoreStats    `json:"store,omitempty"`
	Indexing *IndexingStats `json:"indexing,omitempty"`
	Search   *SearchStats   `json:"search,omitempty"`
	Refresh  *RefreshStats  `json:"refresh,omitempty"`
	Merges   *MergeStats    `json:"merges,omitempty"`
	Segments *SegmentStats  `json:"segments,omitempty"`
}

type DocsStats struct {
	Count   int64 `json:"count"`
	Deleted int64 `json:"deleted"`
}

type StoreStats struct {
	SizeBytes int64 `json:"size_in_bytes"`
}

type IndexingStats struct {
	IndexTotal   int64 `json:"index_total"`
	IndexMillis  int64 `json:"index_time_in_millis"`
	IndexCurrent int64 `json:"index_current"`
	IndexFailed  int64 `json:"index_failed"`
}

type SearchStats struct {
	QueryTotal   int64 `json:"query_total"`
	QueryMillis  int64 `json:"query_time_in_millis"`
	QueryCurrent int64 `json:"query_current"`
	FetchTotal   int64 `json:"fetch_total"`
}

type RefreshStats struct {
	Total  int64 `json:"total"`
	Millis int64 `json:"total_time_in_millis"`
}

type MergeStats struct {
	Current int64 `json:"current"`
	Total   int64 `json:"total"`
	Millis  int64 `json:"total_time_in_millis"`
}

type SegmentStats struct {
	Count       int64 `json:"count"`
	MemoryBytes int64 `json:"memory_in_bytes"`
}

// RefreshAvgMs is the mean refresh time, zero when nothing was refreshed.
func (s IndexSections) RefreshAvgMs() float64 {
	if s.Refresh == nil || s.Refresh.Total <= 0 {
		return 0
	}
	return float64(s.Refresh.Millis) / float64(s.Refresh.Total)
}

// IndexSettings maps index name to its settings document.
type IndexSettings map[string]struct {
	Settings map[string]any `json:"settings"`
}

// ClusterSettings is the _cluster/settings response with flat keys.
type ClusterSettings struct {
	Persistent map[string]any `json:"persistent"`
	Transient  map[string]any `json:"transient"`
}

// PendingTasks is the _cluster/pending_tasks response.
type PendingTasks struct {
	Tasks []PendingTask `json:"tasks"`
}

// PendingTask is one queued cluster-state update.
type PendingTask struct {
	InsertOrder       int64  `json:"insert_order"`
	Priority          string `json:"priority"`
	Source            string `json:"source"`
	TimeInQueueMillis int64  `json:"time_in_queue_millis"`
}

// TaskList is the _tasks response.
type TaskList struct {
	Nodes map[string]TaskNode `json:"nodes"`
}

// TaskNode groups tasks running on one node.
type TaskNode struct {
	Name  string          `json:"name"`
	Tasks map[string]Task `json:"tasks"`
}

// Task is one running task.
type Task struct {
	Node         string `json:"node"`
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Action       string `json:"action"`
	Description  string `json:"description,omitempty"`
	StartMillis  int64  `json:"start_time_in_millis"`
	RunningNanos int64  `json:"running_time_in_nanos"`
	Cancellable  bool   `json:"cancellable"`
	ParentTaskID string `json:"parent_task_id,omitempty"`
}

// Running returns the task's running time.
func (t Task) Running() time.Duration { return time.Duration(t.RunningNanos) }

// All flattens the task list.
func (l *TaskList) All() []Task {
	if l == nil {
		return nil
	}
	var out []Task
	for _, n := range l.Nodes {
		for _, t := range n.Tasks {
			out = append(out, t)
		}
	}
	return out
}

// CatThreadPool is one row of _cat/thread_pool?format=json. The cat API
// renders numbers as strings.
type CatThreadPool struct {
	NodeName  string `json:"node_name"`
	Name      string `json:"name"`
	Active    string `json:"active"`
	Queue     string `json:"queue"`
	QueueSize string `json:"queue_size"`
	Rejected  string `json:"rejected"`
}

// FillPct is queue / queue_size as a percentage. ok is false for unbounded
// or unparsable queues.
func (r CatThreadPool) FillPct() (pct float64, ok bool) {
	q, err := strconv.ParseFloat(r.Queue, 64)
	if err != nil {
		return 0, false
	}
	size, err := strconv.ParseFloat(r.QueueSize, 64)
	if err != nil || size <= 0 {
		return 0, false
	}
	return q / size * 100, true
}

// ClusterStats is the subset of _cluster/stats this tool reads.
type ClusterStats struct {
	ClusterName string `json:"cluster_name"`
	Status      string `json:"status"`
	Indices     struct {
		Count  int64 `json:"count"`
		Shards struct {
			Total int64 `json:"total"`
		} `json:"shards"`
		Docs struct {
			Count int64 `json:"count"`
		} `json:"docs"`
		Store struct {
			SizeBytes int64 `json:"size_in_bytes"`
		} `json:"store"`
		Segments struct {
			Count int64 `json:"count"`
		} `json:"segments"`
	} `json:"indices"`
	Nodes struct {
		Count struct {
			Total int64 `json:"total"`
			Data  int64 `json:"data"`
		} `json:"count"`
		JVM struct {
			Mem struct {
				HeapUsedBytes int64 `json:"heap_used_in_bytes"`
				HeapMaxBytes  int64 `json:"heap_max_in_bytes"`
			} `json:"mem"`
		} `json:"jvm"`
	} `json:"nodes"`
}
