package sink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	"go.uber.org/zap"

	"loadprobe/internal/config"
	"loadprobe/internal/record"
)

const (
	defaultGreptimePort = 4001
	greptimeTimeout     = 10 * time.Second
)

// greptimeClient is the subset of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes request rows and cluster summaries to GreptimeDB.
type GreptimeDBWriter struct {
	client       greptimeClient
	requestTable string
	summaryTable string
	log          *zap.Logger
}

// NewGreptimeDBWriter connects to the configured GreptimeDB endpoint.
func NewGreptimeDBWriter(cfg config.GreptimeConfig, log *zap.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	gcfg := greptime.NewConfig(host).WithPort(port).WithDatabase(cfg.Database)
	client, err := greptime.NewClient(gcfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GreptimeDBWriter{
		client:       client,
		requestTable: cfg.RequestTable,
		summaryTable: cfg.SummaryTable,
		log:          log.Named("greptime"),
	}, nil
}

// splitEndpoint accepts host, host:port or a URL with either.
func splitEndpoint(endpoint string) (string, int, error) {
	e := strings.TrimSpace(endpoint)
	if i := strings.Index(e, "://"); i >= 0 {
		e = e[i+3:]
	}
	e = strings.TrimRight(e, "/")
	if e == "" {
		return "", 0, fmt.Errorf("greptime endpoint is empty")
	}
	host, portText, err := net.SplitHostPort(e)
	if err != nil {
		return e, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: bad port", endpoint)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), greptimeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Warn("write failed", zap.String("table", name), zap.Error(err))
		return err
	}
	w.log.Debug("wrote rows", zap.String("table", name), zap.Int("rows", n))
	return nil
}

func (w *GreptimeDBWriter) requestSchema() (*table.Table, error) {
	tbl, err := table.New(w.requestTable)
	if err != nil {
		return nil, err
	}
	cols := []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"run_id", true, types.STRING},
		{"outcome", true, types.STRING},
		{"request_id", false, types.STRING},
		{"iteration", false, types.INT64},
		{"vu", false, types.INT64},
		{"room_id", false, types.STRING},
		{"user_id", false, types.STRING},
		{"status", false, types.INT64},
		{"marker", false, types.STRING},
		{"latency_ms", false, types.FLOAT64},
		{"error", false, types.STRING},
		{"first_of", false, types.STRING},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// WriteRequest inserts a single request row.
func (w *GreptimeDBWriter) WriteRequest(row record.RequestRow) error {
	return w.WriteRequests([]record.RequestRow{row})
}

// WriteRequests inserts multiple request rows.
func (w *GreptimeDBWriter) WriteRequests(rows []record.RequestRow) error {
	if len(rows) == 0 || w.requestTable == "" {
		return nil
	}
	tbl, err := w.requestSchema()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(
			r.RunID, r.Outcome, r.RequestID, r.Iteration, int64(r.VU), r.RoomID, r.UserID,
			int64(r.Status), r.Marker, r.LatencyMs, r.Error, r.FirstOf, r.Timestamp,
		); err != nil {
			return err
		}
	}
	return w.write(w.requestTable, tbl, len(rows))
}

// WriteSnapshot inserts the cycle's summary row.
func (w *GreptimeDBWriter) WriteSnapshot(s *record.Snapshot) error {
	if w.summaryTable == "" {
		return nil
	}
	return w.WriteSummaries([]record.SummaryRow{{Endpoint: s.Endpoint, Timestamp: s.Timestamp, Summary: s.Summary}})
}

// WriteSummaries inserts multiple summary rows.
func (w *GreptimeDBWriter) WriteSummaries(rows []record.SummaryRow) error {
	if len(rows) == 0 || w.summaryTable == "" {
		return nil
	}
	tbl, err := table.New(w.summaryTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("endpoint", types.STRING); err != nil {
		return err
	}
	fields := []struct {
		name string
		typ  types.ColumnType
	}{
		{"cluster_status", types.STRING},
		{"status_code", types.INT64},
		{"nodes", types.INT64},
		{"active_shards", types.INT64},
		{"unassigned_shards", types.INT64},
		{"pending_tasks", types.INT64},
		{"active_searches", types.INT64},
		{"long_queries_5s", types.INT64},
		{"long_queries_10s", types.INT64},
		{"long_queries_30s", types.INT64},
		{"breaker_trips", types.INT64},
		{"queue_saturation_pct", types.FLOAT64},
		{"max_heap_pct", types.FLOAT64},
		{"max_cpu_pct", types.FLOAT64},
		{"old_gc_count", types.INT64},
		{"avg_refresh_ms", types.FLOAT64},
		{"max_segment_count", types.INT64},
		{"cache_evictions", types.INT64},
		{"search_rejected", types.INT64},
		{"write_rejected", types.INT64},
		{"issues", types.INT64},
		{"warnings", types.INT64},
		{"unavailable_groups", types.INT64},
	}
	for _, f := range fields {
		if err := tbl.AddFieldColumn(f.name, f.typ); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		s := r.Summary
		if err := tbl.AddRow(
			r.Endpoint, s.Status, int64(s.StatusCode), int64(s.Nodes), int64(s.ActiveShards),
			int64(s.UnassignedShards), int64(s.PendingTasks), int64(s.ActiveSearches),
			int64(s.LongQueries5s), int64(s.LongQueries10s), int64(s.LongQueries30s),
			s.BreakerTrips, s.QueueSaturationPct, s.MaxHeapPct, s.MaxCPUPct, s.OldGCCount,
			s.AvgRefreshMs, s.MaxSegmentCount, s.CacheEvictions, s.SearchRejected, s.WriteRejected,
			int64(len(s.Issues)), int64(len(s.Warnings)), int64(len(s.Unavailable)),
			r.Timestamp,
		); err != nil {
			return err
		}
	}
	return w.write(w.summaryTable, tbl, len(rows))
}
