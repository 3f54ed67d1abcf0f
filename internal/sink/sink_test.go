package sink

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadprobe/internal/cluster"
	"loadprobe/internal/config"
	"loadprobe/internal/record"
)

func sampleRow(it int64) record.RequestRow {
	return record.RequestRow{
		RunID:     "run-1",
		RequestID: "req-1",
		Iteration: it,
		VU:        2,
		RoomID:    "room-a",
		UserID:    "user-a",
		Status:    200,
		Outcome:   record.OutcomeSuccess,
		LatencyMs: 12.5,
		Timestamp: time.Unix(0, 0).UTC(),
	}
}

func sampleSnapshot(ts time.Time) *record.Snapshot {
	s := record.NewSnapshot("https://search", ts)
	s.Health = &cluster.Health{ClusterName: "chat", Status: "yellow", NumberOfNodes: 3}
	s.Errors[record.GroupHotThreads] = "403 forbidden"
	s.Summary = record.Summary{
		Status:             "yellow",
		StatusCode:         1,
		Nodes:              3,
		QueueSaturationPct: 62.5,
		Issues:             []string{"[node-1] CPU = 95% (critical > 90%)"},
		Warnings:           []string{"[cluster] cluster status = yellow (warning >= yellow)", "[x] segment count = 600 (warning > 500)"},
		Unavailable:        []string{record.GroupHotThreads},
	}
	return s
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	reqPath := filepath.Join(dir, "requests.jsonl")
	statusPath := filepath.Join(dir, "status.jsonl")
	fw, err := NewFileWriter(reqPath, statusPath)
	require.NoError(t, err)
	require.NoError(t, fw.WriteRequests([]record.RequestRow{sampleRow(1), sampleRow(2)}))
	require.NoError(t, fw.WriteStatus(record.RunStatus{RunID: "run-1", Requests: 2, FirstTimeout: 2}))
	require.NoError(t, fw.Close())

	data, err := os.ReadFile(reqPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var got record.RequestRow
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, int64(2), got.Iteration)
	assert.Equal(t, "room-a", got.RoomID)

	data, err = os.ReadFile(statusPath)
	require.NoError(t, err)
	var st record.RunStatus
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, int64(2), st.FirstTimeout)
}

func TestFileWriterWithoutStatus(t *testing.T) {
	fw, err := NewFileWriter(filepath.Join(t.TempDir(), "r.jsonl"), "")
	require.NoError(t, err)
	assert.NoError(t, fw.WriteStatus(record.RunStatus{}))
	assert.NoError(t, fw.Close())
}

func TestJSONFileWriterNaming(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "metrics")
	w, err := NewJSONFileWriter(dir)
	require.NoError(t, err)
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, w.WriteSnapshot(sampleSnapshot(ts)))

	want := filepath.Join(dir, "metrics_20260304_050607.json")
	assert.Equal(t, want, w.LastPath())
	got, err := ReadSnapshotFile(want)
	require.NoError(t, err)
	assert.Equal(t, "yellow", got.Health.Status)
	assert.Equal(t, "403 forbidden", got.Errors[record.GroupHotThreads])
	assert.Nil(t, got.NodeResources)
	assert.Len(t, got.Summary.Warnings, 2)
}

func TestJSONFileWriterSameSecond(t *testing.T) {
	dir := t.TempDir()
	w, err := NewJSONFileWriter(dir)
	require.NoError(t, err)
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	first := sampleSnapshot(ts)
	require.NoError(t, w.WriteSnapshot(first))
	second := sampleSnapshot(ts.Add(400 * time.Millisecond))
	second.Summary.Status = "red"
	require.NoError(t, w.WriteSnapshot(second))
	require.NoError(t, w.WriteSnapshot(sampleSnapshot(ts)))

	assert.Equal(t, filepath.Join(dir, "metrics_20260304_050607_2.json"), w.LastPath())
	got, err := ReadSnapshotFile(filepath.Join(dir, "metrics_20260304_050607.json"))
	require.NoError(t, err)
	assert.Equal(t, "yellow", got.Summary.Status)
	got, err = ReadSnapshotFile(filepath.Join(dir, "metrics_20260304_050607_1.json"))
	require.NoError(t, err)
	assert.Equal(t, "red", got.Summary.Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCSVWriterHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir)
	require.NoError(t, err)
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, w.WriteSnapshot(sampleSnapshot(ts)))
	require.NoError(t, w.WriteSnapshot(sampleSnapshot(ts.Add(30*time.Second))))

	// A second writer on the same directory keeps appending without a header.
	w2, err := NewCSVWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w2.WriteSnapshot(sampleSnapshot(ts.Add(time.Minute))))

	f, err := os.Open(filepath.Join(dir, SummaryFileName))
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, SummaryColumns, recs[0])
	for _, r := range recs[1:] {
		assert.Len(t, r, len(SummaryColumns))
		assert.NotEqual(t, "timestamp", r[0])
	}

	row := recs[1]
	col := func(name string) string {
		for i, c := range SummaryColumns {
			if c == name {
				return row[i]
			}
		}
		t.Fatalf("no column %s", name)
		return ""
	}
	assert.Equal(t, "2026-03-04T05:06:07Z", col("timestamp"))
	assert.Equal(t, "yellow", col("cluster_status"))
	assert.Equal(t, "3", col("nodes"))
	assert.Equal(t, "62.5", col("queue_saturation_pct"))
	assert.Equal(t, "0", col("max_heap_pct"))
	assert.Equal(t, "0", col("long_queries_30s"))
	assert.Equal(t, "1", col("issues"))
	assert.Equal(t, "2", col("warnings"))
	assert.Equal(t, "1", col("unavailable_groups"))
}

func TestSummaryRecordMissingStatus(t *testing.T) {
	rec := SummaryRecord(time.Unix(0, 0), record.Summary{Status: "unknown", StatusCode: -1})
	assert.Equal(t, "0", rec[1])
	for _, v := range rec[2:] {
		assert.Equal(t, "0", v)
	}
}

func TestConsoleWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlainConsoleWriter(buf)
	s := sampleSnapshot(time.Unix(0, 0).UTC())
	s.NodeResources = &cluster.NodesStats{Nodes: map[string]cluster.NodeStats{
		"abc": {Name: "node-1", JVM: &cluster.JVMStats{}},
	}}
	s.QueueSaturation = []cluster.CatThreadPool{{NodeName: "node-1", Name: "write", Queue: "0", QueueSize: "-1"}}
	require.NoError(t, w.WriteSnapshot(s))

	out := buf.String()
	assert.Contains(t, out, "Cluster Health")
	assert.Contains(t, out, "node-1")
	assert.Contains(t, out, "unbounded")
	assert.Contains(t, out, "CRITICAL [node-1] CPU")
	assert.Contains(t, out, "WARNING  [x] segment count")
	assert.Contains(t, out, "hot_threads: 403 forbidden")
	assert.NotContains(t, out, "\x1b[")
	assert.NotContains(t, out, "Circuit Breakers")
}

func TestConsoleWriterHealthy(t *testing.T) {
	buf := &bytes.Buffer{}
	s := record.NewSnapshot("e", time.Unix(0, 0))
	s.Summary = record.Summary{Status: "green"}
	require.NoError(t, NewPlainConsoleWriter(buf).WriteSnapshot(s))
	assert.Contains(t, buf.String(), "No issues detected")
}

func TestStdoutWriterJSONFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &StdoutWriter{out: buf}
	require.NoError(t, w.WriteRequest(sampleRow(7)))
	require.NoError(t, w.WriteStatus(record.RunStatus{Requests: 7}))
	out := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(out, "{"), out)
	assert.Equal(t, 1, strings.Count(out, "\n")+1)
}

func TestStdoutWriterColorized(t *testing.T) {
	cfg := &config.LoadTestConfig{Target: "http://t", Path: "/p", VUs: 5, RoomMode: "multi"}
	buf := &bytes.Buffer{}
	w := &StdoutWriter{cfg: cfg, colorize: true, out: buf}
	row := sampleRow(1)
	row.FirstOf = "timeout"
	require.NoError(t, w.WriteRequest(row))
	out := buf.String()
	assert.Contains(t, out, "Load Test Configuration:")
	assert.Contains(t, out, "http://t/p")
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "FIRST timeout")

	buf.Reset()
	require.NoError(t, w.WriteRequest(sampleRow(2)))
	assert.NotContains(t, buf.String(), "Load Test Configuration:")
}

type recordingWriter struct {
	rows     []record.RequestRow
	batches  int
	statuses []record.RunStatus
	admin    bool
	closed   int
}

func (r *recordingWriter) WriteRequest(row record.RequestRow) error {
	r.rows = append(r.rows, row)
	return nil
}
func (r *recordingWriter) WriteStatus(st record.RunStatus) error {
	r.statuses = append(r.statuses, st)
	return nil
}
func (r *recordingWriter) SetAdminStatus(on bool) { r.admin = on }
func (r *recordingWriter) Close() error            { r.closed++; return nil }

type batchingWriter struct{ recordingWriter }

func (b *batchingWriter) WriteRequests(rows []record.RequestRow) error {
	b.batches++
	b.rows = append(b.rows, rows...)
	return nil
}

type failingSnapshots struct{ calls int }

func (f *failingSnapshots) WriteSnapshot(*record.Snapshot) error {
	f.calls++
	return errors.New("disk full")
}

type countingSnapshots struct{ calls int }

func (c *countingSnapshots) WriteSnapshot(*record.Snapshot) error {
	c.calls++
	return nil
}

func TestMultiWriterFanOut(t *testing.T) {
	plain := &recordingWriter{}
	batch := &batchingWriter{}
	mw := NewMultiWriter([]RequestWriter{plain, batch}, nil)

	require.NoError(t, mw.WriteRequests([]record.RequestRow{sampleRow(1), sampleRow(2)}))
	assert.Len(t, plain.rows, 2)
	assert.Len(t, batch.rows, 2)
	assert.Equal(t, 1, batch.batches)

	require.NoError(t, mw.WriteStatus(record.RunStatus{Requests: 2}))
	assert.Len(t, plain.statuses, 1)

	mw.SetAdminStatus(true)
	assert.True(t, plain.admin)
	assert.True(t, batch.admin)

	require.NoError(t, mw.Close())
	assert.Equal(t, 1, plain.closed)
}

func TestMultiWriterSnapshotsContinuePastFailure(t *testing.T) {
	bad := &failingSnapshots{}
	good := &countingSnapshots{}
	mw := NewMultiWriter(nil, []SnapshotWriter{bad, good})
	err := mw.WriteSnapshot(record.NewSnapshot("e", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, good.calls)
}

func TestReplayRequests(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, enc.Encode(sampleRow(i)))
	}
	w := &recordingWriter{}
	n, err := ReplayRequests(&buf, w, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), w.rows[2].Iteration)
}

func TestReplayRequestsPaced(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	first := sampleRow(1)
	second := sampleRow(2)
	second.Timestamp = first.Timestamp.Add(200 * time.Millisecond)
	require.NoError(t, enc.Encode(first))
	require.NoError(t, enc.Encode(second))

	start := time.Now()
	n, err := ReplayRequests(&buf, &recordingWriter{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	_, err := ReadSnapshot(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestSplitEndpoint(t *testing.T) {
	host, port, err := splitEndpoint("http://greptime:4001/")
	require.NoError(t, err)
	assert.Equal(t, "greptime", host)
	assert.Equal(t, 4001, port)

	host, port, err = splitEndpoint("localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, defaultGreptimePort, port)

	_, _, err = splitEndpoint("")
	assert.Error(t, err)
	_, _, err = splitEndpoint("host:abc")
	assert.Error(t, err)
}
