package cluster

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{Endpoint: srv.URL, Indices: []string{"chat-messages", "chat-rooms"}, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_cluster/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cluster_name":"c1","status":"yellow","number_of_nodes":3,"active_shards":12,"unassigned_shards":2}`))
	})
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "yellow", h.Status)
	assert.Equal(t, 3, h.NumberOfNodes)
	assert.Equal(t, 2, h.UnassignedShards)
	assert.Equal(t, 1, StatusCode(h.Status))
}

func TestNodeResourcesRequestsMetrics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/_nodes/stats/"), r.URL.Path)
		assert.Contains(t, r.URL.Path, "jvm")
		_, _ = w.Write([]byte(`{"nodes":{"n1":{"name":"node-1","jvm":{"mem":{"heap_used_percent":90},"gc":{"collectors":{"old":{"collection_count":12}}}},"os":{"cpu":{"percent":42}}}}}`))
	})
	ns, err := c.NodeResources(context.Background())
	require.NoError(t, err)
	n := ns.Nodes["n1"]
	assert.Equal(t, "node-1", n.Name)
	assert.Equal(t, 90.0, n.JVM.Mem.HeapUsedPercent)
	assert.Equal(t, int64(12), n.JVM.OldGC().CollectionCount)
	assert.Equal(t, 42.0, n.OS.CPU.Percent)
}

func TestIndexStatsUsesConfiguredIndices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/chat-messages,chat-rooms/_stats"), r.URL.Path)
		_, _ = w.Write([]byte(`{"indices":{"chat-messages":{"total":{"refresh":{"total":10,"total_time_in_millis":1200}}}}}`))
	})
	st, err := c.IndexStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120.0, st.Indices["chat-messages"].Total.RefreshAvgMs())
}

func TestQueueSaturationParsesCatRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/_cat/thread_pool"), r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(`[{"node_name":"n1","name":"search","queue":"600","queue_size":"1000","active":"3","rejected":"0"},{"node_name":"n1","name":"write","queue":"0","queue_size":"-1"}]`))
	})
	rows, err := c.QueueSaturation(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	pct, ok := rows[0].FillPct()
	assert.True(t, ok)
	assert.Equal(t, 60.0, pct)
	_, ok = rows[1].FillPct()
	assert.False(t, ok)
}

func TestHotThreadsReturnsText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "hot_threads")
		assert.Equal(t, "3", r.URL.Query().Get("threads"))
		_, _ = w.Write([]byte("::: {node-1}\n   12.3% cpu usage by thread 'search'\n"))
	})
	txt, err := c.HotThreads(context.Background())
	require.NoError(t, err)
	assert.Contains(t, txt, "cpu usage")
}

func TestErrorStatusBecomesError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"no permissions"}`))
	})
	_, err := c.PendingTasks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "no permissions")
}

func TestActiveTasks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_tasks", r.URL.Path)
		assert.Equal(t, "*search*", r.URL.Query().Get("actions"))
		_, _ = w.Write([]byte(`{"nodes":{"n1":{"name":"node-1","tasks":{"n1:1":{"action":"indices:data/read/search","running_time_in_nanos":12000000000}}}}}`))
	})
	tl, err := c.ActiveTasks(context.Background())
	require.NoError(t, err)
	tasks := tl.All()
	require.Len(t, tasks, 1)
	assert.Equal(t, 12*time.Second, tasks[0].Running())
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "https://search-x.es.amazonaws.com", NormalizeEndpoint("search-x.es.amazonaws.com/"))
	assert.Equal(t, "http://localhost:9200", NormalizeEndpoint(" http://localhost:9200 "))
	assert.Empty(t, NormalizeEndpoint(""))

	_, err := NewClient(Options{})
	assert.Error(t, err)
}

type fakeParams struct {
	value *string
	err   error
	name  string
}

func (f *fakeParams) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.name = aws.ToString(in.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: f.value}}, nil
}

func TestResolveEndpoint(t *testing.T) {
	f := &fakeParams{value: aws.String("vpc-search.eu-west-1.es.amazonaws.com")}
	ep, err := ResolveEndpoint(context.Background(), f, "/search/endpoint")
	require.NoError(t, err)
	assert.Equal(t, "/search/endpoint", f.name)
	assert.Equal(t, "https://vpc-search.eu-west-1.es.amazonaws.com", ep)

	_, err = ResolveEndpoint(context.Background(), &fakeParams{value: aws.String("  ")}, "/x")
	assert.ErrorIs(t, err, ErrNoEndpoint)

	boom := errors.New("access denied")
	_, err = ResolveEndpoint(context.Background(), &fakeParams{err: boom}, "/x")
	assert.ErrorIs(t, err, boom)
}
