// Package cluster talks to the managed search cluster: endpoint resolution,
// request signing and the read-only diagnostic calls the collector makes.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/signer/awsv2"
)

// SigningService is the SigV4 service name of the managed cluster.
const SigningService = "es"

// Options configures a Client.
type Options struct {
	Endpoint   string
	Indices    []string
	HotThreads int
	Timeout    time.Duration
	// AWS enables SigV4 signing when set.
	AWS *aws.Config
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client issues the collector's diagnostic calls.
type Client struct {
	os         *opensearch.Client
	endpoint   string
	indices    []string
	hotThreads int
	timeout    time.Duration
}

// NewClient builds an opensearch client for opts.Endpoint.
func NewClient(opts Options) (*Client, error) {
	endpoint := NormalizeEndpoint(opts.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("cluster endpoint is empty")
	}
	cfg := opensearch.Config{
		Addresses: []string{endpoint},
		Transport: opts.Transport,
	}
	if opts.AWS != nil {
		signer, err := awsv2.NewSignerWithService(*opts.AWS, SigningService)
		if err != nil {
			return nil, fmt.Errorf("create request signer: %w", err)
		}
		cfg.Signer = signer
	}
	osClient, err := opensearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	hot := opts.HotThreads
	if hot <= 0 {
		hot = 3
	}
	return &Client{
		os:         osClient,
		endpoint:   endpoint,
		indices:    opts.Indices,
		hotThreads: hot,
		timeout:    opts.Timeout,
	}, nil
}

// NormalizeEndpoint adds an https scheme to bare host names and drops a
// trailing slash. Parameter store values usually hold the bare domain.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimRight(endpoint, "/")
}

// Endpoint returns the normalized cluster address.
func (c *Client) Endpoint() string { return c.endpoint }

// Indices returns the indices the client reports on.
func (c *Client) Indices() []string { return c.indices }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// perform runs req and returns the response body. Non-2xx responses become
// errors carrying the status and a body excerpt.
func (c *Client) perform(ctx context.Context, req opensearchapi.Request) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%s: %s", res.Status(), strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func (c *Client) decode(ctx context.Context, req opensearchapi.Request, out any) error {
	data, err := c.perform(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// Health fetches _cluster/health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.decode(ctx, opensearchapi.ClusterHealthRequest{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) nodesStats(ctx context.Context, metric, indexMetric []string) (*NodesStats, error) {
	var out NodesStats
	req := opensearchapi.NodesStatsRequest{Metric: metric, IndexMetric: indexMetric}
	if err := c.decode(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ThreadPools fetches per-node thread pool counters.
func (c *Client) ThreadPools(ctx context.Context) (*NodesStats, error) {
	return c.nodesStats(ctx, []string{"thread_pool"}, nil)
}

// NodeResources fetches per-node JVM, OS and process stats.
func (c *Client) NodeResources(ctx context.Context) (*NodesStats, error) {
	return c.nodesStats(ctx, []string{"jvm", "os", "process"}, nil)
}

// CircuitBreakers fetches per-node breaker usage.
func (c *Client) CircuitBreakers(ctx context.Context) (*NodesStats, error) {
	return c.nodesStats(ctx, []string{"breaker"}, nil)
}

// Caches fetches per-node query, fielddata and request cache stats.
func (c *Client) Caches(ctx context.Context) (*NodesStats, error) {
	return c.nodesStats(ctx, []string{"indices"}, []string{"query_cache", "fielddata", "request_cache"})
}

// IndexStats fetches indexing, search, refresh and merge stats for the
// configured indices.
func (c *Client) IndexStats(ctx context.Context) (*IndicesStats, error) {
	var out IndicesStats
	req := opensearchapi.IndicesStatsRequest{
		Index:  c.indices,
		Metric: []string{"docs", "store", "indexing", "search", "refresh", "merge"},
	}
	if err := c.decode(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Segments fetches segment counts for the configured indices.
func (c *Client) Segments(ctx context.Context) (*IndicesStats, error) {
	var out IndicesStats
	req := opensearchapi.IndicesStatsRequest{Index: c.indices, Metric: []string{"segments"}}
	if err := c.decode(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IndexSettings fetches the settings of the configured indices.
func (c *Client) IndexSettings(ctx context.Context) (IndexSettings, error) {
	out := IndexSettings{}
	req := opensearchapi.IndicesGetSettingsRequest{Index: c.indices, FlatSettings: boolPtr(true)}
	if err := c.decode(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClusterSettings fetches persistent and transient cluster settings.
func (c *Client) ClusterSettings(ctx context.Context) (*ClusterSettings, error) {
	var out ClusterSettings
	req := opensearchapi.ClusterGetSettingsRequest{FlatSettings: boolPtr(true)}
	if err := c.decode(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingTasks fetches queued cluster-state updates.
func (c *Client) PendingTasks(ctx context.Context) (*PendingTasks, error) {
	var out PendingTasks
	if err := c.decode(ctx, opensearchapi.ClusterPendingTasksRequest{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveTasks fetches running search tasks with their running time.
func (c *Client) ActiveTasks(ctx context.Context) (*TaskList, error) {
	var out TaskList
	req := opensearchapi.TasksListRequest{Actions: []string{"*search*"}, Detailed: boolPtr(true)}
	if err := c.decode(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueueSaturation fetches _cat/thread_pool rows for the search and write pools.
func (c *Client) QueueSaturation(ctx context.Context) ([]CatThreadPool, error) {
	var out []CatThreadPool
	req := opensearchapi.CatThreadPoolRequest{
		ThreadPoolPatterns: []string{"search", "write"},
		Format:             "json",
		H:                  []string{"node_name", "name", "active", "queue", "queue_size", "rejected"},
	}
	if err := c.decode(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HotThreads samples the busiest threads on every node as plain text.
func (c *Client) HotThreads(ctx context.Context) (string, error) {
	threads := c.hotThreads
	data, err := c.perform(ctx, opensearchapi.NodesHotThreadsRequest{Threads: &threads})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ClusterStats fetches _cluster/stats.
func (c *Client) ClusterStats(ctx context.Context) (*ClusterStats, error) {
	var out ClusterStats
	if err := c.decode(ctx, opensearchapi.ClusterStatsRequest{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
