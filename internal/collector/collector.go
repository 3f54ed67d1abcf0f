// Package collector polls the search cluster's diagnostic metrics, classifies
// them and hands each snapshot to the configured sinks.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loadprobe/internal/cluster"
	"loadprobe/internal/logging"
	"loadprobe/internal/record"
	"loadprobe/internal/sink"
	"loadprobe/internal/threshold"
)

// API is the set of read-only cluster calls a cycle makes. *cluster.Client
// implements it.
type API interface {
	Endpoint() string
	Health(ctx context.Context) (*cluster.Health, error)
	ThreadPools(ctx context.Context) (*cluster.NodesStats, error)
	NodeResources(ctx context.Context) (*cluster.NodesStats, error)
	IndexStats(ctx context.Context) (*cluster.IndicesStats, error)
	IndexSettings(ctx context.Context) (cluster.IndexSettings, error)
	ClusterSettings(ctx context.Context) (*cluster.ClusterSettings, error)
	PendingTasks(ctx context.Context) (*cluster.PendingTasks, error)
	ActiveTasks(ctx context.Context) (*cluster.TaskList, error)
	CircuitBreakers(ctx context.Context) (*cluster.NodesStats, error)
	Caches(ctx context.Context) (*cluster.NodesStats, error)
	Segments(ctx context.Context) (*cluster.IndicesStats, error)
	QueueSaturation(ctx context.Context) ([]cluster.CatThreadPool, error)
	HotThreads(ctx context.Context) (string, error)
	ClusterStats(ctx context.Context) (*cluster.ClusterStats, error)
}

var _ API = (*cluster.Client)(nil)

// Options configures a Collector.
type Options struct {
	// Parallel fetches the groups concurrently.
	Parallel  bool
	Interval  time.Duration
	Evaluator *threshold.Evaluator
	Sink      sink.SnapshotWriter
	// Now stamps snapshots; defaults to time.Now.
	Now func() time.Time
}

// Collector runs poll cycles against one cluster.
type Collector struct {
	api       API
	parallel  bool
	interval  time.Duration
	evaluator *threshold.Evaluator
	sink      sink.SnapshotWriter
	now       func() time.Time
}

// New returns a collector reading from api.
func New(api API, opts Options) *Collector {
	c := &Collector{
		api:       api,
		parallel:  opts.Parallel,
		interval:  opts.Interval,
		evaluator: opts.Evaluator,
		sink:      opts.Sink,
		now:       opts.Now,
	}
	if c.evaluator == nil {
		c.evaluator = threshold.New(nil)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.interval <= 0 {
		c.interval = 30 * time.Second
	}
	return c
}

// fetcher loads one group into its own snapshot field.
type fetcher struct {
	group string
	fetch func(ctx context.Context, api API, s *record.Snapshot) error
}

func groups() []fetcher {
	return []fetcher{
		{record.GroupHealth, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.Health, err = api.Health(ctx)
			return err
		}},
		{record.GroupThreadPools, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.ThreadPools, err = api.ThreadPools(ctx)
			return err
		}},
		{record.GroupNodeResources, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.NodeResources, err = api.NodeResources(ctx)
			return err
		}},
		{record.GroupIndexStats, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.IndexStats, err = api.IndexStats(ctx)
			return err
		}},
		{record.GroupIndexSettings, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.IndexSettings, err = api.IndexSettings(ctx)
			return err
		}},
		{record.GroupClusterSettings, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.ClusterSettings, err = api.ClusterSettings(ctx)
			return err
		}},
		{record.GroupPendingTasks, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.PendingTasks, err = api.PendingTasks(ctx)
			return err
		}},
		{record.GroupActiveTasks, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.ActiveTasks, err = api.ActiveTasks(ctx)
			return err
		}},
		{record.GroupCircuitBreakers, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.CircuitBreakers, err = api.CircuitBreakers(ctx)
			return err
		}},
		{record.GroupCaches, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.Caches, err = api.Caches(ctx)
			return err
		}},
		{record.GroupSegments, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.Segments, err = api.Segments(ctx)
			return err
		}},
		{record.GroupQueueSaturation, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.QueueSaturation, err = api.QueueSaturation(ctx)
			return err
		}},
		{record.GroupHotThreads, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.HotThreads, err = api.HotThreads(ctx)
			return err
		}},
		{record.GroupClusterStats, func(ctx context.Context, api API, s *record.Snapshot) (err error) {
			s.ClusterStats, err = api.ClusterStats(ctx)
			return err
		}},
	}
}

// Collect fetches every group into a fresh snapshot. A failing group leaves
// its field empty and its error text in Errors; the others are unaffected.
// The returned error combines the group failures and is informational only.
func (c *Collector) Collect(ctx context.Context) (*record.Snapshot, error) {
	s := record.NewSnapshot(c.api.Endpoint(), c.now())
	fs := groups()
	errs := make([]error, len(fs))

	if c.parallel {
		// Each goroutine writes only its own snapshot field and errs slot.
		// Group failures are absorbed so one never cancels its siblings.
		g, gctx := errgroup.WithContext(ctx)
		for i, f := range fs {
			g.Go(func() error {
				errs[i] = f.fetch(gctx, c.api, s)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, f := range fs {
			errs[i] = f.fetch(ctx, c.api, s)
		}
	}

	var result *multierror.Error
	for i, err := range errs {
		if err == nil {
			continue
		}
		s.Errors[fs[i].group] = err.Error()
		result = multierror.Append(result, fmt.Errorf("%s: %w", fs[i].group, err))
	}
	return s, result.ErrorOrNil()
}

// Cycle collects one snapshot, summarizes it and writes it to the sink.
// Only a sink failure is returned; fetch failures are part of the snapshot.
func (c *Collector) Cycle(ctx context.Context) (*record.Snapshot, error) {
	log := logging.FromContext(ctx)
	start := time.Now()
	s, fetchErr := c.Collect(ctx)
	for _, g := range s.Unavailable() {
		log.Warn("metrics group unavailable",
			zap.String("group", g),
			zap.String("error", s.Errors[g]),
			zap.Time("ts", s.Timestamp),
		)
	}
	if fetchErr != nil {
		log.Warn("cycle completed with group failures", zap.Error(fetchErr))
	}

	sum := c.evaluator.Summarize(s)
	log.Info("cycle collected",
		zap.String("endpoint", s.Endpoint),
		zap.String("status", sum.Status),
		zap.Int("issues", len(sum.Issues)),
		zap.Int("warnings", len(sum.Warnings)),
		zap.Int("unavailable", len(sum.Unavailable)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if c.sink != nil {
		if err := c.sink.WriteSnapshot(s); err != nil {
			return s, fmt.Errorf("write snapshot: %w", err)
		}
	}
	return s, nil
}

// Run executes cycles until ctx is cancelled, sleeping the interval between
// them. A failed cycle is logged and the loop carries on. With once set a
// single cycle runs and its error is returned.
func (c *Collector) Run(ctx context.Context, once bool) error {
	log := logging.FromContext(ctx)
	if once {
		_, err := c.Cycle(ctx)
		return err
	}
	log.Info("starting collector", zap.Duration("interval", c.interval), zap.Bool("parallel", c.parallel))
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping collector")
			return nil
		case <-timer.C:
			if _, err := c.Cycle(ctx); err != nil {
				log.Error("cycle failed", zap.Error(err))
			}
			timer.Reset(c.interval)
		}
	}
}
