// Package loadtest runs virtual users against one HTTP endpoint and latches
// the first iteration at which each failure class appears.
package loadtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"loadprobe/internal/breakpoint"
	"loadprobe/internal/classify"
	"loadprobe/internal/config"
	"loadprobe/internal/logging"
	"loadprobe/internal/profile"
	"loadprobe/internal/record"
	"loadprobe/internal/room"
	"loadprobe/internal/sink"
)

const (
	maxBodyBytes          = 64 << 10
	excerptBytes          = 300
	rampPoll              = 500 * time.Millisecond
	defaultStatusInterval = 5 * time.Second
)

// Breakpoint kinds used in logs, metrics and request rows.
const (
	KindTimeout   = "timeout"
	KindError     = "error"
	KindRateLimit = "rate_limit"
)

// Options configures a Driver.
type Options struct {
	Config config.LoadTestConfig
	Rooms  []room.Room
	// Profile, when it has stages, drives how many users are active over time.
	Profile *profile.Profile
	Client  *http.Client
	Writer  sink.RequestWriter
	Metrics *Metrics
	// StatusInterval controls how often a RunStatus is pushed to Writer.
	StatusInterval time.Duration
}

// Driver owns one load run.
type Driver struct {
	cfg         config.LoadTestConfig
	url         string
	selector    *room.Selector
	builder     *room.Builder
	classifier  *classify.Classifier
	agg         *breakpoint.Aggregator
	metrics     *Metrics
	writer      sink.RequestWriter
	client      *http.Client
	limiter     *rate.Limiter
	ramp        profile.Profile
	poolSize    int
	statusEvery time.Duration
	active      atomic.Int64
	seed        uint64
}

// New validates opts and prepares a driver. Nothing is sent until Run.
func New(opts Options) (*Driver, error) {
	cfg := opts.Config
	sel, err := room.NewSelector(cfg.RoomMode, opts.Rooms)
	if err != nil {
		return nil, err
	}
	if cfg.VUs < 1 && (opts.Profile == nil || len(opts.Profile.Stages) == 0) {
		return nil, fmt.Errorf("%w: at least one virtual user is required", config.ErrInvalid)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	d := &Driver{
		cfg:         cfg,
		url:         cfg.Target + cfg.Path,
		selector:    sel,
		builder:     room.NewBuilder(cfg.Payload),
		classifier:  classify.New(cfg.ClassifierMarkers()),
		agg:         breakpoint.NewAggregator(uuid.NewString()),
		metrics:     opts.Metrics,
		writer:      opts.Writer,
		client:      client,
		ramp:        profile.Profile{VUs: cfg.VUs},
		statusEvery: opts.StatusInterval,
		seed:        uint64(time.Now().UnixNano()),
	}
	if opts.Profile != nil && len(opts.Profile.Stages) > 0 {
		d.ramp.Stages = opts.Profile.Stages
	}
	d.poolSize = d.ramp.MaxVUs()
	if cfg.MaxRPS > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1)
	}
	if d.statusEvery <= 0 {
		d.statusEvery = defaultStatusInterval
	}
	return d, nil
}

// Aggregator exposes the run's counters and latches.
func (d *Driver) Aggregator() *breakpoint.Aggregator { return d.agg }

// Report builds the report from the current state. It is safe to call while
// the run is in progress.
func (d *Driver) Report() *breakpoint.Report { return d.agg.Report() }

// RunID identifies the run.
func (d *Driver) RunID() string { return d.agg.RunID() }

// Status returns a live view of the run.
func (d *Driver) Status() record.RunStatus {
	t := d.agg.Totals()
	bp := d.agg.Latches()
	return record.RunStatus{
		RunID:          d.agg.RunID(),
		ActiveVUs:      int(d.active.Load()),
		Requests:       t.Requests,
		Successes:      t.Successes,
		Errors:         t.Errors,
		Timeouts:       t.Timeouts,
		RateLimited:    t.RateLimited,
		StorageError:   t.StorageErrors,
		FirstTimeout:   bp.Timeout.Iteration,
		FirstError:     bp.GenericError.Iteration,
		FirstRateLimit: bp.RateLimit.Iteration,
	}
}

// budget returns the duration budget: the configured one, or the length of
// the ramp when only stages bound the run.
func (d *Driver) budget() time.Duration {
	if d.cfg.Duration > 0 {
		return d.cfg.Duration
	}
	if len(d.ramp.Stages) > 0 {
		return d.ramp.TotalDuration()
	}
	return 0
}

// Run starts the virtual users and blocks until the iteration or duration
// budget is spent or ctx is cancelled. The budget only stops new iterations;
// requests already in flight finish or time out on their own. Cancelling ctx
// aborts in-flight requests too, and those are left out of the report.
func (d *Driver) Run(ctx context.Context) *breakpoint.Report {
	log := logging.FromContext(ctx).With(zap.String("run_id", d.agg.RunID()))
	stopCtx := ctx
	if b := d.budget(); b > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, b)
		defer cancel()
	}

	log.Info("load run starting",
		zap.String("url", d.url),
		zap.Int("vus", d.poolSize),
		zap.Int64("iterations", d.cfg.Iterations),
		zap.Duration("duration", d.budget()),
		zap.String("room_mode", string(d.selector.Mode())),
		zap.Int("rooms", d.selector.Len()),
	)

	start := time.Now()
	statusDone := make(chan struct{})
	statusStopped := make(chan struct{})
	go d.pushStatus(statusDone, statusStopped, log)

	var wg sync.WaitGroup
	for id := 1; id <= d.poolSize; id++ {
		wg.Add(1)
		go func(vu int) {
			defer wg.Done()
			d.runVU(stopCtx, ctx, vu, start, log)
		}(id)
	}
	wg.Wait()
	close(statusDone)
	<-statusStopped

	rep := d.agg.Report()
	log.Info("load run finished",
		zap.Int64("requests", rep.Totals.Requests),
		zap.Float64("error_rate", rep.ErrorRate),
		zap.String("duration", rep.Duration),
	)
	return rep
}

func (d *Driver) pushStatus(done <-chan struct{}, stopped chan<- struct{}, log *zap.Logger) {
	defer close(stopped)
	sw, ok := d.writer.(sink.StatusWriter)
	if !ok {
		return
	}
	ticker := time.NewTicker(d.statusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := sw.WriteStatus(d.Status()); err != nil {
				log.Warn("status write failed", zap.Error(err))
			}
		case <-done:
			_ = sw.WriteStatus(d.Status())
			return
		}
	}
}

// runVU is one virtual user's loop. stopCtx ends the loop; reqCtx bounds
// individual requests.
func (d *Driver) runVU(stopCtx, reqCtx context.Context, vu int, start time.Time, log *zap.Logger) {
	r := d.selector.For(vu)
	rng := newRand(d.seed, vu)
	active := false
	defer func() {
		if active {
			d.setActive(-1)
		}
	}()

	for stopCtx.Err() == nil {
		if d.ramp.TargetAt(time.Since(start)) < vu {
			if active {
				active = false
				d.setActive(-1)
			}
			if !sleepCtx(stopCtx, rampPoll) {
				return
			}
			continue
		}
		if !active {
			active = true
			d.setActive(1)
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(stopCtx); err != nil {
				return
			}
		}
		it, ok := d.agg.Reserve(d.cfg.Iterations)
		if !ok {
			return
		}
		d.iterate(reqCtx, log, vu, r, it)
		if !sleepCtx(stopCtx, d.think(rng)) {
			return
		}
	}
}

func (d *Driver) setActive(delta int64) {
	n := d.active.Add(delta)
	if d.metrics != nil {
		d.metrics.ActiveVUs.Set(float64(n))
	}
}

func newRand(seed uint64, vu int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(vu)))
}

// think returns the pause after an iteration, uniform in [ThinkMin, ThinkMax].
func (d *Driver) think(rng *rand.Rand) time.Duration {
	lo, hi := d.cfg.ThinkMin, d.cfg.ThinkMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int64N(int64(hi-lo)+1))
}

func sleepCtx(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// exchange sends one request and reads its body.
func (d *Driver) exchange(ctx context.Context, requestID string, body []byte) classify.Exchange {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return classify.Exchange{Err: err, Duration: time.Since(start)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := d.client.Do(req)
	if err != nil {
		return classify.Exchange{Err: err, Duration: time.Since(start)}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	// A body cut off mid-read counts as no response.
	return classify.Exchange{Status: resp.StatusCode, Body: string(data), Err: err, Duration: time.Since(start)}
}

func (d *Driver) iterate(ctx context.Context, log *zap.Logger, vu int, r room.Room, it int64) {
	requestID := uuid.NewString()
	body, err := d.builder.Encode(r, it)
	if err != nil {
		log.Error("encode payload", zap.Int64("iteration", it), zap.Error(err))
		return
	}
	ex := d.exchange(ctx, requestID, body)
	if err := ctx.Err(); err != nil && errors.Is(ex.Err, err) {
		// Interrupted by the operator, not the target: nothing to classify.
		log.Debug("request cancelled", zap.Int64("iteration", it), zap.Int("vu", vu))
		return
	}
	res := d.classifier.Classify(ex)
	out := d.agg.Record(it, res, ex.Duration)
	d.metrics.observe(res, ex.Duration.Seconds())

	now := time.Now().UTC()
	l := log.With(
		zap.Int64("iteration", it),
		zap.Int("vu", vu),
		zap.String("room_id", r.RoomID),
		zap.String("request_id", requestID),
		zap.Time("ts", now),
	)
	firstOf := d.logOutcome(l, it, res, ex, out)
	if ex.Status >= 400 {
		l.Warn("error response", zap.Int("status", ex.Status), zap.String("body", excerpt(ex.Body)))
	}

	if d.writer != nil {
		row := record.RequestRow{
			RunID:     d.agg.RunID(),
			RequestID: requestID,
			Iteration: it,
			VU:        vu,
			RoomID:    r.RoomID,
			UserID:    r.UserID,
			Status:    ex.Status,
			Outcome:   outcome(res),
			Marker:    res.Marker,
			LatencyMs: float64(ex.Duration.Microseconds()) / 1000,
			FirstOf:   firstOf,
			Timestamp: now,
		}
		if ex.Err != nil {
			row.Error = ex.Err.Error()
		}
		if err := d.writer.WriteRequest(row); err != nil {
			log.Warn("request write failed", zap.Int64("iteration", it), zap.Error(err))
		}
	}
}

// logOutcome writes the first-occurrence or repeat line for a failed
// exchange and returns the breakpoint kinds first seen at this iteration.
func (d *Driver) logOutcome(l *zap.Logger, it int64, res classify.Result, ex classify.Exchange, out breakpoint.Outcome) string {
	var first []string
	switch {
	case res.Timeout:
		fields := []zap.Field{zap.Duration("elapsed", ex.Duration), zap.Error(ex.Err)}
		if out.FirstTimeout {
			first = append(first, KindTimeout)
			d.metrics.breakpoint(KindTimeout, it)
			l.Error("first timeout", fields...)
		} else {
			l.Info("timeout repeat", fields...)
		}
	case res.GenericError:
		if out.FirstError {
			first = append(first, KindError)
			d.metrics.breakpoint(KindError, it)
			l.Error("first error response", zap.Int("status", ex.Status))
		} else {
			l.Info("error response repeat", zap.Int("status", ex.Status))
		}
	}
	if res.RateLimited {
		if out.FirstRateLimit {
			first = append(first, KindRateLimit)
			d.metrics.breakpoint(KindRateLimit, it)
			l.Error("first rate limit", zap.String("marker", res.Marker))
		} else {
			l.Info("rate limited", zap.String("marker", res.Marker))
		}
	} else if res.StorageError {
		l.Warn("storage error", zap.String("marker", res.Marker))
	}
	return strings.Join(first, ",")
}

func excerpt(body string) string {
	if len(body) <= excerptBytes {
		return body
	}
	return body[:excerptBytes] + "..."
}
