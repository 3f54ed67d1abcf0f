package breakpoint

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"loadprobe/internal/classify"
)

// Outcome tells the caller which latches a Record call set, so the first
// occurrence can be logged differently from repeats.
type Outcome struct {
	FirstTimeout   bool
	FirstError     bool
	FirstRateLimit bool
}

// Aggregator holds the counters and latches for one run. It is safe for
// concurrent use by every virtual user of that run.
type Aggregator struct {
	runID string
	start time.Time
	now   func() time.Time

	iterations   atomic.Int64
	requests     atomic.Int64
	successes    atomic.Int64
	errors       atomic.Int64
	timeouts     atomic.Int64
	generic      atomic.Int64
	rateLimited  atomic.Int64
	storageError atomic.Int64

	timeoutLatch   Latch
	errorLatch     Latch
	rateLimitLatch Latch

	latMu     sync.Mutex
	latencies []time.Duration
}

// NewAggregator creates an aggregator for the run identified by runID.
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{
		runID:     runID,
		start:     time.Now().UTC(),
		now:       time.Now,
		latencies: make([]time.Duration, 0, 4096),
	}
}

// RunID returns the identifier of the run.
func (a *Aggregator) RunID() string { return a.runID }

// NextIteration reserves the next 1-based iteration index.
func (a *Aggregator) NextIteration() int64 {
	return a.iterations.Add(1)
}

// Reserve hands out the next iteration index unless budget indices have
// already been handed out. A budget <= 0 is unbounded.
func (a *Aggregator) Reserve(budget int64) (int64, bool) {
	if budget <= 0 {
		return a.NextIteration(), true
	}
	for {
		cur := a.iterations.Load()
		if cur >= budget {
			return 0, false
		}
		if a.iterations.CompareAndSwap(cur, cur+1) {
			return cur + 1, true
		}
	}
}

// Record folds one classified exchange into the counters and latches.
func (a *Aggregator) Record(iteration int64, res classify.Result, latency time.Duration) Outcome {
	var out Outcome
	a.requests.Add(1)
	switch {
	case res.Success:
		a.successes.Add(1)
	case res.Timeout:
		a.errors.Add(1)
		a.timeouts.Add(1)
		out.FirstTimeout = a.timeoutLatch.Set(iteration)
	case res.GenericError:
		a.errors.Add(1)
		a.generic.Add(1)
		out.FirstError = a.errorLatch.Set(iteration)
	}
	if res.RateLimited {
		a.rateLimited.Add(1)
		out.FirstRateLimit = a.rateLimitLatch.Set(iteration)
	} else if res.StorageError {
		a.storageError.Add(1)
	}
	if !res.Timeout {
		a.latMu.Lock()
		a.latencies = append(a.latencies, latency)
		a.latMu.Unlock()
	}
	return out
}

// Totals is a consistent-enough point read of the counters.
type Totals struct {
	Iterations    int64 `json:"iterations" yaml:"iterations"`
	Requests      int64 `json:"requests" yaml:"requests"`
	Successes     int64 `json:"successes" yaml:"successes"`
	Errors        int64 `json:"errors" yaml:"errors"`
	Timeouts      int64 `json:"timeouts" yaml:"timeouts"`
	GenericErrors int64 `json:"generic_errors" yaml:"generic_errors"`
	RateLimited   int64 `json:"rate_limited" yaml:"rate_limited"`
	StorageErrors int64 `json:"storage_errors" yaml:"storage_errors"`
}

// Totals returns the current counter values.
func (a *Aggregator) Totals() Totals {
	return Totals{
		Iterations:    a.iterations.Load(),
		Requests:      a.requests.Load(),
		Successes:     a.successes.Load(),
		Errors:        a.errors.Load(),
		Timeouts:      a.timeouts.Load(),
		GenericErrors: a.generic.Load(),
		RateLimited:   a.rateLimited.Load(),
		StorageErrors: a.storageError.Load(),
	}
}

// Latches returns the three breakpoint latches as report entries.
func (a *Aggregator) Latches() Breakpoints {
	return Breakpoints{
		Timeout:      entry(&a.timeoutLatch),
		GenericError: entry(&a.errorLatch),
		RateLimit:    entry(&a.rateLimitLatch),
	}
}

func entry(l *Latch) Breakpoint {
	it, ok := l.Get()
	return Breakpoint{Detected: ok, Iteration: it}
}

// sortedLatencies returns a sorted copy of the recorded latencies.
func (a *Aggregator) sortedLatencies() []time.Duration {
	a.latMu.Lock()
	out := make([]time.Duration, len(a.latencies))
	copy(out, a.latencies)
	a.latMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Report builds the end-of-run report from the current state.
func (a *Aggregator) Report() *Report {
	end := a.now().UTC()
	totals := a.Totals()
	lat := a.sortedLatencies()
	elapsed := end.Sub(a.start)
	r := &Report{
		RunID:       a.runID,
		Start:       a.start,
		End:         end,
		Duration:    elapsed.Round(time.Millisecond).String(),
		Breakpoints: a.Latches(),
		Totals:      totals,
		ErrorRate:   Rate(totals.Errors, totals.Requests),
		TimeoutRate: Rate(totals.Timeouts, totals.Requests),
		SuccessRate: Rate(totals.Successes, totals.Requests),
		Latency:     latencyStats(lat),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.IterationsPerSecond = float64(totals.Requests) / secs
	}
	return r
}

// Rate returns part/whole, or 0 when whole is zero.
func Rate(part, whole int64) float64 {
	if whole <= 0 || part <= 0 {
		return 0
	}
	if part >= whole {
		return 1
	}
	return float64(part) / float64(whole)
}
