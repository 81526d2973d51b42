// Package policy resolves named execution profiles into concrete throughput
// parameters. Resolution is pure: the same request always yields the same
// policy, so callers can unit-test scheduling decisions without I/O.
package policy

import "time"

// Profile names a throughput/timing configuration.
type Profile string

const (
	// ProfileAPI is for runs triggered by an interactive HTTP request and
	// must finish inside a typical gateway timeout.
	ProfileAPI Profile = "api"
	// ProfileManual is for operator-initiated CLI runs.
	ProfileManual Profile = "manual"
	// ProfileRefresh is for lightweight re-checks that skip the run lock.
	ProfileRefresh Profile = "refresh"
	// ProfileScheduled is for long-running cron-style jobs.
	ProfileScheduled Profile = "scheduled"
)

// Overrides carries caller-supplied parameter overrides. Zero values mean
// "use the profile default"; non-zero values are clamped to safe bounds.
type Overrides struct {
	BatchSize         int
	LLMDelayMs        int
	MaxExecutionMs    int
	SourceConcurrency int
}

// Request selects a profile and tier.
type Request struct {
	Profile   Profile
	PaidTier  bool // paid inference keys get larger batches and shorter delays
	Overrides Overrides
}

// Policy is the resolved set of execution parameters for one run.
type Policy struct {
	MaxExecution      time.Duration // wall-clock budget for the whole run
	UseLock           bool          // whether the persisted run lock guards this run
	BatchSize         int           // per-stage backlog batch size
	LLMDelay          time.Duration // pause between consecutive inference calls
	SourceConcurrency int           // parallel feed fetches during ingestion
	FetchTimeout      time.Duration // per-source feed fetch timeout
	RetryTimeout      time.Duration // budget for the fallback request profile
}

// Clamping bounds for overrides.
const (
	minBatchSize    = 1
	maxBatchSize    = 200
	maxLLMDelay     = 10 * time.Second
	minMaxExecution = time.Second
	maxMaxExecution = 30 * time.Minute
	minConcurrency  = 1
	maxConcurrency  = 16
)

type tier struct {
	batchSize int
	llmDelay  time.Duration
}

type profileSpec struct {
	maxExecution time.Duration
	useLock      bool
	free         tier
	paid         tier
}

// profiles is the source of truth for per-profile throughput. The free tier
// is sized to stay under free-tier inference rate limits; the paid tier is
// only bounded by the wall-clock budget.
var profiles = map[Profile]profileSpec{
	ProfileAPI: {
		maxExecution: 55 * time.Second,
		useLock:      true,
		free:         tier{batchSize: 3, llmDelay: 4 * time.Second},
		paid:         tier{batchSize: 10, llmDelay: time.Second},
	},
	ProfileManual: {
		maxExecution: 10 * time.Minute,
		useLock:      true,
		free:         tier{batchSize: 5, llmDelay: 3 * time.Second},
		paid:         tier{batchSize: 20, llmDelay: 500 * time.Millisecond},
	},
	ProfileRefresh: {
		maxExecution: 2 * time.Minute,
		useLock:      false,
		free:         tier{batchSize: 2, llmDelay: 5 * time.Second},
		paid:         tier{batchSize: 8, llmDelay: time.Second},
	},
	ProfileScheduled: {
		maxExecution: 8 * time.Minute,
		useLock:      true,
		free:         tier{batchSize: 6, llmDelay: 4 * time.Second},
		paid:         tier{batchSize: 25, llmDelay: 750 * time.Millisecond},
	},
}

// Resolve computes the execution policy for a request. Unknown profiles
// resolve as ProfileManual.
func Resolve(req Request) Policy {
	spec, ok := profiles[req.Profile]
	if !ok {
		spec = profiles[ProfileManual]
	}

	t := spec.free
	concurrency := 4
	if req.PaidTier {
		t = spec.paid
		concurrency = 8
	}

	p := Policy{
		MaxExecution:      spec.maxExecution,
		UseLock:           spec.useLock,
		BatchSize:         t.batchSize,
		LLMDelay:          t.llmDelay,
		SourceConcurrency: concurrency,
		FetchTimeout:      20 * time.Second,
		RetryTimeout:      45 * time.Second,
	}

	if req.Overrides.BatchSize != 0 {
		p.BatchSize = clampInt(req.Overrides.BatchSize, minBatchSize, maxBatchSize)
	}
	if req.Overrides.LLMDelayMs != 0 {
		p.LLMDelay = clampDuration(time.Duration(req.Overrides.LLMDelayMs)*time.Millisecond, 0, maxLLMDelay)
	}
	if req.Overrides.MaxExecutionMs != 0 {
		p.MaxExecution = clampDuration(time.Duration(req.Overrides.MaxExecutionMs)*time.Millisecond, minMaxExecution, maxMaxExecution)
	}
	if req.Overrides.SourceConcurrency != 0 {
		p.SourceConcurrency = clampInt(req.Overrides.SourceConcurrency, minConcurrency, maxConcurrency)
	}

	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
