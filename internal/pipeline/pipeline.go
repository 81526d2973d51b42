// Package pipeline orchestrates the processing stages that turn raw
// ingested articles into published summaries: embedding, clustering,
// scoring, and rewriting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"newsdesk/internal/config"
	"newsdesk/internal/core"
	"newsdesk/internal/llm"
	"newsdesk/internal/logger"
	"newsdesk/internal/policy"
)

// Store is the persistence surface the pipeline stages read and write.
type Store interface {
	ArticlesMissingEmbedding(limit int) ([]core.Article, error)
	SetArticleEmbedding(id string, embedding []float64) error
	ArticlesMissingCluster(limit int) ([]core.Article, error)
	FindSimilar(query []float64, threshold float64, matchCount int, anchor time.Time, windowDays int, excludeID string) ([]core.SimilarArticle, error)
	AssignArticleCluster(id, clusterID string) error
	CreateCluster(c core.Cluster) error
	ClusterArticles(clusterID string) ([]core.Article, error)
	UnscoredClusters(limit int) ([]core.Cluster, error)
	SetClusterScore(id string, finalScore float64, representativeID string) error
	RewriteCandidates(minScore float64, limit, offset int) ([]core.Cluster, error)
	ClusterIDsWithArticlesSince(cutoff time.Time) ([]string, error)
	RewriteCandidatesByIDs(ids []string, minScore float64) ([]core.Cluster, error)
	HasSummary(clusterID string) (bool, error)
	UpsertSummary(sm core.Summary) error
	PublishCluster(id, label, category string, on time.Time) error
}

// Locker coordinates mutual exclusion and cooperative cancellation between
// concurrent runs.
type Locker interface {
	TryStart(step, runID string) (bool, error)
	AdvanceStep(runID, step string) error
	ShouldStop() (bool, error)
	UpdateProgress(runID string, current, total int, label string) error
	Finish(runID string) error
}

// Result summarizes one pipeline run.
type Result struct {
	RunID       string        `json:"run_id"`
	Skipped     bool          `json:"skipped"`               // run never started: another run holds the lock
	Stopped     bool          `json:"stopped"`               // run ended early: skipped, stop requested, or budget exhausted
	RetryAfter  time.Duration `json:"retry_after,omitempty"` // non-zero when the provider rate-limited the run
	Embedded    int           `json:"embedded"`
	Clustered   int           `json:"clustered"`
	NewClusters int           `json:"new_clusters"`
	Scored      int           `json:"scored"`
	Rewritten   int           `json:"rewritten"`
	Failed      int           `json:"failed"` // items skipped after a non-transient inference failure
	Elapsed     time.Duration `json:"elapsed"`
}

// errStopRequested aborts the run at the next checkpoint without failing it.
var errStopRequested = errors.New("stop requested")

// Pipeline runs the processing stages against a store with an inference
// backend, under the coordination of a run lock.
type Pipeline struct {
	store Store
	infer llm.Backend
	lock  Locker
	cfg   *config.Config
	now   func() time.Time

	// sleep is swapped out in tests to avoid real inference pacing delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pipeline.
func New(st Store, infer llm.Backend, lock Locker, cfg *config.Config) *Pipeline {
	return &Pipeline{
		store: st,
		infer: infer,
		lock:  lock,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		sleep: sleepCtx,
	}
}

// Run executes the full stage sequence under the resolved execution policy.
// A run that cannot claim the lock, is asked to stop, or exhausts its
// wall-clock budget returns a Result with Stopped set and a nil error:
// partial progress is durable and the next run resumes from the backlog.
// A provider rate limit additionally sets RetryAfter.
func (p *Pipeline) Run(ctx context.Context, req policy.Request) (*Result, error) {
	pol := policy.Resolve(req)
	runID := uuid.NewString()
	started := p.now()

	result := &Result{RunID: runID}

	if pol.UseLock {
		ok, err := p.lock.TryStart("starting", runID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim run lock: %w", err)
		}
		if !ok {
			logger.Info("another run holds the processing lock, skipping", "run_id", runID)
			result.Skipped = true
			result.Stopped = true
			return result, nil
		}
		defer func() {
			if err := p.lock.Finish(runID); err != nil {
				logger.Error("failed to release run lock", err, "run_id", runID)
			}
		}()
	}

	ctx, cancel := context.WithDeadline(ctx, started.Add(pol.MaxExecution))
	defer cancel()

	logger.Info("pipeline run starting",
		"run_id", runID, "profile", string(req.Profile),
		"batch_size", pol.BatchSize, "budget", pol.MaxExecution.String())

	stages := []struct {
		name string
		run  func(ctx context.Context, run *runState) error
	}{
		{"embedding", p.runEmbedding},
		{"clustering", p.runClustering},
		{"scoring", p.runScoring},
		{"rewriting", p.runRewriting},
	}

	run := &runState{pol: pol, runID: runID, result: result}
	for _, stage := range stages {
		if err := p.enterStage(stage.name, run); err != nil {
			return nil, err
		}
		err := stage.run(ctx, run)
		if err == nil {
			continue
		}
		if retry, ok := llm.AsRateLimit(err); ok {
			logger.Warn("provider rate limited, ending run early",
				"run_id", runID, "stage", stage.name, "retry_after", retry.String())
			result.Stopped = true
			result.RetryAfter = retry
			break
		}
		if errors.Is(err, errStopRequested) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			logger.Info("pipeline run stopped early", "run_id", runID, "stage", stage.name, "reason", err.Error())
			result.Stopped = true
			break
		}
		return nil, fmt.Errorf("%s stage failed: %w", stage.name, err)
	}

	result.Elapsed = p.now().Sub(started)
	logger.Info("pipeline run finished",
		"run_id", runID, "stopped", result.Stopped,
		"embedded", result.Embedded, "clustered", result.Clustered,
		"scored", result.Scored, "rewritten", result.Rewritten,
		"failed", result.Failed, "elapsed", result.Elapsed.String())
	return result, nil
}

// runState carries the per-run policy and counters through the stages.
type runState struct {
	pol    policy.Policy
	runID  string
	result *Result
}

// enterStage advances the persisted current-step marker. AdvanceStep keeps
// a stop requested between stages pending, so the next checkpoint sees it.
func (p *Pipeline) enterStage(name string, run *runState) error {
	if !run.pol.UseLock {
		return nil
	}
	if err := p.lock.AdvanceStep(run.runID, name); err != nil {
		return fmt.Errorf("failed to update run step: %w", err)
	}
	return nil
}

// checkpoint is called before every unit of work. It honors context
// cancellation and, for locked runs, cooperative stop requests.
func (p *Pipeline) checkpoint(ctx context.Context, run *runState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !run.pol.UseLock {
		return nil
	}
	stop, err := p.lock.ShouldStop()
	if err != nil {
		return fmt.Errorf("failed to check stop flag: %w", err)
	}
	if stop {
		return errStopRequested
	}
	return nil
}

func (p *Pipeline) progress(run *runState, current, total int, label string) {
	if !run.pol.UseLock {
		return
	}
	if err := p.lock.UpdateProgress(run.runID, current, total, label); err != nil {
		logger.Error("failed to publish progress", err, "run_id", run.runID)
	}
}

// pace waits the inter-call inference delay.
func (p *Pipeline) pace(ctx context.Context, run *runState) error {
	if run.pol.LLMDelay <= 0 {
		return nil
	}
	return p.sleep(ctx, run.pol.LLMDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
