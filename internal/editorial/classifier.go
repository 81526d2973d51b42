// Package editorial classifies a cluster's publication eligibility from its
// observable metrics. Classification is a pure function of its inputs so the
// pipeline's candidate selection and any read-only reporting path compute
// identical states from the same data.
package editorial

import (
	"time"

	"newsdesk/internal/core"
)

// State is a cluster's position in the editorial lifecycle.
type State string

const (
	// StatePublished means a summary was published for this cluster.
	StatePublished State = "published"
	// StatePendingScoring means the scoring stage has not run yet.
	StatePendingScoring State = "pending_scoring"
	// StateLowScore means the cluster scored below the publication floor.
	StateLowScore State = "low_score"
	// StateAnomalyEmpty means the cluster was scored but holds no articles.
	StateAnomalyEmpty State = "anomaly_empty"
	// StateAnomalySummaryUnpublished means a summary exists but the cluster
	// was never flipped to published.
	StateAnomalySummaryUnpublished State = "anomaly_summary_unpublished"
	// StateArchived means freshness filtering is on and no article is recent.
	StateArchived State = "archived"
	// StateIncubatingMaturitySources means both the maturity and the
	// source-diversity preconditions fail.
	StateIncubatingMaturitySources State = "incubating_maturity_sources"
	// StateIncubatingMaturity means only the maturity precondition fails.
	StateIncubatingMaturity State = "incubating_maturity"
	// StateIncubatingSources means only source diversity fails.
	StateIncubatingSources State = "incubating_sources"
	// StateEligibleRewriting is the only state the rewriting runner selects.
	StateEligibleRewriting State = "eligible_rewriting"
)

// Config holds the publication preconditions.
type Config struct {
	MinScore       float64       // publication score floor
	MinSources     int           // minimum distinct source names
	MaturityWindow time.Duration // minimum story age; <= 0 disables the check
	IgnoreMaturity bool          // bypass the maturity check
	FreshOnly      bool          // require at least one fresh article
	FreshWindow    time.Duration // how recent an article must be to count as fresh
}

// ClusterView is everything the classifier observes about a cluster.
type ClusterView struct {
	Cluster    core.Cluster
	Articles   []core.Article
	HasSummary bool
}

// Metrics are the derived values the state is computed from. They are
// returned alongside the state so reporting paths can show their inputs.
type Metrics struct {
	ArticleCount  int       `json:"article_count"`
	UniqueSources int       `json:"unique_sources"`
	HasFresh      bool      `json:"has_fresh"`
	IsMature      bool      `json:"is_mature"`
	Newest        time.Time `json:"newest"`
	Oldest        time.Time `json:"oldest"`
}

// Classification pairs a state with the metrics that produced it.
type Classification struct {
	State   State   `json:"state"`
	Metrics Metrics `json:"metrics"`
}

// Classify maps a cluster view to its editorial state. States are evaluated
// in strict priority order; anomaly states short-circuit before the
// maturity and source checks because they represent pipeline defects, not
// normal backlog positions.
func Classify(view ClusterView, cfg Config, now time.Time) Classification {
	m := computeMetrics(view, cfg, now)

	state := func() State {
		switch {
		case view.Cluster.IsPublished:
			return StatePublished
		case view.Cluster.FinalScore == nil:
			return StatePendingScoring
		case *view.Cluster.FinalScore < cfg.MinScore:
			return StateLowScore
		case m.ArticleCount == 0:
			return StateAnomalyEmpty
		case view.HasSummary:
			return StateAnomalySummaryUnpublished
		case cfg.FreshOnly && !m.HasFresh:
			return StateArchived
		case !m.IsMature && m.UniqueSources < cfg.MinSources:
			return StateIncubatingMaturitySources
		case !m.IsMature:
			return StateIncubatingMaturity
		case m.UniqueSources < cfg.MinSources:
			return StateIncubatingSources
		default:
			return StateEligibleRewriting
		}
	}()

	return Classification{State: state, Metrics: m}
}

func computeMetrics(view ClusterView, cfg Config, now time.Time) Metrics {
	m := Metrics{ArticleCount: len(view.Articles)}

	seen := make(map[string]struct{})
	freshCutoff := now.Add(-cfg.FreshWindow)
	for _, a := range view.Articles {
		if a.SourceName != "" {
			seen[a.SourceName] = struct{}{}
		}
		if cfg.FreshOnly && !a.PublishedAt.Before(freshCutoff) {
			m.HasFresh = true
		}
		if m.Newest.IsZero() || a.PublishedAt.After(m.Newest) {
			m.Newest = a.PublishedAt
		}
		if m.Oldest.IsZero() || a.PublishedAt.Before(m.Oldest) {
			m.Oldest = a.PublishedAt
		}
	}
	m.UniqueSources = len(seen)

	// Maturity is judged from the story's first known article, falling back
	// to the cluster's creation time when no article timestamp exists.
	first := m.Oldest
	if first.IsZero() {
		first = view.Cluster.CreatedAt
	}
	if cfg.IgnoreMaturity || cfg.MaturityWindow <= 0 {
		m.IsMature = true
	} else {
		m.IsMature = first.Before(now.Add(-cfg.MaturityWindow))
	}

	return m
}
