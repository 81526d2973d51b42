package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"newsdesk/internal/core"
	"newsdesk/internal/editorial"
	"newsdesk/internal/llm"
	"newsdesk/internal/logger"
)

// runEmbedding drains the embedding backlog batch by batch. The batch size
// bounds one pass, not the whole stage; the stage keeps going until the
// backlog is empty or a checkpoint stops it. An article whose embedding call
// fails is skipped for the rest of the run so it cannot starve the items
// behind it in the backlog.
func (p *Pipeline) runEmbedding(ctx context.Context, run *runState) error {
	skipped := make(map[string]bool)
	for {
		// Skipped articles still match the backlog query, so over-fetch by
		// the skip count and filter them out.
		articles, err := p.store.ArticlesMissingEmbedding(run.pol.BatchSize + len(skipped))
		if err != nil {
			return fmt.Errorf("failed to load embedding backlog: %w", err)
		}
		batch := dropSkipped(articles, skipped, run.pol.BatchSize, func(a core.Article) string { return a.ID })
		if len(batch) == 0 {
			return nil
		}

		for i, a := range batch {
			if err := p.checkpoint(ctx, run); err != nil {
				return err
			}
			p.progress(run, i+1, len(batch), "embedding articles")

			vec, err := p.infer.Embed(ctx, embedText(a))
			if err != nil {
				if _, ok := llm.AsRateLimit(err); ok {
					return fmt.Errorf("failed to embed article %s: %w", a.ID, err)
				}
				logger.Warn("embedding failed, skipping article", "article", a.ID, "error", err.Error())
				skipped[a.ID] = true
				run.result.Failed++
				continue
			}
			if err := p.store.SetArticleEmbedding(a.ID, vec); err != nil {
				return fmt.Errorf("failed to store embedding for %s: %w", a.ID, err)
			}
			run.result.Embedded++

			if i < len(batch)-1 {
				if err := p.pace(ctx, run); err != nil {
					return err
				}
			}
		}
	}
}

// dropSkipped filters a fetched backlog down to at most limit unskipped
// entries, preserving order.
func dropSkipped[T any](items []T, skipped map[string]bool, limit int, id func(T) string) []T {
	var kept []T
	for _, it := range items {
		if skipped[id(it)] {
			continue
		}
		kept = append(kept, it)
		if len(kept) == limit {
			break
		}
	}
	return kept
}

// embedText is the canonical text an article is embedded from.
func embedText(a core.Article) string {
	return a.Title + "\n\n" + a.Content
}

// runClustering assigns embedded articles to clusters, batch by batch until
// the backlog is empty. An article joins the cluster of its most similar
// already-clustered neighbor; with no such neighbor it seeds a cluster of
// its own.
func (p *Pipeline) runClustering(ctx context.Context, run *runState) error {
	for {
		articles, err := p.store.ArticlesMissingCluster(run.pol.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to load clustering backlog: %w", err)
		}
		if len(articles) == 0 {
			return nil
		}

		for i, a := range articles {
			if err := p.checkpoint(ctx, run); err != nil {
				return err
			}
			p.progress(run, i+1, len(articles), "clustering articles")

			if err := p.clusterArticle(a, run); err != nil {
				return err
			}
			run.result.Clustered++
		}

		if len(articles) < run.pol.BatchSize {
			return nil
		}
	}
}

func (p *Pipeline) clusterArticle(a core.Article, run *runState) error {
	cc := p.cfg.Clustering
	neighbors, err := p.store.FindSimilar(a.Embedding, cc.SimilarityThreshold, cc.MatchCount, a.PublishedAt, cc.WindowDays, a.ID)
	if err != nil {
		return fmt.Errorf("failed to find neighbors for %s: %w", a.ID, err)
	}

	// Neighbors arrive ordered by similarity; the best clustered one wins.
	// Unclustered neighbors are not adopted here, they cluster on their own
	// turn through the backlog.
	for _, n := range neighbors {
		if n.ClusterID == nil {
			continue
		}
		if err := p.store.AssignArticleCluster(a.ID, *n.ClusterID); err != nil {
			return fmt.Errorf("failed to assign article %s to cluster: %w", a.ID, err)
		}
		logger.Debug("article joined cluster", "article", a.ID, "cluster", *n.ClusterID, "similarity", n.Similarity)
		return nil
	}

	cluster := core.Cluster{
		ID:        uuid.NewString(),
		Label:     a.Title,
		Category:  a.Category,
		CreatedAt: p.now(),
	}
	if err := p.store.CreateCluster(cluster); err != nil {
		return fmt.Errorf("failed to create cluster for %s: %w", a.ID, err)
	}
	if err := p.store.AssignArticleCluster(a.ID, cluster.ID); err != nil {
		return fmt.Errorf("failed to assign article %s to new cluster: %w", a.ID, err)
	}
	run.result.NewClusters++
	logger.Debug("article seeded new cluster", "article", a.ID, "cluster", cluster.ID)
	return nil
}

// runScoring scores unscored clusters, batch by batch until the backlog is
// empty. A cluster whose scoring call fails is skipped for the rest of the
// run, same as a failed embedding.
func (p *Pipeline) runScoring(ctx context.Context, run *runState) error {
	skipped := make(map[string]bool)
	for {
		clusters, err := p.store.UnscoredClusters(run.pol.BatchSize + len(skipped))
		if err != nil {
			return fmt.Errorf("failed to load scoring backlog: %w", err)
		}
		batch := dropSkipped(clusters, skipped, run.pol.BatchSize, func(c core.Cluster) string { return c.ID })
		if len(batch) == 0 {
			return nil
		}

		for i, c := range batch {
			if err := p.checkpoint(ctx, run); err != nil {
				return err
			}
			p.progress(run, i+1, len(batch), "scoring clusters")

			articles, err := p.store.ClusterArticles(c.ID)
			if err != nil {
				return fmt.Errorf("failed to load articles for cluster %s: %w", c.ID, err)
			}

			// A scored-but-empty cluster would never be selectable downstream;
			// score it zero instead of sending nothing to the model.
			if len(articles) == 0 {
				if err := p.store.SetClusterScore(c.ID, 0, ""); err != nil {
					return fmt.Errorf("failed to zero-score empty cluster %s: %w", c.ID, err)
				}
				run.result.Scored++
				continue
			}

			score, err := p.infer.ScoreCluster(ctx, articles)
			if err != nil {
				if _, ok := llm.AsRateLimit(err); ok {
					return fmt.Errorf("failed to score cluster %s: %w", c.ID, err)
				}
				logger.Warn("scoring failed, skipping cluster", "cluster", c.ID, "error", err.Error())
				skipped[c.ID] = true
				run.result.Failed++
				continue
			}
			if err := p.store.SetClusterScore(c.ID, score.Score, score.RepresentativeID); err != nil {
				return fmt.Errorf("failed to store score for cluster %s: %w", c.ID, err)
			}
			run.result.Scored++

			if i < len(batch)-1 {
				if err := p.pace(ctx, run); err != nil {
					return err
				}
			}
		}
	}
}

// runRewriting selects eligible clusters, synthesizes a summary for each,
// and publishes them. Selection repeats until no eligible cluster remains;
// failed and validation-rejected clusters are skipped for the rest of the
// run but stay eligible for a later one.
func (p *Pipeline) runRewriting(ctx context.Context, run *runState) error {
	skipped := make(map[string]bool)
	for {
		candidates, err := p.selectRewriteCandidates()
		if err != nil {
			return err
		}
		batch := dropSkipped(candidates, skipped, run.pol.BatchSize, func(c rewriteCandidate) string { return c.cluster.ID })
		if len(batch) == 0 {
			return nil
		}

		for i, cand := range batch {
			if err := p.checkpoint(ctx, run); err != nil {
				return err
			}
			p.progress(run, i+1, len(batch), "rewriting clusters")

			rw, err := p.infer.Rewrite(ctx, cand.articles)
			if err != nil {
				if _, ok := llm.AsRateLimit(err); ok {
					return fmt.Errorf("failed to rewrite cluster %s: %w", cand.cluster.ID, err)
				}
				logger.Warn("rewrite failed, skipping cluster", "cluster", cand.cluster.ID, "error", err.Error())
				skipped[cand.cluster.ID] = true
				run.result.Failed++
				continue
			}
			if rw == nil {
				// Validation rejection; the cluster stays eligible for a later run.
				logger.Warn("rewrite rejected by validation, skipping cluster", "cluster", cand.cluster.ID)
				skipped[cand.cluster.ID] = true
				continue
			}

			if err := p.publish(cand, rw); err != nil {
				return err
			}
			run.result.Rewritten++

			if i < len(batch)-1 {
				if err := p.pace(ctx, run); err != nil {
					return err
				}
			}
		}
	}
}

// candidateScanLimit bounds how many scored clusters one selection pass
// classifies when freshness filtering is off.
const candidateScanLimit = 200

// rewriteCandidate is a cluster that classified as eligible, with the
// articles already loaded for the rewrite call.
type rewriteCandidate struct {
	cluster  core.Cluster
	articles []core.Article
	sources  int
}

// selectRewriteCandidates finds clusters in the eligible editorial state,
// best scores first. With freshness filtering on, discovery starts from
// clusters that gained an article inside the fresh window, so old backlog is
// not re-examined every run.
func (p *Pipeline) selectRewriteCandidates() ([]rewriteCandidate, error) {
	pub := p.cfg.Publication
	now := p.now()

	var clusters []core.Cluster
	var err error
	if pub.FreshOnly {
		cutoff := now.Add(-time.Duration(pub.FreshWindowHours) * time.Hour)
		ids, idErr := p.store.ClusterIDsWithArticlesSince(cutoff)
		if idErr != nil {
			return nil, fmt.Errorf("failed to find fresh clusters: %w", idErr)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		clusters, err = p.store.RewriteCandidatesByIDs(ids, pub.MinScore)
	} else {
		clusters, err = p.store.RewriteCandidates(pub.MinScore, candidateScanLimit, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rewrite candidates: %w", err)
	}

	edCfg := editorial.Config{
		MinScore:       pub.MinScore,
		MinSources:     pub.MinSources,
		MaturityWindow: time.Duration(pub.MaturityHours) * time.Hour,
		IgnoreMaturity: pub.IgnoreMaturity,
		FreshOnly:      pub.FreshOnly,
		FreshWindow:    time.Duration(pub.FreshWindowHours) * time.Hour,
	}

	var candidates []rewriteCandidate
	for _, c := range clusters {
		articles, err := p.store.ClusterArticles(c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load articles for cluster %s: %w", c.ID, err)
		}
		hasSummary, err := p.store.HasSummary(c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check summary for cluster %s: %w", c.ID, err)
		}

		cls := editorial.Classify(editorial.ClusterView{
			Cluster:    c,
			Articles:   articles,
			HasSummary: hasSummary,
		}, edCfg, now)
		if cls.State != editorial.StateEligibleRewriting {
			logger.Debug("cluster not eligible for rewriting", "cluster", c.ID, "state", string(cls.State))
			continue
		}

		candidates = append(candidates, rewriteCandidate{
			cluster:  c,
			articles: leadWithRepresentative(articles, c.RepresentativeArticleID),
			sources:  cls.Metrics.UniqueSources,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return scoreOf(candidates[i].cluster) > scoreOf(candidates[j].cluster)
	})
	return candidates, nil
}

// leadWithRepresentative moves the article scoring chose as most
// representative to the front of the rewrite input, so the model anchors on
// the strongest source. The rest keep their recency order.
func leadWithRepresentative(articles []core.Article, repID *string) []core.Article {
	if repID == nil {
		return articles
	}
	for i, a := range articles {
		if a.ID != *repID {
			continue
		}
		if i == 0 {
			return articles
		}
		ordered := make([]core.Article, 0, len(articles))
		ordered = append(ordered, a)
		ordered = append(ordered, articles[:i]...)
		ordered = append(ordered, articles[i+1:]...)
		return ordered
	}
	return articles
}

func scoreOf(c core.Cluster) float64 {
	if c.FinalScore == nil {
		return 0
	}
	return *c.FinalScore
}

// publish writes the summary and flips the cluster to published.
func (p *Pipeline) publish(cand rewriteCandidate, rw *core.Rewrite) error {
	now := p.now()
	summary := core.Summary{
		ClusterID:   cand.cluster.ID,
		Title:       rw.Title,
		TLDR:        rw.TLDR,
		Analysis:    rw.Impact,
		FullContent: rw.Content,
		SourceCount: cand.sources,
		ModelName:   p.infer.Name(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.UpsertSummary(summary); err != nil {
		return fmt.Errorf("failed to store summary for cluster %s: %w", cand.cluster.ID, err)
	}

	category := rw.Category
	if category == "" {
		category = cand.cluster.Category
	}
	if err := p.store.PublishCluster(cand.cluster.ID, rw.Title, category, now); err != nil {
		return fmt.Errorf("failed to publish cluster %s: %w", cand.cluster.ID, err)
	}

	logger.Info("cluster published", "cluster", cand.cluster.ID, "title", rw.Title, "sources", cand.sources)
	return nil
}
