package store

import (
	"fmt"
	"math"
	"sort"
	"time"

	"newsdesk/internal/core"
)

// FindSimilar returns up to matchCount articles whose embeddings are within
// threshold cosine similarity of the query vector, restricted to a window of
// windowDays around the anchor date and excluding excludeID. Results are
// ordered by similarity, highest first.
//
// Candidates are narrowed by the time window in SQL; similarity is ranked in
// process. At a few days of articles per window the candidate set stays
// small enough that a vector index would not pay for itself.
func (s *Store) FindSimilar(query []float64, threshold float64, matchCount int, anchor time.Time, windowDays int, excludeID string) ([]core.SimilarArticle, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if matchCount <= 0 {
		matchCount = 5
	}

	window := time.Duration(windowDays) * 24 * time.Hour
	candidates, err := s.queryArticles(fmt.Sprintf(`
	SELECT %s FROM articles
	WHERE embedding IS NOT NULL AND id != ? AND published_at >= ? AND published_at <= ?`, articleColumns),
		excludeID, anchor.Add(-window), anchor.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to load similarity candidates: %w", err)
	}

	var matches []core.SimilarArticle
	for _, a := range candidates {
		sim, ok := cosineSimilarity(query, a.Embedding)
		if !ok || sim < threshold {
			continue
		}
		matches = append(matches, core.SimilarArticle{
			ID:          a.ID,
			ClusterID:   a.ClusterID,
			Similarity:  sim,
			PublishedAt: a.PublishedAt,
			SourceName:  a.SourceName,
			Title:       a.Title,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > matchCount {
		matches = matches[:matchCount]
	}
	return matches, nil
}

// cosineSimilarity returns the cosine of the angle between two vectors.
// The second return is false for mismatched dimensions or zero vectors.
func cosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
