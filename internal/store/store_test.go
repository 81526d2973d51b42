package store

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"newsdesk/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testArticle(sourceURL string) core.Article {
	return core.Article{
		ID:          uuid.NewString(),
		Title:       "Test Article",
		Content:     "Some article content.",
		SourceName:  "test-source",
		SourceURL:   sourceURL,
		PublishedAt: time.Now().UTC().Add(-time.Hour),
		Category:    "tech",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestUpsertArticles_IgnoresDuplicateSourceURL(t *testing.T) {
	s := newTestStore(t)

	first := testArticle("https://example.com/story")
	n, err := s.UpsertArticles([]core.Article{first})
	if err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	// Same URL with a fresh id: ingestion idempotence.
	duplicate := testArticle("https://example.com/story")
	n, err = s.UpsertArticles([]core.Article{duplicate})
	if err != nil {
		t.Fatalf("UpsertArticles failed on duplicate: %v", err)
	}
	if n != 0 {
		t.Errorf("duplicate inserted = %d, want 0", n)
	}

	count, err := s.CountArticlesBySourceURL("https://example.com/story")
	if err != nil {
		t.Fatalf("CountArticlesBySourceURL failed: %v", err)
	}
	if count != 1 {
		t.Errorf("article count = %d, want 1", count)
	}
}

func TestArticleBacklogs(t *testing.T) {
	s := newTestStore(t)

	a := testArticle("https://example.com/a")
	b := testArticle("https://example.com/b")
	if _, err := s.UpsertArticles([]core.Article{a, b}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}

	missing, err := s.ArticlesMissingEmbedding(10)
	if err != nil {
		t.Fatalf("ArticlesMissingEmbedding failed: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("embedding backlog = %d, want 2", len(missing))
	}

	if err := s.SetArticleEmbedding(a.ID, []float64{0.1, 0.2, 0.3}); err != nil {
		t.Fatalf("SetArticleEmbedding failed: %v", err)
	}

	missing, err = s.ArticlesMissingEmbedding(10)
	if err != nil {
		t.Fatalf("ArticlesMissingEmbedding failed: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != b.ID {
		t.Errorf("embedding backlog should only hold %s, got %+v", b.ID, missing)
	}

	unclustered, err := s.ArticlesMissingCluster(10)
	if err != nil {
		t.Fatalf("ArticlesMissingCluster failed: %v", err)
	}
	if len(unclustered) != 1 || unclustered[0].ID != a.ID {
		t.Fatalf("cluster backlog should only hold embedded article %s, got %+v", a.ID, unclustered)
	}
	if len(unclustered[0].Embedding) != 3 {
		t.Errorf("embedding should round-trip, got %v", unclustered[0].Embedding)
	}

	cluster := core.Cluster{ID: uuid.NewString(), Label: a.Title, Category: a.Category, CreatedAt: time.Now().UTC()}
	if err := s.CreateCluster(cluster); err != nil {
		t.Fatalf("CreateCluster failed: %v", err)
	}
	if err := s.AssignArticleCluster(a.ID, cluster.ID); err != nil {
		t.Fatalf("AssignArticleCluster failed: %v", err)
	}

	unclustered, err = s.ArticlesMissingCluster(10)
	if err != nil {
		t.Fatalf("ArticlesMissingCluster failed: %v", err)
	}
	if len(unclustered) != 0 {
		t.Errorf("cluster backlog should be empty, got %d", len(unclustered))
	}

	members, err := s.ClusterArticles(cluster.ID)
	if err != nil {
		t.Fatalf("ClusterArticles failed: %v", err)
	}
	if len(members) != 1 || members[0].ID != a.ID {
		t.Errorf("cluster members = %+v, want only %s", members, a.ID)
	}
}

func TestClusterScoringAndRewriteCandidates(t *testing.T) {
	s := newTestStore(t)

	high := core.Cluster{ID: uuid.NewString(), Label: "high", CreatedAt: time.Now().UTC()}
	low := core.Cluster{ID: uuid.NewString(), Label: "low", CreatedAt: time.Now().UTC()}
	for _, c := range []core.Cluster{high, low} {
		if err := s.CreateCluster(c); err != nil {
			t.Fatalf("CreateCluster failed: %v", err)
		}
	}

	unscored, err := s.UnscoredClusters(10)
	if err != nil {
		t.Fatalf("UnscoredClusters failed: %v", err)
	}
	if len(unscored) != 2 {
		t.Fatalf("unscored = %d, want 2", len(unscored))
	}

	if err := s.SetClusterScore(high.ID, 9, "rep-1"); err != nil {
		t.Fatalf("SetClusterScore failed: %v", err)
	}
	if err := s.SetClusterScore(low.ID, 2, ""); err != nil {
		t.Fatalf("SetClusterScore failed: %v", err)
	}

	candidates, err := s.RewriteCandidates(6, 10, 0)
	if err != nil {
		t.Fatalf("RewriteCandidates failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != high.ID {
		t.Fatalf("candidates = %+v, want only %s", candidates, high.ID)
	}
	if candidates[0].FinalScore == nil || *candidates[0].FinalScore != 9 {
		t.Errorf("FinalScore = %v, want 9", candidates[0].FinalScore)
	}
	if candidates[0].RepresentativeArticleID == nil || *candidates[0].RepresentativeArticleID != "rep-1" {
		t.Errorf("RepresentativeArticleID = %v, want rep-1", candidates[0].RepresentativeArticleID)
	}

	// A summary removes the cluster from candidacy even while unpublished.
	now := time.Now().UTC()
	err = s.UpsertSummary(core.Summary{
		ClusterID: high.ID, Title: "t", TLDR: "d", FullContent: "c",
		SourceCount: 2, ModelName: "m", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}
	candidates, err = s.RewriteCandidates(6, 10, 0)
	if err != nil {
		t.Fatalf("RewriteCandidates failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("candidates after summary = %d, want 0", len(candidates))
	}

	if err := s.PublishCluster(high.ID, "New Label", "world", now); err != nil {
		t.Fatalf("PublishCluster failed: %v", err)
	}
	got, err := s.GetCluster(high.ID)
	if err != nil {
		t.Fatalf("GetCluster failed: %v", err)
	}
	if !got.IsPublished || got.Label != "New Label" || got.PublishedOn == nil {
		t.Errorf("published cluster = %+v", got)
	}
}

func TestUpsertSummary_Overwrites(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	first := core.Summary{ClusterID: "c1", Title: "first", SourceCount: 1, ModelName: "m", CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertSummary(first); err != nil {
		t.Fatalf("UpsertSummary failed: %v", err)
	}
	second := first
	second.Title = "second"
	second.UpdatedAt = now.Add(time.Minute)
	if err := s.UpsertSummary(second); err != nil {
		t.Fatalf("UpsertSummary overwrite failed: %v", err)
	}

	got, err := s.GetSummary("c1")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if got == nil || got.Title != "second" {
		t.Errorf("summary = %+v, want title second", got)
	}

	has, err := s.HasSummary("c1")
	if err != nil || !has {
		t.Errorf("HasSummary = %t, %v, want true", has, err)
	}
	has, err = s.HasSummary("missing")
	if err != nil || has {
		t.Errorf("HasSummary(missing) = %t, %v, want false", has, err)
	}
}

func TestFindSimilar(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	clusterID := uuid.NewString()
	if err := s.CreateCluster(core.Cluster{ID: clusterID, CreatedAt: now}); err != nil {
		t.Fatalf("CreateCluster failed: %v", err)
	}

	near := testArticle("https://example.com/near")
	near.Embedding = []float64{1, 0.1, 0}
	near.PublishedAt = now.Add(-6 * time.Hour)
	near.ClusterID = &clusterID

	far := testArticle("https://example.com/far")
	far.Embedding = []float64{0, 1, 0.2}
	far.PublishedAt = now.Add(-6 * time.Hour)

	stale := testArticle("https://example.com/stale")
	stale.Embedding = []float64{1, 0.1, 0}
	stale.PublishedAt = now.Add(-30 * 24 * time.Hour)

	if _, err := s.UpsertArticles([]core.Article{near, far, stale}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}

	matches, err := s.FindSimilar([]float64{1, 0, 0}, 0.8, 5, now, 3, "query-article")
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %+v, want exactly the near in-window article", matches)
	}
	if matches[0].ID != near.ID {
		t.Errorf("match = %s, want %s", matches[0].ID, near.ID)
	}
	if matches[0].ClusterID == nil || *matches[0].ClusterID != clusterID {
		t.Errorf("match cluster = %v, want %s", matches[0].ClusterID, clusterID)
	}
	if matches[0].Similarity < 0.99 {
		t.Errorf("similarity = %f, want near 1", matches[0].Similarity)
	}
}

func TestFindSimilar_ExcludesSelf(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	self := testArticle("https://example.com/self")
	self.Embedding = []float64{1, 0, 0}
	self.PublishedAt = now
	if _, err := s.UpsertArticles([]core.Article{self}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}

	matches, err := s.FindSimilar([]float64{1, 0, 0}, 0.5, 5, now, 3, self.ID)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("article should not match itself, got %+v", matches)
	}
}

func TestProcessingStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetProcessingState()
	if err != nil {
		t.Fatalf("GetProcessingState failed: %v", err)
	}
	if got != nil {
		t.Fatalf("fresh store should have no state, got %+v", got)
	}

	st := core.ProcessingState{
		IsRunning:   true,
		CurrentStep: "embed",
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		RunID:       uuid.NewString(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.SaveProcessingState(st); err != nil {
		t.Fatalf("SaveProcessingState failed: %v", err)
	}

	got, err = s.GetProcessingState()
	if err != nil {
		t.Fatalf("GetProcessingState failed: %v", err)
	}
	if got == nil || !got.IsRunning || got.RunID != st.RunID || got.CurrentStep != "embed" {
		t.Errorf("state = %+v, want %+v", got, st)
	}

	// Second save overwrites the single row.
	st.IsRunning = false
	st.ShouldStop = true
	if err := s.SaveProcessingState(st); err != nil {
		t.Fatalf("SaveProcessingState overwrite failed: %v", err)
	}
	got, _ = s.GetProcessingState()
	if got.IsRunning || !got.ShouldStop {
		t.Errorf("state after overwrite = %+v", got)
	}
}

func TestSources(t *testing.T) {
	s := newTestStore(t)

	for _, src := range []core.Source{
		{Name: "alpha", FeedURL: "https://alpha.example/feed", Category: "tech", Active: true},
		{Name: "beta", FeedURL: "https://beta.example/feed", Category: "world", Active: false},
	} {
		if err := s.UpsertSource(src); err != nil {
			t.Fatalf("UpsertSource failed: %v", err)
		}
	}

	active, err := s.Sources(true, "")
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if len(active) != 1 || active[0].Name != "alpha" {
		t.Fatalf("active sources = %+v, want only alpha", active)
	}

	if err := s.RecordSourceError("alpha", "boom"); err != nil {
		t.Fatalf("RecordSourceError failed: %v", err)
	}
	one, _ := s.Sources(false, "alpha")
	if one[0].ErrorCount != 1 || one[0].LastError != "boom" {
		t.Errorf("source after error = %+v", one[0])
	}

	if err := s.MarkSourceFetched("alpha", time.Now().UTC()); err != nil {
		t.Fatalf("MarkSourceFetched failed: %v", err)
	}
	one, _ = s.Sources(false, "alpha")
	if one[0].ErrorCount != 0 || one[0].LastFetchedAt == nil {
		t.Errorf("source after fetch = %+v", one[0])
	}

	// Redefining a source keeps bookkeeping but updates the definition.
	if err := s.UpsertSource(core.Source{Name: "alpha", FeedURL: "https://alpha.example/v2", Category: "tech", Active: true}); err != nil {
		t.Fatalf("UpsertSource update failed: %v", err)
	}
	one, _ = s.Sources(false, "alpha")
	if one[0].FeedURL != "https://alpha.example/v2" {
		t.Errorf("feed url not updated: %+v", one[0])
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
		ok   bool
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1, true},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0, true},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1, true},
		{"mismatched dims", []float64{1, 0}, []float64{1}, 0, false},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0, false},
	}

	for _, tt := range tests {
		got, ok := cosineSimilarity(tt.a, tt.b)
		if ok != tt.ok {
			t.Errorf("%s: ok = %t, want %t", tt.name, ok, tt.ok)
			continue
		}
		if ok && (got < tt.want-1e-9 || got > tt.want+1e-9) {
			t.Errorf("%s: similarity = %f, want %f", tt.name, got, tt.want)
		}
	}
}
