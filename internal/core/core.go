package core

import "time"

// Article is the raw ingested unit. One row per canonical source URL;
// ingestion upserts are keyed on SourceURL and duplicates are ignored.
type Article struct {
	ID          string    `json:"id"`           // Unique identifier for the article
	Title       string    `json:"title"`        // Title as published by the source
	Content     string    `json:"content"`      // Extracted article text (feed snippet or enriched page content)
	SourceName  string    `json:"source_name"`  // Name of the originating source
	SourceURL   string    `json:"source_url"`   // Canonical URL, unique across the store
	ImageURL    string    `json:"image_url"`    // Representative image extracted during enrichment (may be empty)
	PublishedAt time.Time `json:"published_at"` // Publication timestamp from the feed
	Category    string    `json:"category"`     // Category inherited from the source
	Embedding   []float64 `json:"embedding"`    // Vector embedding, nil until the embedding stage runs
	ClusterID   *string   `json:"cluster_id"`   // Owning cluster, nil until the clustering stage runs
	CreatedAt   time.Time `json:"created_at"`   // When the article was ingested
}

// Cluster groups articles judged to report the same story.
type Cluster struct {
	ID                      string     `json:"id"`                        // Unique identifier for the cluster
	Label                   string     `json:"label"`                     // Human-readable label, seeded from the first article's title
	Category                string     `json:"category"`                  // Category, seeded from the first article
	FinalScore              *float64   `json:"final_score"`               // Relevance score, nil until the scoring stage runs
	IsPublished             bool       `json:"is_published"`              // Whether a summary has been published for this cluster
	PublishedOn             *time.Time `json:"published_on"`              // When the cluster was published
	RepresentativeArticleID *string    `json:"representative_article_id"` // Most representative article chosen during scoring
	CreatedAt               time.Time  `json:"created_at"`                // When the cluster was created
}

// Summary is the rewritten publishable artifact, one per published cluster.
// Reprocessing a cluster overwrites its summary row.
type Summary struct {
	ClusterID   string    `json:"cluster_id"`   // Owning cluster (primary key)
	Title       string    `json:"title"`        // Rewritten headline
	TLDR        string    `json:"tldr"`         // Short abstract
	Analysis    string    `json:"analysis"`     // Impact/why-it-matters analysis
	FullContent string    `json:"full_content"` // Full rewritten body
	SourceCount int       `json:"source_count"` // Number of source articles synthesized
	ModelName   string    `json:"model_name"`   // Model that produced the rewrite
	CreatedAt   time.Time `json:"created_at"`   // When the summary was first written
	UpdatedAt   time.Time `json:"updated_at"`   // Last overwrite time
}

// Source is a configured external feed.
type Source struct {
	Name          string     `json:"name"`            // Unique source name
	FeedURL       string     `json:"feed_url"`        // RSS/Atom feed URL
	Category      string     `json:"category"`        // Category stamped onto ingested articles
	Active        bool       `json:"active"`          // Whether the source participates in ingestion
	LastFetchedAt *time.Time `json:"last_fetched_at"` // Last successful ingestion, nil if never
	ErrorCount    int        `json:"error_count"`     // Consecutive ingestion failures
	LastError     string     `json:"last_error"`      // Last ingestion error message
}

// ProcessingState is the single persisted coordination record for pipeline
// runs. At most one owning run holds IsRunning without a stop request,
// except after the staleness timeout.
type ProcessingState struct {
	IsRunning       bool      `json:"is_running"`
	CurrentStep     string    `json:"current_step"`
	StartedAt       time.Time `json:"started_at"`
	ShouldStop      bool      `json:"should_stop"`
	RunID           string    `json:"run_id"` // Ownership token; only the owner may finish the run
	ProgressCurrent int       `json:"progress_current"`
	ProgressTotal   int       `json:"progress_total"`
	ProgressLabel   string    `json:"progress_label"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClusterScore is the result of scoring a cluster's articles.
type ClusterScore struct {
	Score            float64 `json:"score"`
	RepresentativeID string  `json:"representative_id"`
}

// Rewrite is the synthesized publishable document produced from a cluster's
// source articles. A nil rewrite means the model declined to produce one.
type Rewrite struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	TLDR     string `json:"tldr"`
	Impact   string `json:"impact"`
	Category string `json:"category"`
}

// SimilarArticle is a nearest-neighbor match from the similarity lookup.
type SimilarArticle struct {
	ID          string    `json:"id"`
	ClusterID   *string   `json:"cluster_id"`
	Similarity  float64   `json:"similarity"`
	PublishedAt time.Time `json:"published_at"`
	SourceName  string    `json:"source_name"`
	Title       string    `json:"title"`
}
