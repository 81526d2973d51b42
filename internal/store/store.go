// Package store persists articles, clusters, summaries, sources, and the
// pipeline coordination record in a SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"newsdesk/internal/core"
)

// Store is the SQLite-backed datastore.
type Store struct {
	db   *sql.DB
	path string
}

// New creates a store instance, creating the database and schema if needed.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "newsdesk.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

func (s *Store) initialize() error {
	articlesTable := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT,
		source_name TEXT,
		source_url TEXT UNIQUE NOT NULL,
		image_url TEXT,
		published_at DATETIME,
		category TEXT,
		embedding TEXT,
		cluster_id TEXT,
		created_at DATETIME
	);`

	clustersTable := `
	CREATE TABLE IF NOT EXISTS clusters (
		id TEXT PRIMARY KEY,
		label TEXT,
		category TEXT,
		final_score REAL,
		is_published INTEGER NOT NULL DEFAULT 0,
		published_on DATETIME,
		representative_article_id TEXT,
		created_at DATETIME
	);`

	summariesTable := `
	CREATE TABLE IF NOT EXISTS summaries (
		cluster_id TEXT PRIMARY KEY,
		title TEXT,
		tldr TEXT,
		analysis TEXT,
		full_content TEXT,
		source_count INTEGER,
		model_name TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`

	sourcesTable := `
	CREATE TABLE IF NOT EXISTS sources (
		name TEXT PRIMARY KEY,
		feed_url TEXT NOT NULL,
		category TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		last_fetched_at DATETIME,
		error_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	);`

	// Single-row coordination record, see proclock.
	stateTable := `
	CREATE TABLE IF NOT EXISTS processing_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		is_running INTEGER NOT NULL DEFAULT 0,
		current_step TEXT,
		started_at DATETIME,
		should_stop INTEGER NOT NULL DEFAULT 0,
		run_id TEXT,
		progress_current INTEGER NOT NULL DEFAULT 0,
		progress_total INTEGER NOT NULL DEFAULT 0,
		progress_label TEXT,
		updated_at DATETIME
	);`

	indexes := `
	CREATE INDEX IF NOT EXISTS idx_articles_cluster ON articles (cluster_id);
	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles (published_at);
	CREATE INDEX IF NOT EXISTS idx_clusters_score ON clusters (final_score, is_published);`

	for _, stmt := range []string{articlesTable, clustersTable, summariesTable, sourcesTable, stateTable, indexes} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Articles ---

// UpsertArticles inserts articles, silently ignoring rows whose source_url
// already exists, and returns the number of rows actually inserted.
func (s *Store) UpsertArticles(articles []core.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT INTO articles (id, title, content, source_name, source_url, image_url, published_at, category, embedding, cluster_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_url) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range articles {
		res, err := stmt.Exec(a.ID, a.Title, a.Content, a.SourceName, a.SourceURL, a.ImageURL,
			a.PublishedAt, a.Category, marshalEmbedding(a.Embedding), a.ClusterID, a.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert article %s: %w", a.SourceURL, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit article batch: %w", err)
	}
	return inserted, nil
}

const articleColumns = "id, title, content, source_name, source_url, image_url, published_at, category, embedding, cluster_id, created_at"

func scanArticle(row interface{ Scan(...any) error }) (core.Article, error) {
	var a core.Article
	var embedding, clusterID sql.NullString
	var publishedAt, createdAt sql.NullTime
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.SourceName, &a.SourceURL, &a.ImageURL,
		&publishedAt, &a.Category, &embedding, &clusterID, &createdAt)
	if err != nil {
		return core.Article{}, err
	}
	if publishedAt.Valid {
		a.PublishedAt = publishedAt.Time
	}
	if createdAt.Valid {
		a.CreatedAt = createdAt.Time
	}
	if embedding.Valid && embedding.String != "" {
		_ = json.Unmarshal([]byte(embedding.String), &a.Embedding)
	}
	if clusterID.Valid {
		id := clusterID.String
		a.ClusterID = &id
	}
	return a, nil
}

func (s *Store) queryArticles(query string, args ...any) ([]core.Article, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// ArticlesMissingEmbedding returns the embedding-stage backlog, oldest first.
func (s *Store) ArticlesMissingEmbedding(limit int) ([]core.Article, error) {
	return s.queryArticles(fmt.Sprintf(`
	SELECT %s FROM articles WHERE embedding IS NULL ORDER BY created_at ASC LIMIT ?`, articleColumns), limit)
}

// ArticlesMissingCluster returns embedded but unclustered articles, oldest first.
func (s *Store) ArticlesMissingCluster(limit int) ([]core.Article, error) {
	return s.queryArticles(fmt.Sprintf(`
	SELECT %s FROM articles WHERE embedding IS NOT NULL AND cluster_id IS NULL ORDER BY created_at ASC LIMIT ?`, articleColumns), limit)
}

// ClusterArticles returns every article assigned to a cluster, newest first.
func (s *Store) ClusterArticles(clusterID string) ([]core.Article, error) {
	return s.queryArticles(fmt.Sprintf(`
	SELECT %s FROM articles WHERE cluster_id = ? ORDER BY published_at DESC`, articleColumns), clusterID)
}

// SetArticleEmbedding stores the embedding vector for an article.
func (s *Store) SetArticleEmbedding(id string, embedding []float64) error {
	_, err := s.db.Exec(`UPDATE articles SET embedding = ? WHERE id = ?`, marshalEmbedding(embedding), id)
	if err != nil {
		return fmt.Errorf("failed to set embedding for %s: %w", id, err)
	}
	return nil
}

// AssignArticleCluster sets the owning cluster for an article.
func (s *Store) AssignArticleCluster(id, clusterID string) error {
	_, err := s.db.Exec(`UPDATE articles SET cluster_id = ? WHERE id = ?`, clusterID, id)
	if err != nil {
		return fmt.Errorf("failed to assign cluster for %s: %w", id, err)
	}
	return nil
}

// CountArticlesBySourceURL reports whether an article with this URL exists.
func (s *Store) CountArticlesBySourceURL(sourceURL string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM articles WHERE source_url = ?`, sourceURL).Scan(&n)
	return n, err
}

func marshalEmbedding(embedding []float64) any {
	if embedding == nil {
		return nil
	}
	b, _ := json.Marshal(embedding)
	return string(b)
}

// --- Clusters ---

// CreateCluster inserts a new cluster.
func (s *Store) CreateCluster(c core.Cluster) error {
	_, err := s.db.Exec(`
	INSERT INTO clusters (id, label, category, final_score, is_published, published_on, representative_article_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Label, c.Category, c.FinalScore, c.IsPublished, c.PublishedOn, c.RepresentativeArticleID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}
	return nil
}

const clusterColumns = "id, label, category, final_score, is_published, published_on, representative_article_id, created_at"

func scanCluster(row interface{ Scan(...any) error }) (core.Cluster, error) {
	var c core.Cluster
	var finalScore sql.NullFloat64
	var publishedOn, createdAt sql.NullTime
	var repID sql.NullString
	err := row.Scan(&c.ID, &c.Label, &c.Category, &finalScore, &c.IsPublished, &publishedOn, &repID, &createdAt)
	if err != nil {
		return core.Cluster{}, err
	}
	if finalScore.Valid {
		v := finalScore.Float64
		c.FinalScore = &v
	}
	if publishedOn.Valid {
		t := publishedOn.Time
		c.PublishedOn = &t
	}
	if repID.Valid {
		id := repID.String
		c.RepresentativeArticleID = &id
	}
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	return c, nil
}

func (s *Store) queryClusters(query string, args ...any) ([]core.Cluster, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []core.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// GetCluster returns a cluster by id, or nil if it does not exist.
func (s *Store) GetCluster(id string) (*core.Cluster, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM clusters WHERE id = ?`, clusterColumns), id)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster %s: %w", id, err)
	}
	return &c, nil
}

// UnscoredClusters returns the scoring-stage backlog, oldest first.
func (s *Store) UnscoredClusters(limit int) ([]core.Cluster, error) {
	return s.queryClusters(fmt.Sprintf(`
	SELECT %s FROM clusters WHERE final_score IS NULL ORDER BY created_at ASC LIMIT ?`, clusterColumns), limit)
}

// SetClusterScore persists the scoring result for a cluster.
func (s *Store) SetClusterScore(id string, finalScore float64, representativeID string) error {
	var rep any
	if representativeID != "" {
		rep = representativeID
	}
	_, err := s.db.Exec(`UPDATE clusters SET final_score = ?, representative_article_id = ? WHERE id = ?`,
		finalScore, rep, id)
	if err != nil {
		return fmt.Errorf("failed to score cluster %s: %w", id, err)
	}
	return nil
}

// RewriteCandidates returns unpublished clusters at or above the score floor
// that have no summary yet, highest score first, range-paginated.
func (s *Store) RewriteCandidates(minScore float64, limit, offset int) ([]core.Cluster, error) {
	return s.queryClusters(fmt.Sprintf(`
	SELECT %s FROM clusters c
	LEFT JOIN summaries sm ON sm.cluster_id = c.id
	WHERE c.is_published = 0 AND c.final_score IS NOT NULL AND c.final_score >= ? AND sm.cluster_id IS NULL
	ORDER BY c.final_score DESC, c.created_at ASC
	LIMIT ? OFFSET ?`, prefixColumns("c", clusterColumns)), minScore, limit, offset)
}

// ClusterIDsWithArticlesSince returns the ids of clusters referenced by any
// article published at or after the cutoff. Used to narrow rewrite candidate
// discovery under freshness filtering without scanning the cluster table.
func (s *Store) ClusterIDsWithArticlesSince(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`
	SELECT DISTINCT cluster_id FROM articles WHERE cluster_id IS NOT NULL AND published_at >= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query fresh cluster ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cluster id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RewriteCandidatesByIDs is the id-constrained variant of RewriteCandidates.
func (s *Store) RewriteCandidatesByIDs(ids []string, minScore float64) ([]core.Cluster, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(ids)+1)
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}
	args = append(args, minScore)
	return s.queryClusters(fmt.Sprintf(`
	SELECT %s FROM clusters c
	LEFT JOIN summaries sm ON sm.cluster_id = c.id
	WHERE c.id IN (%s) AND c.is_published = 0 AND c.final_score IS NOT NULL AND c.final_score >= ? AND sm.cluster_id IS NULL
	ORDER BY c.final_score DESC`, prefixColumns("c", clusterColumns), placeholders), args...)
}

// PublishCluster flips a cluster to published with its final label/category.
func (s *Store) PublishCluster(id, label, category string, on time.Time) error {
	_, err := s.db.Exec(`
	UPDATE clusters SET is_published = 1, published_on = ?, label = ?, category = ? WHERE id = ?`,
		on, label, category, id)
	if err != nil {
		return fmt.Errorf("failed to publish cluster %s: %w", id, err)
	}
	return nil
}

// RejectCluster clears a cluster's score so it will be rescored. This is the
// only sanctioned reset of final_score after scoring.
func (s *Store) RejectCluster(id string) error {
	_, err := s.db.Exec(`UPDATE clusters SET final_score = NULL, representative_article_id = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to reject cluster %s: %w", id, err)
	}
	return nil
}

// AllClusters returns clusters in creation order, range-paginated. Used by
// the editorial report.
func (s *Store) AllClusters(limit, offset int) ([]core.Cluster, error) {
	return s.queryClusters(fmt.Sprintf(`
	SELECT %s FROM clusters ORDER BY created_at ASC LIMIT ? OFFSET ?`, clusterColumns), limit, offset)
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	out := ""
	start := 0
	for i := 0; i <= len(columns); i++ {
		if i == len(columns) || columns[i] == ',' {
			col := columns[start:i]
			for len(col) > 0 && col[0] == ' ' {
				col = col[1:]
			}
			if out != "" {
				out += ", "
			}
			out += alias + "." + col
			start = i + 1
		}
	}
	return out
}

// --- Summaries ---

// UpsertSummary writes the rewritten summary for a cluster, overwriting any
// previous version.
func (s *Store) UpsertSummary(sm core.Summary) error {
	_, err := s.db.Exec(`
	INSERT INTO summaries (cluster_id, title, tldr, analysis, full_content, source_count, model_name, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(cluster_id) DO UPDATE SET
		title = excluded.title,
		tldr = excluded.tldr,
		analysis = excluded.analysis,
		full_content = excluded.full_content,
		source_count = excluded.source_count,
		model_name = excluded.model_name,
		updated_at = excluded.updated_at`,
		sm.ClusterID, sm.Title, sm.TLDR, sm.Analysis, sm.FullContent, sm.SourceCount, sm.ModelName, sm.CreatedAt, sm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert summary for %s: %w", sm.ClusterID, err)
	}
	return nil
}

// GetSummary returns a cluster's summary, or nil if none exists.
func (s *Store) GetSummary(clusterID string) (*core.Summary, error) {
	row := s.db.QueryRow(`
	SELECT cluster_id, title, tldr, analysis, full_content, source_count, model_name, created_at, updated_at
	FROM summaries WHERE cluster_id = ?`, clusterID)

	var sm core.Summary
	err := row.Scan(&sm.ClusterID, &sm.Title, &sm.TLDR, &sm.Analysis, &sm.FullContent,
		&sm.SourceCount, &sm.ModelName, &sm.CreatedAt, &sm.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for %s: %w", clusterID, err)
	}
	return &sm, nil
}

// HasSummary reports whether a summary row exists for the cluster.
func (s *Store) HasSummary(clusterID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM summaries WHERE cluster_id = ?`, clusterID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check summary for %s: %w", clusterID, err)
	}
	return n > 0, nil
}

// --- Sources ---

// UpsertSource inserts or updates a source definition, preserving fetch
// bookkeeping on update.
func (s *Store) UpsertSource(src core.Source) error {
	_, err := s.db.Exec(`
	INSERT INTO sources (name, feed_url, category, active, last_fetched_at, error_count, last_error)
	VALUES (?, ?, ?, ?, ?, 0, '')
	ON CONFLICT(name) DO UPDATE SET
		feed_url = excluded.feed_url,
		category = excluded.category,
		active = excluded.active`,
		src.Name, src.FeedURL, src.Category, src.Active, src.LastFetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", src.Name, err)
	}
	return nil
}

// Sources returns sources, optionally restricted to active ones or one name.
func (s *Store) Sources(activeOnly bool, nameFilter string) ([]core.Source, error) {
	query := `SELECT name, feed_url, category, active, last_fetched_at, error_count, last_error FROM sources`
	var args []any
	var conds []string
	if activeOnly {
		conds = append(conds, "active = 1")
	}
	if nameFilter != "" {
		conds = append(conds, "name = ?")
		args = append(args, nameFilter)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []core.Source
	for rows.Next() {
		var src core.Source
		var lastFetched sql.NullTime
		var lastError sql.NullString
		if err := rows.Scan(&src.Name, &src.FeedURL, &src.Category, &src.Active, &lastFetched, &src.ErrorCount, &lastError); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		if lastFetched.Valid {
			t := lastFetched.Time
			src.LastFetchedAt = &t
		}
		src.LastError = lastError.String
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// MarkSourceFetched records a successful ingestion pass for a source and
// clears its error streak.
func (s *Store) MarkSourceFetched(name string, at time.Time) error {
	_, err := s.db.Exec(`
	UPDATE sources SET last_fetched_at = ?, error_count = 0, last_error = '' WHERE name = ?`, at, name)
	if err != nil {
		return fmt.Errorf("failed to mark source %s fetched: %w", name, err)
	}
	return nil
}

// RecordSourceError increments a source's failure streak.
func (s *Store) RecordSourceError(name, message string) error {
	_, err := s.db.Exec(`
	UPDATE sources SET error_count = error_count + 1, last_error = ? WHERE name = ?`, message, name)
	if err != nil {
		return fmt.Errorf("failed to record error for source %s: %w", name, err)
	}
	return nil
}

// --- ProcessingState ---

// GetProcessingState returns the coordination record, or nil if no run has
// ever been recorded.
func (s *Store) GetProcessingState() (*core.ProcessingState, error) {
	row := s.db.QueryRow(`
	SELECT is_running, current_step, started_at, should_stop, run_id, progress_current, progress_total, progress_label, updated_at
	FROM processing_state WHERE id = 1`)

	var st core.ProcessingState
	var step, runID, label sql.NullString
	var startedAt, updatedAt sql.NullTime
	err := row.Scan(&st.IsRunning, &step, &startedAt, &st.ShouldStop, &runID,
		&st.ProgressCurrent, &st.ProgressTotal, &label, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processing state: %w", err)
	}
	st.CurrentStep = step.String
	st.RunID = runID.String
	st.ProgressLabel = label.String
	if startedAt.Valid {
		st.StartedAt = startedAt.Time
	}
	if updatedAt.Valid {
		st.UpdatedAt = updatedAt.Time
	}
	return &st, nil
}

// SaveProcessingState writes the coordination record (read-modify-write,
// last writer wins).
func (s *Store) SaveProcessingState(st core.ProcessingState) error {
	_, err := s.db.Exec(`
	INSERT INTO processing_state (id, is_running, current_step, started_at, should_stop, run_id, progress_current, progress_total, progress_label, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		is_running = excluded.is_running,
		current_step = excluded.current_step,
		started_at = excluded.started_at,
		should_stop = excluded.should_stop,
		run_id = excluded.run_id,
		progress_current = excluded.progress_current,
		progress_total = excluded.progress_total,
		progress_label = excluded.progress_label,
		updated_at = excluded.updated_at`,
		st.IsRunning, st.CurrentStep, st.StartedAt, st.ShouldStop, st.RunID,
		st.ProgressCurrent, st.ProgressTotal, st.ProgressLabel, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save processing state: %w", err)
	}
	return nil
}

// --- Maintenance ---

// Stats summarizes the store contents.
type Stats struct {
	ArticleCount   int
	ClusterCount   int
	SummaryCount   int
	PublishedCount int
	SourceCount    int
	DatabaseSize   int64
}

// GetStats returns row counts and the database file size.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query  string
		target *int
	}{
		{"SELECT COUNT(*) FROM articles", &stats.ArticleCount},
		{"SELECT COUNT(*) FROM clusters", &stats.ClusterCount},
		{"SELECT COUNT(*) FROM summaries", &stats.SummaryCount},
		{"SELECT COUNT(*) FROM clusters WHERE is_published = 1", &stats.PublishedCount},
		{"SELECT COUNT(*) FROM sources", &stats.SourceCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.target); err != nil {
			return nil, fmt.Errorf("failed to get count: %w", err)
		}
	}
	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = fileInfo.Size()
	}
	return stats, nil
}

// CleanupOldArticles removes unclustered articles older than maxAge.
// Clustered articles are never deleted by the pipeline.
func (s *Store) CleanupOldArticles(maxAge time.Duration) (int, error) {
	res, err := s.db.Exec(`
	DELETE FROM articles WHERE cluster_id IS NULL AND created_at < ?`, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to clean old articles: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
