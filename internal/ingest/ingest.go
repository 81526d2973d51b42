// Package ingest pulls configured RSS/Atom feeds, enriches items with page
// content where it is materially better than the feed snippet, and upserts
// the results as articles keyed on canonical URL.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"newsdesk/internal/config"
	"newsdesk/internal/core"
	"newsdesk/internal/logger"
	"newsdesk/internal/policy"
	"newsdesk/internal/store"
)

// maxFeedBytes caps how much of a feed response is read.
const maxFeedBytes = 5 << 20

// enrichConcurrency bounds parallel page fetches within one source.
const enrichConcurrency = 4

// requestProfile is one tier of outbound request identity. Some feeds reject
// generic clients, so the primary profile presents as a browser and the
// fallback as a plain feed reader.
type requestProfile struct {
	userAgent string
	accept    string
}

var (
	primaryProfile = requestProfile{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		accept:    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	}
	fallbackProfile = requestProfile{
		userAgent: "newsdesk/1.0",
		accept:    "application/rss+xml, application/atom+xml, application/xml, text/xml",
	}
)

func applyRequestProfile(req *http.Request, p requestProfile) {
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", p.accept)
}

// Options tunes a single ingestion run. Throughput fields are overrides: zero
// values fall back to the ingest config and then to the resolved policy.
type Options struct {
	Profile           policy.Profile // execution profile; manual when empty
	PaidTier          bool
	SourceConcurrency int    // parallel source workers, clamped by the resolver
	BatchSize         int    // articles per upsert batch
	BatchDelayMs      int    // pause between upsert batches
	NameFilter        string // restrict the run to one source by name
	Enrich            bool   // fetch article pages for better content and images
}

// Result summarizes an ingestion run. Per-source failures are isolated:
// they appear in FailedSources while every healthy source still lands.
type Result struct {
	Sources       int
	Items         int
	Inserted      int
	FailedSources map[string]string
}

// runParams are the per-run throughput parameters after policy resolution.
type runParams struct {
	pol        policy.Policy
	enrich     bool
	batchSize  int
	batchDelay time.Duration
}

// Engine runs ingestion across all active sources.
type Engine struct {
	store  *store.Store
	cfg    config.Ingest
	client *http.Client
}

// New creates an ingestion engine backed by the given store. Request
// deadlines come from the resolved policy per attempt, not from the client.
func New(st *store.Store, cfg config.Ingest) *Engine {
	return &Engine{
		store:  st,
		cfg:    cfg,
		client: &http.Client{},
	}
}

// resolve turns the run options into concrete throughput parameters. Source
// concurrency goes through the policy resolver so caller overrides are
// clamped the same way pipeline overrides are; the configured fetch timeout,
// when set, replaces the policy default.
func (e *Engine) resolve(opts Options) runParams {
	concurrency := opts.SourceConcurrency
	if concurrency <= 0 {
		concurrency = e.cfg.SourceConcurrency
	}

	pol := policy.Resolve(policy.Request{
		Profile:   opts.Profile,
		PaidTier:  opts.PaidTier,
		Overrides: policy.Overrides{SourceConcurrency: concurrency},
	})
	if e.cfg.FetchTimeoutSec > 0 {
		pol.FetchTimeout = time.Duration(e.cfg.FetchTimeoutSec) * time.Second
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = e.cfg.BatchSize
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	delayMs := opts.BatchDelayMs
	if delayMs <= 0 {
		delayMs = e.cfg.BatchDelayMs
	}

	return runParams{
		pol:        pol,
		enrich:     opts.Enrich,
		batchSize:  batchSize,
		batchDelay: time.Duration(delayMs) * time.Millisecond,
	}
}

// Run ingests every active source concurrently. One broken source never
// fails the run; its error is recorded against the source and reported in
// the result.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	sources, err := e.store.Sources(true, opts.NameFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no active sources configured")
	}

	prm := e.resolve(opts)

	result := &Result{
		Sources:       len(sources),
		FailedSources: make(map[string]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prm.pol.SourceConcurrency)

	for _, src := range sources {
		g.Go(func() error {
			items, inserted, err := e.ingestSource(gctx, src, prm)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("source ingestion failed", "source", src.Name, "error", err.Error())
				result.FailedSources[src.Name] = err.Error()
				if recErr := e.store.RecordSourceError(src.Name, err.Error()); recErr != nil {
					logger.Error("failed to record source error", recErr, "source", src.Name)
				}
				return nil
			}
			result.Items += items
			result.Inserted += inserted
			if markErr := e.store.MarkSourceFetched(src.Name, time.Now().UTC()); markErr != nil {
				logger.Error("failed to mark source fetched", markErr, "source", src.Name)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("ingestion interrupted: %w", err)
	}

	logger.Info("ingestion complete",
		"sources", result.Sources,
		"items", result.Items,
		"inserted", result.Inserted,
		"failed", len(result.FailedSources))
	return result, nil
}

// ingestSource fetches, filters, and persists one source's feed. Returns the
// number of in-window items seen and the number of new articles inserted.
func (e *Engine) ingestSource(ctx context.Context, src core.Source, prm runParams) (int, int, error) {
	body, err := e.fetchFeed(ctx, src.FeedURL, prm.pol)
	if err != nil {
		return 0, 0, err
	}

	items, err := parseFeed(body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse feed for %s: %w", src.Name, err)
	}

	maxAge := time.Duration(e.cfg.MaxItemAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 48 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	var articles []core.Article
	for _, item := range items {
		if item.Link == "" || item.Title == "" {
			continue
		}
		if item.Published.IsZero() || item.Published.Before(cutoff) {
			continue
		}

		articles = append(articles, core.Article{
			ID:          uuid.NewString(),
			Title:       item.Title,
			Content:     item.Description,
			SourceName:  src.Name,
			SourceURL:   item.Link,
			PublishedAt: item.Published,
			Category:    src.Category,
		})
	}

	if prm.enrich {
		e.enrichAll(ctx, articles, prm.pol.FetchTimeout)
	}

	inserted, err := e.upsertBatched(ctx, articles, prm)
	if err != nil {
		return len(articles), inserted, err
	}

	logger.Debug("source ingested", "source", src.Name, "items", len(articles), "inserted", inserted)
	return len(articles), inserted, nil
}

// enrichAll fetches article pages in parallel, bounded per source so one
// slow publisher does not serialize the whole batch.
func (e *Engine) enrichAll(ctx context.Context, articles []core.Article, timeout time.Duration) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range articles {
		g.Go(func() error {
			e.maybeEnrich(gctx, &articles[i], timeout)
			return nil
		})
	}
	// Workers never return errors; enrichment is best-effort.
	_ = g.Wait()
}

// maybeEnrich replaces the feed snippet with extracted page content when the
// page is materially better. Enrichment failures degrade to the snippet;
// already-stored URLs are skipped to avoid refetching pages on every run.
func (e *Engine) maybeEnrich(ctx context.Context, article *core.Article, timeout time.Duration) {
	if n, err := e.store.CountArticlesBySourceURL(article.SourceURL); err == nil && n > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	enriched, err := e.enrichArticle(ctx, article.SourceURL)
	if err != nil {
		logger.Debug("enrichment failed, keeping feed snippet", "url", article.SourceURL, "error", err.Error())
		return
	}
	if preferEnriched(article.Content, enriched.Content) {
		article.Content = enriched.Content
	}
	if article.ImageURL == "" {
		article.ImageURL = enriched.ImageURL
	}
}

// upsertBatched writes articles in batches with a pacing delay between
// batches. Duplicate canonical URLs are ignored by the store.
func (e *Engine) upsertBatched(ctx context.Context, articles []core.Article, prm runParams) (int, error) {
	inserted := 0
	for start := 0; start < len(articles); start += prm.batchSize {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		end := min(start+prm.batchSize, len(articles))

		n, err := e.store.UpsertArticles(articles[start:end])
		if err != nil {
			return inserted, fmt.Errorf("failed to upsert article batch: %w", err)
		}
		inserted += n

		if prm.batchDelay > 0 && end < len(articles) {
			select {
			case <-ctx.Done():
				return inserted, ctx.Err()
			case <-time.After(prm.batchDelay):
			}
		}
	}
	return inserted, nil
}

// fetchFeed downloads a feed document, retrying with the fallback request
// profile when the browser profile is rejected. Each attempt runs under its
// own deadline; the fallback gets the larger retry budget.
func (e *Engine) fetchFeed(ctx context.Context, feedURL string, pol policy.Policy) ([]byte, error) {
	pctx, cancel := context.WithTimeout(ctx, pol.FetchTimeout)
	body, err := e.fetchWithProfile(pctx, feedURL, primaryProfile)
	cancel()
	if err == nil {
		return body, nil
	}

	rctx, cancel := context.WithTimeout(ctx, pol.RetryTimeout)
	defer cancel()
	body, fallbackErr := e.fetchWithProfile(rctx, feedURL, fallbackProfile)
	if fallbackErr != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	return body, nil
}

func (e *Engine) fetchWithProfile(ctx context.Context, feedURL string, p requestProfile) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	applyRequestProfile(req, p)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}
	return body, nil
}
