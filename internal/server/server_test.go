package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"newsdesk/internal/config"
	"newsdesk/internal/core"
	"newsdesk/internal/ingest"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/policy"
	"newsdesk/internal/store"
)

type fakeRunner struct {
	result  *pipeline.Result
	lastReq policy.Request
}

func (f *fakeRunner) Run(ctx context.Context, req policy.Request) (*pipeline.Result, error) {
	f.lastReq = req
	return f.result, nil
}

type fakeIngester struct {
	result   *ingest.Result
	lastOpts ingest.Options
}

func (f *fakeIngester) Run(ctx context.Context, opts ingest.Options) (*ingest.Result, error) {
	f.lastOpts = opts
	return f.result, nil
}

func newTestServer(t *testing.T, runner Runner, ingester Ingester) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Publication: config.Publication{MinScore: 6, MinSources: 2, MaturityHours: 0},
		Server:      config.Server{Addr: ":0"},
	}
	return New(st, runner, ingester, cfg), st
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	payload := make(map[string]json.RawMessage)
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("response is not a JSON object: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, payload
}

func TestHandleStatus(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{}, &fakeIngester{})

	rec, _ := doJSON(t, s, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Running || resp.Articles != 0 {
		t.Errorf("fresh store should be idle and empty, got %+v", resp)
	}

	// A running state and some data show up.
	if err := st.SaveProcessingState(core.ProcessingState{
		IsRunning: true, CurrentStep: "scoring", RunID: "r1",
		StartedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveProcessingState failed: %v", err)
	}
	if _, err := st.UpsertArticles([]core.Article{{
		ID: uuid.NewString(), Title: "t", SourceURL: "https://example.com/1",
		PublishedAt: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	}}); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}

	rec, _ = doJSON(t, s, http.MethodGet, "/api/status", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Running || resp.CurrentStep != "scoring" || resp.Articles != 1 {
		t.Errorf("status should reflect the running state, got %+v", resp)
	}
}

func TestHandleProcess(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.Result{RunID: "run-1", Embedded: 2}}
	s, _ := newTestServer(t, runner, &fakeIngester{})

	rec, _ := doJSON(t, s, http.MethodPost, "/api/process", `{"batch_size": 4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if runner.lastReq.Profile != policy.ProfileAPI {
		t.Errorf("default profile = %q, want api", runner.lastReq.Profile)
	}
	if runner.lastReq.Overrides.BatchSize != 4 {
		t.Errorf("batch size override = %d, want 4", runner.lastReq.Overrides.BatchSize)
	}
}

func TestHandleProcess_RateLimited(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.Result{RunID: "run-1", Stopped: true, RetryAfter: 60 * time.Second}}
	s, _ := newTestServer(t, runner, &fakeIngester{})

	rec, _ := doJSON(t, s, http.MethodPost, "/api/process", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestHandleProcess_LockContention(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.Result{RunID: "run-1", Skipped: true, Stopped: true}}
	s, _ := newTestServer(t, runner, &fakeIngester{})

	rec, _ := doJSON(t, s, http.MethodPost, "/api/process", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestHandleIngest(t *testing.T) {
	ing := &fakeIngester{result: &ingest.Result{Sources: 2, Inserted: 5}}
	s, _ := newTestServer(t, &fakeRunner{}, ing)

	rec, _ := doJSON(t, s, http.MethodPost, "/api/ingest",
		`{"source": "hn", "enrich": true, "source_concurrency": 6, "batch_size": 20, "batch_delay_ms": 100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ing.lastOpts.NameFilter != "hn" || !ing.lastOpts.Enrich {
		t.Errorf("options not forwarded: %+v", ing.lastOpts)
	}
	if ing.lastOpts.Profile != policy.ProfileAPI {
		t.Errorf("profile = %q, want api", ing.lastOpts.Profile)
	}
	if ing.lastOpts.SourceConcurrency != 6 || ing.lastOpts.BatchSize != 20 || ing.lastOpts.BatchDelayMs != 100 {
		t.Errorf("throughput overrides not forwarded: %+v", ing.lastOpts)
	}
}

func TestHandleRejectCluster(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{}, &fakeIngester{})

	id := uuid.NewString()
	if err := st.CreateCluster(core.Cluster{ID: id, Label: "overrated", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateCluster failed: %v", err)
	}
	if err := st.SetClusterScore(id, 9, "rep-article"); err != nil {
		t.Fatalf("SetClusterScore failed: %v", err)
	}

	rec, _ := doJSON(t, s, http.MethodPost, "/api/clusters/"+id+"/reject", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	cluster, err := st.GetCluster(id)
	if err != nil {
		t.Fatalf("GetCluster failed: %v", err)
	}
	if cluster.FinalScore != nil || cluster.RepresentativeArticleID != nil {
		t.Errorf("reject should clear score and representative, got %+v", cluster)
	}

	// Back in the scoring backlog.
	backlog, err := st.UnscoredClusters(10)
	if err != nil {
		t.Fatalf("UnscoredClusters failed: %v", err)
	}
	if len(backlog) != 1 || backlog[0].ID != id {
		t.Errorf("rejected cluster should be rescored, backlog %d", len(backlog))
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/clusters/"+uuid.NewString()+"/reject", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown cluster status = %d, want 404", rec.Code)
	}
}

func TestHandleStopAndReset(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{}, &fakeIngester{})
	if err := st.SaveProcessingState(core.ProcessingState{
		IsRunning: true, RunID: "r1", StartedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveProcessingState failed: %v", err)
	}

	rec, _ := doJSON(t, s, http.MethodPost, "/api/stop", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("stop status = %d, want 202", rec.Code)
	}
	state, err := st.GetProcessingState()
	if err != nil {
		t.Fatalf("GetProcessingState failed: %v", err)
	}
	if state == nil || !state.ShouldStop {
		t.Errorf("stop should set the flag, got %+v", state)
	}

	rec, _ = doJSON(t, s, http.MethodPost, "/api/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", rec.Code)
	}
	state, _ = st.GetProcessingState()
	if state == nil || state.IsRunning || state.ShouldStop {
		t.Errorf("reset should clear the record, got %+v", state)
	}
}

func TestHandleReport(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{}, &fakeIngester{})

	// One published cluster, one never scored.
	publishedID := uuid.NewString()
	if err := st.CreateCluster(core.Cluster{ID: publishedID, Label: "done", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateCluster failed: %v", err)
	}
	if err := st.SetClusterScore(publishedID, 8, ""); err != nil {
		t.Fatalf("SetClusterScore failed: %v", err)
	}
	if err := st.PublishCluster(publishedID, "done", "tech", time.Now().UTC()); err != nil {
		t.Fatalf("PublishCluster failed: %v", err)
	}
	if err := st.CreateCluster(core.Cluster{ID: uuid.NewString(), Label: "waiting", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateCluster failed: %v", err)
	}

	rec, _ := doJSON(t, s, http.MethodGet, "/api/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp reportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if resp.Counts["published"] != 1 || resp.Counts["pending_scoring"] != 1 {
		t.Errorf("unexpected state counts: %v", resp.Counts)
	}
	if len(resp.Clusters) != 2 {
		t.Errorf("clusters = %d, want 2", len(resp.Clusters))
	}
}
