package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"newsdesk/internal/editorial"
	"newsdesk/internal/ingest"
	"newsdesk/internal/policy"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse combines the run coordination record with store counts.
type statusResponse struct {
	Running         bool      `json:"running"`
	CurrentStep     string    `json:"current_step,omitempty"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	StopRequested   bool      `json:"stop_requested"`
	ProgressCurrent int       `json:"progress_current"`
	ProgressTotal   int       `json:"progress_total"`
	ProgressLabel   string    `json:"progress_label,omitempty"`
	Articles        int       `json:"articles"`
	Clusters        int       `json:"clusters"`
	Published       int       `json:"published"`
	Sources         int       `json:"sources"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.GetProcessingState()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	stats, err := s.store.GetStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := statusResponse{
		Articles:  stats.ArticleCount,
		Clusters:  stats.ClusterCount,
		Published: stats.PublishedCount,
		Sources:   stats.SourceCount,
	}
	if state != nil {
		resp.Running = state.IsRunning
		resp.CurrentStep = state.CurrentStep
		resp.StartedAt = state.StartedAt
		resp.StopRequested = state.ShouldStop
		resp.ProgressCurrent = state.ProgressCurrent
		resp.ProgressTotal = state.ProgressTotal
		resp.ProgressLabel = state.ProgressLabel
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// processRequest is the optional POST /api/process body.
type processRequest struct {
	Profile        string `json:"profile"`
	BatchSize      int    `json:"batch_size"`
	LLMDelayMs     int    `json:"llm_delay_ms"`
	MaxExecutionMs int    `json:"max_execution_ms"`
}

// handleProcess runs the pipeline synchronously under the api profile (or a
// caller-chosen one) and returns the run result. A rate-limited run answers
// 429 with a Retry-After header; a run skipped due to lock contention
// answers 409.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var body processRequest
	if r.Body != nil {
		// An empty body means all defaults.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	profile := policy.ProfileAPI
	if body.Profile != "" {
		profile = policy.Profile(body.Profile)
	}
	req := policy.Request{
		Profile:  profile,
		PaidTier: s.cfg.Gemini.PaidTier,
		Overrides: policy.Overrides{
			BatchSize:      body.BatchSize,
			LLMDelayMs:     body.LLMDelayMs,
			MaxExecutionMs: body.MaxExecutionMs,
		},
	}

	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	switch {
	case result.RetryAfter > 0:
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())))
		s.writeJSON(w, http.StatusTooManyRequests, result)
	case result.Skipped:
		s.writeJSON(w, http.StatusConflict, result)
	default:
		s.writeJSON(w, http.StatusOK, result)
	}
}

// ingestRequest is the optional POST /api/ingest body.
type ingestRequest struct {
	Source            string `json:"source"`
	Enrich            bool   `json:"enrich"`
	SourceConcurrency int    `json:"source_concurrency"`
	BatchSize         int    `json:"batch_size"`
	BatchDelayMs      int    `json:"batch_delay_ms"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var body ingestRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	result, err := s.ingester.Run(r.Context(), ingest.Options{
		Profile:           policy.ProfileAPI,
		PaidTier:          s.cfg.Gemini.PaidTier,
		SourceConcurrency: body.SourceConcurrency,
		BatchSize:         body.BatchSize,
		BatchDelayMs:      body.BatchDelayMs,
		NameFilter:        body.Source,
		Enrich:            body.Enrich,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleRejectCluster clears a cluster's score and representative pick so
// the scoring stage re-evaluates it from scratch. Editorial override for a
// cluster the model scored badly.
func (s *Server) handleRejectCluster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cluster, err := s.store.GetCluster(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cluster == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("cluster %s not found", id))
		return
	}

	if err := s.store.RejectCluster(id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("cluster rejected", "cluster", id, "label", cluster.Label)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected", "cluster_id": id})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.lock.RequestStop(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "stop requested"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.lock.ForceReset(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Warn("processing state force-reset via api")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// reportEntry is one cluster's editorial position.
type reportEntry struct {
	ClusterID string            `json:"cluster_id"`
	Label     string            `json:"label"`
	Score     *float64          `json:"score"`
	State     editorial.State   `json:"state"`
	Metrics   editorial.Metrics `json:"metrics"`
}

// reportResponse is the full editorial report: per-state counts plus the
// classification of every cluster in the page.
type reportResponse struct {
	Counts   map[editorial.State]int `json:"counts"`
	Clusters []reportEntry           `json:"clusters"`
}

// handleReport classifies every cluster with the same pure classifier the
// rewriting stage uses, so the report always agrees with what the pipeline
// would select.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.store.AllClusters(500, 0)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	pub := s.cfg.Publication
	edCfg := editorial.Config{
		MinScore:       pub.MinScore,
		MinSources:     pub.MinSources,
		MaturityWindow: time.Duration(pub.MaturityHours) * time.Hour,
		IgnoreMaturity: pub.IgnoreMaturity,
		FreshOnly:      pub.FreshOnly,
		FreshWindow:    time.Duration(pub.FreshWindowHours) * time.Hour,
	}
	now := time.Now().UTC()

	resp := reportResponse{Counts: make(map[editorial.State]int)}
	for _, c := range clusters {
		articles, err := s.store.ClusterArticles(c.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		hasSummary, err := s.store.HasSummary(c.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}

		cls := editorial.Classify(editorial.ClusterView{
			Cluster:    c,
			Articles:   articles,
			HasSummary: hasSummary,
		}, edCfg, now)

		resp.Counts[cls.State]++
		resp.Clusters = append(resp.Clusters, reportEntry{
			ClusterID: c.ID,
			Label:     c.Label,
			Score:     c.FinalScore,
			State:     cls.State,
			Metrics:   cls.Metrics,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.Sources(false, r.URL.Query().Get("name"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sources)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error("request failed", "error", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
