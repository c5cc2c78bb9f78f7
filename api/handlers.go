package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/audit"
	"github.com/nmang004/projectaether/engine"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/job"
)

// maxRequestBytes bounds submission payload size.
const maxRequestBytes = 1 << 20

// submitResponse is the 202 body every submission endpoint returns.
type submitResponse struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Queue  string `json:"queue"`
	Status string `json:"status"`
}

func (a *API) submitAudit(w http.ResponseWriter, r *http.Request) {
	submit[audit.CrawlSpec](a, w, r, audit.KindSiteCrawl)
}

func (a *API) submitPerformance(w http.ResponseWriter, r *http.Request) {
	submit[audit.PerformanceSpec](a, w, r, audit.KindPagePerformance)
}

func (a *API) submitBrief(w http.ResponseWriter, r *http.Request) {
	submit[audit.BriefSpec](a, w, r, audit.KindContentBrief)
}

func submit[T any](a *API, w http.ResponseWriter, r *http.Request, kind string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		a.writeError(w, aether.Validationf("read request body: %v", err))
		return
	}

	var spec T
	if err := json.Unmarshal(body, &spec); err != nil {
		a.writeError(w, aether.Validationf("malformed request body: %v", err))
		return
	}

	j, err := engine.Submit(r.Context(), a.eng, kind, spec)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:  j.ID.String(),
		Kind:   j.Kind,
		Queue:  j.Queue,
		Status: string(j.Status),
	})
}

// ── job status ──────────────────────────────────────────────────────────

// jobResponse is the status snapshot returned for a job ID. Failed jobs
// carry a human message plus the structured error; stack traces never
// leave the process.
type jobResponse struct {
	JobID       string          `json:"job_id"`
	Kind        string          `json:"kind"`
	Queue       string          `json:"queue"`
	Status      string          `json:"status"`
	Phase       string          `json:"phase,omitempty"`
	Progress    int             `json:"progress"`
	Total       int             `json:"total,omitempty"`
	Completed   int             `json:"completed,omitempty"`
	CurrentItem string          `json:"current_item,omitempty"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Message     string          `json:"message,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *aether.Error   `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

func toJobResponse(j *job.Job) jobResponse {
	resp := jobResponse{
		JobID:       j.ID.String(),
		Kind:        j.Kind,
		Queue:       j.Queue,
		Status:      string(j.Status),
		Phase:       j.Phase,
		Progress:    j.Progress,
		Total:       j.Total,
		Completed:   j.Completed,
		CurrentItem: j.CurrentItem,
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
		Result:      j.Result,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
	switch j.Status {
	case job.StatusPending:
		resp.Message = "Task is waiting to be processed"
	case job.StatusRunning:
		resp.Message = "Task is being processed"
	case job.StatusSucceeded:
		resp.Message = "Task completed successfully"
	case job.StatusFailed:
		resp.Message = "Task failed to complete"
	}
	return resp
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(r.PathValue("id"))
	if err != nil {
		a.writeError(w, aether.Validationf("invalid job ID: %v", err))
		return
	}

	j, err := a.eng.Status(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// ── cache administration ────────────────────────────────────────────────

func (a *API) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.Cache().Stats())
}

type purgeResponse struct {
	Purged int `json:"purged"`
}

func (a *API) purgeCache(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}
	n := a.eng.Cache().Invalidate(r.Context(), pattern)
	writeJSON(w, http.StatusOK, purgeResponse{Purged: n})
}

// ── health ──────────────────────────────────────────────────────────────

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if store := a.eng.Dispatcher().Store(); store != nil {
		if err := store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"store":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
