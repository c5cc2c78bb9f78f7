package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/audit"
	"github.com/nmang004/projectaether/cache"
	"github.com/nmang004/projectaether/job"
)

// Submission is the acknowledgement returned when a job is accepted.
type Submission struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Queue  string `json:"queue"`
	Status string `json:"status"`
}

// Job is a status snapshot of a submitted job.
type Job struct {
	JobID       string          `json:"job_id"`
	Kind        string          `json:"kind"`
	Queue       string          `json:"queue"`
	Status      job.Status      `json:"status"`
	Phase       string          `json:"phase"`
	Progress    int             `json:"progress"`
	Total       int             `json:"total"`
	Completed   int             `json:"completed"`
	CurrentItem string          `json:"current_item"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Message     string          `json:"message"`
	Result      json.RawMessage `json:"result"`
	Error       *aether.Error   `json:"error"`
	StartedAt   *time.Time      `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == job.StatusSucceeded || j.Status == job.StatusFailed
}

// SubmitAudit enqueues a site crawl.
func (c *Client) SubmitAudit(ctx context.Context, spec audit.CrawlSpec) (*Submission, error) {
	return c.submit(ctx, "/v1/audits", spec)
}

// SubmitPerformance enqueues a page performance analysis.
func (c *Client) SubmitPerformance(ctx context.Context, spec audit.PerformanceSpec) (*Submission, error) {
	return c.submit(ctx, "/v1/performance", spec)
}

// SubmitBrief enqueues a content brief generation.
func (c *Client) SubmitBrief(ctx context.Context, spec audit.BriefSpec) (*Submission, error) {
	return c.submit(ctx, "/v1/briefs", spec)
}

func (c *Client) submit(ctx context.Context, path string, spec any) (*Submission, error) {
	var sub Submission
	if err := c.do(ctx, http.MethodPost, path, spec, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Job fetches the current status snapshot for a job ID.
func (c *Client) Job(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Await polls a job until it reaches a terminal state or ctx is done.
func (c *Client) Await(ctx context.Context, jobID string, poll time.Duration) (*Job, error) {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		j, err := c.Job(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if j.Terminal() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CacheStats returns the server's cache gateway counters.
func (c *Client) CacheStats(ctx context.Context) (cache.Stats, error) {
	var stats cache.Stats
	err := c.do(ctx, http.MethodGet, "/v1/cache/stats", nil, &stats)
	return stats, err
}

// PurgeCache deletes cached lookups matching the glob pattern and
// returns how many entries were removed. An empty pattern purges
// everything.
func (c *Client) PurgeCache(ctx context.Context, pattern string) (int, error) {
	path := "/v1/cache"
	if pattern != "" {
		path += "?pattern=" + url.QueryEscape(pattern)
	}
	var resp struct {
		Purged int `json:"purged"`
	}
	err := c.do(ctx, http.MethodDelete, path, nil, &resp)
	return resp.Purged, err
}
