package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/stream"
)

// Event is one frame from a watch stream. The first frame is always a
// "job.snapshot" carrying the full Job state; subsequent frames follow
// the stream event types (job.progress, job.succeeded, job.failed).
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Job decodes the event payload as a Job snapshot. Snapshot frames carry
// the full record; progress frames carry a partial one.
func (e Event) Job() (*Job, error) {
	var j Job
	if err := json.Unmarshal(e.Data, &j); err != nil {
		return nil, aether.Serializationf("decode %s event: %v", e.Type, err)
	}
	return &j, nil
}

// Watch opens a WebSocket to the job's watch endpoint and returns a
// channel of events. The channel closes when the job reaches a terminal
// state, the context is canceled, or the connection drops. The caller
// owns draining the channel.
func (c *Client) Watch(ctx context.Context, jobID string) (<-chan Event, error) {
	wsURL, err := c.watchURL(jobID)
	if err != nil {
		return nil, err
	}

	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return nil, aether.Transientf("watch dial %s: %v", jobID, err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer conn.Close()

		// Close the connection when ctx ends so the blocked read returns.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			data, err := wsutil.ReadServerText(conn)
			if err != nil {
				return
			}
			var evt Event
			if err := json.Unmarshal(data, &evt); err != nil {
				c.logger.Warn("discarding undecodable watch frame",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()))
				continue
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
			if evt.Type == string(stream.EventJobSucceeded) || evt.Type == string(stream.EventJobFailed) {
				return
			}
		}
	}()
	return events, nil
}

// watchURL converts the client's HTTP base URL to the ws:// form of the
// job's watch endpoint.
func (c *Client) watchURL(jobID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", aether.Validationf("invalid base URL %q: %v", c.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/jobs/" + url.PathEscape(jobID) + "/watch"
	return u.String(), nil
}
