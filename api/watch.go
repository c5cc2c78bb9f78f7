package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/stream"
)

// watchEvent is the frame format sent to watchers: the broker envelope
// for lifecycle events, plus one initial snapshot frame.
type watchEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// watchJob streams a job's progress over a WebSocket. The first frame is
// a status snapshot; live events follow until the job reaches a terminal
// status or the client disconnects. The store stays the source of truth,
// so a watcher that missed intermediate events reconciles from the
// snapshot.
func (a *API) watchJob(w http.ResponseWriter, r *http.Request) {
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

	// Subscribe before the snapshot so no event falls in the gap.
	subID := fmt.Sprintf("watch:%s:%d", jobID, time.Now().UnixNano())
	sub := a.eng.Broker().Subscribe(subID, stream.JobTopic(jobID.String()))
	defer a.eng.Broker().RemoveSubscriber(subID)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	snapshot, err := json.Marshal(toJobResponse(j))
	if err != nil {
		return
	}
	if err := a.writeFrame(conn, watchEvent{Type: "job.snapshot", Timestamp: time.Now().UTC(), Data: snapshot}); err != nil {
		return
	}
	if j.Terminal() {
		return
	}

	// Detect client disconnect by reading control frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			if err := a.writeFrame(conn, watchEvent{Type: string(evt.Type), Timestamp: evt.Timestamp, Data: evt.Data}); err != nil {
				return
			}
			if evt.Type == stream.EventJobSucceeded || evt.Type == stream.EventJobFailed {
				return
			}
		case <-closed:
			return
		}
	}
}

func (a *API) writeFrame(conn net.Conn, evt watchEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return wsutil.WriteServerText(conn, data)
}
