// Package stream provides a real-time broker for job lifecycle and
// progress events. The executor publishes into it and connected watchers
// (the WebSocket endpoint) subscribe via topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobSubmitted EventType = "job.submitted"
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobSucceeded EventType = "job.succeeded"
	EventJobFailed    EventType = "job.failed"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID     string `json:"job_id"`
	JobKind   string `json:"job_kind"`
	Queue     string `json:"queue"`
	Attempt   int    `json:"attempt,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProgressEventData is the payload for job.progress events. It mirrors
// the envelope the executor records in the store at each phase boundary.
type ProgressEventData struct {
	JobID       string `json:"job_id"`
	JobKind     string `json:"job_kind"`
	Queue       string `json:"queue"`
	Phase       string `json:"phase"`
	Progress    int    `json:"progress"`
	Total       int    `json:"total,omitempty"`
	Completed   int    `json:"completed,omitempty"`
	CurrentItem string `json:"current_item,omitempty"`
}
