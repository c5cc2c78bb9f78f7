package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nmang004/projectaether/job"
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker fans job lifecycle and progress events out to subscribers via
// topic-based pub/sub. The executor publishes into it; publishing never
// blocks.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	var dropped int64
	b.subscribers.Range(func(_, v any) bool {
		count++
		dropped += v.(*Subscriber).Dropped() //nolint:errcheck // sync.Map always stores *Subscriber
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    dropped,
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Close closes all subscribers.
func (b *Broker) Close() {
	b.subscribers.Range(func(k, v any) bool {
		b.topics.UnsubscribeAll(k.(string)) //nolint:errcheck // sync.Map keys are subscriber IDs
		v.(*Subscriber).Close()             //nolint:errcheck // sync.Map always stores *Subscriber
		return true
	})
}

// ── Lifecycle publishers ─────────────────────────────

// JobSubmitted publishes a job.submitted event.
func (b *Broker) JobSubmitted(j *job.Job) {
	b.publish(EventJobSubmitted, j.Queue, JobTopic(j.ID.String()), JobEventData{
		JobID:   j.ID.String(),
		JobKind: j.Kind,
		Queue:   j.Queue,
	})
}

// JobStarted publishes a job.started event.
func (b *Broker) JobStarted(j *job.Job) {
	b.publish(EventJobStarted, j.Queue, JobTopic(j.ID.String()), JobEventData{
		JobID:   j.ID.String(),
		JobKind: j.Kind,
		Queue:   j.Queue,
		Attempt: j.Attempt,
	})
}

// JobProgress publishes a job.progress event carrying the phase envelope.
func (b *Broker) JobProgress(j *job.Job, p job.ProgressUpdate) {
	b.publish(EventJobProgress, j.Queue, JobTopic(j.ID.String()), ProgressEventData{
		JobID:       j.ID.String(),
		JobKind:     j.Kind,
		Queue:       j.Queue,
		Phase:       p.Phase,
		Progress:    p.Percent,
		Total:       p.Total,
		Completed:   p.Completed,
		CurrentItem: p.CurrentItem,
	})
}

// JobSucceeded publishes a job.succeeded event.
func (b *Broker) JobSucceeded(j *job.Job, elapsed time.Duration) {
	b.publish(EventJobSucceeded, j.Queue, JobTopic(j.ID.String()), JobEventData{
		JobID:     j.ID.String(),
		JobKind:   j.Kind,
		Queue:     j.Queue,
		Attempt:   j.Attempt,
		ElapsedMs: elapsed.Milliseconds(),
	})
}

// JobFailed publishes a job.failed event.
func (b *Broker) JobFailed(j *job.Job, jobErr error, elapsed time.Duration) {
	data := JobEventData{
		JobID:     j.ID.String(),
		JobKind:   j.Kind,
		Queue:     j.Queue,
		Attempt:   j.Attempt,
		ElapsedMs: elapsed.Milliseconds(),
	}
	if jobErr != nil {
		data.Error = jobErr.Error()
	}
	b.publish(EventJobFailed, j.Queue, JobTopic(j.ID.String()), data)
}

// publish creates an event and broadcasts it to all matching topics.
func (b *Broker) publish(typ EventType, queue, topic string, data any) {
	evt := &Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Topic:     topic,
		Data:      mustMarshal(data),
	}
	delivered := b.topics.Broadcast(resolveTopics(evt, queue), evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}
