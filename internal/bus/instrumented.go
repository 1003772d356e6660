package bus

import (
	"context"
	"sync"
	"time"
)

// Recorder receives one call per publish attempt.
type Recorder interface {
	RecordPublish(topic string, latency time.Duration, err error)
}

// InstrumentedPublisher wraps a Publisher and reports every publish to a Recorder.
type InstrumentedPublisher struct {
	inner    Publisher
	recorder Recorder
}

// NewInstrumentedPublisher creates a new instrumented publisher.
func NewInstrumentedPublisher(inner Publisher, recorder Recorder) *InstrumentedPublisher {
	return &InstrumentedPublisher{
		inner:    inner,
		recorder: recorder,
	}
}

// Publish publishes an event to a topic and records the outcome.
func (p *InstrumentedPublisher) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := p.inner.Publish(ctx, topic, event)

	if p.recorder != nil {
		p.recorder.RecordPublish(topic, time.Since(start), err)
	}

	return err
}

// Unwrap returns the underlying publisher.
func (p *InstrumentedPublisher) Unwrap() Publisher {
	return p.inner
}

// Close closes the underlying publisher.
func (p *InstrumentedPublisher) Close() error {
	return p.inner.Close()
}

// PublishStats counts publishes per topic. It is safe for concurrent use.
type PublishStats struct {
	mu        sync.Mutex
	published map[string]int
	failed    map[string]int
	latency   time.Duration
}

// NewPublishStats creates empty stats.
func NewPublishStats() *PublishStats {
	return &PublishStats{
		published: make(map[string]int),
		failed:    make(map[string]int),
	}
}

// RecordPublish implements Recorder.
func (s *PublishStats) RecordPublish(topic string, latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed[topic]++
		return
	}
	s.published[topic]++
	s.latency += latency
}

// Snapshot returns the counts recorded so far.
func (s *PublishStats) Snapshot() PublishSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := PublishSnapshot{
		Published: make(map[string]int, len(s.published)),
		Failed:    make(map[string]int, len(s.failed)),
	}
	total := 0
	for topic, n := range s.published {
		snap.Published[topic] = n
		total += n
	}
	for topic, n := range s.failed {
		snap.Failed[topic] = n
	}
	if total > 0 {
		snap.MeanLatencyMs = float64(s.latency.Microseconds()) / 1000 / float64(total)
	}
	return snap
}

// PublishSnapshot is a point-in-time copy of PublishStats.
type PublishSnapshot struct {
	Published     map[string]int `json:"published"`
	Failed        map[string]int `json:"failed,omitempty"`
	MeanLatencyMs float64        `json:"mean_latency_ms"`
}
