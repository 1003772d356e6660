package bus

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/rice-deteriorate/internal/config"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

func TestNewEvent(t *testing.T) {
	a := NewEvent("grid.cell.completed", "grid", map[string]int{"swaps": 1})
	b := NewEvent("grid.cell.completed", "grid", nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("IDs = %q, %q, want distinct non-empty", a.ID, b.ID)
	}
	if a.Timestamp == 0 {
		t.Error("Timestamp not set")
	}
	if a.Type != "grid.cell.completed" || a.Source != "grid" {
		t.Errorf("event = %+v", a)
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), TopicCellCompleted, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), TopicCellCompleted, NewEvent("test", "test", i)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for handlers")
	}

	if got := received.Load(); got != 3 {
		t.Errorf("received = %d, want 3", got)
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	if err := bus.Publish(context.Background(), "nobody.listens", NewEvent("test", "test", nil)); err != nil {
		t.Errorf("Publish() without subscribers error = %v", err)
	}
}

func TestMemoryBus_HandlerErrorDoesNotFailPublish(t *testing.T) {
	bus := NewMemoryBus(nil)

	done := make(chan struct{})
	_ = bus.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		defer close(done)
		return stderrors.New("boom")
	})

	if err := bus.Publish(context.Background(), "t", NewEvent("test", "test", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	<-done
	bus.Close()
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus(nil)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if err := bus.Publish(context.Background(), "t", Event{}); errors.CodeOf(err) != errors.CodeUnavailable {
		t.Errorf("Publish() after Close error = %v, want unavailable", err)
	}
	if err := bus.Subscribe(context.Background(), "t", func(context.Context, Event) error { return nil }); errors.CodeOf(err) != errors.CodeUnavailable {
		t.Errorf("Subscribe() after Close error = %v, want unavailable", err)
	}
}

func TestMemoryBus_CloseDrainsInFlight(t *testing.T) {
	bus := NewMemoryBus(nil)

	var finished atomic.Bool
	started := make(chan struct{})
	_ = bus.Subscribe(context.Background(), "slow", func(ctx context.Context, event Event) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	_ = bus.Publish(context.Background(), "slow", NewEvent("test", "test", nil))
	<-started
	bus.Close()

	if !finished.Load() {
		t.Error("Close() returned before the in-flight handler finished")
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestInstrumentedPublisher(t *testing.T) {
	inner := &recordingPublisher{}
	stats := NewPublishStats()
	p := NewInstrumentedPublisher(inner, stats)

	ctx := context.Background()
	_ = p.Publish(ctx, TopicCellCompleted, Event{})
	_ = p.Publish(ctx, TopicCellCompleted, Event{})
	inner.err = stderrors.New("down")
	_ = p.Publish(ctx, TopicGridCompleted, Event{})

	snap := stats.Snapshot()
	if snap.Published[TopicCellCompleted] != 2 {
		t.Errorf("Published = %v, want 2 cell events", snap.Published)
	}
	if snap.Failed[TopicGridCompleted] != 1 {
		t.Errorf("Failed = %v, want 1 grid event", snap.Failed)
	}

	if err := p.Close(); err != nil || !inner.closed {
		t.Errorf("Close() error = %v, inner closed = %v", err, inner.closed)
	}
}

func TestNewPublisher(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BusConfig
		wantErr bool
	}{
		{"memory", config.BusConfig{Type: "memory"}, false},
		{"none", config.BusConfig{Type: "none"}, false},
		{"default", config.BusConfig{}, false},
		{"kafka without brokers", config.BusConfig{Type: "kafka"}, true},
		{"unknown", config.BusConfig{Type: "nats"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPublisher(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPublisher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if p != nil {
				p.Close()
			}
		})
	}
}

func TestNewPublisher_EventLog(t *testing.T) {
	path := t.TempDir() + "/events/grid.jsonl"
	p, err := NewPublisher(config.BusConfig{Type: "memory", EventLog: path}, nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if _, ok := p.(*LoggedPublisher); !ok {
		t.Fatalf("NewPublisher() = %T, want *LoggedPublisher", p)
	}

	if err := p.Publish(context.Background(), TopicGridCompleted, NewEvent("grid.completed", "grid", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reader, err := NewEventLogger(path)
	if err != nil {
		t.Fatalf("NewEventLogger() error = %v", err)
	}
	defer reader.Close()
	events, err := reader.Events(time.Time{}, 0)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 || events[0].Topic != TopicGridCompleted {
		t.Errorf("events = %+v", events)
	}
}

func TestThrottledPublisher(t *testing.T) {
	inner := &recordingPublisher{}
	p := NewThrottledPublisher(inner, 1000, 2)

	for i := 0; i < 4; i++ {
		if err := p.Publish(context.Background(), TopicCellCompleted, Event{}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if len(inner.topics) != 4 {
		t.Errorf("inner received %d events, want 4", len(inner.topics))
	}

	slow := NewThrottledPublisher(inner, 0.001, 1)
	_ = slow.Publish(context.Background(), TopicCellCompleted, Event{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := slow.Publish(ctx, TopicCellCompleted, Event{}); errors.CodeOf(err) != errors.CodeUnavailable {
		t.Errorf("Publish() past the limit error = %v, want unavailable", err)
	}

	if err := p.Close(); err != nil || !inner.closed {
		t.Errorf("Close() error = %v, inner closed = %v", err, inner.closed)
	}
}

func TestNewPublisher_RateLimit(t *testing.T) {
	p, err := NewPublisher(config.BusConfig{Type: "memory", RateLimit: 50, Burst: 5}, nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	defer p.Close()
	if _, ok := p.(*ThrottledPublisher); !ok {
		t.Errorf("NewPublisher() = %T, want *ThrottledPublisher", p)
	}
}

func TestAsBus(t *testing.T) {
	mem := NewMemoryBus(nil)
	defer mem.Close()
	rec := &recordingPublisher{}

	tests := []struct {
		name string
		p    Publisher
		want Bus
	}{
		{"memory", mem, mem},
		{"throttled memory", NewThrottledPublisher(mem, 100, 1), mem},
		{"instrumented throttled memory", NewInstrumentedPublisher(NewThrottledPublisher(mem, 100, 1), NewPublishStats()), mem},
		{"recording", rec, nil},
		{"instrumented recording", NewInstrumentedPublisher(rec, nil), nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsBus(tt.p)
			if ok != (tt.want != nil) {
				t.Fatalf("AsBus() ok = %v, want %v", ok, tt.want != nil)
			}
			if ok && got != tt.want {
				t.Errorf("AsBus() = %p, want %p", got, tt.want)
			}
		})
	}
}

func TestAsBus_SubscribeThroughFactory(t *testing.T) {
	p, err := NewPublisher(config.BusConfig{
		Type:      "memory",
		RateLimit: 1000,
		Burst:     10,
		EventLog:  t.TempDir() + "/grid.jsonl",
	}, nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	b, ok := AsBus(p)
	if !ok {
		t.Fatalf("AsBus(%T) found no local bus", p)
	}
	var got atomic.Int32
	if err := b.Subscribe(context.Background(), TopicCellCompleted, func(context.Context, Event) error {
		got.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), TopicCellCompleted, NewEvent(TopicCellCompleted, "test", i)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	// Close drains in-flight handlers.
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got.Load() != 3 {
		t.Errorf("handler saw %d events, want 3", got.Load())
	}
}

func TestMemoryBus_DrainTimeout(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	release := make(chan struct{})
	_ = bus.Subscribe(context.Background(), "slow", func(context.Context, Event) error {
		<-release
		return nil
	})
	_ = bus.Publish(context.Background(), "slow", NewEvent("test", "test", nil))

	if bus.DrainTimeout(10 * time.Millisecond) {
		t.Error("DrainTimeout() = true while a handler is blocked")
	}
	close(release)
	if !bus.DrainTimeout(time.Second) {
		t.Error("DrainTimeout() = false after the handler was released")
	}
}
