package bus

import (
	"context"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/logger"
)

// LoggedPublisher wraps another Publisher and logs all events to disk.
type LoggedPublisher struct {
	inner       Publisher
	eventLogger *EventLogger
	log         *logger.Logger
}

// NewLoggedPublisher creates a publisher that logs events before handing them to inner.
func NewLoggedPublisher(inner Publisher, eventLogger *EventLogger, log *logger.Logger) *LoggedPublisher {
	if log == nil {
		log = logger.Discard()
	}
	return &LoggedPublisher{
		inner:       inner,
		eventLogger: eventLogger,
		log:         log,
	}
}

// Publish logs the event and then delegates to the inner publisher.
func (p *LoggedPublisher) Publish(ctx context.Context, topic string, event Event) error {
	// Log the event (best-effort)
	if err := p.eventLogger.Log(topic, event); err != nil {
		p.log.Warn("Failed to log event to disk",
			"topic", topic,
			"error", err.Error(),
		)
	}

	return p.inner.Publish(ctx, topic, event)
}

// Unwrap returns the inner publisher.
func (p *LoggedPublisher) Unwrap() Publisher {
	return p.inner
}

// Close closes both the event logger and the inner publisher.
func (p *LoggedPublisher) Close() error {
	if err := p.eventLogger.Close(); err != nil {
		p.log.Warn("Failed to close event logger",
			"error", err.Error(),
		)
	}

	return p.inner.Close()
}
