package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// LoggedEvent represents an event that has been logged to disk.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger appends events to a JSON lines file so a grid run can be inspected or
// replayed later.
type EventLogger struct {
	logPath string
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewEventLogger opens logPath for appending, creating it and its directory if needed.
func NewEventLogger(logPath string) (*EventLogger, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.IOError(dir, err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.IOError(logPath, err)
	}

	return &EventLogger{
		logPath: logPath,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *EventLogger) Log(topic string, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeUnavailable, "event logger is closed")
	}

	loggedEvent := LoggedEvent{
		Event:     event,
		Topic:     topic,
		Timestamp: time.Now(),
	}

	if err := l.encoder.Encode(loggedEvent); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// Events reads events from the log file that occurred after since.
// If limit > 0, returns at most that many events.
// Events are returned in the order they were written.
func (l *EventLogger) Events(since time.Time, limit int) ([]LoggedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []LoggedEvent{}, nil
		}
		return nil, errors.IOError(l.logPath, err)
	}
	defer file.Close()

	var events []LoggedEvent
	scanner := bufio.NewScanner(file)

	// Comparisons carry per-topic maps, so lines can be long.
	const maxScanTokenSize = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		var loggedEvent LoggedEvent
		if err := json.Unmarshal(scanner.Bytes(), &loggedEvent); err != nil {
			// Skip malformed lines
			continue
		}

		if loggedEvent.Timestamp.After(since) {
			events = append(events, loggedEvent)

			if limit > 0 && len(events) >= limit {
				break
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}

	return events, nil
}

// Replay publishes every logged event after since to p, in order.
func (l *EventLogger) Replay(ctx context.Context, p Publisher, since time.Time) error {
	events, err := l.Events(since, 0)
	if err != nil {
		return fmt.Errorf("failed to get events: %w", err)
	}

	for _, loggedEvent := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Publish(ctx, loggedEvent.Topic, loggedEvent.Event); err != nil {
			return fmt.Errorf("failed to replay event %s: %w", loggedEvent.Event.ID, err)
		}
	}

	return nil
}

// Close closes the log file.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.file = nil
		l.encoder = nil
	}

	return nil
}

// Path returns the log file location.
func (l *EventLogger) Path() string {
	return l.logPath
}
