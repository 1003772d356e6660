package metrics

import (
	"time"

	"github.com/ricesearch/rice-deteriorate/internal/deteriorate"
)

// Metrics holds the metrics of grid runs.
type Metrics struct {
	// Cell metrics
	CellsCompleted *CounterVec // labels: mode
	CellErrors     *Counter
	CellDuration   *HistogramVec // labels: mode, in milliseconds
	CellsInFlight  *Gauge

	// Engine metrics
	AppliedOperations *CounterVec // labels: mode, operation (swap, replacement)
	Adjustments       *CounterVec // labels: reason
	DegenerateTopics  *CounterVec // labels: mode

	// Bus metrics
	EventsPublished *CounterVec   // labels: topic
	EventErrors     *CounterVec   // labels: topic
	EventLatency    *HistogramVec // labels: topic, in milliseconds

	startTime time.Time
}

// New creates a new metrics instance with all metrics initialized.
func New() *Metrics {
	return &Metrics{
		CellsCompleted: NewCounterVec("rice_deteriorate_cells_total", "Grid cells completed", []string{"mode"}),
		CellErrors:     NewCounter("rice_deteriorate_cell_errors_total", "Grid cells that failed", nil),
		CellDuration:   NewHistogramVec("rice_deteriorate_cell_duration_ms", "Time to deteriorate and compare one cell", []string{"mode"}, nil),
		CellsInFlight:  NewGauge("rice_deteriorate_cells_in_flight", "Grid cells being computed", nil),

		AppliedOperations: NewCounterVec("rice_deteriorate_operations_total", "Swaps and replacements applied", []string{"mode", "operation"}),
		Adjustments:       NewCounterVec("rice_deteriorate_adjustments_total", "Per-topic reductions of requested operations", []string{"reason"}),
		DegenerateTopics:  NewCounterVec("rice_deteriorate_degenerate_topics_total", "Selected topics without eligible documents", []string{"mode"}),

		EventsPublished: NewCounterVec("rice_deteriorate_events_published_total", "Bus events published", []string{"topic"}),
		EventErrors:     NewCounterVec("rice_deteriorate_event_errors_total", "Bus events that failed to publish", []string{"topic"}),
		EventLatency:    NewHistogramVec("rice_deteriorate_event_latency_ms", "Bus publish latency", []string{"topic"}, nil),

		startTime: time.Now(),
	}
}

// RecordCell records a completed cell and what the engine did to its topics.
func (m *Metrics) RecordCell(mode deteriorate.Mode, duration time.Duration, result *deteriorate.Result) {
	label := mode.String()
	m.CellsCompleted.WithLabels(label).Inc()
	m.CellDuration.WithLabels(label).Observe(float64(duration.Microseconds()) / 1000)

	swaps, replacements := result.Totals()
	m.AppliedOperations.WithLabels(label, "swap").Add(int64(swaps))
	m.AppliedOperations.WithLabels(label, "replacement").Add(int64(replacements))

	for _, report := range result.Topics {
		if report.Degenerate {
			m.DegenerateTopics.WithLabels(label).Inc()
		}
		for _, adj := range report.Adjustments {
			m.Adjustments.WithLabels(string(adj.Reason)).Inc()
		}
	}
}

// RecordCellError records a failed cell.
func (m *Metrics) RecordCellError() {
	m.CellErrors.Inc()
}

// RecordPublish records one bus publish. It satisfies bus.Recorder.
func (m *Metrics) RecordPublish(topic string, latency time.Duration, err error) {
	if err != nil {
		m.EventErrors.WithLabels(topic).Inc()
		return
	}
	m.EventsPublished.WithLabels(topic).Inc()
	m.EventLatency.WithLabels(topic).Observe(float64(latency.Microseconds()) / 1000)
}

// Uptime returns the time since the metrics were created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
