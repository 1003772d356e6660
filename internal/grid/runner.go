package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/rice-deteriorate/internal/bus"
	"github.com/ricesearch/rice-deteriorate/internal/deteriorate"
	"github.com/ricesearch/rice-deteriorate/internal/evaluation"
	"github.com/ricesearch/rice-deteriorate/internal/metrics"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/hash"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/logger"
	"github.com/ricesearch/rice-deteriorate/internal/results"
	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

const eventSource = "grid"

// Runner computes grid cells in parallel.
type Runner struct {
	cfg       Config
	store     results.Store
	publisher bus.Publisher
	stats     *bus.PublishStats
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records cell and publish metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a runner. publisher may be nil, in which case no events are sent.
func NewRunner(cfg Config, store results.Store, publisher bus.Publisher, log *logger.Logger, opts ...Option) *Runner {
	if log == nil {
		log = logger.Discard()
	}
	r := &Runner{
		cfg:   cfg.withDefaults(),
		store: store,
		stats: bus.NewPublishStats(),
		log:   log,
	}
	for _, opt := range opts {
		opt(r)
	}

	if publisher != nil {
		publisher = bus.NewInstrumentedPublisher(publisher, r.stats)
		if r.metrics != nil {
			publisher = bus.NewInstrumentedPublisher(publisher, r.metrics)
		}
	}
	r.publisher = publisher
	return r
}

// Summary describes a finished grid.
type Summary struct {
	Cells       int                 `json:"cells"`
	Seed        uint64              `json:"seed"`
	Fingerprint string              `json:"fingerprint"` // SHA-256 of the trimmed input run
	Duration    time.Duration       `json:"duration_ns"`
	Original    map[string]float64  `json:"original"` // mean score per measure
	Events      bus.PublishSnapshot `json:"events"`
}

// CellEvent is the payload of a grid.cell.completed event.
type CellEvent struct {
	Key          string  `json:"key"`
	Swaps        int     `json:"applied_swaps"`
	Replacements int     `json:"applied_replacements"`
	MeanKTU      float64 `json:"mean_ktu"`
	MeanRBO      float64 `json:"mean_rbo"`
}

// DecodeCellEvent reads the CellEvent carried by e. Events published in process carry the
// struct itself; events read back from an event log carry decoded JSON.
func DecodeCellEvent(e bus.Event) (CellEvent, error) {
	if e.Type != bus.TopicCellCompleted {
		return CellEvent{}, errors.Newf(errors.CodeValidation, "event %s is %q, not a cell event", e.ID, e.Type)
	}
	switch p := e.Payload.(type) {
	case CellEvent:
		return p, nil
	case *CellEvent:
		return *p, nil
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return CellEvent{}, errors.InternalError("encode event payload", err)
	}
	var ce CellEvent
	if err := json.Unmarshal(data, &ce); err != nil {
		return CellEvent{}, errors.Wrap(errors.CodeValidation, "decode cell event "+e.ID, err)
	}
	return ce, nil
}

// Run evaluates the trimmed run once, then computes every cell and stores it. The first
// failing cell cancels the cells not yet started.
func (r *Runner) Run(ctx context.Context, run trec.Run, qrels trec.Qrels) (*Summary, error) {
	start := time.Now()

	// Every cell shares the same request shape, so a bad interval or ratio fails here once.
	if err := r.cfg.request(results.Key{Mode: deteriorate.ModeWorse}).Validate(true); err != nil {
		return nil, err
	}

	evaluator, err := evaluation.NewEvaluator(qrels, r.cfg.Measures...)
	if err != nil {
		return nil, err
	}

	original := run
	if r.cfg.Trim > 0 {
		original = run.Trim(r.cfg.Trim)
	}
	fp, err := fingerprint(original)
	if err != nil {
		return nil, err
	}
	origScores := evaluator.Evaluate(original)

	keys := r.cfg.Keys()
	r.log.Info("Starting grid",
		"cells", len(keys),
		"workers", r.cfg.Workers,
		"seed", r.cfg.Seed,
		"topics", len(original),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return r.runCell(gctx, key, original, qrels, evaluator, origScores)
		})
	}
	if err := g.Wait(); err != nil {
		r.log.WithError(err).Error("Grid failed")
		return nil, err
	}

	summary := &Summary{
		Cells:       len(keys),
		Seed:        r.cfg.Seed,
		Fingerprint: fp,
		Duration:    time.Since(start),
		Original:    make(map[string]float64, len(evaluator.Measures())),
	}
	for _, m := range evaluator.Measures() {
		summary.Original[m] = origScores.Mean(m)
	}

	r.publish(ctx, bus.TopicGridCompleted, summary)
	summary.Events = r.stats.Snapshot()

	r.log.Info("Grid completed",
		"cells", summary.Cells,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

func (r *Runner) runCell(ctx context.Context, key results.Key, original trec.Run, qrels trec.Qrels, evaluator *evaluation.Evaluator, origScores evaluation.Scores) (err error) {
	start := time.Now()
	if r.metrics != nil {
		r.metrics.CellsInFlight.Inc()
		defer func() {
			r.metrics.CellsInFlight.Dec()
			if err != nil {
				r.metrics.RecordCellError()
			}
		}()
	}

	log := r.log.WithCell(key.String())
	engine := deteriorate.New(
		deteriorate.WithSeed(hash.Seed(r.cfg.Seed, key.String())),
		deteriorate.WithQuantityClamp(true),
		deteriorate.WithLogger(log),
	)

	res, err := engine.Deteriorate(original, qrels, r.cfg.request(key))
	if err != nil {
		return fmt.Errorf("cell %s: %w", key, err)
	}

	swaps, replacements := res.Totals()
	cell := &results.Cell{
		Key:          key,
		Swaps:        swaps,
		Replacements: replacements,
		Comparison:   evaluator.Compare(original, res.Run, origScores),
	}
	if err := r.store.Put(ctx, cell); err != nil {
		return fmt.Errorf("cell %s: %w", key, err)
	}

	if r.metrics != nil {
		r.metrics.RecordCell(key.Mode, time.Since(start), res)
	}

	log.Debug("Cell completed",
		"applied_swaps", swaps,
		"applied_replacements", replacements,
		"mean_ktu", cell.Comparison.MeanKTU,
	)

	r.publish(ctx, bus.TopicCellCompleted, CellEvent{
		Key:          key.String(),
		Swaps:        swaps,
		Replacements: replacements,
		MeanKTU:      cell.Comparison.MeanKTU,
		MeanRBO:      cell.Comparison.MeanRBO,
	})
	return nil
}

// publish is best-effort: a down bus never fails the grid.
func (r *Runner) publish(ctx context.Context, topic string, payload any) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, topic, bus.NewEvent(topic, eventSource, payload)); err != nil {
		r.log.Warn("Failed to publish grid event", "topic", topic, "error", err.Error())
	}
}

func fingerprint(run trec.Run) (string, error) {
	var sb strings.Builder
	if err := trec.WriteRun(&sb, run, "fingerprint"); err != nil {
		return "", errors.InternalError("fingerprint run", err)
	}
	return hash.SHA256String(sb.String()), nil
}
