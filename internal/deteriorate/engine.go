package deteriorate

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/logger"
	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

// Engine deteriorates runs. An Engine owns its random source and is not safe for
// concurrent use; give each goroutine its own.
type Engine struct {
	rng           *rand.Rand
	log           *logger.Logger
	verbose       bool
	clampQuantity bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for diagnostics.
func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithVerbose logs every per-topic reduction and the applied counts.
func WithVerbose(verbose bool) Option {
	return func(e *Engine) {
		e.verbose = verbose
	}
}

// WithRand sets the random source.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// WithSeed seeds a PCG random source, making results reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithQuantityClamp accepts requests whose quantity exceeds an interval's length instead
// of rejecting them.
func WithQuantityClamp(clamp bool) Option {
	return func(e *Engine) {
		e.clampQuantity = clamp
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log: logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deteriorate returns a modified copy of run. The input run and qrels are not written to.
func (e *Engine) Deteriorate(run trec.Run, qrels trec.Qrels, req Request) (*Result, error) {
	if err := req.Validate(e.clampQuantity); err != nil {
		return nil, err
	}
	req = req.normalized()
	v := variants[req.Mode]
	log := e.log.WithMode(req.Mode.String())

	if e.verbose && req.oversized() {
		log.Warn("quantity exceeds an interval, counts will be reduced per topic",
			"quantity", req.Quantity(),
			"source", req.Source.String(),
			"destination", req.Destination.String())
	}

	topics := run.Topics()
	selected := e.selectTopics(topics, req.Ratio)

	result := &Result{
		Run:    make(trec.Run, len(run)),
		Topics: make(map[string]*TopicReport, len(topics)),
	}

	for _, topic := range topics {
		report := &TopicReport{
			Topic:                 topic,
			RequestedSwaps:        req.Swaps,
			RequestedReplacements: req.Replacements,
		}
		result.Topics[topic] = report

		if _, ok := selected[topic]; !ok {
			result.Run[topic] = cloneDocs(run[topic])
			continue
		}
		report.Selected = true

		ranking, p := modify(e.rng, v, req, topicInput{
			topic:   topic,
			ranking: run.Ranking(topic),
			judged:  qrels[topic],
			qrels:   qrels,
		})
		report.Degenerate = p.degenerate
		report.Swaps = p.swaps
		report.Replacements = p.replacements
		report.Adjustments = p.adjustments
		result.Run[topic] = ranking.ToMap()

		if e.verbose {
			e.logTopic(log.WithTopic(topic), report)
		}
	}

	return result, nil
}

func (e *Engine) logTopic(log *logger.Logger, report *TopicReport) {
	for _, adj := range report.Adjustments {
		log.Info(adj.Message,
			"reason", string(adj.Reason),
			"swaps", adj.Swaps,
			"replacements", adj.Replacements)
	}
	if report.Degenerate {
		return
	}
	log.Debug("topic modified",
		"swaps", report.Swaps,
		"replacements", report.Replacements)
}

// selectTopics picks round(len(topics) * ratio) topics uniformly without replacement.
func (e *Engine) selectTopics(topics []string, ratio float64) map[string]struct{} {
	n := int(math.RoundToEven(float64(len(topics)) * ratio))
	shuffled := make([]string, len(topics))
	copy(shuffled, topics)
	sort.Strings(shuffled)
	e.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	selected := make(map[string]struct{}, n)
	for _, topic := range shuffled[:n] {
		selected[topic] = struct{}{}
	}
	return selected
}

func cloneDocs(docs map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(docs))
	for doc, score := range docs {
		out[doc] = score
	}
	return out
}

// Deteriorate runs a single deterioration with a new Engine built from opts.
func Deteriorate(run trec.Run, qrels trec.Qrels, req Request, opts ...Option) (*Result, error) {
	return New(opts...).Deteriorate(run, qrels, req)
}
