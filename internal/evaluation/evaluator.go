// Package evaluation scores runs against relevance judgments and compares an original run
// with a modified one.
package evaluation

import (
	"strconv"
	"strings"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

// Measure names.
const (
	MeasureMAP       = "map"
	MeasureNDCG      = "ndcg"
	MeasureRecipRank = "recip_rank"
)

// DefaultMeasures is the measure set used when none is configured.
var DefaultMeasures = []string{"P_10", "P_20", MeasureMAP, MeasureNDCG, "ndcg_cut_10", "recall_1000", MeasureRecipRank}

// topicJudgments is what a measure sees of one topic.
type topicJudgments struct {
	relevances  []int // grade per ranking position, 0 for unjudged
	grades      []int // every judged grade of the topic
	numRelevant int
}

type measureFunc func(topicJudgments) float64

// parseMeasure resolves a trec_eval style measure name like "P_10" or "ndcg_cut_20".
func parseMeasure(name string) (measureFunc, error) {
	switch name {
	case MeasureMAP:
		return func(j topicJudgments) float64 { return AveragePrecision(j.relevances, j.numRelevant) }, nil
	case MeasureNDCG:
		return func(j topicJudgments) float64 { return NDCG(j.relevances, j.grades, 0) }, nil
	case MeasureRecipRank:
		return func(j topicJudgments) float64 { return ReciprocalRank(j.relevances) }, nil
	}

	prefix, depth, ok := splitCutoff(name)
	if !ok {
		return nil, errors.Newf(errors.CodeValidation, "unknown measure %q", name)
	}
	switch prefix {
	case "P":
		return func(j topicJudgments) float64 { return Precision(j.relevances, depth) }, nil
	case "recall":
		return func(j topicJudgments) float64 { return Recall(j.relevances, j.numRelevant, depth) }, nil
	case "ndcg_cut":
		return func(j topicJudgments) float64 { return NDCG(j.relevances, j.grades, depth) }, nil
	}
	return nil, errors.Newf(errors.CodeValidation, "unknown measure %q", name)
}

func splitCutoff(name string) (string, int, bool) {
	i := strings.LastIndex(name, "_")
	if i <= 0 {
		return "", 0, false
	}
	depth, err := strconv.Atoi(name[i+1:])
	if err != nil || depth <= 0 {
		return "", 0, false
	}
	return name[:i], depth, true
}

// Evaluator scores runs against one set of judgments.
type Evaluator struct {
	qrels    trec.Qrels
	measures []string
	funcs    map[string]measureFunc
}

// NewEvaluator creates a new evaluator. With no measures, DefaultMeasures are used.
func NewEvaluator(qrels trec.Qrels, measures ...string) (*Evaluator, error) {
	if len(measures) == 0 {
		measures = DefaultMeasures
	}
	e := &Evaluator{
		qrels:    qrels,
		measures: measures,
		funcs:    make(map[string]measureFunc, len(measures)),
	}
	for _, m := range measures {
		fn, err := parseMeasure(m)
		if err != nil {
			return nil, err
		}
		e.funcs[m] = fn
	}
	return e, nil
}

// Measures returns the configured measure names.
func (e *Evaluator) Measures() []string {
	return e.measures
}

// Evaluate scores every topic present in both the run and the judgments.
func (e *Evaluator) Evaluate(run trec.Run) Scores {
	scores := make(Scores)
	for _, topic := range run.Topics() {
		judged, ok := e.qrels[topic]
		if !ok {
			continue
		}
		j := e.judgments(run.Ranking(topic), judged, topic)
		values := make(map[string]float64, len(e.measures))
		for _, m := range e.measures {
			values[m] = e.funcs[m](j)
		}
		scores[topic] = values
	}
	return scores
}

func (e *Evaluator) judgments(ranking trec.Ranking, judged map[string]int, topic string) topicJudgments {
	relevances := make([]int, len(ranking))
	for i, entry := range ranking {
		if grade := judged[entry.DocID]; grade > 0 {
			relevances[i] = grade
		}
	}
	grades := make([]int, 0, len(judged))
	for _, grade := range judged {
		grades = append(grades, grade)
	}
	return topicJudgments{
		relevances:  relevances,
		grades:      grades,
		numRelevant: e.qrels.NumRelevant(topic),
	}
}
