package deteriorate

import (
	"sort"

	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

// Reason names why requested operations were reduced for a topic.
type Reason string

// Adjustment reasons.
const (
	ReasonDestinationShortfall Reason = "destination_shortfall"
	ReasonSubstituteShortfall  Reason = "substitute_shortfall"
	ReasonSourceShortfall      Reason = "source_shortfall"
	ReasonNoEligibleDocuments  Reason = "no_eligible_documents"
)

// Adjustment records one reduction of a topic's operations. Swaps and Replacements are the
// counts after the reduction.
type Adjustment struct {
	Reason       Reason `json:"reason"`
	Message      string `json:"message"`
	Swaps        int    `json:"swaps"`
	Replacements int    `json:"replacements"`
}

// TopicReport describes what happened to one topic.
type TopicReport struct {
	Topic string `json:"topic"`
	// Selected is true when the ratio sampling picked the topic for modification.
	Selected bool `json:"selected"`
	// Degenerate is true when the source interval held no eligible documents.
	Degenerate            bool         `json:"degenerate,omitempty"`
	RequestedSwaps        int          `json:"requested_swaps"`
	RequestedReplacements int          `json:"requested_replacements"`
	Swaps                 int          `json:"swaps"`
	Replacements          int          `json:"replacements"`
	Adjustments           []Adjustment `json:"adjustments,omitempty"`
}

// Adjusted reports whether any reduction was applied.
func (r *TopicReport) Adjusted() bool {
	return len(r.Adjustments) > 0
}

// Result is the modified run plus a report per topic.
type Result struct {
	Run    trec.Run                `json:"-"`
	Topics map[string]*TopicReport `json:"topics"`
}

// Selected returns the ids of the topics picked for modification, ascending.
func (r *Result) Selected() []string {
	var topics []string
	for topic, report := range r.Topics {
		if report.Selected {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Totals sums the applied swaps and replacements over all topics.
func (r *Result) Totals() (swaps, replacements int) {
	for _, report := range r.Topics {
		swaps += report.Swaps
		replacements += report.Replacements
	}
	return swaps, replacements
}
