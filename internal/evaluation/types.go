package evaluation

import "sort"

// Scores maps topic -> measure -> value.
type Scores map[string]map[string]float64

// Topics returns the scored topics in ascending order.
func (s Scores) Topics() []string {
	topics := make([]string, 0, len(s))
	for topic := range s {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Values returns the per-topic values of measure, ordered by topic.
func (s Scores) Values(measure string) []float64 {
	var values []float64
	for _, topic := range s.Topics() {
		if v, ok := s[topic][measure]; ok {
			values = append(values, v)
		}
	}
	return values
}

// Mean averages measure over all scored topics.
func (s Scores) Mean(measure string) float64 {
	values := s.Values(measure)
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Comparison holds the reproducibility measures between an original and a modified run.
type Comparison struct {
	Topics int `json:"topics"`

	KTU     map[string]float64 `json:"ktu"`     // Kendall's tau union per topic
	RBO     map[string]float64 `json:"rbo"`     // rank-biased overlap per topic
	Hamming map[string]float64 `json:"hamming"` // share of positions with a different relevance flag
	Match   map[string]float64 `json:"match"`   // matching-blocks ratio of the relevance flags

	MeanKTU     float64 `json:"mean_ktu"`
	MeanRBO     float64 `json:"mean_rbo"`
	MeanHamming float64 `json:"mean_hamming"`
	MeanMatch   float64 `json:"mean_match"`

	// Keyed by measure name.
	RMSE   map[string]float64 `json:"rmse"`
	NRMSE  map[string]float64 `json:"nrmse"`
	PValue map[string]float64 `json:"p_value"`

	// Mean scores of both runs, keyed by measure name.
	Original map[string]float64 `json:"original"`
	Modified map[string]float64 `json:"modified"`
}
