// Package trec reads and writes TREC-style runs and relevance judgments.
package trec

import (
	"sort"
)

// Entry is one retrieved document and its score.
type Entry struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Ranking is the ordered list of retrieved documents for one topic.
type Ranking []Entry

// Run maps topic -> document -> score.
type Run map[string]map[string]float64

// Qrels maps topic -> document -> relevance grade.
type Qrels map[string]map[string]int

// SortRanking orders r by score descending, ties broken by document id descending.
// This is the order trec_eval ranks documents in.
func SortRanking(r Ranking) {
	sort.Slice(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		return r[i].DocID > r[j].DocID
	})
}

// ToMap converts the ranking back to document -> score.
func (r Ranking) ToMap() map[string]float64 {
	m := make(map[string]float64, len(r))
	for _, e := range r {
		m[e.DocID] = e.Score
	}
	return m
}

// DocIDs returns the document ids in ranking order.
func (r Ranking) DocIDs() []string {
	ids := make([]string, len(r))
	for i, e := range r {
		ids[i] = e.DocID
	}
	return ids
}

// Ranking returns the topic's documents in ranking order.
// The returned slice is a fresh copy.
func (r Run) Ranking(topic string) Ranking {
	docs := r[topic]
	ranking := make(Ranking, 0, len(docs))
	for doc, score := range docs {
		ranking = append(ranking, Entry{DocID: doc, Score: score})
	}
	SortRanking(ranking)
	return ranking
}

// Topics returns the topic ids in ascending order.
func (r Run) Topics() []string {
	return sortedKeys(r)
}

// Clone returns a deep copy of the run.
func (r Run) Clone() Run {
	out := make(Run, len(r))
	for topic, docs := range r {
		copied := make(map[string]float64, len(docs))
		for doc, score := range docs {
			copied[doc] = score
		}
		out[topic] = copied
	}
	return out
}

// Trim keeps the top depth documents of every topic. depth <= 0 keeps everything.
func (r Run) Trim(depth int) Run {
	if depth <= 0 {
		return r.Clone()
	}
	out := make(Run, len(r))
	for topic := range r {
		ranking := r.Ranking(topic)
		if len(ranking) > depth {
			ranking = ranking[:depth]
		}
		out[topic] = ranking.ToMap()
	}
	return out
}

// Grade returns the relevance grade of doc for topic, or -1 if it is unjudged.
func (q Qrels) Grade(topic, doc string) int {
	grade, ok := q[topic][doc]
	if !ok {
		return -1
	}
	return grade
}

// Relevant returns the documents of topic with a grade above zero, in ascending id order.
func (q Qrels) Relevant(topic string) []string {
	var docs []string
	for doc, grade := range q[topic] {
		if grade > 0 {
			docs = append(docs, doc)
		}
	}
	sort.Strings(docs)
	return docs
}

// NumRelevant counts the documents of topic with a grade above zero.
func (q Qrels) NumRelevant(topic string) int {
	n := 0
	for _, grade := range q[topic] {
		if grade > 0 {
			n++
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
