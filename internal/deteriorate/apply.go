package deteriorate

import (
	"math/rand/v2"

	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

const placeholderPrefix = "fake"

// assessed holds the relevance class of every position of one topic's ranking.
type assessed struct {
	ranking trec.Ranking
	classes []class
}

func assess(ranking trec.Ranking, judged map[string]int) assessed {
	classes := make([]class, len(ranking))
	for i, e := range ranking {
		if grade, ok := judged[e.DocID]; ok && grade > 0 {
			classes[i] = relevant
		} else {
			classes[i] = notRelevant
		}
	}
	return assessed{ranking: ranking, classes: classes}
}

// positions returns the 0-based positions of class c inside iv, ascending.
func (a assessed) positions(c class, iv Interval) []int {
	start, end := iv.bounds(len(a.classes))
	var out []int
	for i := start; i < end; i++ {
		if a.classes[i] == c {
			out = append(out, i)
		}
	}
	return out
}

// unretrievedRelevant lists the judged relevant documents absent from the ranking, ascending.
func unretrievedRelevant(ranking trec.Ranking, qrels trec.Qrels, topic string) []string {
	retrieved := make(map[string]struct{}, len(ranking))
	for _, e := range ranking {
		retrieved[e.DocID] = struct{}{}
	}
	var out []string
	for _, doc := range qrels.Relevant(topic) {
		if _, ok := retrieved[doc]; !ok {
			out = append(out, doc)
		}
	}
	return out
}

// sample draws k distinct elements of pool uniformly, leaving pool untouched.
func sample[T any](rng *rand.Rand, pool []T, k int) []T {
	k = min(k, len(pool))
	if k <= 0 {
		return nil
	}
	buf := make([]T, len(pool))
	copy(buf, pool)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(buf)-i)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf[:k]
}

// placeholders generates synthetic ids that collide with nothing already in use.
type placeholders struct {
	taken map[string]struct{}
}

func newPlaceholders(ranking trec.Ranking, judged map[string]int) *placeholders {
	taken := make(map[string]struct{}, len(ranking)+len(judged))
	for _, e := range ranking {
		taken[e.DocID] = struct{}{}
	}
	for doc := range judged {
		taken[doc] = struct{}{}
	}
	return &placeholders{taken: taken}
}

func (p *placeholders) next(docID string) string {
	id := placeholderPrefix + docID
	for {
		if _, ok := p.taken[id]; !ok {
			break
		}
		id = placeholderPrefix + id
	}
	p.taken[id] = struct{}{}
	return id
}

// topicInput is everything needed to modify one topic.
type topicInput struct {
	topic   string
	ranking trec.Ranking
	judged  map[string]int
	qrels   trec.Qrels
}

// modify applies the mode to one topic and returns a new ranking. The input ranking is
// never written to.
func modify(rng *rand.Rand, v variant, req Request, in topicInput) (trec.Ranking, plan) {
	a := assess(in.ranking, in.judged)

	swapSource := a.positions(v.swapFrom, req.Source)
	replaceSource := swapSource
	if !v.sharedSource() {
		replaceSource = a.positions(v.replaceFrom, req.Source)
	}
	destination := a.positions(v.swapTo(), req.Destination)

	var substitutes []string
	if v.replaceWith == unretrieved {
		substitutes = unretrievedRelevant(in.ranking, in.qrels, in.topic)
	}

	p := planOperations(v, req, population{
		swapSource:    len(swapSource),
		replaceSource: len(replaceSource),
		destination:   len(destination),
		substitutes:   len(substitutes),
	})

	out := make(trec.Ranking, len(in.ranking))
	copy(out, in.ranking)
	if p.degenerate || p.swaps+p.replacements == 0 {
		return out, p
	}

	var swapFrom, replaceAt []int
	if v.sharedSource() {
		picked := sample(rng, swapSource, p.swaps+p.replacements)
		swapFrom, replaceAt = picked[:p.swaps], picked[p.swaps:]
	} else {
		swapFrom = sample(rng, swapSource, p.swaps)
		replaceAt = sample(rng, replaceSource, p.replacements)
	}
	swapTo := sample(rng, destination, p.swaps)

	for i := range swapFrom {
		src, dst := swapFrom[i], swapTo[i]
		out[src].DocID, out[dst].DocID = out[dst].DocID, out[src].DocID
	}

	switch v.replaceWith {
	case placeholder:
		gen := newPlaceholders(in.ranking, in.judged)
		for _, pos := range replaceAt {
			out[pos].DocID = gen.next(in.ranking[pos].DocID)
		}
	case unretrieved:
		docs := sample(rng, substitutes, len(replaceAt))
		for i, pos := range replaceAt {
			out[pos].DocID = docs[i]
		}
	}

	return out, p
}
