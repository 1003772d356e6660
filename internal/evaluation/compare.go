package evaluation

import (
	"math"
	"sort"

	"github.com/pmezard/go-difflib/difflib"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ricesearch/rice-deteriorate/internal/trec"
)

// DefaultRBOPersistence is the RBO persistence p used by Compare.
const DefaultRBOPersistence = 0.9

// Compare measures how far rep has moved from orig. origScores may be passed in when
// the original run is compared many times; nil scores it here.
func (e *Evaluator) Compare(orig, rep trec.Run, origScores Scores) *Comparison {
	if origScores == nil {
		origScores = e.Evaluate(orig)
	}
	repScores := e.Evaluate(rep)

	topics := orig.Topics()
	c := &Comparison{
		Topics:   len(topics),
		KTU:      make(map[string]float64, len(topics)),
		RBO:      make(map[string]float64, len(topics)),
		Hamming:  make(map[string]float64, len(topics)),
		Match:    make(map[string]float64, len(topics)),
		RMSE:     make(map[string]float64, len(e.measures)),
		NRMSE:    make(map[string]float64, len(e.measures)),
		PValue:   make(map[string]float64, len(e.measures)),
		Original: make(map[string]float64, len(e.measures)),
		Modified: make(map[string]float64, len(e.measures)),
	}

	for _, topic := range topics {
		a := orig.Ranking(topic).DocIDs()
		b := rep.Ranking(topic).DocIDs()
		c.KTU[topic] = KendallTauUnion(a, b)
		c.RBO[topic] = RBO(a, b, DefaultRBOPersistence)
		binA, binB := binarize(a, e.qrels[topic]), binarize(b, e.qrels[topic])
		c.Hamming[topic] = Hamming(binA, binB)
		c.Match[topic] = MatchRatio(binA, binB)
	}
	c.MeanKTU = mean(c.KTU)
	c.MeanRBO = mean(c.RBO)
	c.MeanHamming = mean(c.Hamming)
	c.MeanMatch = mean(c.Match)

	for _, m := range e.measures {
		x, y := paired(origScores, repScores, m)
		c.RMSE[m] = RMSE(x, y)
		c.NRMSE[m] = NormalizedRMSE(x, y)
		c.PValue[m] = PairedTTest(x, y)
		c.Original[m] = origScores.Mean(m)
		c.Modified[m] = repScores.Mean(m)
	}

	return c
}

// paired returns the values of measure for the topics scored in both sets.
func paired(a, b Scores, measure string) (x, y []float64) {
	for _, topic := range a.Topics() {
		va, okA := a[topic][measure]
		vb, okB := b[topic][measure]
		if okA && okB {
			x = append(x, va)
			y = append(y, vb)
		}
	}
	return x, y
}

func mean(m map[string]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range m {
		sum += v
	}
	return sum / float64(len(m))
}

// KendallTauUnion is Kendall's tau-b between two rankings after mapping both onto
// positions in the sorted union of their documents.
func KendallTauUnion(a, b []string) float64 {
	union := make(map[string]struct{}, len(a)+len(b))
	for _, doc := range a {
		union[doc] = struct{}{}
	}
	for _, doc := range b {
		union[doc] = struct{}{}
	}
	ids := make([]string, 0, len(union))
	for doc := range union {
		ids = append(ids, doc)
	}
	sort.Strings(ids)
	index := make(map[string]int, len(ids))
	for i, doc := range ids {
		index[doc] = i
	}

	n := min(len(a), len(b))
	x := make([]int, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		x[i] = index[a[i]]
		y[i] = index[b[i]]
	}
	return kendallTauB(x, y)
}

func kendallTauB(x, y []int) float64 {
	n := len(x)
	var concordant, discordant, tiesX, tiesY int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := sign(x[i] - x[j])
			dy := sign(y[i] - y[j])
			switch {
			case dx == 0 && dy == 0:
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx == dy:
				concordant++
			default:
				discordant++
			}
		}
	}
	denom := math.Sqrt(float64(concordant+discordant+tiesX) * float64(concordant+discordant+tiesY))
	if denom == 0 {
		if equalInts(x, y) {
			return 1
		}
		return 0
	}
	return float64(concordant-discordant) / denom
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RBO is extrapolated rank-biased overlap with persistence p, handling rankings of
// different lengths.
func RBO(a, b []string, p float64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	s, l := len(short), len(long)

	inShort := make(map[string]bool, s)
	inLong := make(map[string]bool, l)
	overlap := 0
	overlapAtS := 0
	sum := 0.0
	weight := 1.0
	for d := 1; d <= l; d++ {
		if d <= s {
			doc := short[d-1]
			if inLong[doc] {
				overlap++
			}
			inShort[doc] = true
		}
		doc := long[d-1]
		if inShort[doc] {
			overlap++
		}
		inLong[doc] = true

		if d == s {
			overlapAtS = overlap
		}
		weight *= p
		sum += float64(overlap) / float64(d) * weight
		if d > s {
			sum += float64(overlapAtS*(d-s)) / float64(s*d) * weight
		}
	}

	tail := (float64(overlap-overlapAtS)/float64(l) + float64(overlapAtS)/float64(s)) * weight
	return (1-p)/p*sum + tail
}

func binarize(docs []string, judged map[string]int) []bool {
	flags := make([]bool, len(docs))
	for i, doc := range docs {
		flags[i] = judged[doc] > 0
	}
	return flags
}

// Hamming is the share of positions whose relevance flags differ. The shorter ranking is
// padded with not relevant positions.
func Hamming(a, b []bool) float64 {
	n := max(len(a), len(b))
	if n == 0 {
		return 0
	}
	diff := 0
	for i := 0; i < n; i++ {
		var x, y bool
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			diff++
		}
	}
	return float64(diff) / float64(n)
}

// MatchRatio is the difflib similarity of two flag sequences: twice the number of
// positions covered by matching blocks over the total length. Two empty sequences give 1.
// The autojunk heuristic is off, since with two symbols every element is popular.
func MatchRatio(a, b []bool) float64 {
	return difflib.NewMatcherWithJunk(flagStrings(a), flagStrings(b), false, nil).Ratio()
}

func flagStrings(flags []bool) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = "0"
		if f {
			out[i] = "1"
		}
	}
	return out
}

// RMSE is the root mean squared error between paired topic scores.
func RMSE(x, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Distance(x, y, 2) / math.Sqrt(float64(len(x)))
}

// NormalizedRMSE divides RMSE by the range of the original scores x.
func NormalizedRMSE(x, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	span := floats.Max(x) - floats.Min(x)
	if span == 0 {
		return 0
	}
	return RMSE(x, y) / span
}

// PairedTTest returns the two-sided p-value of a paired t-test between x and y.
func PairedTTest(x, y []float64) float64 {
	n := len(x)
	if n < 2 {
		return 1
	}
	diff := make([]float64, n)
	floats.SubTo(diff, y, x)

	m, sd := stat.MeanStdDev(diff, nil)
	if sd == 0 {
		if m == 0 {
			return 1
		}
		return 0
	}
	t := m / (sd / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	return 2 * dist.CDF(-math.Abs(t))
}
