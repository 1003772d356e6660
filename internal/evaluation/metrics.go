package evaluation

import (
	"math"
	"sort"
)

// NDCG calculates Normalized Discounted Cumulative Gain at K with linear gain.
// ideal holds every judged grade of the topic; k <= 0 evaluates the full ranking.
func NDCG(relevances, ideal []int, k int) float64 {
	if k <= 0 {
		k = max(len(relevances), len(ideal))
	}

	dcg := discounted(relevances, k)

	sorted := make([]int, len(ideal))
	copy(sorted, ideal)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	idcg := discounted(sorted, k)

	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func discounted(relevances []int, k int) float64 {
	k = min(k, len(relevances))
	dcg := 0.0
	for i := 0; i < k; i++ {
		if relevances[i] > 0 {
			dcg += float64(relevances[i]) / math.Log2(float64(i+2))
		}
	}
	return dcg
}

// Recall calculates Recall at K against the number of relevant judged documents.
func Recall(relevances []int, numRelevant, k int) float64 {
	if numRelevant == 0 {
		return 0
	}
	k = min(k, len(relevances))

	relevantInK := 0
	for i := 0; i < k; i++ {
		if relevances[i] > 0 {
			relevantInK++
		}
	}

	return float64(relevantInK) / float64(numRelevant)
}

// Precision calculates Precision at K. Missing positions count as not relevant.
func Precision(relevances []int, k int) float64 {
	if k <= 0 {
		return 0
	}

	relevant := 0
	for i := 0; i < min(k, len(relevances)); i++ {
		if relevances[i] > 0 {
			relevant++
		}
	}

	return float64(relevant) / float64(k)
}

// ReciprocalRank is one over the rank of the first relevant document.
func ReciprocalRank(relevances []int) float64 {
	for i, r := range relevances {
		if r > 0 {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision calculates Average Precision against the number of relevant judged documents.
func AveragePrecision(relevances []int, numRelevant int) float64 {
	if numRelevant == 0 {
		return 0
	}

	relevant := 0
	sumPrecision := 0.0
	for i, r := range relevances {
		if r > 0 {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}

	return sumPrecision / float64(numRelevant)
}
