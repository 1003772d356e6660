package deteriorate

import (
	"fmt"
	"math"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// Request describes one deterioration of a run.
type Request struct {
	// Ratio is the fraction of topics to modify, in [0, 1].
	Ratio float64 `json:"ratio"`
	// Source is where documents are taken from for swaps and overwritten by replacements.
	Source Interval `json:"source"`
	// Destination is where swapped documents are moved to.
	Destination  Interval `json:"destination"`
	Mode         Mode     `json:"mode"`
	Swaps        int      `json:"swaps"`
	Replacements int      `json:"replacements"`
}

// Quantity is the combined number of requested swaps and replacements.
func (r Request) Quantity() int {
	return r.Swaps + r.Replacements
}

// Validate checks the request before any topic is touched. With clampQuantity set, a
// quantity larger than an interval is accepted and left to the per-topic reductions.
func (r Request) Validate(clampQuantity bool) error {
	if !r.Mode.Valid() {
		return errors.InvalidModeError(string(r.Mode))
	}

	var problems []string

	if math.IsNaN(r.Ratio) || r.Ratio < 0 || r.Ratio > 1 {
		problems = append(problems, fmt.Sprintf("ratio must be in [0, 1], got %v", r.Ratio))
	}

	src, dst := r.Source.sorted(), r.Destination.sorted()
	if src.Lo < 1 {
		problems = append(problems, fmt.Sprintf("source interval %s must start at rank 1 or later", src))
	}
	if dst.Lo < 1 {
		problems = append(problems, fmt.Sprintf("destination interval %s must start at rank 1 or later", dst))
	}
	if src.Overlaps(dst) {
		problems = append(problems, fmt.Sprintf("source %s and destination %s overlap", src, dst))
	}

	if r.Swaps < 0 {
		problems = append(problems, fmt.Sprintf("swaps must be >= 0, got %d", r.Swaps))
	}
	if r.Replacements < 0 {
		problems = append(problems, fmt.Sprintf("replacements must be >= 0, got %d", r.Replacements))
	}

	if !clampQuantity {
		if q := r.Quantity(); q > src.Len() {
			problems = append(problems, fmt.Sprintf("source %s holds %d positions, fewer than the %d requested operations", src, src.Len(), q))
		}
		if q := r.Quantity(); q > dst.Len() {
			problems = append(problems, fmt.Sprintf("destination %s holds %d positions, fewer than the %d requested operations", dst, dst.Len(), q))
		}
	}

	return errors.JoinProblems(problems)
}

// normalized returns the request with both intervals sorted.
func (r Request) normalized() Request {
	r.Source = r.Source.sorted()
	r.Destination = r.Destination.sorted()
	return r
}

// oversized reports whether the quantity exceeds either interval.
func (r Request) oversized() bool {
	return r.Quantity() > r.Source.Len() || r.Quantity() > r.Destination.Len()
}
