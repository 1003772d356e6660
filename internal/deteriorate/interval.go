package deteriorate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// Interval is a closed range of 1-based rank positions.
type Interval struct {
	Lo int `json:"lo" yaml:"lo"`
	Hi int `json:"hi" yaml:"hi"`
}

// NewInterval builds an interval from two positions given in either order.
func NewInterval(a, b int) (Interval, error) {
	iv := Interval{Lo: a, Hi: b}.sorted()
	if iv.Lo < 1 {
		return Interval{}, errors.Newf(errors.CodeValidation, "rank positions start at 1, got %s", iv)
	}
	return iv, nil
}

// ParseInterval parses "lo,hi" or "lo-hi".
func ParseInterval(s string) (Interval, error) {
	sep := ","
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return Interval{}, errors.Newf(errors.CodeValidation, "interval %q must look like lo,hi", s)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Interval{}, errors.Newf(errors.CodeValidation, "interval %q: invalid start", s)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Interval{}, errors.Newf(errors.CodeValidation, "interval %q: invalid end", s)
	}
	return NewInterval(lo, hi)
}

// Len is the number of rank positions in the interval.
func (iv Interval) Len() int {
	return iv.Hi - iv.Lo + 1
}

// Overlaps reports whether the two intervals share a rank position.
func (iv Interval) Overlaps(other Interval) bool {
	return min(iv.Hi, other.Hi)-max(iv.Lo, other.Lo) >= 0
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d, %d]", iv.Lo, iv.Hi)
}

func (iv Interval) sorted() Interval {
	if iv.Lo > iv.Hi {
		return Interval{Lo: iv.Hi, Hi: iv.Lo}
	}
	return iv
}

// bounds converts the interval to a 0-based half-open range clipped to a ranking of length n.
func (iv Interval) bounds(n int) (start, end int) {
	start = min(iv.Lo-1, n)
	end = min(iv.Hi, n)
	return start, end
}
