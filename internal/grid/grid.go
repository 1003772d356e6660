// Package grid runs a deterioration across a (swaps, replacements, mode) parameter grid
// and collects one comparison per cell in a result store.
package grid

import (
	"math"
	"math/rand/v2"

	"github.com/ricesearch/rice-deteriorate/internal/deteriorate"
	"github.com/ricesearch/rice-deteriorate/internal/results"
)

// Config describes a grid.
type Config struct {
	Ratio       float64
	Source      deteriorate.Interval
	Destination deteriorate.Interval

	// Modes defaults to every mode.
	Modes []deteriorate.Mode

	// Values are the swap and replacement counts to combine. Empty means
	// Values(DefaultMax(Source), 1).
	Values []int

	// Workers bounds the number of cells computed at once.
	Workers int

	// Seed is the base seed every cell seed is derived from. 0 picks one at random.
	Seed uint64

	// Trim cuts the run to this depth before anything else; 0 keeps all.
	Trim int

	// Measures defaults to evaluation.DefaultMeasures.
	Measures []string
}

// DefaultConfig returns a single-worker grid over the default intervals.
func DefaultConfig() Config {
	return Config{
		Ratio:       1,
		Source:      deteriorate.Interval{Lo: 1, Hi: 10},
		Destination: deteriorate.Interval{Lo: 11, Hi: 20},
		Workers:     1,
		Trim:        1000,
	}
}

// Values returns 0, step, 2*step, ... up to and including max.
func Values(max, step int) []int {
	if step < 1 {
		step = 1
	}
	var values []int
	for v := 0; v <= max; v += step {
		values = append(values, v)
	}
	return values
}

// DefaultMax is half the source interval length, rounded half to even.
func DefaultMax(source deteriorate.Interval) int {
	return int(math.RoundToEven(float64(source.Len()) / 2))
}

func (c Config) withDefaults() Config {
	if len(c.Modes) == 0 {
		c.Modes = deteriorate.Modes()
	}
	if len(c.Values) == 0 {
		c.Values = Values(DefaultMax(c.Source), 1)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Seed == 0 {
		c.Seed = rand.Uint64()
	}
	return c
}

// Keys lists every cell of the grid in the configured mode order, then by swaps and
// replacements.
func (c Config) Keys() []results.Key {
	c = c.withDefaults()
	keys := make([]results.Key, 0, len(c.Modes)*len(c.Values)*len(c.Values))
	for _, mode := range c.Modes {
		for _, s := range c.Values {
			for _, r := range c.Values {
				keys = append(keys, results.Key{Swaps: s, Replacements: r, Mode: mode})
			}
		}
	}
	return keys
}

func (c Config) request(key results.Key) deteriorate.Request {
	return deteriorate.Request{
		Ratio:        c.Ratio,
		Source:       c.Source,
		Destination:  c.Destination,
		Mode:         key.Mode,
		Swaps:        key.Swaps,
		Replacements: key.Replacements,
	}
}
