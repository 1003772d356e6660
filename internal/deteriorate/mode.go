// Package deteriorate perturbs ranked runs by swapping and replacing documents inside two
// rank intervals, moving relevant documents down (worse) or up (better) the ranking.
package deteriorate

import (
	"strings"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// Mode selects which relevance classes are swapped and replaced.
type Mode string

// Deterioration modes.
const (
	// ModeWorse swaps relevant source documents with not-relevant destination documents and
	// replaces relevant source documents with placeholders.
	ModeWorse Mode = "worse"
	// ModeBetter swaps not-relevant source documents with relevant destination documents and
	// replaces not-relevant source documents with relevant documents the run missed.
	ModeBetter Mode = "better"
	// ModeBetterWorse swaps like ModeBetter and replaces like ModeWorse.
	ModeBetterWorse Mode = "betterworse"
	// ModeWorseBetter swaps like ModeWorse and replaces like ModeBetter.
	ModeWorseBetter Mode = "worsebetter"
)

// Modes returns every mode in a stable order.
func Modes() []Mode {
	return []Mode{ModeWorse, ModeBetter, ModeWorseBetter, ModeBetterWorse}
}

// ParseMode parses a mode name, ignoring case and surrounding space.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errors.InvalidModeError(s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := variants[m]
	return ok
}

func (m Mode) String() string {
	return string(m)
}

// class is the relevance class of a rank position.
type class int

const (
	relevant class = iota
	notRelevant
)

func (c class) complement() class {
	if c == relevant {
		return notRelevant
	}
	return relevant
}

func (c class) String() string {
	if c == relevant {
		return "relevant"
	}
	return "not relevant"
}

// substitute is what a replacement writes over the replaced document.
type substitute int

const (
	// placeholder writes a synthetic id that no judgment covers.
	placeholder substitute = iota
	// unretrieved writes a judged relevant document the run did not retrieve.
	unretrieved
)

// variant describes one row of the mode table.
type variant struct {
	swapFrom    class
	replaceFrom class
	replaceWith substitute
}

// swapTo is the class a swap pulls out of the destination interval.
func (v variant) swapTo() class {
	return v.swapFrom.complement()
}

// sharedSource reports whether swaps and replacements compete for the same source documents.
func (v variant) sharedSource() bool {
	return v.swapFrom == v.replaceFrom
}

var variants = map[Mode]variant{
	ModeWorse:       {swapFrom: relevant, replaceFrom: relevant, replaceWith: placeholder},
	ModeBetter:      {swapFrom: notRelevant, replaceFrom: notRelevant, replaceWith: unretrieved},
	ModeBetterWorse: {swapFrom: notRelevant, replaceFrom: relevant, replaceWith: placeholder},
	ModeWorseBetter: {swapFrom: relevant, replaceFrom: notRelevant, replaceWith: unretrieved},
}
