// Package results stores grid comparisons keyed by (swaps, replacements, mode).
package results

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-deteriorate/internal/deteriorate"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// Key identifies one grid cell.
type Key struct {
	Swaps        int              `json:"swaps"`
	Replacements int              `json:"replacements"`
	Mode         deteriorate.Mode `json:"mode"`
}

// String renders the key as "s=2/r=0/worse".
func (k Key) String() string {
	return fmt.Sprintf("s=%d/r=%d/%s", k.Swaps, k.Replacements, k.Mode)
}

// Less orders keys by mode, then swaps, then replacements.
func (k Key) Less(other Key) bool {
	if k.Mode != other.Mode {
		return k.Mode < other.Mode
	}
	if k.Swaps != other.Swaps {
		return k.Swaps < other.Swaps
	}
	return k.Replacements < other.Replacements
}

// ParseKey parses the String form of a key.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Key{}, errors.Newf(errors.CodeValidation, "invalid cell key %q", s)
	}
	swaps, err := parseCount(parts[0], "s=")
	if err != nil {
		return Key{}, errors.Newf(errors.CodeValidation, "invalid cell key %q: %v", s, err)
	}
	reps, err := parseCount(parts[1], "r=")
	if err != nil {
		return Key{}, errors.Newf(errors.CodeValidation, "invalid cell key %q: %v", s, err)
	}
	mode, err := deteriorate.ParseMode(parts[2])
	if err != nil {
		return Key{}, err
	}
	return Key{Swaps: swaps, Replacements: reps, Mode: mode}, nil
}

func parseCount(part, prefix string) (int, error) {
	if !strings.HasPrefix(part, prefix) {
		return 0, fmt.Errorf("missing %s", prefix)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(part, prefix))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad count %q", part)
	}
	return n, nil
}
