package deteriorate

import (
	"fmt"
	"math"
)

// population counts the documents a topic offers to each side of the operations.
type population struct {
	// swapSource counts swapFrom positions inside the source interval.
	swapSource int
	// replaceSource counts replaceFrom positions inside the source interval.
	replaceSource int
	// destination counts swapTo positions inside the destination interval.
	destination int
	// substitutes counts relevant documents the run missed. Only read for unretrieved variants.
	substitutes int
}

type plan struct {
	swaps        int
	replacements int
	degenerate   bool
	adjustments  []Adjustment
}

func (p *plan) note(reason Reason, format string, args ...any) {
	p.adjustments = append(p.adjustments, Adjustment{
		Reason:       reason,
		Message:      fmt.Sprintf(format, args...),
		Swaps:        p.swaps,
		Replacements: p.replacements,
	})
}

// planOperations reduces the requested counts to what the topic can support. The checks
// run in a fixed order: destination class, substitutes, then source class.
func planOperations(v variant, req Request, pop population) plan {
	p := plan{swaps: req.Swaps, replacements: req.Replacements}

	total := req.Quantity()
	if total == 0 {
		return p
	}

	if pop.swapSource == 0 && pop.replaceSource == 0 {
		p.swaps, p.replacements = 0, 0
		p.degenerate = true
		if v.sharedSource() {
			p.note(ReasonNoEligibleDocuments, "no %s documents in %s", v.swapFrom, req.Source)
		} else {
			p.note(ReasonNoEligibleDocuments, "no documents in %s", req.Source)
		}
		return p
	}

	if p.swaps > pop.destination {
		p.swaps = pop.destination
		p.note(ReasonDestinationShortfall, "fewer than %d %s documents in %s, swaps reduced to %d",
			req.Swaps, v.swapTo(), req.Destination, p.swaps)
	}

	if v.replaceWith == unretrieved && p.replacements > pop.substitutes {
		p.replacements = pop.substitutes
		p.note(ReasonSubstituteShortfall, "only %d relevant documents not retrieved, replacements reduced to %d",
			pop.substitutes, p.replacements)
	}

	if v.sharedSource() {
		available := pop.swapSource
		if available < p.swaps+p.replacements {
			// Keep the requested swaps:replacements ratio over what the source holds.
			swaps := int(math.RoundToEven(float64(req.Swaps*available) / float64(total)))
			swaps = min(swaps, pop.destination)
			replacements := min(available-swaps, req.Replacements)
			if v.replaceWith == unretrieved {
				replacements = min(replacements, pop.substitutes)
			}
			p.swaps, p.replacements = swaps, replacements
			p.note(ReasonSourceShortfall, "only %d %s documents in %s, %d swaps and %d replacements",
				available, v.swapFrom, req.Source, p.swaps, p.replacements)
		}
		return p
	}

	if p.swaps > pop.swapSource {
		p.swaps = pop.swapSource
		p.note(ReasonSourceShortfall, "only %d %s documents in %s, swaps reduced to %d",
			pop.swapSource, v.swapFrom, req.Source, p.swaps)
	}
	if p.replacements > pop.replaceSource {
		p.replacements = pop.replaceSource
		p.note(ReasonSourceShortfall, "only %d %s documents in %s, replacements reduced to %d",
			pop.replaceSource, v.replaceFrom, req.Source, p.replacements)
	}
	return p
}
