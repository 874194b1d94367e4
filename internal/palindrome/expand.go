package palindrome

import (
	"github.com/anjor/palprime/internal/wide"
)

// Expander grows a confirmed symmetric run outward and decides which level of
// it, if any, gets reported.
type Expander struct {
	MaxWidth int

	// Test every level widest-first and report the first prime one, instead
	// of only the maximal level
	InnerLevels bool

	IsPrime func(wide.Uint128) bool

	// counters, owned by whoever owns the Expander
	Expansions int64
	PrimeTests int64
}

// Classify looks at the run around center index i of d, which is known to be
// symmetric at minWidth, and returns the start index, width and value of the
// reported palindrome. Expansion is clipped to the bounds of d and to
// MaxWidth; widths keep the parity of minWidth.
func (e *Expander) Classify(d []byte, i, minWidth int) (start, width int, value wide.Uint128, found bool) {

	parity := minWidth & 1
	half := minWidth / 2

	limit := (e.MaxWidth - parity) / 2
	if i < limit {
		limit = i
	}
	if r := len(d) - i - parity; r < limit {
		limit = r
	}

	maxHalf := half
	for maxHalf < limit && d[i-1-maxHalf] == d[i+parity+maxHalf] {
		maxHalf++
	}
	if maxHalf > half {
		e.Expansions++
	}

	for h := maxHalf; h >= half; h-- {
		start = i - h
		width = 2*h + parity

		// a leading zero makes it a shorter number with a trailing zero
		if d[start] == 0 && width > 1 {
			continue
		}

		value = DigitsToValue(d[start:], width)
		e.PrimeTests++
		if e.IsPrime(value) {
			return start, width, value, true
		}

		if !e.InnerLevels {
			break
		}
	}

	return 0, 0, wide.Uint128{}, false
}

// DigitsToValue folds the first n digits of d into an integer. n must not
// exceed constants.MaxWidth.
func DigitsToValue(d []byte, n int) (v wide.Uint128) {
	for _, digit := range d[:n] {
		v, _ = v.MulAdd(10, uint64(digit))
	}
	return
}
