package palindrome

import (
	"github.com/anjor/palprime/internal/wide"
)

// detector tracks the two arms of a fixed-width run around consecutive
// centers. Each arm is packed one digit per nibble, innermost digit in the
// lowest nibble, so the run is symmetric exactly when both arms are equal.
//
// Moving to the next center costs one shift per arm: the left arm gains the
// digit that used to be the center (or the left half of the center pair) and
// loses its outermost digit to the mask, the right arm loses its innermost
// digit and gains a new outermost one in the top nibble.
type detector struct {
	half   int
	parity int
	top    uint
	mask   wide.Uint128

	valid  bool
	center int64
	left   wide.Uint128
	right  wide.Uint128
}

// reset prepares the detector for runs of the given width. Any accumulated
// state is discarded since the packed layout depends on the width.
func (dt *detector) reset(width int) {
	dt.half = width / 2
	dt.parity = width & 1
	dt.valid = false
	if dt.half > 0 {
		dt.top = uint(4 * (dt.half - 1))
		dt.mask = wide.Mask(uint(4 * dt.half))
	}
}

func (dt *detector) invalidate() { dt.valid = false }

// symmetric reports whether the run centered at absolute position c is a
// palindrome. d is the window and base the absolute position of d[0]; the
// caller guarantees both arms lie inside d.
func (dt *detector) symmetric(d []byte, base, c int64) bool {
	if dt.half == 0 {
		return true
	}

	switch {
	case dt.valid && dt.center == c:
	case dt.valid && dt.center+1 == c:
		dt.step(d, int(c-base))
	default:
		dt.rebuild(d, int(c-base))
	}
	dt.center = c

	return dt.left == dt.right
}

func (dt *detector) step(d []byte, i int) {
	dt.left = dt.left.Lsh(4).Or(wide.From64(uint64(d[i-1]))).And(dt.mask)
	dt.right = dt.right.Rsh(4).Or(wide.From64(uint64(d[i+dt.parity+dt.half-1])).Lsh(dt.top))
}

func (dt *detector) rebuild(d []byte, i int) {
	dt.left, dt.right = wide.Uint128{}, wide.Uint128{}
	for j := dt.half - 1; j >= 0; j-- {
		dt.left = dt.left.Lsh(4).Or(wide.From64(uint64(d[i-1-j])))
		dt.right = dt.right.Lsh(4).Or(wide.From64(uint64(d[i+dt.parity+j])))
	}
	dt.valid = true
}
