// Package digits turns the packed payload of a .ycd file into a flat array of
// decimal digits, one digit per byte, with the tail of every window carried
// into the head of the next one.
package digits

import (
	"encoding/binary"

	"github.com/anjor/palprime/internal/constants"
)

// Largest value a group may hold: 19 decimal digits
const groupLimit = 10000000000000000000

// Window is the decoded form of one block. The first constants.CarryDigits
// entries repeat the last digits of the previous window, the remainder are
// the digits of the block itself.
type Window struct {
	_   constants.Incomparabe
	buf []byte
	n   int
}

// NewWindow allocates a window able to hold the digits of a block of
// blockBytes bytes. The carry region starts out zeroed.
func NewWindow(blockBytes int) *Window {
	groups := blockBytes / constants.GroupBytes
	return &Window{
		buf: make([]byte, constants.CarryDigits+groups*constants.GroupDigits),
		n:   constants.CarryDigits,
	}
}

// Digits returns the current window contents, carry included. The slice is
// only valid until the next Decode.
func (w *Window) Digits() []byte { return w.buf[:w.n] }

// Reset forgets the window contents. The carry of the next Decode is
// meaningless and must not be read by the caller.
func (w *Window) Reset() { w.n = constants.CarryDigits }

// Len is the current window length, carry included.
func (w *Window) Len() int { return w.n }

// Capacity is the amount of new digits a single Decode can add.
func (w *Window) Capacity() int { return len(w.buf) - constants.CarryDigits }

// Decode copies the carry forward and unpacks every complete 8-byte group of
// block. It returns the amount of new digits and the index of the first group
// whose value does not fit 19 decimal digits (-1 when all of them do). An
// oversized group is decoded modulo 10^19.
func (w *Window) Decode(block []byte) (newDigits int, badGroup int) {

	copy(w.buf[:constants.CarryDigits], w.buf[w.n-constants.CarryDigits:w.n])

	groups := len(block) / constants.GroupBytes
	if max := w.Capacity() / constants.GroupDigits; groups > max {
		groups = max
	}

	badGroup = -1
	out := w.buf[constants.CarryDigits:]
	for g := 0; g < groups; g++ {
		v := binary.LittleEndian.Uint64(block[g*constants.GroupBytes:])
		if v >= groupLimit {
			if badGroup < 0 {
				badGroup = g
			}
			v -= groupLimit
		}
		UnpackGroup(out[g*constants.GroupDigits:(g+1)*constants.GroupDigits], v)
	}

	newDigits = groups * constants.GroupDigits
	w.n = constants.CarryDigits + newDigits
	return
}

// FirstOversizedGroup returns the index of the first complete group of block
// holding a value of 10^19 or more, or -1.
func FirstOversizedGroup(block []byte) int {
	for g := 0; g+constants.GroupBytes <= len(block); g += constants.GroupBytes {
		if binary.LittleEndian.Uint64(block[g:]) >= groupLimit {
			return g / constants.GroupBytes
		}
	}
	return -1
}

// UnpackGroup writes the 19-digit decimal expansion of v into dst, most
// significant digit first.
func UnpackGroup(dst []byte, v uint64) {
	_ = dst[constants.GroupDigits-1]
	for i := constants.GroupDigits - 1; i >= 0; i-- {
		dst[i] = byte(v % 10)
		v /= 10
	}
}

// PackGroup is the inverse of UnpackGroup, used to synthesize payloads.
func PackGroup(src []byte) (v uint64) {
	for _, d := range src[:constants.GroupDigits] {
		v = v*10 + uint64(d)
	}
	return
}

// Encode packs digits into the on-disk representation. A trailing partial
// group is right-padded with zeros.
func Encode(digits []byte) []byte {
	groups := (len(digits) + constants.GroupDigits - 1) / constants.GroupDigits
	out := make([]byte, groups*constants.GroupBytes)
	var grp [constants.GroupDigits]byte
	for g := 0; g < groups; g++ {
		grp = [constants.GroupDigits]byte{}
		copy(grp[:], digits[g*constants.GroupDigits:])
		binary.LittleEndian.PutUint64(out[g*constants.GroupBytes:], PackGroup(grp[:]))
	}
	return out
}
