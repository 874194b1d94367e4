// Package wide implements the small set of unsigned 128-bit operations the
// scanner needs: nibble shifting for the rolling detector, decimal folding for
// the expander and conversion to math/big for the primality oracle.
package wide

import (
	"fmt"
	"math/big"
	"math/bits"
	"strconv"
)

type Uint128 struct {
	Hi uint64
	Lo uint64
}

// 10^19, the largest power of ten below 2^64
const decChunk = 10000000000000000000

func From64(v uint64) Uint128 { return Uint128{Lo: v} }

// Mask returns a value with the low n bits set.
func Mask(n uint) Uint128 {
	switch {
	case n == 0:
		return Uint128{}
	case n < 64:
		return Uint128{Lo: 1<<n - 1}
	case n < 128:
		return Uint128{Hi: 1<<(n-64) - 1, Lo: ^uint64(0)}
	default:
		return Uint128{Hi: ^uint64(0), Lo: ^uint64(0)}
	}
}

func (u Uint128) IsZero() bool { return u.Hi == 0 && u.Lo == 0 }
func (u Uint128) Fits64() bool { return u.Hi == 0 }
func (u Uint128) Or(v Uint128) Uint128 { return Uint128{Hi: u.Hi | v.Hi, Lo: u.Lo | v.Lo} }
func (u Uint128) And(v Uint128) Uint128 { return Uint128{Hi: u.Hi & v.Hi, Lo: u.Lo & v.Lo} }

func (u Uint128) Cmp(v Uint128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	}
	return 0
}

func (u Uint128) Lsh(n uint) Uint128 {
	if n >= 64 {
		return Uint128{Hi: u.Lo << (n - 64)}
	}
	return Uint128{Hi: u.Hi<<n | u.Lo>>(64-n), Lo: u.Lo << n}
}

func (u Uint128) Rsh(n uint) Uint128 {
	if n >= 64 {
		return Uint128{Lo: u.Hi >> (n - 64)}
	}
	return Uint128{Hi: u.Hi >> n, Lo: u.Lo>>n | u.Hi<<(64-n)}
}

// MulAdd returns u*m + a, and whether the result wrapped around 2^128.
func (u Uint128) MulAdd(m, a uint64) (res Uint128, overflow bool) {
	hi1, lo := bits.Mul64(u.Lo, m)
	hi2, mid := bits.Mul64(u.Hi, m)
	hi, c1 := bits.Add64(mid, hi1, 0)
	lo, c2 := bits.Add64(lo, a, 0)
	hi, c3 := bits.Add64(hi, 0, c2)
	return Uint128{Hi: hi, Lo: lo}, hi2 != 0 || c1 != 0 || c3 != 0
}

// DivMod64 divides by a 64-bit divisor, returning quotient and remainder.
func (u Uint128) DivMod64(d uint64) (q Uint128, r uint64) {
	q.Hi, r = bits.Div64(0, u.Hi, d)
	q.Lo, r = bits.Div64(r, u.Lo, d)
	return
}

func (u Uint128) Big() *big.Int {
	b := new(big.Int).SetUint64(u.Hi)
	b.Lsh(b, 64)
	return b.Or(b, new(big.Int).SetUint64(u.Lo))
}

func (u Uint128) String() string {
	if u.Hi == 0 {
		return strconv.FormatUint(u.Lo, 10)
	}

	q, low := u.DivMod64(decChunk)
	return q.String() + fmt.Sprintf("%019d", low)
}

// ParseDecimal is the inverse of String.
func ParseDecimal(s string) (u Uint128, err error) {
	if s == "" {
		return u, fmt.Errorf("empty decimal string")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return Uint128{}, fmt.Errorf("invalid decimal digit %q at offset %d", c, i)
		}
		var overflow bool
		if u, overflow = u.MulAdd(10, uint64(c-'0')); overflow {
			return Uint128{}, fmt.Errorf("decimal '%s' does not fit 128 bits", s)
		}
	}
	return
}
