// Package prime decides primality for the values the scanner can produce:
// anything below 10^37.
//
// Below 2^64 the verdict comes from Miller-Rabin with the first twelve prime
// bases, which is deterministic up to 3.18*10^23. Up to 3.317*10^24 the first
// thirteen prime bases are deterministic. Past that bound a value that also
// passes Baillie-PSW must still earn a Pocklington certificate (see Certify)
// before it counts as prime, so every verdict is exact.
package prime

import (
	"math/big"
	"math/bits"

	"github.com/anjor/palprime/internal/wide"
)

var smallPrimes = [...]uint64{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47,
	53, 59, 61, 67, 71, 73, 79, 83, 89, 97,
}

// Everything below this and not divisible by a small prime is prime
const trialLimit = 97 * 97

var witnesses64 = [...]uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}
var witnessesWide = [...]int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41}

// psi13: smallest strong pseudoprime to all of witnessesWide
var deterministicWideBound, _ = new(big.Int).SetString("3317044064679887385961981", 10)

var bigOne = big.NewInt(1)

func IsPrime(v wide.Uint128) bool {
	if v.Fits64() {
		return IsPrime64(v.Lo)
	}

	for _, p := range smallPrimes {
		if _, r := v.DivMod64(p); r == 0 {
			return false
		}
	}

	n := v.Big()
	if !millerRabinBig(n) {
		return false
	}
	if n.Cmp(deterministicWideBound) < 0 {
		return true
	}
	if !n.ProbablyPrime(0) {
		return false
	}
	_, proven := Certify(n)
	return proven
}

func IsPrime64(n uint64) bool {
	if n < 2 {
		return false
	}
	for _, p := range smallPrimes {
		if n == p {
			return true
		}
		if n%p == 0 {
			return false
		}
	}
	if n < trialLimit {
		return true
	}

	d, s := n-1, 0
	for d&1 == 0 {
		d >>= 1
		s++
	}

	for _, a := range witnesses64 {
		if !strongProbe64(n, a, d, s) {
			return false
		}
	}
	return true
}

func mulMod64(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, r := bits.Div64(hi, lo, m)
	return r
}

func powMod64(b, e, m uint64) uint64 {
	r := uint64(1)
	b %= m
	for e > 0 {
		if e&1 == 1 {
			r = mulMod64(r, b, m)
		}
		b = mulMod64(b, b, m)
		e >>= 1
	}
	return r
}

func strongProbe64(n, a, d uint64, s int) bool {
	x := powMod64(a, d, n)
	if x == 1 || x == n-1 {
		return true
	}
	for r := 1; r < s; r++ {
		x = mulMod64(x, x, n)
		if x == n-1 {
			return true
		}
		if x == 1 {
			return false
		}
	}
	return false
}

func millerRabinBig(n *big.Int) bool {
	nm1 := new(big.Int).Sub(n, bigOne)
	s := int(nm1.TrailingZeroBits())
	d := new(big.Int).Rsh(nm1, uint(s))

	a, x := new(big.Int), new(big.Int)
	for _, w := range witnessesWide {
		a.SetInt64(w)
		x.Exp(a, d, n)
		if x.Cmp(bigOne) == 0 || x.Cmp(nm1) == 0 {
			continue
		}

		composite := true
		for r := 1; r < s; r++ {
			x.Mul(x, x).Mod(x, n)
			if x.Cmp(nm1) == 0 {
				composite = false
				break
			}
			if x.Cmp(bigOne) == 0 {
				break
			}
		}
		if composite {
			return false
		}
	}
	return true
}
