package prime

import (
	"math/big"
)

// Certificate is a Pocklington proof that N is prime. Every prime factor Q of
// N-1 listed in Factors has a base A with A^(N-1) = 1 (mod N) and
// gcd(A^((N-1)/Q) - 1, N) = 1. Once the fully factored part F of N-1 passes
// F*F > N, each prime divisor p of N satisfies p = 1 (mod F), so p > sqrt(N)
// and N has no room for a second one.
type Certificate struct {
	N       *big.Int
	Factors []Witness
}

// Witness pairs a prime factor of N-1 with the base that satisfies the
// Pocklington conditions for it. Sub is set only when Q lies past the range
// where Miller-Rabin is deterministic, and proves Q in turn.
type Witness struct {
	Q, A *big.Int
	Sub  *Certificate
}

// N-1 is trial divided by every prime below this before Pollard rho
const certifyTrialLimit = 10000

// rho gives up after this many polynomial constants
const rhoAttempts = 64

// bases tried per factor before the certificate is abandoned
const witnessAttempts = 200

var certifyTrialPrimes = func() (ps []int64) {
	composite := make([]bool, certifyTrialLimit)
	for i := int64(2); i < certifyTrialLimit; i++ {
		if composite[i] {
			continue
		}
		ps = append(ps, i)
		for j := i * i; j < certifyTrialLimit; j += i {
			composite[j] = true
		}
	}
	return
}()

// Certify builds a primality certificate for an odd n > 3. It returns false
// when n is composite, or in the vanishingly unlikely case that no witness
// base turns up for a prime.
func Certify(n *big.Int) (*Certificate, bool) {
	if n.Cmp(big.NewInt(3)) <= 0 || n.Bit(0) == 0 {
		return nil, false
	}

	nm1 := new(big.Int).Sub(n, bigOne)
	if new(big.Int).Exp(big.NewInt(2), nm1, n).Cmp(bigOne) != 0 {
		return nil, false
	}
	factors, ok := factorPart(nm1, n)
	if !ok {
		return nil, false
	}

	cert := &Certificate{N: new(big.Int).Set(n)}
	fermat := make(map[int64]bool)
	for _, f := range factors {
		a, ok := pocklingtonBase(n, nm1, f.q, fermat)
		if !ok {
			return nil, false
		}
		cert.Factors = append(cert.Factors, Witness{Q: f.q, A: a, Sub: f.sub})
	}
	return cert, true
}

// Verify rechecks every step of the certificate from scratch.
func (c *Certificate) Verify() bool {
	if c == nil || c.N == nil || c.N.Cmp(big.NewInt(3)) <= 0 || c.N.Bit(0) == 0 {
		return false
	}
	n := c.N
	nm1 := new(big.Int).Sub(n, bigOne)

	f := big.NewInt(1)
	rest := new(big.Int).Set(nm1)
	x, r := new(big.Int), new(big.Int)
	for _, w := range c.Factors {
		if w.Q == nil || w.A == nil {
			return false
		}
		if w.Sub != nil {
			if !w.Sub.Verify() || w.Sub.N.Cmp(w.Q) != 0 {
				return false
			}
		} else if prime, decided := deterministicPrime(w.Q); !prime || !decided {
			return false
		}

		if r.Mod(rest, w.Q); r.Sign() != 0 {
			// absent from N-1, or listed twice
			return false
		}
		for r.Mod(rest, w.Q).Sign() == 0 {
			rest.Quo(rest, w.Q)
			f.Mul(f, w.Q)
		}

		if x.Exp(w.A, nm1, n); x.Cmp(bigOne) != 0 {
			return false
		}
		if coprimeToN(w.A, x.Quo(nm1, w.Q), n) != 1 {
			return false
		}
	}
	return f.Mul(f, f).Cmp(n) > 0
}

type provenFactor struct {
	q   *big.Int
	sub *Certificate
}

// factorPart peels prime factors off m = n-1 until the factored part F
// satisfies F*F > n. m may stay partly unfactored.
func factorPart(m, n *big.Int) ([]provenFactor, bool) {
	var found []provenFactor
	f := big.NewInt(1)
	rest := new(big.Int).Set(m)
	r := new(big.Int)

	take := func(q *big.Int, sub *Certificate) {
		for _, have := range found {
			if have.q.Cmp(q) == 0 {
				return
			}
		}
		found = append(found, provenFactor{q: q, sub: sub})
		for r.Mod(rest, q).Sign() == 0 {
			rest.Quo(rest, q)
			f.Mul(f, q)
		}
	}
	enough := func() bool {
		return new(big.Int).Mul(f, f).Cmp(n) > 0
	}

	p := new(big.Int)
	for _, sp := range certifyTrialPrimes {
		if p.SetInt64(sp); r.Mod(rest, p).Sign() == 0 {
			take(new(big.Int).Set(p), nil)
		}
	}

	var pending []*big.Int
	if rest.Cmp(bigOne) > 0 {
		pending = append(pending, new(big.Int).Set(rest))
	}
	for len(pending) > 0 && !enough() {
		c := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		sub, isPrime := provePrime(c)
		if isPrime {
			take(c, sub)
			continue
		}

		d := pollardBrent(c)
		if d == nil {
			return nil, false
		}
		pending = append(pending, d, new(big.Int).Quo(c, d))
	}
	return found, enough()
}

// provePrime settles a cofactor of n-1. Cofactors have no prime factor below
// certifyTrialLimit, so they are odd and past every Miller-Rabin base.
func provePrime(c *big.Int) (*Certificate, bool) {
	if prime, decided := deterministicPrime(c); decided {
		return nil, prime
	}
	if !c.ProbablyPrime(0) {
		return nil, false
	}
	return Certify(c)
}

// deterministicPrime answers exactly for q below the thirteen base bound and
// reports decided=false above it.
func deterministicPrime(q *big.Int) (prime, decided bool) {
	if q.Sign() <= 0 {
		return false, true
	}
	if q.IsUint64() {
		return IsPrime64(q.Uint64()), true
	}
	if q.Cmp(deterministicWideBound) >= 0 {
		return false, false
	}
	r, p := new(big.Int), new(big.Int)
	for _, sp := range smallPrimes {
		if r.Mod(q, p.SetUint64(sp)); r.Sign() == 0 {
			return false, true
		}
	}
	return millerRabinBig(q), true
}

// pocklingtonBase finds a small base meeting both conditions for q. A base
// that fails Fermat proves n composite. fermat caches the Fermat check per
// base across the factors of one n.
func pocklingtonBase(n, nm1, q *big.Int, fermat map[int64]bool) (*big.Int, bool) {
	e := new(big.Int).Quo(nm1, q)
	a, x := new(big.Int), new(big.Int)
	for b := int64(2); b < 2+witnessAttempts; b++ {
		a.SetInt64(b)
		passed, seen := fermat[b]
		if !seen {
			passed = x.Exp(a, nm1, n).Cmp(bigOne) == 0
			fermat[b] = passed
		}
		if !passed {
			return nil, false
		}

		switch coprimeToN(a, e, n) {
		case 1:
			return new(big.Int).Set(a), true
		case 0:
			// a^e = 1, try the next base
		default:
			// gcd strictly between 1 and n is a factor
			return nil, false
		}
	}
	return nil, false
}

// coprimeToN classifies gcd(a^e - 1, n): 1 when coprime, 0 when a^e = 1
// (mod n), -1 when a proper factor of n shows up.
func coprimeToN(a, e, n *big.Int) int {
	x := new(big.Int).Exp(a, e, n)
	x.Sub(x, bigOne)
	if x.Sign() == 0 {
		return 0
	}
	if x.Sign() < 0 {
		x.Add(x, n)
	}
	g := new(big.Int).GCD(nil, nil, x, n)
	if g.Cmp(bigOne) == 0 {
		return 1
	}
	return -1
}

// pollardBrent returns a nontrivial factor of the composite n, or nil if
// none of the polynomials x^2+c it tries splits n. Never call it on a prime.
func pollardBrent(n *big.Int) *big.Int {
	if n.Bit(0) == 0 {
		return big.NewInt(2)
	}
	if s := new(big.Int).Sqrt(n); new(big.Int).Mul(s, s).Cmp(n) == 0 {
		return s
	}

	const batch = 128
	x, y, ys := new(big.Int), new(big.Int), new(big.Int)
	q, g, diff := new(big.Int), new(big.Int), new(big.Int)

	for c := int64(1); c <= rhoAttempts; c++ {
		cc := big.NewInt(c)
		step := func(v *big.Int) {
			v.Mul(v, v).Add(v, cc).Mod(v, n)
		}

		y.SetInt64(2)
		q.SetInt64(1)
		g.SetInt64(1)
		for r := 1; g.Cmp(bigOne) == 0; r *= 2 {
			x.Set(y)
			for i := 0; i < r; i++ {
				step(y)
			}
			for k := 0; k < r && g.Cmp(bigOne) == 0; k += batch {
				ys.Set(y)
				for i := 0; i < batch && i < r-k; i++ {
					step(y)
					diff.Sub(x, y).Abs(diff)
					q.Mul(q, diff).Mod(q, n)
				}
				g.GCD(nil, nil, q, n)
			}
		}

		if g.Cmp(n) == 0 {
			// the batched product collapsed to 0, replay it a step at a time
			for {
				step(ys)
				diff.Sub(x, ys).Abs(diff)
				if g.GCD(nil, nil, diff, n); g.Cmp(bigOne) != 0 {
					break
				}
			}
		}
		if g.Cmp(n) != 0 {
			return new(big.Int).Set(g)
		}
	}
	return nil
}
