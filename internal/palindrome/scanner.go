package palindrome

import (
	"fmt"
	"log"
	"sort"

	"github.com/anjor/palprime/internal/constants"
	"github.com/anjor/palprime/internal/digits"
	"github.com/anjor/palprime/internal/prime"
	"github.com/anjor/palprime/internal/wide"
)

// Result is a prime palindrome found in the digit stream. Position is the
// 1-based absolute index of its first digit.
type Result struct {
	Value    wide.Uint128
	Width    int
	Position uint64
}

type Config struct {
	MinWidth    int
	MaxWidth    int
	InnerLevels bool

	// Defaults to prime.IsPrime
	IsPrime func(wide.Uint128) bool
}

type Stats struct {
	Blocks     int64 `json:"blocks"`
	Digits     int64 `json:"digits"`
	Centers    int64 `json:"centers"`
	Hits       int64 `json:"symmetricCenters"`
	Expansions int64 `json:"expansions"`
	PrimeTests int64 `json:"primeTests"`
	Results    int64 `json:"results"`
	BadGroups  int64 `json:"oversizedGroups"`
}

func (s *Stats) Add(o Stats) {
	s.Blocks += o.Blocks
	s.Digits += o.Digits
	s.Centers += o.Centers
	s.Hits += o.Hits
	s.Expansions += o.Expansions
	s.PrimeTests += o.PrimeTests
	s.Results += o.Results
	s.BadGroups += o.BadGroups
}

type EmitFunc func(Result) error

// Scanner is the streaming engine: it owns the digit window, the rolling
// detector and the current minimum width. Positions are absolute and 1-based.
//
// A center is examined once the window holds its full right context up to
// MaxWidth, which the carry guarantees will happen in the window following
// the one where it first appeared. Flush examines whatever remains once no
// further digits are coming.
type Scanner struct {
	_        constants.Incomparabe
	cfg      Config
	floor    int
	maxWidth int
	maxHalf  int64
	parity   int64

	win *digits.Window
	det detector
	exp Expander

	// absolute positions: window[0], first defined digit, one past the last
	// decoded digit, next center to examine
	base      int64
	validFrom int64
	end       int64
	next      int64
	started   bool

	pending []Result
	stats   Stats
}

func NewScanner(cfg Config, blockBytes int) (*Scanner, error) {
	if cfg.MaxWidth == 0 {
		cfg.MaxWidth = constants.MaxWidth
	}
	if cfg.MaxWidth < 1 || cfg.MaxWidth > constants.MaxWidth {
		return nil, fmt.Errorf("maximum width %d out of range [1:%d]", cfg.MaxWidth, constants.MaxWidth)
	}
	if cfg.MinWidth < 1 || cfg.MinWidth > cfg.MaxWidth {
		return nil, fmt.Errorf("minimum width %d out of range [1:%d]", cfg.MinWidth, cfg.MaxWidth)
	}
	if blockBytes < constants.GroupBytes || blockBytes%constants.GroupBytes != 0 {
		return nil, fmt.Errorf("block size %d is not a positive multiple of %d", blockBytes, constants.GroupBytes)
	}
	if cfg.IsPrime == nil {
		cfg.IsPrime = prime.IsPrime
	}

	s := &Scanner{
		cfg:      cfg,
		floor:    cfg.MinWidth,
		maxWidth: cfg.MaxWidth,
		parity:   int64(cfg.MinWidth & 1),
		win:      digits.NewWindow(blockBytes),
		exp: Expander{
			MaxWidth:    cfg.MaxWidth,
			InnerLevels: cfg.InnerLevels,
			IsPrime:     cfg.IsPrime,
		},
	}
	s.maxHalf = (int64(s.maxWidth) - s.parity) / 2
	s.det.reset(s.floor)

	return s, nil
}

// Floor is the current minimum width.
func (s *Scanner) Floor() int { return s.floor }

// Exhausted reports whether the floor went past the maximum width, at which
// point nothing more can ever be reported.
func (s *Scanner) Exhausted() bool { return s.floor > s.maxWidth }

// End is the absolute position the next decoded digit will occupy.
func (s *Scanner) End() int64 { return s.end }

func (s *Scanner) Started() bool { return s.started }

func (s *Scanner) Stats() Stats {
	st := s.stats
	st.Expansions = s.exp.Expansions
	st.PrimeTests = s.exp.PrimeTests
	return st
}

// Start begins a new run of contiguous digits whose first digit sits at
// absolute position pos. Whatever the window held is forgotten; pending
// results and the floor are kept.
func (s *Scanner) Start(pos int64) {
	s.win.Reset()
	s.end = pos
	s.validFrom = pos
	s.base = pos - constants.CarryDigits
	s.next = pos
	s.det.invalidate()
	s.started = true
}

// Feed decodes one block and examines every center whose right context is now
// complete. It returns the index of the first oversized group in the block,
// or -1.
func (s *Scanner) Feed(block []byte, emit EmitFunc) (badGroup int, err error) {
	if !s.started {
		return -1, fmt.Errorf("scanner fed before a start position was set")
	}

	n, badGroup := s.win.Decode(block)
	s.base = s.end - constants.CarryDigits
	s.end += int64(n)

	s.stats.Blocks++
	s.stats.Digits += int64(n)
	if badGroup >= 0 {
		s.stats.BadGroups++
	}

	s.scanThrough(s.end - s.parity - s.maxHalf)
	err = s.release(emit, false)
	return
}

// Flush examines the centers still waiting for right context, clipping their
// expansion at the end of the data, and releases every pending result.
func (s *Scanner) Flush(emit EmitFunc) error {
	if s.started {
		s.scanThrough(s.end - 1)
	}
	return s.release(emit, true)
}

// Drain releases pending results without examining any further centers.
func (s *Scanner) Drain(emit EmitFunc) error { return s.release(emit, true) }

func (s *Scanner) scanThrough(last int64) {

	d := s.win.Digits()

	for ; s.next <= last; s.next++ {
		if s.floor > s.maxWidth {
			s.next = last + 1
			break
		}

		c := s.next
		half := int64(s.floor / 2)
		if c-half < s.validFrom || c+s.parity+half > s.end {
			s.det.invalidate()
			continue
		}

		s.stats.Centers++
		if !s.det.symmetric(d, s.base, c) {
			continue
		}
		s.stats.Hits++

		lo := int(s.validFrom - s.base)
		if lo < 0 {
			lo = 0
		}
		i := int(c-s.base) - lo

		if constants.PerformSanityChecks && !NaiveSymmetricAt(d[lo:], i, s.floor) {
			log.Panicf("rolling detector reported a non-symmetric run at %d (width %d)", c, s.floor)
		}

		start, width, value, found := s.exp.Classify(d[lo:], i, s.floor)
		if !found {
			continue
		}

		s.stats.Results++
		s.queue(Result{
			Value:    value,
			Width:    width,
			Position: uint64(s.base + int64(lo+start)),
		})

		s.floor = width + 2
		s.det.reset(s.floor)
	}
}

func (s *Scanner) queue(r Result) {
	idx := sort.Search(len(s.pending), func(i int) bool {
		p := s.pending[i]
		return p.Position > r.Position || (p.Position == r.Position && p.Width > r.Width)
	})
	s.pending = append(s.pending, Result{})
	copy(s.pending[idx+1:], s.pending[idx:])
	s.pending[idx] = r
}

// Results are held back until no later center can produce one starting at
// or before them, so emission happens in position order.
func (s *Scanner) release(emit EmitFunc, all bool) error {
	var n int
	for n < len(s.pending) {
		if !all && int64(s.pending[n].Position) > s.next-s.maxHalf {
			break
		}
		if err := emit(s.pending[n]); err != nil {
			s.pending = s.pending[:copy(s.pending, s.pending[n+1:])]
			return err
		}
		n++
	}
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	return nil
}
