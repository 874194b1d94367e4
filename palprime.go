package palprime

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anjor/palprime/internal/chunker"
	"github.com/anjor/palprime/internal/chunker/fixedsize"
	"github.com/anjor/palprime/internal/constants"
	"github.com/anjor/palprime/internal/palindrome"
	"github.com/anjor/palprime/internal/source"
	"github.com/anjor/palprime/internal/source/httpget"
	"github.com/anjor/palprime/internal/source/localfs"
	"github.com/anjor/palprime/internal/source/stdin"
	"github.com/anjor/palprime/internal/util/argparser"
)

var availableSources = map[string]source.Initializer{
	"file":  localfs.NewSource,
	"http":  httpget.NewSource,
	"stdin": stdin.NewSource,
}

type Palprime struct {
	_ constants.Incomparabe

	cfg             config
	statSummary     statSummary
	source          source.Source
	readsStdin      bool
	formattedDigest func([]byte) string

	runID string
	t0    time.Time
	// substituted in tests for reproducible output
	now func() time.Time

	// the scanner lives across files in sequential mode
	scanner  *palindrome.Scanner
	splitter chunker.Chunker

	externalEventBus chan<- IngestionEvent
	rusageAtStart    rusageCounters
	mu               sync.Mutex
}

func NewPalprime() *Palprime {
	return &Palprime{
		cfg:         defaultConfig(),
		statSummary: setStatSummary(),
		runID:       uuid.New().String(),
		now:         time.Now,
	}
}

// NewFromArgv parses a full command line, os.Args style. Help requests and
// argument errors terminate the process.
func NewFromArgv(argv []string) (pp *Palprime) {

	pp, argParseErrs := newFromArgv(argv, os.Stderr, os.Stdout)

	if pp.cfg.Help || pp.cfg.HelpAll {
		pp.cfg.printUsage()
		os.Exit(0)
	}

	logArgParseErrors(argParseErrs, &pp.cfg)
	return
}

// NewWithWriters is NewFromArgv with the emitters redirected to the supplied
// writers and argument errors returned instead of terminating.
func NewWithWriters(stderr, stdout io.Writer, args ...string) (*Palprime, []error) {
	return newFromArgv(append([]string{"palprime"}, args...), stderr, stdout)
}

func newFromArgv(argv []string, stderr, stdout io.Writer) (pp *Palprime, argParseErrs []error) {

	pp = NewPalprime()
	pp.statSummary.RunID = pp.runID
	pp.statSummary.SysStats.ArgvInitial = getInitialArgs(argv)

	cfg := &pp.cfg
	cfg.initArgvParser()

	// accumulator for multiple errors, to present to the user all at once
	argParseErrs = argparser.Parse(argv, cfg.optSet)
	if len(argParseErrs) > 0 || cfg.Help || cfg.HelpAll {
		return
	}

	argParseErrs = append(argParseErrs, pp.validateConfig()...)
	argParseErrs = append(argParseErrs, pp.setupSource()...)
	argParseErrs = append(argParseErrs, pp.setupHashing()...)
	argParseErrs = append(argParseErrs, pp.setupEmitters(stderr, stdout)...)

	if len(argParseErrs) > 0 {
		return
	}

	var err error

	// a read must fit a single region
	if !cfg.optSet.IsSet("ring-buffer-min-sysread") && cfg.RingBufferMinRead > pp.regionSize() {
		cfg.RingBufferMinRead = pp.regionSize()
	}

	if !cfg.optSet.IsSet("ring-buffer-size") {
		cfg.RingBufferSize = pp.defaultRingBufferSize()
	}

	if pp.splitter, err = fixedsize.NewChunker(cfg.BlockSize); err != nil {
		argParseErrs = append(argParseErrs, err)
		return
	}

	if cfg.Workers == 1 {
		if pp.scanner, err = palindrome.NewScanner(pp.scannerConfig(), cfg.BlockSize); err != nil {
			argParseErrs = append(argParseErrs, err)
			return
		}
	}

	// Opts check out - take a snapshot of what we ended up with
	pp.statSummary.SysStats.ArgvExpanded = cfg.expandedArgv()

	return
}

func getInitialArgs(argv []string) []string {
	if len(argv) < 2 {
		return []string{}
	}
	initial := make([]string, len(argv)-1)
	copy(initial, argv[1:])
	return initial
}

func (pp *Palprime) scannerConfig() palindrome.Config {
	return palindrome.Config{
		MinWidth:    pp.cfg.MinWidth,
		MaxWidth:    pp.cfg.MaxWidth,
		InnerLevels: pp.cfg.InnerLevels,
	}
}

// ReadsStdin reports whether the configured source consumes stdIN.
func (pp *Palprime) ReadsStdin() bool { return pp.readsStdin }

// RunID is the identifier carried by every JSONL line of this run.
func (pp *Palprime) RunID() string { return pp.runID }

// Floor is the current minimum width of the sequential scanner.
func (pp *Palprime) Floor() int {
	if pp.scanner == nil {
		return pp.cfg.MinWidth
	}
	return pp.scanner.Floor()
}

func (pp *Palprime) Destroy() {
	pp.mu.Lock()
	pp.scanner = nil
	pp.mu.Unlock()
}

