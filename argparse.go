package palprime

import (
	"encoding/base32"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/multiformats/go-base36"
	"github.com/pborman/getopt/v2"
	"github.com/pborman/options"

	"github.com/anjor/palprime/internal/constants"
	"github.com/anjor/palprime/internal/hasher"
	"github.com/anjor/palprime/internal/source"
	"github.com/anjor/palprime/internal/util/argparser"
	"github.com/anjor/palprime/internal/util/text"
)

type emissionTargets map[string]io.Writer

const (
	emNone         = "none"
	emResultsText  = "results-text"
	emResultsJsonl = "results-jsonl"
	emStatsText    = "stats-text"
	emStatsJsonl   = "stats-jsonl"
)

// where the CLI initial error messages go
var argParseErrOut io.Writer = os.Stderr

func (cfg *config) printUsage() {
	cfg.optSet.PrintUsage(argParseErrOut)
	if cfg.HelpAll || len(cfg.erroredSources) > 0 {
		printPluginUsage(
			argParseErrOut,
			cfg.erroredSources,
		)
	} else {
		fmt.Fprint(argParseErrOut, "\nTry --help-all for more info\n\n")
	}
}

func printPluginUsage(
	out io.Writer,
	listSources []string,
) {

	// if nothing was requested explicitly - list everything
	if len(listSources) == 0 {
		for name, initializer := range availableSources {
			if initializer != nil {
				listSources = append(listSources, name)
			}
		}
	}

	if len(listSources) != 0 {
		fmt.Fprint(out, "\n")
		sort.Strings(listSources)
		for _, name := range listSources {
			fmt.Fprintf(
				out,
				"[S]ource '%s'\n",
				name,
			)
			_, h := availableSources[name](nil, nil)
			if len(h) == 0 {
				fmt.Fprint(out, "  -- no helptext available --\n\n")
			} else {
				for _, l := range h {
					fmt.Fprintln(out, l.Error())
				}
			}
		}
	}

	fmt.Fprint(out, "\n")
}

func (cfg *config) initArgvParser() {
	// The default documented way of using pborman/options is to muck with globals
	// Operate over objects instead, allowing us to re-parse argv multiple times
	o := getopt.New()
	if err := options.RegisterSet("", cfg, o); err != nil {
		log.Fatalf("option set registration failed: %s", err)
	}
	cfg.optSet = o

	// program does not take freeform args
	// need to override this for sensible help render
	o.SetParameters("")

	// Several options have the help-text assembled programmatically
	o.FlagLong(&cfg.requestedSource, "source", 0,
		"Where digit files come from. One of: "+text.AvailableMapKeys(availableSources),
		"srcname_opt1_opt2_..._optN",
	)
	o.FlagLong(&cfg.hashFunc, "payload-hash", 0,
		"Digest computed over every file payload and reported at its end, one of: "+text.AvailableMapKeys(hasher.AvailableHashers),
		"algname",
	)
	o.FlagLong(&cfg.emittersStdErr, "emit-stderr", 0, fmt.Sprintf(
		"One or more emitters to activate on stdERR. Available emitters are %s. Default: ",
		text.AvailableMapKeys(cfg.emitters),
	), "comma,sep,emitters")
	o.FlagLong(&cfg.emittersStdOut, "emit-stdout", 0,
		"One or more emitters to activate on stdOUT. Available emitters same as above. Default: ",
		"comma,sep,emitters",
	)
}

// validateConfig checks the options that have no range placeholder, or
// depend on each other
func (pp *Palprime) validateConfig() (argErrs []error) {
	cfg := &pp.cfg

	if cfg.MinWidth > cfg.MaxWidth {
		argErrs = append(argErrs, fmt.Errorf(
			"--min-width %d exceeds --max-width %d",
			cfg.MinWidth,
			cfg.MaxWidth,
		))
	}

	if cfg.BlockSize%constants.GroupBytes != 0 {
		argErrs = append(argErrs, fmt.Errorf(
			"--block-size '%s' is not a multiple of %d",
			text.Commify(cfg.BlockSize),
			constants.GroupBytes,
		))
	}

	if cfg.TailPolicy != tailDrop && cfg.TailPolicy != tailScan {
		argErrs = append(argErrs, fmt.Errorf(
			"--tail must be one of '%s' or '%s', not '%s'",
			tailDrop, tailScan,
			cfg.TailPolicy,
		))
	}

	if _, exists := source.AvailableCompressions[cfg.Decompress]; !exists {
		argErrs = append(argErrs, fmt.Errorf(
			"--decompress '%s' is not valid. Available kinds are %s",
			cfg.Decompress,
			text.AvailableMapKeys(source.AvailableCompressions),
		))
	}

	if cfg.RingBufferSectSize < 1 || cfg.RingBufferMinRead < 1 || cfg.RingBufferSize < 0 {
		argErrs = append(argErrs, fmt.Errorf("ring buffer sizes must be positive"))
	} else if cfg.optSet.IsSet("ring-buffer-min-sysread") && cfg.RingBufferMinRead > pp.regionSize() {
		argErrs = append(argErrs, fmt.Errorf(
			"--ring-buffer-min-sysread '%s' exceeds the ring buffer region size of '%s' derived from --block-size",
			text.Commify(cfg.RingBufferMinRead),
			text.Commify(pp.regionSize()),
		))
	}

	// reading stdIN is a one-shot affair
	if strings.HasPrefix(cfg.requestedSource, "stdin") && !cfg.optSet.IsSet("last-file") {
		cfg.LastFile = cfg.FirstFile
	}

	if cfg.LastFile < cfg.FirstFile {
		argErrs = append(argErrs, fmt.Errorf(
			"--last-file %d precedes --first-file %d",
			cfg.LastFile,
			cfg.FirstFile,
		))
	} else if int64(cfg.LastFile) > (1<<62)/cfg.DigitsPerFile {
		argErrs = append(argErrs, fmt.Errorf(
			"--last-file %d with %s digits per file exceeds the addressable position range",
			cfg.LastFile,
			text.Commify64(cfg.DigitsPerFile),
		))
	}

	return
}

func (pp *Palprime) setupEmitters(stderr, stdout io.Writer) (argErrs []error) {

	activeStderr := make(map[string]bool, len(pp.cfg.emittersStdErr))
	for _, s := range pp.cfg.emittersStdErr {
		activeStderr[s] = true
		if val, exists := pp.cfg.emitters[s]; !exists {
			argErrs = append(argErrs, fmt.Errorf("invalid emitter '%s' specified for --emit-stderr. Available emitters are: %s",
				s,
				text.AvailableMapKeys(pp.cfg.emitters),
			))
		} else if s == emNone {
			continue
		} else if val != nil {
			argErrs = append(argErrs, fmt.Errorf("Emitter '%s' specified more than once", s))
		} else {
			pp.cfg.emitters[s] = stderr
		}
	}
	activeStdout := make(map[string]bool, len(pp.cfg.emittersStdOut))
	for _, s := range pp.cfg.emittersStdOut {
		activeStdout[s] = true
		if val, exists := pp.cfg.emitters[s]; !exists {
			argErrs = append(argErrs, fmt.Errorf("invalid emitter '%s' specified for --emit-stdout. Available emitters are: %s",
				s,
				text.AvailableMapKeys(pp.cfg.emitters),
			))
		} else if s == emNone {
			continue
		} else if val != nil {
			argErrs = append(argErrs, fmt.Errorf("Emitter '%s' specified more than once", s))
		} else {
			pp.cfg.emitters[s] = stdout
		}
	}

	if activeStderr[emNone] && len(activeStderr) > 1 {
		argErrs = append(argErrs, fmt.Errorf(
			"When specified, emitter '%s' must be the sole argument to --emit-stderr",
			emNone,
		))
	}
	if activeStdout[emNone] && len(activeStdout) > 1 {
		argErrs = append(argErrs, fmt.Errorf(
			"When specified, emitter '%s' must be the sole argument to --emit-stdout",
			emNone,
		))
	}

	return
}

func (pp *Palprime) setupSource() (argErrs []error) {

	if pp.cfg.requestedSource == "" {
		return []error{fmt.Errorf(
			"You must specify a digit source via '--source=srcname_opt1_opt2...'. Available source names are: %s",
			text.AvailableMapKeys(availableSources),
		)}
	}

	name, sourceArgs := argparser.SplitPluginSpec(pp.cfg.requestedSource)
	init, exists := availableSources[name]
	if !exists {
		return []error{fmt.Errorf(
			"Source '%s' not found. Available source names are: %s",
			name,
			text.AvailableMapKeys(availableSources),
		)}
	}

	instance, initErrors := init(
		sourceArgs,
		&source.PpConfig{Location: pp.cfg.Location},
	)

	if len(initErrors) > 0 {
		pp.cfg.erroredSources = append(pp.cfg.erroredSources, name)
		for _, e := range initErrors {
			argErrs = append(argErrs, fmt.Errorf(
				"Initialization of source '%s' failed: %s",
				name,
				e,
			))
		}
		return
	}

	pp.source = instance
	pp.readsStdin = name == "stdin"
	return
}

func (pp *Palprime) setupHashing() (argErrs []error) {

	cfg := &pp.cfg

	if _, exists := hasher.AvailableHashers[cfg.hashFunc]; !exists {
		argErrs = append(argErrs, fmt.Errorf(
			"Hash function '%s' requested via '--payload-hash=algname' is not valid. Available hash names are %s",
			cfg.hashFunc,
			text.AvailableMapKeys(hasher.AvailableHashers),
		))
	}

	// setup the formatter
	var b32Encoder *base32.Encoding
	if cfg.HashMultibase == "base32" {
		b32Encoder = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)
	} else if cfg.HashMultibase != "base36" {
		argErrs = append(argErrs, fmt.Errorf("unsupported hash multibase '%s'", cfg.HashMultibase))
		return
	}

	pp.formattedDigest = func(d []byte) string {
		if d == nil {
			return ""
		}
		if b32Encoder != nil {
			return "b" + b32Encoder.EncodeToString(d)
		}
		return "k" + base36.EncodeToStringLc(d)
	}

	return
}

func logArgParseErrors(argParseErrs []error, cfg *config) {
	if len(argParseErrs) == 0 {
		return
	}

	fmt.Fprint(argParseErrOut, "\nFatal error parsing arguments:\n\n")
	cfg.printUsage()

	msgs := make([]string, len(argParseErrs))
	for i, e := range argParseErrs {
		msgs[i] = e.Error()
	}
	sort.Strings(msgs)
	fmt.Fprintf(
		argParseErrOut,
		"Fatal error parsing arguments:\n\t%s\n",
		strings.Join(msgs, "\n\t"),
	)
	os.Exit(2)
}

// expandedArgv renders every option as it ended up after defaults and
// derivations, the scan-determining ones last in a fixed order
func (cfg *config) expandedArgv() (argv []string) {

	scanOpts := []string{
		"digits-per-file",
		"min-width",
		"max-width",
		"inner-levels",
		"tail",
		"lenient-groups",
		"block-size",
	}
	scanOptsIdx := map[string]struct{}{}
	for _, n := range scanOpts {
		scanOptsIdx[n] = struct{}{}
	}

	// first do the generic options
	cfg.optSet.VisitAll(func(o getopt.Option) {
		switch o.LongName() {
		case "help", "help-all":
			// do nothing for these
		default:
			// skip these keys too, they come next
			if _, exists := scanOptsIdx[o.LongName()]; !exists {
				argv = append(argv, fmt.Sprintf(`--%s=%s`,
					o.LongName(),
					o.Value().String(),
				))
			}
		}
	})
	sort.Strings(argv)

	// now do the remaining scan-determining options
	for _, n := range scanOpts {
		argv = append(argv, fmt.Sprintf(`--%s=%s`,
			n,
			cfg.optSet.GetValue(n),
		))
	}

	return
}
