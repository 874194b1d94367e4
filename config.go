package palprime

import (
	"github.com/anjor/palprime/internal/constants"
	"github.com/anjor/palprime/internal/source"
	"github.com/pborman/getopt/v2"
)

type config struct {
	optSet *getopt.Set

	// where to output
	emitters emissionTargets

	//
	// Bulk of CLI options definition starts here, the rest further down in initArgvParser()
	//

	Help    bool `getopt:"-h --help         Display basic help"`
	HelpAll bool `getopt:"--help-all        Display full help including options for every currently supported source"`

	FirstFile     int   `getopt:"--first-file=[0:]        Index of the first digit file to scan. Default:"`
	LastFile      int   `getopt:"--last-file=[0:]         Index of the last digit file to scan, inclusive. Default:"`
	DigitsPerFile int64 `getopt:"--digits-per-file=[1:]   Amount of digits in every file, fixing the absolute position of each file start. Default:"`

	MinWidth      int    `getopt:"--min-width=[1:MaxWidth]  Initial minimum palindrome width. Its parity selects odd or even palindromes for the entire run. Default:"`
	MaxWidth      int    `getopt:"--max-width=[1:MaxWidth]  Widest palindrome considered. Default:"`
	InnerLevels   bool   `getopt:"--inner-levels            When the widest palindrome around a center is composite, report the widest prime one nested within it"`
	LenientGroups bool   `getopt:"--lenient-groups          Decode groups above 19 digits modulo 10^19 instead of failing the file"`
	TailPolicy    string `getopt:"--tail=policy             What to do with a final block shorter than --block-size: 'drop' it, or 'scan' its complete groups and clip trailing palindromes at the end of data. Default:"`

	BlockSize int `getopt:"--block-size=[8:67108864] Size of each scanned block in bytes, a multiple of 8. Default:"`
	Workers   int `getopt:"--workers=[1:1024]        Scan this many files concurrently. Each file then starts from --min-width, and output is still ordered by file. Default:"`
	MaxHeader int `getopt:"--max-header=[1:]         Fail a file whose header does not end within this many bytes. Default:"`

	Location   string `getopt:"--location=template  Location of the digit files, '{index}' is replaced by the file index. Default depends on --source"`
	Decompress string `getopt:"--decompress=kind    Decompression applied to every opened file, one of 'auto', 'none', 'gzip', 'zstd', 'xz'. Default:"`

	RingBufferSize     int `getopt:"--ring-buffer-size=bytes        The size of the quantized ring buffer used for ingestion. Default: derived from --block-size"`
	RingBufferSectSize int `getopt:"--ring-buffer-sync-size=bytes   (EXPERT SETTING) The size of each buffer synchronization sector. Default:"` // option vaguely named 'sync' to not confuse users
	RingBufferMinRead  int `getopt:"--ring-buffer-min-sysread=bytes (EXPERT SETTING) Perform next read(2) only when the specified amount of free space is available in the buffer. Lowered to the region size (twice --block-size, sector aligned) when not set. Default:"`

	StatsActive uint `getopt:"--stats-active=uint   A bitfield representing activated stat aggregations: bit0:ScanCounters, bit1:RingbufferTiming. Default:"`

	HashMultibase string `getopt:"--hash-multibase=string Multibase used when rendering payload digests. One of 'base32', 'base36'. Default:"`
	hashFunc      string // payload digest: option/helptext in initArgvParser()

	requestedSource string // Source: option/helptext in initArgvParser()

	emittersStdErr []string // Emitter spec: option/helptext in initArgvParser()
	emittersStdOut []string // Emitter spec: option/helptext in initArgvParser()

	// no-option-attached, these are instantiation error accumulators
	erroredSources []string
}

const (
	statsScan = 1 << iota
	statsRingbuf
)

const (
	tailDrop = "drop"
	tailScan = "scan"
)

func defaultConfig() config {
	return config{
		FirstFile:          0,
		LastFile:           constants.DefaultLastFile,
		DigitsPerFile:      constants.DefaultDigitsPerFile,
		MinWidth:           constants.DefaultMinWidth,
		MaxWidth:           constants.MaxWidth,
		TailPolicy:         tailDrop,
		BlockSize:          constants.DefaultBlockSize,
		Workers:            1,
		MaxHeader:          constants.DefaultMaxHeaderSize,
		Decompress:         source.CompressionAuto,
		RingBufferSectSize: 64 * 1024,
		RingBufferMinRead:  256 * 1024,
		StatsActive:        statsScan,
		HashMultibase:      "base36",
		hashFunc:           "none",
		requestedSource:    "file",
		emittersStdOut:     []string{emResultsText},
		emittersStdErr:     []string{emStatsText},

		emitters: emissionTargets{
			emNone:         nil,
			emResultsText:  nil,
			emResultsJsonl: nil,
			emStatsText:    nil,
			emStatsJsonl:   nil,
		},
	}
}
