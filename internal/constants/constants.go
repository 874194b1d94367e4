package constants

import (
	"os"
	"strconv"
)

const (
	// 37 decimal digits is the widest value that still fits 128 bits
	MaxWidth = 37

	// Each little-endian uint64 in a .ycd payload packs this many decimal digits
	GroupDigits = 19
	GroupBytes  = 8

	// Digits copied forward from one window to the next
	CarryDigits = MaxWidth - 1

	// Values from the original y-cruncher run layout
	DefaultBlockSize     = 1024 * 1024
	DefaultMinWidth      = 19
	DefaultDigitsPerFile = 100000000000
	DefaultLastFile      = 1000

	// The header of a .ycd file is a few hundred bytes of text, anything
	// beyond this means we are not looking at a digit file at all
	DefaultMaxHeaderSize = 64 * 1024

	MaxBlockSize = 64 * 1024 * 1024
)

type Incomparabe [0]func()

var LongTests bool
var VeryLongTests bool

func init() {
	VeryLongTests = isTruthy("TEST_PALPRIME_VERY_LONG")
	LongTests = VeryLongTests || isTruthy("TEST_PALPRIME_LONG")
}

func isTruthy(varname string) bool {
	envStr := os.Getenv(varname)
	if envStr != "" {
		if num, err := strconv.ParseUint(envStr, 10, 64); err != nil || num != 0 {
			return true
		}
	}
	return false
}

var PerformSanityChecks = true
