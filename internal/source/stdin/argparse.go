package stdin

import (
	"fmt"

	"github.com/anjor/palprime/internal/source"
	"github.com/anjor/palprime/internal/util/argparser"
)

func NewSource(args []string, cfg *source.PpConfig) (_ source.Source, initErrs []error) {

	if args == nil {
		initErrs = argparser.SubHelp(
			"Reads a single digit file from stdIN, for use with external downloaders\n"+
				"or decompressors. Scans exactly one file index, --last-file defaults to\n"+
				"--first-file. Takes no arguments.\n",
			nil,
		)
		return
	}

	if len(args) > 1 {
		initErrs = append(initErrs, fmt.Errorf("source takes no arguments"))
	}
	if cfg != nil && cfg.Location != "" {
		initErrs = append(initErrs, fmt.Errorf("source does not support --location"))
	}

	return &stdinSource{}, initErrs
}
