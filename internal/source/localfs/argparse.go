package localfs

import (
	"github.com/anjor/palprime/internal/source"
	"github.com/anjor/palprime/internal/util/argparser"
	"github.com/pborman/getopt/v2"
)

const DefaultLocation = "Pi - Dec - Chudnovsky - " + source.IndexPlaceholder + ".ycd"

func NewSource(args []string, cfg *source.PpConfig) (_ source.Source, initErrs []error) {

	src := &localSource{location: DefaultLocation}

	optSet := getopt.New()
	optSet.FlagLong(&src.noReadHints, "no-read-hints", 0,
		"Do not apply sequential read-ahead hints to opened files",
	)

	if args == nil {
		initErrs = argparser.SubHelp(
			"Reads digit files from the local filesystem. The --location template is\n"+
				"a path, relative paths resolve against the working directory. Default\n"+
				"template: '"+DefaultLocation+"'\n",
			optSet,
		)
		return
	}

	initErrs = argparser.Parse(args, optSet)

	if cfg != nil && cfg.Location != "" {
		src.location = cfg.Location
	}

	return src, initErrs
}
