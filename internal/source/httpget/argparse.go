package httpget

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/anjor/palprime/internal/source"
	"github.com/anjor/palprime/internal/util/argparser"
	"github.com/pborman/getopt/v2"
)

// Public mirror of the 100 trillion digit computation
const DefaultLocation = "http://storage.googleapis.com/pi100t/Pi%20-%20Dec%20-%20Chudnovsky/Pi%20-%20Dec%20-%20Chudnovsky%20-%20" + source.IndexPlaceholder + ".ycd"

func NewSource(args []string, cfg *source.PpConfig) (_ source.Source, initErrs []error) {

	src := &httpSource{
		location:  DefaultLocation,
		retries:   3,
		backoffMs: 500,
	}

	optSet := getopt.New()
	optSet.FlagLong(&src.retries, "retries", 0, "Amount of additional attempts after a failed request", "[0:100]")
	optSet.FlagLong(&src.timeoutSec, "timeout", 0, "Overall per-file timeout in seconds including the body transfer, 0 disables", "[0:]")
	optSet.FlagLong(&src.backoffMs, "backoff-ms", 0, "Delay before the first retry, doubled on every subsequent one", "[0:600000]")

	if args == nil {
		initErrs = argparser.SubHelp(
			"Fetches digit files over HTTP(S) with GET requests, retrying transient\n"+
				"failures. A 404 response is never retried. Default template:\n"+
				"'"+DefaultLocation+"'\n",
			optSet,
		)
		return
	}

	initErrs = argparser.Parse(args, optSet)

	if cfg != nil && cfg.Location != "" {
		src.location = cfg.Location
	}

	if u, err := url.Parse(source.ExpandLocation(src.location, 0)); err != nil {
		initErrs = append(initErrs, fmt.Errorf("location template '%s' is not a valid URL: %w", src.location, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		initErrs = append(initErrs, fmt.Errorf("location template '%s' must be an http(s) URL", src.location))
	}

	src.client = &http.Client{Timeout: time.Duration(src.timeoutSec) * time.Second}

	return src, initErrs
}
