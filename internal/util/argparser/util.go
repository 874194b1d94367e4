package argparser

import (
	"bytes"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/anjor/palprime/internal/constants"
	"github.com/pborman/getopt/v2"
)

// ugly as sin due to lack of lookaheads :/
var indenter = regexp.MustCompile(`(?m)^([^\n])`)
var nonOptIndenter = regexp.MustCompile(`(?m)^\s{0,12}([^\s\n\-])`)
var dashStripper = regexp.MustCompile(`(?m)^(\s*)\-\-`)

func SubHelp(description string, optSet *getopt.Set) (sh []error) {

	sh = append(
		sh,
		fmt.Errorf("%s", indenter.ReplaceAll(
			[]byte(description),
			[]byte(`  $1`),
		)),
	)

	if optSet == nil {
		return sh
	}

	b := bytes.NewBuffer(make([]byte, 0, 1024))
	optSet.PrintOptions(b)

	sh = append(sh, fmt.Errorf("  ------------\n   SubOptions"))
	sh = append(sh,
		fmt.Errorf("%s", dashStripper.ReplaceAll(
			nonOptIndenter.ReplaceAll(
				b.Bytes(),
				[]byte(`              $1`),
			),
			[]byte(`$1  `),
		)),
	)

	return sh
}

// SplitPluginSpec turns `name_opt1=v_opt2` into the plugin name and an
// argv-style slice suitable for Parse: `[name --opt1=v --opt2]`.
func SplitPluginSpec(spec string) (name string, args []string) {
	args = strings.Split(spec, "_")
	for n := range args {
		if n > 0 {
			args[n] = "--" + args[n]
		}
	}
	return args[0], args
}

var maxPlaceholder = regexp.MustCompile(`\bMaxWidth\b`)

// Parse processes args against optSet and validates every option whose
// placeholder is a `[min:max]` or `[min:]` range. Options not supplied on
// the command line are validated through their default, an empty default
// means the option is mandatory.
func Parse(args []string, optSet *getopt.Set) (argErrs []error) {

	if err := optSet.Getopt(args, nil); err != nil {
		argErrs = append(argErrs, err)
	}

	unexpectedArgs := optSet.Args()
	if len(unexpectedArgs) != 0 {
		argErrs = append(argErrs, fmt.Errorf(
			"unexpected free-form parameter(s): %s...",
			unexpectedArgs[0],
		))
	}

	// going through the limits when we are already in error is too confusing
	if len(argErrs) > 0 {
		return
	}

	optSet.VisitAll(func(o getopt.Option) {
		if spec := []byte(reflect.ValueOf(o).Elem().FieldByName("name").String()); len(spec) > 0 {

			max := int64((^uint64(0)) >> 1)
			min := -max - 1

			if spec[0] == '[' && spec[len(spec)-1] == ']' {
				spec = maxPlaceholder.ReplaceAll(spec, []byte(fmt.Sprintf("%d", constants.MaxWidth)))

				if _, err := fmt.Sscanf(string(spec), "[%d:%d]", &min, &max); err != nil {
					if _, err := fmt.Sscanf(string(spec), "[%d:]", &min); err != nil {
						argErrs = append(argErrs, fmt.Errorf("Failed parsing '%s' as '[%%d:%%d]' - %s", spec, err))
						return
					}
				}
			} else {
				// not a spec we recognize
				return
			}

			val := o.Value().String()
			if !o.Seen() && val == "" {
				argErrs = append(argErrs, fmt.Errorf("a value for %s must be specified", o.LongName()))
				return
			}

			actual, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				argErrs = append(argErrs, fmt.Errorf("value '%s' supplied for %s is not an integer", val, o.LongName()))
				return
			}

			if actual < min || actual > max {
				argErrs = append(argErrs, fmt.Errorf(
					"value '%d' supplied for %s out of range [%d:%d]",
					actual,
					o.LongName(),
					min, max,
				))
			}
		}
	})

	return
}
