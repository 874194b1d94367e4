package source

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/anjor/palprime/internal/constants"
)

// ErrNotFound is returned (wrapped) by a Source whose file does not exist.
var ErrNotFound = errors.New("no such digit file")

type Source interface {
	// Open returns the raw byte stream of file fileIndex, header included.
	Open(fileIndex int) (io.ReadCloser, error)
	// Locate renders the location of file fileIndex for logs and records.
	Locate(fileIndex int) string
}

// Initializer builds a Source from `name_opt1_opt2` sub-arguments. On nil
// args the returned errors are the help text of the source.
type Initializer func(
	sourceCLISubArgs []string,
	cfg *PpConfig,
) (instance Source, initErrors []error)

type PpConfig struct {
	_ constants.Incomparabe

	// Template where IndexPlaceholder is replaced with the file index. An
	// empty template selects the source default.
	Location string
}

const IndexPlaceholder = "{index}"

func ExpandLocation(template string, fileIndex int) string {
	return strings.ReplaceAll(template, IndexPlaceholder, strconv.Itoa(fileIndex))
}
