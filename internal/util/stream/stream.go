package stream

import (
	"os"

	"github.com/mattn/go-isatty"
)

type Optimization struct {
	Name string
	// Returns os.ErrInvalid when the hint does not apply to the file type
	Action func(*os.File, os.FileInfo) error
}

func IsTTY(f interface{}) bool {
	if fh, isFh := f.(*os.File); isFh {
		return isatty.IsTerminal(fh.Fd()) || isatty.IsCygwinTerminal(fh.Fd())
	}
	return false
}
