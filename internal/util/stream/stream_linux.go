package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

var ReadOptimizations = []Optimization{
	{
		Name: "fadvise_sequential",
		Action: func(f *os.File, s os.FileInfo) error {
			if !s.Mode().IsRegular() {
				return os.ErrInvalid
			}
			return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
		},
	},
	{
		Name: "fadvise_noreuse",
		Action: func(f *os.File, s os.FileInfo) error {
			if !s.Mode().IsRegular() {
				return os.ErrInvalid
			}
			return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_NOREUSE)
		},
	},
	{
		Name: "pipe_size",
		Action: func(f *os.File, s os.FileInfo) error {
			if s.Mode()&os.ModeNamedPipe == 0 {
				return os.ErrInvalid
			}
			_, err := unix.FcntlInt(f.Fd(), unix.F_SETPIPE_SZ, 1<<20)
			return err
		},
	},
}
