package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

const (
	CompressionAuto = "auto"
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
	CompressionXz   = "xz"
)

var AvailableCompressions = map[string]struct{}{
	CompressionAuto: {},
	CompressionNone: {},
	CompressionGzip: {},
	CompressionZstd: {},
	CompressionXz:   {},
}

var magics = []struct {
	kind  string
	magic []byte
}{
	{CompressionGzip, []byte{0x1f, 0x8b}},
	{CompressionZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{CompressionXz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
}

// multiReadCloser closes every underlying layer, innermost last.
type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Sniff reports the compression a stream starts with, CompressionNone when
// it matches no known magic.
func Sniff(head []byte) string {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.kind
		}
	}
	return CompressionNone
}

// Decompress wraps rc according to mode. In auto mode the stream is sniffed
// without consuming anything. Closing the result closes rc as well.
func Decompress(rc io.ReadCloser, mode string) (io.ReadCloser, error) {

	if mode == CompressionNone {
		return rc, nil
	}

	br := bufio.NewReaderSize(rc, 64*1024)

	if mode == CompressionAuto {
		// a short or failing peek simply means no magic: let the reader
		// downstream surface any actual read error
		head, _ := br.Peek(6)
		mode = Sniff(head)
	}

	var dec io.Reader
	var decCloser io.Closer
	switch mode {
	case CompressionNone:
		return &multiReadCloser{Reader: br, closers: []io.Closer{rc}}, nil
	case CompressionGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			rc.Close() //nolint:errcheck
			return nil, fmt.Errorf("gzip stream initialization failed: %w", err)
		}
		dec, decCloser = gr, gr
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			rc.Close() //nolint:errcheck
			return nil, fmt.Errorf("zstd stream initialization failed: %w", err)
		}
		dec, decCloser = zr, closerFunc(func() error { zr.Close(); return nil })
	case CompressionXz:
		xr, err := xz.NewReader(br)
		if err != nil {
			rc.Close() //nolint:errcheck
			return nil, fmt.Errorf("xz stream initialization failed: %w", err)
		}
		dec, decCloser = xr, closerFunc(func() error { return nil })
	default:
		rc.Close() //nolint:errcheck
		return nil, fmt.Errorf("unknown compression '%s'", mode)
	}

	return &multiReadCloser{Reader: dec, closers: []io.Closer{decCloser, rc}}, nil
}
