package localfs

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/anjor/palprime/internal/source"
	"github.com/anjor/palprime/internal/util/stream"
)

type localSource struct {
	location    string
	noReadHints bool
}

func (s *localSource) Locate(fileIndex int) string {
	return source.ExpandLocation(s.location, fileIndex)
}

func (s *localSource) Open(fileIndex int) (io.ReadCloser, error) {
	path := s.Locate(fileIndex)

	fh, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", path, source.ErrNotFound)
	} else if err != nil {
		return nil, err
	}

	st, err := fh.Stat()
	if err != nil {
		fh.Close() //nolint:errcheck
		return nil, err
	}
	if st.IsDir() {
		fh.Close() //nolint:errcheck
		return nil, fmt.Errorf("%s is a directory", path)
	}

	if !s.noReadHints {
		for _, opt := range stream.ReadOptimizations {
			if err := opt.Action(fh, st); err != nil && err != os.ErrInvalid {
				log.Printf("Failed to apply read optimization hint '%s' to %s: %s\n", opt.Name, path, err)
			}
		}
	}

	return fh, nil
}
