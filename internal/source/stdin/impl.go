package stdin

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sync"
)

type stdinSource struct {
	mu     sync.Mutex
	opened bool
	// substituted in tests
	in io.Reader
}

func (*stdinSource) Locate(int) string { return "-" }

func (s *stdinSource) Open(fileIndex int) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil, fmt.Errorf("stdIN was already consumed, unable to provide file #%d", fileIndex)
	}
	s.opened = true

	if s.in != nil {
		return ioutil.NopCloser(s.in), nil
	}
	// closing stdIN is not our business
	return ioutil.NopCloser(os.Stdin), nil
}
