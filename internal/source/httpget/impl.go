package httpget

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/anjor/palprime/internal/source"
)

type httpSource struct {
	location   string
	retries    int
	timeoutSec int
	backoffMs  int
	client     *http.Client
}

func (s *httpSource) Locate(fileIndex int) string {
	return source.ExpandLocation(s.location, fileIndex)
}

func (s *httpSource) Open(fileIndex int) (io.ReadCloser, error) {
	u := s.Locate(fileIndex)
	delay := time.Duration(s.backoffMs) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			log.Printf("Retrying %s in %s (attempt %d of %d): %s", u, delay, attempt, s.retries, lastErr)
			time.Sleep(delay)
			delay *= 2
		}

		body, retry, err := s.get(u)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, lastErr
}

func (s *httpSource) get(u string) (body io.ReadCloser, retry bool, err error) {
	resp, err := s.client.Get(u)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, false, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close() //nolint:errcheck
		return nil, false, fmt.Errorf("%s: %w", u, source.ErrNotFound)
	default:
		resp.Body.Close() //nolint:errcheck
		// client errors other than the above will not improve on retry
		return nil, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, fmt.Errorf(
			"GET %s returned unexpected status '%s'",
			u,
			resp.Status,
		)
	}
}
