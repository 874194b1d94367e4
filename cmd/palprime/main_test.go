package main

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/anjor/palprime"
	"github.com/anjor/palprime/internal/digits"
	"github.com/anjor/palprime/internal/util/stream"
)

const planted = "7331530558321238550351337"

// writeSample lays out a digit file whose payload is a repeating pattern
// with a prime palindrome embedded in it
func writeSample(t *testing.T) string {
	t.Helper()

	d := make([]byte, 19*4096)
	for i := range d {
		d[i] = byte((i * 7 / 3) % 10)
	}
	for i := range planted {
		d[50000+i] = planted[i] - '0'
	}

	path := filepath.Join(t.TempDir(), "sample.ycd")
	content := append([]byte("#Compressed Digit File\n\nEndHeader\n\n\x00"), digits.Encode(d)...)
	if err := ioutil.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// the JSONL minus the run-specific fields
func resultDigest(t *testing.T, out []byte) (sum [32]byte, results int) {
	t.Helper()

	h := sha256.New()
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		var rec struct {
			Event    string `json:"event"`
			Position uint64 `json:"position"`
			Width    int    `json:"width"`
			Value    string `json:"value"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatal(err)
		}
		if rec.Event == "result" {
			results++
		}
		fmt.Fprintf(h, "%s %d %d %s\n", rec.Event, rec.Position, rec.Width, rec.Value)
	}
	copy(sum[:], h.Sum(nil))
	return
}

func TestDeterministicResults(t *testing.T) {

	const TEST_ITERATIONS = 5

	samplePath := writeSample(t)

	var first [32]byte
	for iter := 0; iter < TEST_ITERATIONS; iter++ {
		mockStderr, mockStdout := new(bytes.Buffer), new(bytes.Buffer)

		pp, errs := palprime.NewWithWriters(
			mockStderr, mockStdout,
			"--min-width=15",
			"--inner-levels",
			"--block-size=4096",
			"--emit-stdout=results-jsonl",
		)
		if len(errs) > 0 {
			for _, err := range errs {
				t.Error(err)
			}
			t.FailNow()
		}

		mockOsStdin, err := os.Open(samplePath)
		if err != nil {
			t.Fatalf("Error: %s", err)
		}

		inStat, err := mockOsStdin.Stat()
		if err != nil {
			t.Fatal(err)
		}
		for _, opt := range stream.ReadOptimizations {
			if err := opt.Action(mockOsStdin, inStat); err != nil && err != os.ErrInvalid {
				log.Printf("Failed to apply read optimization hint '%s' to stdIN: %s\n", opt.Name, err)
			}
		}

		processErr := pp.ProcessReader(0, mockOsStdin, nil)
		pp.Destroy()
		mockOsStdin.Close() //nolint:errcheck
		if processErr != nil {
			t.Fatalf("Unexpected error processing sample: %s", processErr)
		}

		current, results := resultDigest(t, mockStdout.Bytes())
		if results == 0 {
			t.Fatalf("no results found in:\n%s", mockStdout.String())
		}

		if iter == 0 {
			first = current
		} else if current != first {
			t.Errorf("iteration %d: content sum does not match first content sum on iteration [ %s, %s ]", iter, hex.EncodeToString(first[:]), hex.EncodeToString(current[:]))
		}
	}
}
