package palprime

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/anjor/palprime/internal/constants"
	"github.com/anjor/palprime/internal/digits"
)

const knownPalindrome = "7331530558321238550351337"
const testHeader = "#Compressed Digit File\n\nFileVersion:\t1.1.0\n\nBase:\t10\n\nEndHeader\n\n\x00"
const testDigitsPerFile = 40 * constants.GroupDigits

// digitFiles is a synthetic run of .ycd files made of zeros, which can never
// hold a prime palindrome, with known palindromes planted at chosen positions
type digitFiles struct {
	dir    string
	files  int
	suffix string
	all    []byte
}

func newDigitFiles(t *testing.T, files int) *digitFiles {
	return &digitFiles{
		dir:    t.TempDir(),
		files:  files,
		suffix: ".ycd",
		all:    make([]byte, files*testDigitsPerFile),
	}
}

// plant places s at the 1-based absolute position pos
func (df *digitFiles) plant(pos int64, s string) {
	for i := range s {
		df.all[pos-1+int64(i)] = s[i] - '0'
	}
}

func (df *digitFiles) payload(idx int) []byte {
	return digits.Encode(df.all[idx*testDigitsPerFile : (idx+1)*testDigitsPerFile])
}

func (df *digitFiles) path(idx int) string {
	return filepath.Join(df.dir, fmt.Sprintf("pi-%d%s", idx, df.suffix))
}

func (df *digitFiles) writeRaw(t *testing.T, idx int, content []byte) {
	t.Helper()
	if err := ioutil.WriteFile(df.path(idx), content, 0644); err != nil {
		t.Fatal(err)
	}
}

func (df *digitFiles) write(t *testing.T, skip ...int) {
	t.Helper()
files:
	for idx := 0; idx < df.files; idx++ {
		for _, s := range skip {
			if s == idx {
				continue files
			}
		}
		df.writeRaw(t, idx, append([]byte(testHeader), df.payload(idx)...))
	}
}

func (df *digitFiles) args(extra ...string) []string {
	return append([]string{
		"--source=file",
		"--location=" + filepath.Join(df.dir, "pi-"+"{index}"+df.suffix),
		"--first-file=0",
		fmt.Sprintf("--last-file=%d", df.files-1),
		fmt.Sprintf("--digits-per-file=%d", testDigitsPerFile),
		"--min-width=25",
		"--block-size=64",
	}, extra...)
}

func newTestRun(t *testing.T, args []string) (pp *Palprime, stdout, stderr *bytes.Buffer) {
	t.Helper()

	stderr, stdout = new(bytes.Buffer), new(bytes.Buffer)
	pp, errs := NewWithWriters(stderr, stdout, args...)
	for _, err := range errs {
		t.Error(err)
	}
	if len(errs) > 0 {
		t.FailNow()
	}

	epoch := time.Unix(1600000000, 0)
	pp.now = func() time.Time { return epoch }
	pp.runID = "00000000-0000-0000-0000-000000000000"
	pp.statSummary.RunID = pp.runID

	return pp, stdout, stderr
}

func jsonlRecords(t *testing.T, out *bytes.Buffer, event string) (recs []map[string]interface{}) {
	t.Helper()
	sc := bufio.NewScanner(bytes.NewReader(out.Bytes()))
	for sc.Scan() {
		var rec map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("malformed JSONL line %q: %s", sc.Text(), err)
		}
		if rec["event"] == event {
			recs = append(recs, rec)
		}
	}
	return
}

func TestPlantedPalindrome(t *testing.T) {
	df := newDigitFiles(t, 3)
	df.plant(testDigitsPerFile+101, knownPalindrome)
	df.write(t)

	pp, stdout, _ := newTestRun(t, df.args())
	if err := pp.ProcessFiles(nil); err != nil {
		t.Fatal(err)
	}
	pp.Destroy()

	want := strings.Join([]string{
		"finished file 0 after 0s",
		"after 0s at 861: " + knownPalindrome,
		"finished file 1 after 0s",
		"finished file 2 after 0s",
		"time elapsed is 0s",
		"",
	}, "\n")
	if got := stdout.String(); got != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", got, want)
	}

	if pp.statSummary.FinalFloor != 27 {
		t.Errorf("final minimum width %d, want 27", pp.statSummary.FinalFloor)
	}
	if pp.statSummary.Results != 1 || pp.statSummary.Files.Scanned != 3 {
		t.Errorf("unexpected summary %+v", pp.statSummary)
	}
	if pp.statSummary.Payload.Digits != 3*testDigitsPerFile {
		t.Errorf("scanned %d digits, want %d", pp.statSummary.Payload.Digits, 3*testDigitsPerFile)
	}
}

func TestDeterministicJsonlContent(t *testing.T) {
	df := newDigitFiles(t, 3)
	df.plant(500, knownPalindrome)
	df.write(t)

	const TEST_ITERATIONS = 10

	var first [32]byte
	for iter := 0; iter < TEST_ITERATIONS; iter++ {
		pp, stdout, _ := newTestRun(t, df.args(
			"--emit-stdout=results-jsonl",
			"--payload-hash=sha2-256",
		))

		if err := pp.ProcessFiles(nil); err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		pp.Destroy()

		if iter == 0 {
			first = sha256.Sum256(stdout.Bytes())

			res := jsonlRecords(t, stdout, "result")
			if len(res) != 1 ||
				res[0]["value"] != knownPalindrome ||
				res[0]["position"] != float64(500) ||
				res[0]["width"] != float64(25) ||
				res[0]["file"] != float64(0) {
				t.Fatalf("unexpected results %v", res)
			}

			eofs := jsonlRecords(t, stdout, "eof")
			if len(eofs) != 3 {
				t.Fatalf("expected 3 end-of-file records, got %d", len(eofs))
			}
			for i, rec := range eofs {
				if rec["file"] != float64(i) || rec["hashFunc"] != "sha2-256" {
					t.Errorf("unexpected end-of-file record %v", rec)
				}
				hash, _ := rec["hash"].(string)
				if !strings.HasPrefix(hash, "k") {
					t.Errorf("hash %q is not base36 multibase", hash)
				}
			}
		} else {
			current := sha256.Sum256(stdout.Bytes())
			if current != first {
				t.Errorf("iteration %d: content sum does not match first content sum on iteration [ %s, %s ]", iter, hex.EncodeToString(first[:]), hex.EncodeToString(current[:]))
			}
		}
	}
}

func TestPalindromeAcrossFiles(t *testing.T) {
	df := newDigitFiles(t, 3)
	pos := int64(testDigitsPerFile - 10)
	df.plant(pos, knownPalindrome)
	df.write(t)

	t.Run("sequential", func(t *testing.T) {
		pp, stdout, _ := newTestRun(t, df.args("--emit-stdout=results-jsonl"))
		if err := pp.ProcessFiles(nil); err != nil {
			t.Fatal(err)
		}

		res := jsonlRecords(t, stdout, "result")
		if len(res) != 1 || res[0]["position"] != float64(pos) || res[0]["file"] != float64(0) {
			t.Errorf("expected the straddling palindrome at %d, got %v", pos, res)
		}
		if pp.statSummary.Discontinuities != 0 {
			t.Errorf("unexpected discontinuities: %d", pp.statSummary.Discontinuities)
		}
	})

	t.Run("workers", func(t *testing.T) {
		pp, stdout, _ := newTestRun(t, df.args("--emit-stdout=results-jsonl", "--workers=3"))
		if err := pp.ProcessFiles(nil); err != nil {
			t.Fatal(err)
		}

		// files are scanned in isolation
		if res := jsonlRecords(t, stdout, "result"); len(res) != 0 {
			t.Errorf("expected no results, got %v", res)
		}
		if eofs := jsonlRecords(t, stdout, "eof"); len(eofs) != 3 {
			t.Errorf("expected 3 end-of-file records, got %d", len(eofs))
		}
	})
}

func TestMissingFileBreaksContinuity(t *testing.T) {
	df := newDigitFiles(t, 3)
	df.plant(testDigitsPerFile-10, knownPalindrome)
	df.plant(2*testDigitsPerFile+300, knownPalindrome)
	df.write(t, 1)

	pp, stdout, _ := newTestRun(t, df.args("--emit-stdout=results-jsonl"))
	err := pp.ProcessFiles(nil)
	if !errors.Is(err, ErrSourceOpen) {
		t.Fatalf("expected an %q error, got: %v", ErrSourceOpen, err)
	}

	// the straddling one is lost, the one in file 2 is still found
	res := jsonlRecords(t, stdout, "result")
	if len(res) != 1 || res[0]["position"] != float64(2*testDigitsPerFile+300) {
		t.Errorf("unexpected results %v", res)
	}

	eofs := jsonlRecords(t, stdout, "eof")
	if len(eofs) != 3 {
		t.Fatalf("expected 3 end-of-file records, got %d", len(eofs))
	}
	for i, rec := range eofs {
		_, hasErr := rec["error"]
		if hasErr != (i == 1) {
			t.Errorf("file %d: unexpected error state in %v", i, rec)
		}
	}

	s := pp.statSummary
	if s.Files.Failed != 1 || s.Files.Scanned != 2 || len(s.Files.FailedIndexes) != 1 || s.Files.FailedIndexes[0] != 1 {
		t.Errorf("unexpected file accounting %+v", s.Files)
	}
	if s.Discontinuities != 1 {
		t.Errorf("expected 1 discontinuity, got %d", s.Discontinuities)
	}
}

func TestHeaderHandling(t *testing.T) {
	t.Run("no separator", func(t *testing.T) {
		df := newDigitFiles(t, 1)
		df.writeRaw(t, 0, []byte("#Compressed Digit File\n\nFileVersion:\t1.1.0\n"))

		pp, _, _ := newTestRun(t, df.args())
		if err := pp.ProcessFiles(nil); !errors.Is(err, ErrNoPayload) {
			t.Errorf("expected %q, got: %v", ErrNoPayload, err)
		}
	})

	t.Run("oversized", func(t *testing.T) {
		df := newDigitFiles(t, 1)
		df.plant(100, knownPalindrome)
		df.write(t)

		pp, _, _ := newTestRun(t, df.args("--max-header=16"))
		if err := pp.ProcessFiles(nil); !errors.Is(err, ErrNoPayload) {
			t.Errorf("expected %q, got: %v", ErrNoPayload, err)
		}
		if pp.statSummary.Results != 0 {
			t.Errorf("nothing should have been scanned")
		}
	})

	t.Run("counted", func(t *testing.T) {
		df := newDigitFiles(t, 2)
		df.write(t)

		pp, _, _ := newTestRun(t, df.args())
		if err := pp.ProcessFiles(nil); err != nil {
			t.Fatal(err)
		}
		if want := int64(2 * len(testHeader)); pp.statSummary.Payload.HeaderBytes != want {
			t.Errorf("header bytes %d, want %d", pp.statSummary.Payload.HeaderBytes, want)
		}
	})
}

func TestMalformedGroup(t *testing.T) {
	df := newDigitFiles(t, 1)
	df.plant(400, knownPalindrome)
	payload := df.payload(0)
	binary.LittleEndian.PutUint64(payload[3*constants.GroupBytes:], math.MaxUint64)
	df.writeRaw(t, 0, append([]byte(testHeader), payload...))

	t.Run("strict", func(t *testing.T) {
		pp, _, _ := newTestRun(t, df.args())
		if err := pp.ProcessFiles(nil); !errors.Is(err, ErrMalformedGroup) {
			t.Fatalf("expected %q, got: %v", ErrMalformedGroup, err)
		}
		if pp.statSummary.Files.Failed != 1 {
			t.Errorf("file not counted as failed")
		}
	})

	t.Run("lenient", func(t *testing.T) {
		pp, stdout, _ := newTestRun(t, df.args("--lenient-groups", "--emit-stdout=results-jsonl"))
		if err := pp.ProcessFiles(nil); err != nil {
			t.Fatal(err)
		}
		if pp.statSummary.Scan == nil || pp.statSummary.Scan.BadGroups != 1 {
			t.Errorf("expected one oversized group in %+v", pp.statSummary.Scan)
		}
		if res := jsonlRecords(t, stdout, "result"); len(res) != 1 || res[0]["position"] != float64(400) {
			t.Errorf("unexpected results %v", res)
		}
	})
}

func TestTailPolicy(t *testing.T) {
	df := newDigitFiles(t, 1)
	// 48-byte blocks leave the last 4 groups as a short tail
	df.plant(701, knownPalindrome)
	df.writeRaw(t, 0, append(append([]byte(testHeader), df.payload(0)...), 1, 2, 3, 4, 5))

	for _, tc := range []struct {
		policy      string
		wantResults int
		wantDropped int64
	}{
		{"drop", 0, 37},
		{"scan", 1, 5},
	} {
		t.Run(tc.policy, func(t *testing.T) {
			pp, stdout, _ := newTestRun(t, df.args(
				"--block-size=48",
				"--tail="+tc.policy,
				"--emit-stdout=results-jsonl",
			))
			if err := pp.ProcessFiles(nil); err != nil {
				t.Fatal(err)
			}

			res := jsonlRecords(t, stdout, "result")
			if len(res) != tc.wantResults {
				t.Errorf("got %d results, want %d", len(res), tc.wantResults)
			}
			if pp.statSummary.Payload.DroppedBytes != tc.wantDropped {
				t.Errorf("dropped %d tail bytes, want %d", pp.statSummary.Payload.DroppedBytes, tc.wantDropped)
			}
			if want := int64(40*constants.GroupBytes + 5); pp.statSummary.Payload.Bytes != want {
				t.Errorf("payload bytes %d, want %d", pp.statSummary.Payload.Bytes, want)
			}
		})
	}
}

func TestCompressedInput(t *testing.T) {
	for _, tc := range []struct {
		kind   string
		writer func(io.Writer) (io.WriteCloser, error)
	}{
		{"gzip", func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil }},
		{"zstd", func(w io.Writer) (io.WriteCloser, error) { return zstd.NewWriter(w) }},
		{"xz", func(w io.Writer) (io.WriteCloser, error) { return xz.NewWriter(w) }},
	} {
		t.Run(tc.kind, func(t *testing.T) {
			df := newDigitFiles(t, 2)
			df.suffix = ".ycd." + tc.kind
			df.plant(testDigitsPerFile+7, knownPalindrome)

			for idx := 0; idx < df.files; idx++ {
				var buf bytes.Buffer
				w, err := tc.writer(&buf)
				if err != nil {
					t.Fatal(err)
				}
				if _, err := w.Write(append([]byte(testHeader), df.payload(idx)...)); err != nil {
					t.Fatal(err)
				}
				if err := w.Close(); err != nil {
					t.Fatal(err)
				}
				df.writeRaw(t, idx, buf.Bytes())
			}

			for _, mode := range []string{"auto", tc.kind} {
				pp, stdout, _ := newTestRun(t, df.args("--decompress="+mode, "--emit-stdout=results-jsonl"))
				if err := pp.ProcessFiles(nil); err != nil {
					t.Fatal(err)
				}
				if res := jsonlRecords(t, stdout, "result"); len(res) != 1 || res[0]["position"] != float64(testDigitsPerFile+7) {
					t.Errorf("%s: unexpected results %v", mode, res)
				}
			}
		})
	}
}

func TestWorkersOrdering(t *testing.T) {
	df := newDigitFiles(t, 5)
	for idx := 0; idx < df.files; idx++ {
		df.plant(int64(idx*testDigitsPerFile+200), knownPalindrome)
	}
	df.write(t)

	seq, seqOut, _ := newTestRun(t, df.args("--emit-stdout=results-jsonl"))
	if err := seq.ProcessFiles(nil); err != nil {
		t.Fatal(err)
	}
	// the minimum width grew past the planted width after the first find
	if res := jsonlRecords(t, seqOut, "result"); len(res) != 1 {
		t.Errorf("sequential: expected 1 result, got %d", len(res))
	}

	par, parOut, _ := newTestRun(t, df.args("--emit-stdout=results-jsonl", "--workers=3"))
	if err := par.ProcessFiles(nil); err != nil {
		t.Fatal(err)
	}

	res := jsonlRecords(t, parOut, "result")
	if len(res) != df.files {
		t.Fatalf("workers: expected %d results, got %d", df.files, len(res))
	}
	for i, r := range res {
		if r["file"] != float64(i) || r["position"] != float64(i*testDigitsPerFile+200) {
			t.Errorf("workers: result %d out of order: %v", i, r)
		}
	}

	// results and end-of-file records interleave in file order
	var lastFile float64 = -1
	sc := bufio.NewScanner(bytes.NewReader(parOut.Bytes()))
	for sc.Scan() {
		var rec struct {
			Event string  `json:"event"`
			File  float64 `json:"file"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatal(err)
		}
		if rec.File < lastFile {
			t.Fatalf("file %v emitted after file %v", rec.File, lastFile)
		}
		lastFile = rec.File
	}

	if par.statSummary.Results != int64(df.files) || len(par.statSummary.SysStats.WorkerRingbufs) != 3 {
		t.Errorf("unexpected summary %+v", par.statSummary)
	}
}

func TestProcessReader(t *testing.T) {
	df := newDigitFiles(t, 2)
	df.plant(testDigitsPerFile+101, knownPalindrome)

	pp, stdout, _ := newTestRun(t, df.args())
	err := pp.ProcessReader(
		1,
		bytes.NewReader(append([]byte(testHeader), df.payload(1)...)),
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(stdout.String(), "at 861: "+knownPalindrome+"\n") {
		t.Errorf("unexpected output:\n%s", stdout.String())
	}
}

func TestSmallestBlockSize(t *testing.T) {
	df := newDigitFiles(t, 2)
	df.plant(testDigitsPerFile+101, knownPalindrome)

	pp, stdout, _ := newTestRun(t, df.args("--block-size=8", "--emit-stdout=results-jsonl"))
	if pp.cfg.RingBufferMinRead != pp.regionSize() || pp.regionSize() != 64*1024 {
		t.Errorf("read size %d not lowered to the region size %d", pp.cfg.RingBufferMinRead, pp.regionSize())
	}

	err := pp.ProcessReader(
		1,
		bytes.NewReader(append([]byte(testHeader), df.payload(1)...)),
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	res := jsonlRecords(t, stdout, "result")
	if len(res) != 1 || res[0]["position"] != float64(testDigitsPerFile+101) {
		t.Errorf("unexpected results %v", res)
	}
	if pp.statSummary.Scan.Blocks != 40 {
		t.Errorf("expected one block per group, got %d blocks", pp.statSummary.Scan.Blocks)
	}
}

func TestEvents(t *testing.T) {
	df := newDigitFiles(t, 3)
	df.plant(testDigitsPerFile+101, knownPalindrome)
	df.write(t, 2)

	pp, _, _ := newTestRun(t, df.args("--emit-stdout=none"))

	events := make(chan IngestionEvent)
	counts := make(chan map[IngestionEventType]int)
	go func() {
		c := make(map[IngestionEventType]int)
		for ev := range events {
			c[ev.Type]++
		}
		counts <- c
	}()

	if err := pp.ProcessFiles(events); err == nil {
		t.Error("expected an error from the missing file")
	}

	c := <-counts
	if c[ResultJsonl] != 1 || c[FileEndJsonl] != 3 || c[ErrorString] != 1 {
		t.Errorf("unexpected event counts %v", c)
	}
}

func TestSummary(t *testing.T) {
	df := newDigitFiles(t, 2)
	df.plant(42, knownPalindrome)
	df.write(t)

	pp, _, stderr := newTestRun(t, df.args("--emit-stderr=stats-jsonl,stats-text", "--emit-stdout=none"))
	if err := pp.ProcessFiles(nil); err != nil {
		t.Fatal(err)
	}
	pp.OutputSummary()

	sums := jsonlRecords(t, bytes.NewBuffer([]byte(strings.SplitN(stderr.String(), "\n", 2)[0])), "summary")
	if len(sums) != 1 {
		t.Fatalf("expected a summary line, got:\n%s", stderr.String())
	}
	files := sums[0]["files"].(map[string]interface{})
	if files["scanned"] != float64(2) || sums[0]["results"] != float64(1) || sums[0]["finalMinWidth"] != float64(27) {
		t.Errorf("unexpected summary %v", sums[0])
	}
	if sums[0]["run"] != pp.RunID() {
		t.Errorf("summary run id %v, want %s", sums[0]["run"], pp.RunID())
	}

	if !strings.Contains(stderr.String(), "Found 1 prime palindromes") {
		t.Errorf("text summary missing:\n%s", stderr.String())
	}
}

func TestArgErrors(t *testing.T) {
	for _, tc := range []struct {
		args []string
		want string
	}{
		{[]string{"--min-width=30", "--max-width=20"}, "exceeds --max-width"},
		{[]string{"--min-width=38"}, "supplied for min-width out of range"},
		{[]string{"--block-size=12"}, "not a multiple of 8"},
		{[]string{"--tail=keep"}, "--tail"},
		{[]string{"--source=nope"}, "Source 'nope' not found"},
		{[]string{"--emit-stdout=bogus"}, "invalid emitter 'bogus'"},
		{[]string{"--emit-stdout=results-text", "--emit-stderr=results-text"}, "more than once"},
		{[]string{"--payload-hash=md5"}, "Hash function 'md5'"},
		{[]string{"--decompress=rar"}, "--decompress 'rar'"},
		{[]string{"--first-file=5", "--last-file=2"}, "precedes --first-file"},
		{[]string{"--bogus"}, "unknown option"},
		{[]string{"--block-size=8", "--ring-buffer-min-sysread=131072"}, "exceeds the ring buffer region size"},
	} {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			_, errs := NewWithWriters(ioutil.Discard, ioutil.Discard, tc.args...)
			if len(errs) == 0 {
				t.Fatal("expected an error")
			}
			var found bool
			for _, err := range errs {
				if strings.Contains(err.Error(), tc.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("no error containing %q in %v", tc.want, errs)
			}
		})
	}
}
