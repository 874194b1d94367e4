package palprime

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"time"

	"github.com/ipfs/go-qringbuf"

	"github.com/anjor/palprime/internal/chunker"
	"github.com/anjor/palprime/internal/constants"
	"github.com/anjor/palprime/internal/digits"
	"github.com/anjor/palprime/internal/hasher"
	"github.com/anjor/palprime/internal/palindrome"
	"github.com/anjor/palprime/internal/source"
	"github.com/anjor/palprime/internal/util/text"
)

var (
	// ErrNoPayload is returned when a file ends, or exceeds --max-header,
	// before the 0x00 byte separating the header from the payload.
	ErrNoPayload = errors.New("no payload separator found")

	// ErrMalformedGroup is returned when a payload group holds a value that
	// does not fit 19 decimal digits.
	ErrMalformedGroup = errors.New("group value exceeds 19 decimal digits")

	// ErrSourceOpen wraps every failure to acquire a file.
	ErrSourceOpen = errors.New("unable to open digit file")
)

const (
	ErrorString = IngestionEventType(iota)
	ResultJsonl
	FileEndJsonl
)

type IngestionEvent struct {
	_    constants.Incomparabe
	Type IngestionEventType
	Body string
}
type IngestionEventType int

// SANCHECK - we probably want some sort of timeout or somesuch here...
func (pp *Palprime) maybeSendEvent(t IngestionEventType, s string) {
	if pp.externalEventBus != nil {
		pp.externalEventBus <- IngestionEvent{Type: t, Body: s}
	}
}

var preProcessTasks, postProcessTasks func(pp *Palprime)

// an output failure ends the run, unlike a failure of an individual file
type emissionError struct{ error }

func (e emissionError) Unwrap() error { return e.error }

type resultRecord struct {
	Event        string `json:"event"`
	Run          string `json:"run"`
	File         int64  `json:"file"`
	Position     uint64 `json:"position"`
	Width        int    `json:"width"`
	Value        string `json:"value"`
	ElapsedNsecs int64  `json:"elapsedNanoseconds"`
}

type fileEndRecord struct {
	Event        string `json:"event"`
	Run          string `json:"run"`
	File         int    `json:"file"`
	Location     string `json:"location"`
	HeaderBytes  int64  `json:"headerBytes"`
	PayloadBytes int64  `json:"payloadBytes"`
	Digits       int64  `json:"digits"`
	Results      int64  `json:"results"`
	Floor        int    `json:"floor"`
	HashFunc     string `json:"hashFunc,omitempty"`
	Hash         string `json:"hash,omitempty"`
	Error        string `json:"error,omitempty"`
	ElapsedNsecs int64  `json:"elapsedNanoseconds"`
}

// fileScan is the state of one file passing through a scanner
type fileScan struct {
	_       constants.Incomparabe
	rec     fileEndRecord
	scanner *palindrome.Scanner
	emit    palindrome.EmitFunc
	hash    *hasher.Sink
	rbStats *qringbuf.Stats
	dropped int64
}

// ProcessFiles scans every configured file in order. Per-file failures are
// logged, recorded in the end-of-file record and counted, the run then
// proceeds with the next file and returns an error once done.
func (pp *Palprime) ProcessFiles(optionalEventChan chan<- IngestionEvent) (err error) {

	pp.externalEventBus = optionalEventChan
	defer func() {
		if err != nil {
			pp.maybeSendEvent(ErrorString, err.Error())
		}

		if postProcessTasks != nil {
			postProcessTasks(pp)
		}
		pp.statSummary.SysStats.ElapsedNsecs = pp.elapsed().Nanoseconds()

		if pp.externalEventBus != nil {
			close(pp.externalEventBus)
			pp.externalEventBus = nil
		}
	}()

	if preProcessTasks != nil {
		preProcessTasks(pp)
	}
	pp.t0 = pp.now()
	pp.statSummary.Files.Requested = int64(pp.cfg.LastFile - pp.cfg.FirstFile + 1)

	var firstFailure error
	if pp.cfg.Workers > 1 {
		firstFailure, err = pp.processParallel()
	} else {
		firstFailure, err = pp.processSequential()
	}
	if err != nil {
		return err
	}

	if w := pp.cfg.emitters[emResultsText]; w != nil {
		if _, err = fmt.Fprintf(w, "time elapsed is %s\n", pp.elapsed()); err != nil {
			return fmt.Errorf("emitting '%s' failed: %w", emResultsText, err)
		}
	}

	if firstFailure != nil {
		return fmt.Errorf(
			"%d out of %d files failed, the first one with: %w",
			pp.statSummary.Files.Failed,
			pp.statSummary.Files.Requested,
			firstFailure,
		)
	}
	return nil
}

// ProcessReader scans an already opened stream as the file with the given
// index, bypassing the configured source.
func (pp *Palprime) ProcessReader(fileIndex int, r io.Reader, optionalEventChan chan<- IngestionEvent) error {
	pp.source = &readerSource{index: fileIndex, r: r}
	pp.cfg.FirstFile = fileIndex
	pp.cfg.LastFile = fileIndex
	return pp.ProcessFiles(optionalEventChan)
}

type readerSource struct {
	index int
	r     io.Reader
}

func (rs *readerSource) Locate(fileIndex int) string { return "-" }
func (rs *readerSource) Open(fileIndex int) (io.ReadCloser, error) {
	if fileIndex != rs.index || rs.r == nil {
		return nil, source.ErrNotFound
	}
	r := rs.r
	rs.r = nil
	return ioutil.NopCloser(r), nil
}

func (pp *Palprime) elapsed() time.Duration { return pp.now().Sub(pp.t0) }

func (pp *Palprime) processSequential() (firstFailure, err error) {

	sc := pp.scanner
	var runOpen bool

	closeRun := func() error {
		if !runOpen {
			return nil
		}
		runOpen = false
		if pp.cfg.TailPolicy == tailScan {
			return sc.Flush(pp.emitNow)
		}
		return sc.Drain(pp.emitNow)
	}

	defer func() {
		if cerr := closeRun(); cerr != nil && err == nil {
			err = cerr
		}

		st := sc.Stats()
		pp.statSummary.Results = st.Results
		pp.statSummary.FinalFloor = sc.Floor()
		pp.statSummary.Exhausted = sc.Exhausted()
		if pp.cfg.StatsActive&statsScan != 0 {
			pp.statSummary.Scan = &st
		}
	}()

	for idx := pp.cfg.FirstFile; idx <= pp.cfg.LastFile; idx++ {

		if sc.Exhausted() {
			log.Printf(
				"Minimum width %d exceeds the maximum width %d, nothing further can be found: stopping before file #%d",
				sc.Floor(), pp.cfg.MaxWidth, idx,
			)
			pp.statSummary.Files.Skipped = int64(pp.cfg.LastFile - idx + 1)
			break
		}

		fs := &fileScan{
			rec:     pp.newFileEndRecord(idx),
			scanner: sc,
			emit:    pp.emitNow,
			hash:    hasher.NewSink(pp.cfg.hashFunc),
			rbStats: &pp.statSummary.SysStats.Stats,
		}
		base := pp.basePosition(idx)
		resultsBefore := sc.Stats().Results

		fileErr := pp.openAndScan(fs, func() error {
			// carry survives only across exactly contiguous files
			if runOpen && sc.End() != base {
				if err := closeRun(); err != nil {
					return err
				}
			}
			if !runOpen {
				sc.Start(base)
				runOpen = true
			}
			return nil
		})

		if fileErr == nil && (idx == pp.cfg.LastFile || sc.End() != pp.basePosition(idx+1)) {
			fileErr = closeRun()
		}

		var emErr emissionError
		if errors.As(fileErr, &emErr) {
			return firstFailure, fileErr
		}

		if idx != pp.cfg.LastFile && (fileErr != nil || sc.End() != pp.basePosition(idx+1)) {
			pp.statSummary.Discontinuities++
			if fileErr == nil {
				log.Printf(
					"File #%d ends at digit position %s instead of %s, no carry into file #%d",
					idx,
					text.Commify64(sc.End()),
					text.Commify64(pp.basePosition(idx+1)),
					idx+1,
				)
			}
		}

		fs.rec.Results = sc.Stats().Results - resultsBefore
		fs.rec.Floor = sc.Floor()

		if fileErr != nil {
			// digits decoded so far stay valid, the run just cannot continue
			if cerr := closeRun(); cerr != nil {
				return firstFailure, cerr
			}
			if firstFailure == nil {
				firstFailure = fileErr
			}
		}

		if err := pp.finishFile(fs, fileErr, pp.elapsed()); err != nil {
			return firstFailure, err
		}
	}

	return firstFailure, nil
}

func (pp *Palprime) basePosition(fileIndex int) int64 {
	return int64(fileIndex)*pp.cfg.DigitsPerFile + 1
}

func (pp *Palprime) newFileEndRecord(fileIndex int) fileEndRecord {
	return fileEndRecord{
		Event:    "eof",
		Run:      pp.runID,
		File:     fileIndex,
		Location: pp.source.Locate(fileIndex),
	}
}

// finishFile accounts for a completed or failed file and emits its
// end-of-file record
func (pp *Palprime) finishFile(fs *fileScan, fileErr error, elapsed time.Duration) error {

	s := &pp.statSummary
	s.Payload.HeaderBytes += fs.rec.HeaderBytes
	s.Payload.Bytes += fs.rec.PayloadBytes
	s.Payload.Digits += fs.rec.Digits
	s.Payload.DroppedBytes += fs.dropped

	if fileErr != nil {
		log.Printf("File #%d (%s) failed: %s", fs.rec.File, fs.rec.Location, fileErr)
		s.Files.Failed++
		s.Files.FailedIndexes = append(s.Files.FailedIndexes, fs.rec.File)
		fs.rec.Error = fileErr.Error()
	} else {
		s.Files.Scanned++
		if fs.hash != nil {
			fs.rec.HashFunc = fs.hash.Name()
			fs.rec.Hash = pp.formattedDigest(fs.hash.Digest())
		}
	}

	return pp.emitFileEnd(fs.rec, elapsed)
}

// openAndScan acquires a file and streams it through fs.scanner. The
// position callback runs once the payload is located, right before the
// first block is fed.
func (pp *Palprime) openAndScan(fs *fileScan, position func() error) error {

	rc, err := pp.source.Open(fs.rec.File)
	if err != nil {
		return fmt.Errorf("%w #%d: %s", ErrSourceOpen, fs.rec.File, err)
	}
	if rc, err = source.Decompress(rc, pp.cfg.Decompress); err != nil {
		return fmt.Errorf("%w #%d: %s", ErrSourceOpen, fs.rec.File, err)
	}
	defer rc.Close() //nolint:errcheck

	br := bufio.NewReaderSize(rc, 64*1024)
	if fs.rec.HeaderBytes, err = skipHeader(br, pp.cfg.MaxHeader); err != nil {
		return err
	}

	if err := position(); err != nil {
		return err
	}

	return pp.scanPayload(fs, br)
}

func skipHeader(br *bufio.Reader, maxHeader int) (int64, error) {
	for n := 1; n <= maxHeader; n++ {
		b, err := br.ReadByte()
		if err == io.EOF {
			return int64(n - 1), fmt.Errorf(
				"stream ended after %s header bytes: %w",
				text.Commify(n-1),
				ErrNoPayload,
			)
		} else if err != nil {
			return int64(n - 1), err
		}
		if b == 0 {
			return int64(n), nil
		}
	}
	return int64(maxHeader), fmt.Errorf(
		"header exceeds %s bytes: %w",
		text.Commify(maxHeader),
		ErrNoPayload,
	)
}

func (pp *Palprime) scanPayload(fs *fileScan, r io.Reader) (err error) {

	qrb, err := qringbuf.NewFromReader(r, pp.ringBufferConfig(fs.rbStats))
	if err != nil {
		return err
	}

	defer func() {
		var emErr emissionError
		if err != nil && !errors.As(err, &emErr) {
			qrb.Lock()
			buffered := qrb.Buffered()
			qrb.Unlock()

			err = fmt.Errorf(
				"failure at payload byte offset %s of file #%d with %s bytes buffered/unprocessed: %w",
				text.Commify64(fs.rec.PayloadBytes),
				fs.rec.File,
				text.Commify(buffered),
				err,
			)
		}
	}()

	// begin reading and filling buffer
	if err = qrb.StartFill(0); err != nil {
		return err
	}

	var availableFromReader, processedFromReader int

	for {
		// evaluates processedFromReader and availableFromReader from *LAST* iteration
		workRegion, readErr := qrb.NextRegion(availableFromReader - processedFromReader)

		if workRegion == nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
		if readErr != nil && readErr != io.EOF {
			return readErr
		}

		buf := workRegion.Bytes()
		availableFromReader = len(buf)
		processedFromReader = 0

		err = pp.splitter.Split(
			buf,
			readErr == io.EOF,
			func(c chunker.Chunk) error {
				block := buf[processedFromReader : processedFromReader+c.Size]
				processedFromReader += c.Size
				if c.Tail {
					return pp.feedTail(fs, block)
				}
				return pp.feedBlock(fs, block)
			},
		)
		if err != nil || readErr == io.EOF {
			return err
		}
	}
}

func (pp *Palprime) feedBlock(fs *fileScan, block []byte) error {

	if !pp.cfg.LenientGroups {
		if g := digits.FirstOversizedGroup(block); g >= 0 {
			return fmt.Errorf(
				"group at payload byte offset %s: %w",
				text.Commify64(fs.rec.PayloadBytes+int64(g*constants.GroupBytes)),
				ErrMalformedGroup,
			)
		}
	}

	fs.hash.Write(block)
	fs.rec.PayloadBytes += int64(len(block))

	endBefore := fs.scanner.End()
	if _, err := fs.scanner.Feed(block, fs.emit); err != nil {
		return err
	}
	fs.rec.Digits += fs.scanner.End() - endBefore

	return nil
}

// feedTail disposes of the final short block according to the tail policy
func (pp *Palprime) feedTail(fs *fileScan, tail []byte) error {

	if len(tail) == 0 {
		return nil
	}

	full := len(tail) - len(tail)%constants.GroupBytes
	if pp.cfg.TailPolicy == tailDrop {
		full = 0
	}

	if full > 0 {
		if err := pp.feedBlock(fs, tail[:full]); err != nil {
			return err
		}
	}

	fs.hash.Write(tail[full:])
	fs.rec.PayloadBytes += int64(len(tail) - full)
	fs.dropped += int64(len(tail) - full)

	return nil
}

// regions hold at least two blocks, rounded up to a sector
func (pp *Palprime) regionSize() int {
	r := 2 * pp.cfg.BlockSize
	if rem := r % pp.cfg.RingBufferSectSize; rem != 0 {
		r += pp.cfg.RingBufferSectSize - rem
	}
	return r
}

func (pp *Palprime) defaultRingBufferSize() int {
	s := 4*pp.regionSize() + pp.cfg.RingBufferMinRead
	if rem := s % pp.cfg.RingBufferSectSize; rem != 0 {
		s += pp.cfg.RingBufferSectSize - rem
	}
	return s
}

func (pp *Palprime) ringBufferConfig(stats *qringbuf.Stats) qringbuf.Config {
	return qringbuf.Config{
		MinRegion:   pp.regionSize(),
		MinRead:     pp.cfg.RingBufferMinRead,
		MaxCopy:     pp.regionSize(),
		BufferSize:  pp.cfg.RingBufferSize,
		SectorSize:  pp.cfg.RingBufferSectSize,
		Stats:       stats,
		TrackTiming: ((pp.cfg.StatsActive & statsRingbuf) == statsRingbuf),
	}
}

func (pp *Palprime) emitNow(r palindrome.Result) error {
	return pp.emitResult(r, pp.elapsed())
}

func (pp *Palprime) emitResult(r palindrome.Result, elapsed time.Duration) error {

	value := r.Value.String()

	if w := pp.cfg.emitters[emResultsText]; w != nil {
		if _, err := fmt.Fprintf(w, "after %s at %d: %s\n", elapsed, r.Position, value); err != nil {
			return emissionError{fmt.Errorf("emitting '%s' failed: %w", emResultsText, err)}
		}
	}

	if pp.externalEventBus == nil && pp.cfg.emitters[emResultsJsonl] == nil {
		return nil
	}

	jsonl, err := json.Marshal(resultRecord{
		Event:        "result",
		Run:          pp.runID,
		File:         int64(r.Position-1) / pp.cfg.DigitsPerFile,
		Position:     r.Position,
		Width:        r.Width,
		Value:        value,
		ElapsedNsecs: elapsed.Nanoseconds(),
	})
	if err != nil {
		return emissionError{err}
	}

	return pp.emitJsonl(ResultJsonl, jsonl)
}

func (pp *Palprime) emitFileEnd(rec fileEndRecord, elapsed time.Duration) error {

	rec.ElapsedNsecs = elapsed.Nanoseconds()

	if w := pp.cfg.emitters[emResultsText]; w != nil {
		if _, err := fmt.Fprintf(w, "finished file %d after %s\n", rec.File, elapsed); err != nil {
			return emissionError{fmt.Errorf("emitting '%s' failed: %w", emResultsText, err)}
		}
	}

	if pp.externalEventBus == nil && pp.cfg.emitters[emResultsJsonl] == nil {
		return nil
	}

	jsonl, err := json.Marshal(rec)
	if err != nil {
		return emissionError{err}
	}

	return pp.emitJsonl(FileEndJsonl, jsonl)
}

func (pp *Palprime) emitJsonl(t IngestionEventType, jsonl []byte) error {
	jsonl = append(jsonl, '\n')

	pp.maybeSendEvent(t, string(jsonl))
	if w := pp.cfg.emitters[emResultsJsonl]; w != nil {
		if _, err := w.Write(jsonl); err != nil {
			return emissionError{fmt.Errorf("emitting '%s' failed: %w", emResultsJsonl, err)}
		}
	}
	return nil
}
