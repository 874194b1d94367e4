package palprime

import (
	"sync"
	"time"

	"github.com/ipfs/go-qringbuf"

	"github.com/anjor/palprime/internal/hasher"
	"github.com/anjor/palprime/internal/palindrome"
)

type timedResult struct {
	palindrome.Result
	elapsed time.Duration
}

// fileOutcome is everything a worker learned about one file, held until all
// preceding files have been emitted
type fileOutcome struct {
	fs      *fileScan
	found   []timedResult
	err     error
	stats   palindrome.Stats
	elapsed time.Duration
}

// processParallel scans every file independently, each starting from
// --min-width with no carry from its predecessor, and emits the outcomes in
// file order.
func (pp *Palprime) processParallel() (firstFailure, err error) {

	workers := pp.cfg.Workers
	if files := pp.cfg.LastFile - pp.cfg.FirstFile + 1; files < workers {
		workers = files
	}
	pp.statSummary.SysStats.WorkerRingbufs = make([]qringbuf.Stats, workers)

	indexes := make(chan int)
	outcomes := make(chan *fileOutcome, workers)
	stop := make(chan struct{})
	var stopped bool

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(rbStats *qringbuf.Stats) {
			defer wg.Done()
			for idx := range indexes {
				outcomes <- pp.scanIsolated(idx, rbStats)
			}
		}(&pp.statSummary.SysStats.WorkerRingbufs[w])
	}

	go func() {
		defer close(indexes)
		for idx := pp.cfg.FirstFile; idx <= pp.cfg.LastFile; idx++ {
			select {
			case indexes <- idx:
			case <-stop:
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var scanStats palindrome.Stats
	pending := make(map[int]*fileOutcome, workers)
	next := pp.cfg.FirstFile

	// keep draining after an emission failure so no worker blocks forever
	for o := range outcomes {
		pending[o.fs.rec.File] = o

		for err == nil {
			cur, ready := pending[next]
			if !ready {
				break
			}
			delete(pending, next)
			next++

			for _, r := range cur.found {
				if err = pp.emitResult(r.Result, r.elapsed); err != nil {
					break
				}
			}
			if err != nil {
				break
			}

			scanStats.Add(cur.stats)
			if cur.fs.rec.Floor > pp.statSummary.FinalFloor {
				pp.statSummary.FinalFloor = cur.fs.rec.Floor
			}
			if cur.fs.rec.Floor > pp.cfg.MaxWidth {
				pp.statSummary.Exhausted = true
			}
			if cur.err != nil && firstFailure == nil {
				firstFailure = cur.err
			}

			// every file boundary is a discontinuity here
			if cur.fs.rec.File != pp.cfg.LastFile {
				pp.statSummary.Discontinuities++
			}

			err = pp.finishFile(cur.fs, cur.err, cur.elapsed)
		}

		if err != nil && !stopped {
			close(stop)
			stopped = true
		}
	}

	pp.statSummary.Results = scanStats.Results
	if pp.cfg.StatsActive&statsScan != 0 {
		pp.statSummary.Scan = &scanStats
	}

	return firstFailure, err
}

func (pp *Palprime) scanIsolated(idx int, rbStats *qringbuf.Stats) *fileOutcome {

	o := &fileOutcome{
		fs: &fileScan{
			rec:     pp.newFileEndRecord(idx),
			hash:    hasher.NewSink(pp.cfg.hashFunc),
			rbStats: rbStats,
		},
	}

	// the config was validated at startup
	sc, err := palindrome.NewScanner(pp.scannerConfig(), pp.cfg.BlockSize)
	if err != nil {
		o.err = err
		return o
	}

	o.fs.scanner = sc
	o.fs.emit = func(r palindrome.Result) error {
		o.found = append(o.found, timedResult{Result: r, elapsed: pp.elapsed()})
		return nil
	}

	o.err = pp.openAndScan(o.fs, func() error {
		sc.Start(pp.basePosition(idx))
		return nil
	})

	// collecting never fails
	if pp.cfg.TailPolicy == tailScan && sc.Started() {
		sc.Flush(o.fs.emit) //nolint:errcheck
	} else {
		sc.Drain(o.fs.emit) //nolint:errcheck
	}

	o.stats = sc.Stats()
	o.fs.rec.Results = o.stats.Results
	o.fs.rec.Floor = sc.Floor()
	o.elapsed = pp.elapsed()

	return o
}
