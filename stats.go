package palprime

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/ipfs/go-qringbuf"
	"github.com/klauspost/cpuid/v2"

	"github.com/anjor/palprime/internal/palindrome"
	"github.com/anjor/palprime/internal/util/text"
)

type statSummary struct {
	EventType string `json:"event"`
	RunID     string `json:"run"`
	Files     struct {
		Requested     int64 `json:"requested"`
		Scanned       int64 `json:"scanned"`
		Failed        int64 `json:"failed"`
		Skipped       int64 `json:"skipped"`
		FailedIndexes []int `json:"failedIndexes,omitempty"`
	} `json:"files"`
	Payload struct {
		HeaderBytes  int64 `json:"headerBytes"`
		Bytes        int64 `json:"bytes"`
		Digits       int64 `json:"digits"`
		DroppedBytes int64 `json:"droppedTailBytes"`
	} `json:"payload"`
	Discontinuities int64             `json:"discontinuities"`
	Results         int64             `json:"results"`
	FinalFloor      int               `json:"finalMinWidth"`
	Exhausted       bool              `json:"exhausted"`
	Scan            *palindrome.Stats `json:"scan,omitempty"`
	SysStats        struct {
		qringbuf.Stats
		WorkerRingbufs []qringbuf.Stats `json:"workerRingbufs,omitempty"`
		ElapsedNsecs   int64            `json:"elapsedNanoseconds"`

		// getrusage() section
		CpuUserNsecs int64 `json:"cpuUserNanoseconds"`
		CpuSysNsecs  int64 `json:"cpuSystemNanoseconds"`
		MaxRssBytes  int64 `json:"maxMemoryUsed"`
		MinFlt       int64 `json:"cacheMinorFaults"`
		MajFlt       int64 `json:"cacheMajorFaults"`
		BioRead      int64 `json:"blockIoReads,omitempty"`
		BioWrite     int64 `json:"blockIoWrites,omitempty"`
		Sigs         int64 `json:"signalsReceived,omitempty"`
		CtxSwYield   int64 `json:"contextSwitchYields"`
		CtxSwForced  int64 `json:"contextSwitchForced"`

		// for context
		PageSize       int      `json:"pageSize"`
		CPU            string   `json:"cpuBrand"`
		CPUFeatures    []string `json:"cpuFeatures"`
		PhysCores      int      `json:"cpuPhysicalCores"`
		ThreadsPerCore int      `json:"cpuThreadsPerCore"`
		GoMaxProcs     int      `json:"goMaxProcs"`
		Os             string   `json:"os"`
		GoVersion      string   `json:"goVersion"`

		ArgvExpanded []string `json:"argvExpanded"`
		ArgvInitial  []string `json:"argvInitial"`
	} `json:"sys"`
}

// rusageCounters is the subset of getrusage(2) reported in the summary
type rusageCounters struct {
	userNsecs, sysNsecs int64
	minFlt, majFlt      int64
	bioRead, bioWrite   int64
	sigs                int64
	ctxSwYield          int64
	ctxSwForced         int64
	maxRss              int64
}

func setStatSummary() statSummary {
	var s statSummary
	s.EventType = "summary"

	s.SysStats.CPU = cpuid.CPU.BrandName
	s.SysStats.CPUFeatures = cpuid.CPU.FeatureSet()
	s.SysStats.PhysCores = cpuid.CPU.PhysicalCores
	s.SysStats.ThreadsPerCore = cpuid.CPU.ThreadsPerCore
	s.SysStats.GoMaxProcs = runtime.GOMAXPROCS(-1)
	s.SysStats.Os = runtime.GOOS
	s.SysStats.GoVersion = runtime.Version()
	s.SysStats.PageSize = os.Getpagesize()

	return s
}

// OutputSummary writes the run summary to every active stats emitter.
func (pp *Palprime) OutputSummary() {

	// no stats emitters - nowhere to output
	if pp.cfg.emitters[emStatsText] == nil && pp.cfg.emitters[emStatsJsonl] == nil {
		return
	}

	smr := &pp.statSummary

	if statsJsonlOut := pp.cfg.emitters[emStatsJsonl]; statsJsonlOut != nil {
		jsonl, err := json.Marshal(smr)
		if err != nil {
			log.Fatalf("Encoding '%s' failed: %s", emStatsJsonl, err)
		}

		if _, err := fmt.Fprintf(statsJsonlOut, "%s\n", jsonl); err != nil {
			log.Fatalf("Emitting '%s' failed: %s", emStatsJsonl, err)
		}
	}

	if statsTextOut := pp.cfg.emitters[emStatsText]; statsTextOut != nil {

		sys := &smr.SysStats

		var cpuDetail string
		if sys.PhysCores > 0 {
			cpuDetail = fmt.Sprintf(
				"%d-core%s ",
				sys.PhysCores,
				func() string {
					if sys.ThreadsPerCore > 1 {
						return fmt.Sprintf("/%d-thread", sys.PhysCores*sys.ThreadsPerCore)
					}
					return ""
				}(),
			)
		}

		var vcpu float64
		if sys.ElapsedNsecs > 0 {
			vcpu = float64(sys.CpuUserNsecs+sys.CpuSysNsecs) / float64(sys.ElapsedNsecs)
		}

		exhaustion := ""
		if smr.Exhausted {
			exhaustion = ", nothing wider can be found"
		}

		failed := ""
		if smr.Files.Failed > 0 {
			failed = fmt.Sprintf(", %s failed %v", text.Commify64(smr.Files.Failed), smr.Files.FailedIndexes)
		}

		if _, err := fmt.Fprintf(
			statsTextOut,
			`
Ran on %s%s
Processing took %0.2f seconds using %0.2f vCPU and %0.2f MiB peak memory
Performing %s system reads using %0.2f vCPU at about %0.2f MiB/s
Scanned %s of %s requested files%s
Payload of %s bytes (%s header bytes skipped, %s tail bytes dropped) holds %s digits
Found %s prime palindromes with %s discontinuities, final minimum width %d%s

`,
			cpuDetail, sys.CPU,

			float64(sys.ElapsedNsecs)/1000000000,
			vcpu,
			float64(sys.MaxRssBytes)/(1024*1024),

			text.Commify64(int64(sys.ReadCalls)+workerReadCalls(sys.WorkerRingbufs)),
			float64(sys.CpuSysNsecs)/float64(maxInt64(sys.ElapsedNsecs, 1)),
			(float64(smr.Payload.Bytes)/(1024*1024))/(float64(maxInt64(sys.ElapsedNsecs, 1))/1000000000),

			text.Commify64(smr.Files.Scanned),
			text.Commify64(smr.Files.Requested),
			failed,

			text.Commify64(smr.Payload.Bytes),
			text.Commify64(smr.Payload.HeaderBytes),
			text.Commify64(smr.Payload.DroppedBytes),
			text.Commify64(smr.Payload.Digits),

			text.Commify64(smr.Results),
			text.Commify64(smr.Discontinuities),
			smr.FinalFloor,
			exhaustion,
		); err != nil {
			log.Fatalf("Emitting '%s' failed: %s", emStatsText, err)
		}
	}
}

func workerReadCalls(ws []qringbuf.Stats) (n int64) {
	for i := range ws {
		n += int64(ws[i].ReadCalls)
	}
	return
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
