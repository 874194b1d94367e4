//go:build !windows
// +build !windows

package palprime

import "testing"

func TestRusageDeltas(t *testing.T) {
	df := newDigitFiles(t, 2)
	df.write(t)

	pp, _, _ := newTestRun(t, df.args("--emit-stdout=none"))
	before := readRusage()
	if err := pp.ProcessFiles(nil); err != nil {
		t.Fatal(err)
	}
	after := readRusage()

	sys := pp.statSummary.SysStats
	// any Go test binary peaks well above a MiB
	if sys.MaxRssBytes < 1<<20 {
		t.Errorf("peak memory %d is not in bytes", sys.MaxRssBytes)
	}
	if sys.CpuUserNsecs < 0 || sys.CpuUserNsecs > after.userNsecs-before.userNsecs {
		t.Errorf("user time %d is not the run's own (process delta %d)", sys.CpuUserNsecs, after.userNsecs-before.userNsecs)
	}
	if sys.MinFlt < 0 || sys.MinFlt > after.minFlt-before.minFlt {
		t.Errorf("minor faults %d are not the run's own (process delta %d)", sys.MinFlt, after.minFlt-before.minFlt)
	}
}
