//go:build !windows
// +build !windows

package palprime

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func readRusage() (c rusageCounters) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return
	}

	c.maxRss = int64(ru.Maxrss)
	// ru_maxrss is in KiB everywhere but on macOS
	if runtime.GOOS != "darwin" {
		c.maxRss *= 1024
	}

	c.userNsecs = unix.TimevalToNsec(ru.Utime)
	c.sysNsecs = unix.TimevalToNsec(ru.Stime)
	c.minFlt = int64(ru.Minflt)
	c.majFlt = int64(ru.Majflt)
	c.bioRead = int64(ru.Inblock)
	c.bioWrite = int64(ru.Oublock)
	c.sigs = int64(ru.Nsignals)
	c.ctxSwYield = int64(ru.Nvcsw)
	c.ctxSwForced = int64(ru.Nivcsw)
	return
}

func init() {

	preProcessTasks = func(pp *Palprime) {
		pp.rusageAtStart = readRusage()
	}

	// a run reports only what it consumed itself, peak memory excepted
	postProcessTasks = func(pp *Palprime) {
		now := readRusage()
		atStart := pp.rusageAtStart
		sys := &pp.statSummary.SysStats

		sys.MaxRssBytes = now.maxRss
		sys.CpuUserNsecs += now.userNsecs - atStart.userNsecs
		sys.CpuSysNsecs += now.sysNsecs - atStart.sysNsecs
		sys.MinFlt += now.minFlt - atStart.minFlt
		sys.MajFlt += now.majFlt - atStart.majFlt
		sys.BioRead += now.bioRead - atStart.bioRead
		sys.BioWrite += now.bioWrite - atStart.bioWrite
		sys.Sigs += now.sigs - atStart.sigs
		sys.CtxSwYield += now.ctxSwYield - atStart.ctxSwYield
		sys.CtxSwForced += now.ctxSwForced - atStart.ctxSwForced
	}
}
