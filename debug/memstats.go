//go:build windows

package debug

import (
	"context"
	"log/slog"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// processMemoryCounters matches PROCESS_MEMORY_COUNTERS from psapi.
type processMemoryCounters struct {
	cb                         uint32
	PageFaultCount             uint32
	PeakWorkingSetSize         uintptr
	WorkingSetSize             uintptr
	QuotaPeakPagedPoolUsage    uintptr
	QuotaPagedPoolUsage        uintptr
	QuotaPeakNonPagedPoolUsage uintptr
	QuotaNonPagedPoolUsage     uintptr
	PagefileUsage              uintptr
	PeakPagefileUsage          uintptr
}

var (
	modPsapi                 = windows.NewLazySystemDLL("psapi.dll")
	procGetProcessMemoryInfo = modPsapi.NewProc("GetProcessMemoryInfo")
)

// StartMemLogger logs the working set next to Go heap stats every interval.
// A failing RSS query is logged once and then reported as 0.
func StartMemLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		return
	}
	var rssErrLogged bool
	runEvery(ctx, interval, func() {
		pmc := processMemoryCounters{cb: uint32(unsafe.Sizeof(processMemoryCounters{}))}
		var rss uint64
		r1, _, err := procGetProcessMemoryInfo.Call(uintptr(windows.CurrentProcess()), uintptr(unsafe.Pointer(&pmc)), uintptr(pmc.cb))
		if r1 != 0 {
			rss = uint64(pmc.WorkingSetSize)
		} else if !rssErrLogged {
			logger.Warn("memlog: GetProcessMemoryInfo call failed", slog.String("err", err.Error()))
			rssErrLogged = true
		}
		logMemStats(logger, rss)
	})
}
