//go:build !windows

package debug

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// StartMemLogger logs resident memory (from /proc when available) next to
// Go heap stats every interval.
func StartMemLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		return
	}
	runEvery(ctx, interval, func() { logMemStats(logger, residentBytes()) })
}

// residentBytes reads VmRSS from /proc/self/status; 0 elsewhere.
func residentBytes() uint64 {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0
	}
	return parseVmRSS(string(data))
}

func parseVmRSS(status string) uint64 {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "VmRSS:"))
		if len(fields) == 0 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
