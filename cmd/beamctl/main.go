// Command beamctl runs the profiler without a display: headless acquisition,
// offline fits of saved frames and waist history reports.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soocke/beam-profiler-go/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd("beamctl", nil).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
