package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soocke/beam-profiler-go/app"
	"github.com/soocke/beam-profiler-go/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd("beam-profiler", runGUI)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runGUI(ctx context.Context, env *cli.Env) error {
	application := app.NewApp(ctx, "Beam Profiler", 1100, 860, env.Config, env.ConfigPath, env.Logger)
	return application.Start()
}
