// Command schemejsd is demonstration/ops tooling: a thin CLI wrapping
// internal/engine so the storage engine, index manager, and query planner
// are exercisable end-to-end from a terminal, standing in for the
// out-of-scope scripting host and periodic reconciliation task.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "schemejsd",
		Version:     gitCommitSHA,
		Description: "Manage and query SchemeJS databases stored under a data root directory.",
		Flags:       NewKlogFlagSet(),
		Commands: []*cli.Command{
			newCmd_AddDatabase(),
			newCmd_RegisterTable(),
			newCmd_Insert(),
			newCmd_Reconcile(),
			newCmd_ReconcileAll(),
			newCmd_Search(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Errorf("schemejsd: %s", err)
		os.Exit(1)
	}
}
