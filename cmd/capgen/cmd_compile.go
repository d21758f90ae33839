package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"capgen/internal/describe"
	"capgen/internal/pipeline"
	"capgen/internal/workspace"
)

var compileOffline bool

var compileCmd = &cobra.Command{
	Use:   "compile [app-id...]",
	Short: "Compile recorded test methods into capability and skill documents",
	Long: `Reads test classes from <workspace>/<app-id>/input/, extracts the
annotated test methods, and compiles each into a parameterized capability.
With no app ids given, every app in the workspace is compiled.

Descriptors are generated with the configured language model; --offline
skips generation and marks every descriptor pending so a later run can
fill them in.`,
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().BoolVar(&compileOffline, "offline", false,
		"Skip descriptor generation; persist pending descriptors")
}

func runCompile(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	layout := workspace.Layout{Root: cfg.Workspace, Data: cfg.DataDir}

	var generator *describe.Generator
	if !compileOffline {
		client, err := newModelClient(ctx)
		if err != nil {
			return err
		}
		generator = describe.NewGenerator(client, logger)
	}

	p := pipeline.New(layout, generator, logger)
	if cfg.Pipeline.Concurrency > 0 {
		p.Concurrency = cfg.Pipeline.Concurrency
	}

	results, err := p.Run(ctx, args)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s: %d capabilities compiled, %d methods skipped, %d descriptors pending\n",
			r.AppID, r.Compiled, r.Skipped, r.Pending)
	}
	logger.Info("compile finished", zap.Int("apps", len(results)))
	return nil
}
