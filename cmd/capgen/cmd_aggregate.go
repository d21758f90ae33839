package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capgen/internal/catalog"
	"capgen/internal/workspace"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Rebuild the intent catalog and export the intent documents",
	Long: `Loads every per-app skills document, builds the cross-app intent
catalog, and writes intent_list_full.json and intent_method_map.json
under the data directory. serve does this on startup too; aggregate is
for inspecting the documents without running the server.`,
	RunE: runAggregate,
}

func runAggregate(cmd *cobra.Command, args []string) error {
	layout := workspace.Layout{Root: cfg.Workspace, Data: cfg.DataDir}
	cat := catalog.New(layout, logger)
	if err := cat.Rebuild(); err != nil {
		return err
	}
	if err := cat.ExportIntentDocs(); err != nil {
		return err
	}

	snapshot := cat.Load()
	for _, appID := range snapshot.Apps() {
		fmt.Printf("%s: %d intents\n", appID, len(snapshot.IntentsFor(appID)))
	}
	for _, warning := range snapshot.Warnings() {
		fmt.Printf("warning: %s\n", warning.Error())
	}
	return nil
}
