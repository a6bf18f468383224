package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Discard the vector store and index the document again",
	Long: `Removes the existing vector store and rebuilds it from the source document.

Use this after changing the document, the chunking settings or the embedding model.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Rebuilding vector store from %s...\n", a.cfg.SourcePath)
	store, result, err := a.pipeline.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	defer store.Close()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Rebuild complete!")
	fmt.Fprintf(out, "  Source: %s\n", result.Source)
	fmt.Fprintf(out, "  Chunks: %d\n", result.Chunks)
	fmt.Fprintf(out, "  Dimension: %d\n", result.Dimension)
	fmt.Fprintf(out, "  Duration: %s\n", result.Duration.Round(time.Millisecond))
	return nil
}
