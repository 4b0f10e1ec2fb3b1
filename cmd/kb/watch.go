package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bull/knowledge-rag/internal/loader"
	"github.com/bull/knowledge-rag/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest files as they are added to a directory",
	Long: `Watches a directory and ingests every supported file created in it.
Edits to files that were already ingested are not re-indexed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := watcher.New(watcher.Options{Filter: loader.Supported}, a.Logger)
		if err != nil {
			return err
		}
		defer w.Close()

		l := loader.New()
		out := cmd.OutOrStdout()
		return w.Run(cmd.Context(), args[0], func(ctx context.Context, path string) error {
			f, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			res := a.Knowledge.IngestFile(ctx, user(a), f)
			printIngestResult(out, f.Name, res)
			if !res.Success {
				return fmt.Errorf("failed to ingest %s: %w", f.Name, res.Err)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
