package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bull/knowledge-rag/internal/app"
	"github.com/bull/knowledge-rag/internal/indexer"
	"github.com/bull/knowledge-rag/internal/knowledge"
	"github.com/bull/knowledge-rag/internal/loader"
)

var (
	ingestText     string
	ingestTitle    string
	ingestCategory string
	ingestDryRun   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Add files or text to the knowledge base",
	Long: `Chunks, embeds and stores documents.

Files may be plain text (.txt), markdown (.md) or PDF (.pdf). Use --text to
ingest a string instead. With --dry-run nothing is stored; the chunk count
and an estimate of the embedding tokens are printed instead.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "ingest this text instead of files")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (text only)")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "category tag (defaults by source)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "chunk and estimate tokens without storing")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestText == "" && len(args) == 0 {
		return errors.New("nothing to ingest: pass files or --text")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var docs []*loader.File
	if ingestText != "" {
		docs = append(docs, &loader.File{
			Name:     "text",
			Title:    ingestTitle,
			Content:  ingestText,
			Category: knowledge.CategoryManual,
			Source:   knowledge.SourceDashboard,
		})
	}
	l := loader.New()
	for _, path := range args {
		f, err := l.LoadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, f)
	}
	if ingestCategory != "" {
		for _, d := range docs {
			d.Category = ingestCategory
		}
	}

	if ingestDryRun {
		for _, d := range docs {
			estimate(out, a, d)
		}
		return nil
	}

	failed := 0
	for _, d := range docs {
		res := a.Knowledge.IngestFile(cmd.Context(), user(a), d)
		printIngestResult(out, d.Name, res)
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(docs))
	}
	return nil
}

// estimate prints what ingesting f would produce.
func estimate(w io.Writer, a *app.App, f *loader.File) {
	chunks := a.Chunker.Chunk(f.Content, "dry-run")
	tokens := 0
	for _, ch := range chunks {
		tokens += a.Tokens.Count(ch.Content)
	}
	fmt.Fprintf(w, "%s: %d chunks, ~%d tokens (%s)\n", f.Name, len(chunks), tokens, f.Category)
}

func printIngestResult(w io.Writer, name string, res *indexer.IngestResult) {
	if !res.Success {
		fmt.Fprintf(w, "FAILED %s: %s\n", name, res.Error)
		return
	}
	fmt.Fprintf(w, "Ingested %s as %s: %d/%d chunks, %d tokens\n",
		name, res.DocumentID, res.ChunksSaved, res.ChunksProcessed, res.TotalTokens)
	if res.Error != "" {
		fmt.Fprintf(w, "  warning: %s\n", res.Error)
	}
}
