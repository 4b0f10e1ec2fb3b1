package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/knowledge-rag/internal/app"
	ghclient "github.com/bull/knowledge-rag/internal/github"
	"github.com/bull/knowledge-rag/internal/loader"
)

var (
	seedDir      string
	seedRepo     string
	seedCategory string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Bulk-ingest a directory or a GitHub repository",
	Long: `Ingests every supported file under a local directory (--dir) or every
markdown and text file under a GitHub repository path (--repo).

Repositories are given as owner/repo[/path][@ref], for example
acme/handbook/docs@main.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedDir, "dir", "", "local directory to ingest")
	seedCmd.Flags().StringVar(&seedRepo, "repo", "", "GitHub repository path to ingest")
	seedCmd.Flags().StringVar(&seedCategory, "category", "", "category for every seeded document")
	seedCmd.MarkFlagsOneRequired("dir", "repo")
	seedCmd.MarkFlagsMutuallyExclusive("dir", "repo")
	rootCmd.AddCommand(seedCmd)
}

// seedSummary counts seeded documents.
type seedSummary struct {
	total, ingested int
	failed          []string
}

func (s *seedSummary) add(ctx context.Context, w io.Writer, a *app.App, f *loader.File) {
	s.total++
	res := a.Knowledge.Seed(ctx, user(a), seedCategory, f)
	printIngestResult(w, f.Name, res)
	if res.Success {
		s.ingested++
		return
	}
	s.failed = append(s.failed, fmt.Sprintf("%s: %s", f.Name, res.Error))
}

func runSeed(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	out := cmd.OutOrStdout()
	summary := &seedSummary{}

	if seedDir != "" {
		err = seedFromDir(cmd.Context(), out, a, summary)
	} else {
		err = seedFromRepo(cmd.Context(), out, a, summary)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Seed complete!")
	fmt.Fprintf(out, "  Documents: %d/%d\n", summary.ingested, summary.total)
	fmt.Fprintf(out, "  Duration: %s\n", time.Since(start).Round(time.Second))
	if len(summary.failed) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Failed documents:")
		for _, f := range summary.failed {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}
	return nil
}

func seedFromDir(ctx context.Context, out io.Writer, a *app.App, summary *seedSummary) error {
	l := loader.New()
	return filepath.WalkDir(seedDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !loader.Supported(p) {
			return nil
		}
		f, err := l.LoadFile(p)
		if err != nil {
			summary.total++
			summary.failed = append(summary.failed, fmt.Sprintf("%s: %v", p, err))
			return nil
		}
		summary.add(ctx, out, a, f)
		return nil
	})
}

func seedFromRepo(ctx context.Context, out io.Writer, a *app.App, summary *seedSummary) error {
	repo, err := ghclient.ParseRepo(seedRepo)
	if err != nil {
		return err
	}
	client, err := ghclient.NewClient(ghclient.ClientOptions{Token: a.Config.GitHub.Token})
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(client, repo)

	fmt.Fprintf(out, "Listing documents in %s...\n", repo)
	paths, err := fetcher.ListDocs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if sha, err := fetcher.GetLatestCommitSHA(ctx); err == nil {
		fmt.Fprintf(out, "Found %d documents at commit %s\n", len(paths), sha)
	}

	l := loader.New()
	for _, p := range paths {
		doc, err := fetcher.FetchDoc(ctx, p)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			summary.total++
			summary.failed = append(summary.failed, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		f, err := l.Parse(path.Base(doc.Path), []byte(doc.Content))
		if err != nil {
			summary.total++
			summary.failed = append(summary.failed, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		summary.add(ctx, out, a, f)
	}
	return nil
}
