package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bull/knowledge-rag/internal/knowledge"
)

var listCategory string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.Knowledge.ListDocuments(cmd.Context(), user(a), listCategory)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, d := range docs {
			fmt.Fprintf(out, "%s  %s  %-14s %s\n", d.ID, d.CreatedAt.Format("2006-01-02 15:04"), d.Category, d.Title)
		}
		fmt.Fprintf(out, "%d documents\n", len(docs))
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List document categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		categories, err := a.Knowledge.Categories(cmd.Context(), user(a))
		if err != nil {
			return err
		}
		for _, c := range categories {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.Knowledge.DeleteDocument(cmd.Context(), user(a), args[0])
		if errors.Is(err, knowledge.ErrNotFound) {
			return fmt.Errorf("document %s not found", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show document, chunk and token totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Knowledge.Stats(cmd.Context(), user(a))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Documents:  %d\n", stats.TotalDocuments)
		fmt.Fprintf(out, "Chunks:     %d\n", stats.TotalChunks)
		fmt.Fprintf(out, "Embeddings: %d\n", stats.TotalEmbeddings)
		fmt.Fprintf(out, "Tokens:     %d\n", stats.TotalTokens)

		categories := make([]string, 0, len(stats.Categories))
		for c := range stats.Categories {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Fprintf(out, "  %-16s %d\n", c, stats.Categories[c])
		}
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show ingestions that are running or failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Knowledge.ProcessingQueue(cmd.Context(), user(a))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "Queue is empty.")
			return nil
		}
		for _, r := range records {
			fmt.Fprintf(out, "%s  %-10s %-10s %3d%%  %s\n", r.ID, r.Operation, r.Status, r.Progress, r.Error)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listCategory, "category", "", "only list this category")
	rootCmd.AddCommand(listCmd, categoriesCmd, deleteCmd, statsCmd, queueCmd)
}
