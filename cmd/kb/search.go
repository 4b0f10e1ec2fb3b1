package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/knowledge-rag/internal/retrieval"
)

var (
	searchLimit    int
	searchCategory string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the passages most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		results := a.Knowledge.Search(cmd.Context(), retrieval.Request{
			UserID:   user(a),
			Query:    strings.Join(args, " "),
			Category: searchCategory,
			Limit:    searchLimit,
		})

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No matching passages found.")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(out, "%d. [%.3f] %s\n", i+1, r.Similarity, r.Chunk.ID)
			fmt.Fprintf(out, "   %s\n\n", preview(r.Chunk.Content, 240))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of passages (default from config)")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "only search this category")
	rootCmd.AddCommand(searchCmd)
}

// preview flattens s onto one line and shortens it to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
