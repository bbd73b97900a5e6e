package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/pipeline"
)

var (
	searchTenant string
	searchLimit  int
	searchMetric string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested chunks",
	Long:  `Embeds the query and returns the nearest chunks of the tenant's documents.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchTenant, "tenant", "t", "", "tenant id")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().StringVar(&searchMetric, "metric", string(models.DistanceCosine), "distance metric (cosine, l2, inner_product)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	_ = searchCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	spinner := newSpinner(cmd.ErrOrStderr(), "🔍 Searching documents...")
	results, err := a.pipeline.Search(ctx, pipeline.SearchRequest{
		TenantID: searchTenant,
		Query:    args[0],
		Limit:    searchLimit,
		Metric:   models.DistanceMetric(searchMetric),
	})
	spinner.Finish()
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printResults(cmd, results)
	return nil
}

func printResults(cmd *cobra.Command, results []models.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		cmd.Printf("%s %s #%d %s\n",
			color.CyanString("[%d]", i+1),
			r.DocumentID,
			r.ChunkIndex,
			color.HiBlackString("(distance %.4f)", r.Distance))
		cmd.Printf("    %s\n", snippet(r.Content, 200))
	}
}

func snippet(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
