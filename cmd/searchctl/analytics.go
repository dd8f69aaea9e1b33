package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarise recorded searches for one table",
	Example: `  searchctl metrics --table companies
  searchctl metrics --since 24h --format json`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <prefix>",
	Short: "List recent queries starting with a prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

var (
	metricsSince  time.Duration
	metricsFormat string
	suggestLimit  int
)

func init() {
	metricsCmd.Flags().DurationVar(&metricsSince, "since", 0, "Only include searches newer than this (e.g. 24h); 0 means all")
	metricsCmd.Flags().StringVarP(&metricsFormat, "format", "f", "table", "Output format (table|json)")
	suggestCmd.Flags().IntVarP(&suggestLimit, "limit", "l", 10, "Maximum suggestions")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	svc, err := a.Searcher(table)
	if err != nil {
		return err
	}

	var tr *entities.TimeRange
	if metricsSince > 0 {
		tr = &entities.TimeRange{From: time.Now().Add(-metricsSince)}
	}

	metrics, err := svc.GetSearchMetrics(ctx, tr)
	if err != nil {
		return err
	}

	if metricsFormat == "json" {
		return printJSON(metrics)
	}

	fmt.Printf("searches: %d  avg duration: %.1fms  avg results: %.1f\n",
		metrics.TotalSearches, metrics.AvgDuration, metrics.AvgResults)
	fmt.Printf("click-through: %.2f  refinement: %.2f  abandonment: %.2f\n\n",
		metrics.ClickThroughRate, metrics.RefinementRate, metrics.AbandonmentRate)

	if len(metrics.TopQueries) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "QUERY\tCOUNT\tAVG MS\tAVG RESULTS\tCTR")
		for _, q := range metrics.TopQueries {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.2f\n", q.Query, q.Count, q.AvgDuration, q.AvgResults, q.ClickThroughRate)
		}
		w.Flush()
	}
	for _, q := range metrics.ZeroResultQueries {
		fmt.Printf("no results: %s\n", q)
	}
	return nil
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	svc, err := a.Searcher(table)
	if err != nil {
		return err
	}

	suggestions, err := svc.GetSuggestions(ctx, args[0], suggestLimit)
	if err != nil {
		return err
	}
	for _, s := range suggestions {
		fmt.Println(s)
	}
	return nil
}
