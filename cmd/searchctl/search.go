package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a search against one table",
	Long: `Run an exact, fuzzy, regex or full-text search and print the result envelope.

Repeating --filter for the same field accepts any of the given values.`,
	Example: `  searchctl search crew --table companies
  searchctl search crew --filter city=Austin --filter tier=gold --filter tier=silver
  searchctl search "stage (left|right)" --type regex --highlight --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var (
	searchType      string
	searchFields    []string
	searchFilters   []string
	searchSort      string
	searchDesc      bool
	searchPage      int
	searchPageSize  int
	searchHighlight bool
	searchFacets    []string
	searchFormat    string
)

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "exact", "Strategy (exact|fuzzy|regex|fulltext)")
	searchCmd.Flags().StringSliceVar(&searchFields, "fields", nil, "Fields to match (comma-separated)")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "Equality filter field=value (repeatable)")
	searchCmd.Flags().StringVar(&searchSort, "sort", "", "Field to sort by")
	searchCmd.Flags().BoolVar(&searchDesc, "desc", false, "Sort descending")
	searchCmd.Flags().IntVar(&searchPage, "page", 0, "1-based page number (0 returns every match)")
	searchCmd.Flags().IntVar(&searchPageSize, "page-size", 20, "Rows per page")
	searchCmd.Flags().BoolVar(&searchHighlight, "highlight", false, "Include highlights")
	searchCmd.Flags().StringSliceVar(&searchFacets, "facets", nil, "Fields to compute facet counts for")
	searchCmd.Flags().StringVarP(&searchFormat, "format", "f", "table", "Output format (table|json)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	opts, err := buildSearchOptions(args[0])
	if err != nil {
		return err
	}

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

	result, err := svc.Search(ctx, opts)
	if err != nil {
		return err
	}

	if searchFormat == "json" {
		return printJSON(result)
	}
	printResultTable(result)
	return nil
}

func buildSearchOptions(query string) (entities.SearchOptions, error) {
	opts := entities.SearchOptions{
		Query:     query,
		Type:      entities.SearchType(searchType),
		Fields:    searchFields,
		Highlight: searchHighlight,
		Facets:    searchFacets,
	}
	if !opts.Type.Valid() {
		return opts, fmt.Errorf("unknown search type %q", searchType)
	}

	filters, err := parseFilters(searchFilters)
	if err != nil {
		return opts, err
	}
	opts.Filters = filters

	if searchSort != "" {
		opts.Sort = &entities.SortOptions{Field: searchSort, Direction: entities.SortAsc}
		if searchDesc {
			opts.Sort.Direction = entities.SortDesc
		}
	}
	if searchPage > 0 {
		opts.Pagination = &entities.Pagination{Page: searchPage, PageSize: searchPageSize}
	}
	return opts, nil
}

// parseFilters turns field=value pairs into Filters. A field given more than
// once becomes a list of accepted values.
func parseFilters(pairs []string) (entities.Filters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	values := make(map[string][]any)
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q, expected field=value", pair)
		}
		values[field] = append(values[field], value)
	}

	filters := make(entities.Filters, len(values))
	for field, vs := range values {
		if len(vs) == 1 {
			filters[field] = vs[0]
			continue
		}
		filters[field] = vs
	}
	return filters, nil
}

func printResultTable(result *entities.SearchResult[entities.Row]) {
	fmt.Printf("%d matches, page %d/%d (%s, %.1fms, cache hit: %t)\n\n",
		result.Total, result.Page, result.TotalPages,
		result.Performance.QueryComplexity, result.Performance.Duration, result.Performance.CacheHit)
	if len(result.Items) == 0 {
		return
	}

	columns := rowColumns(result.Items)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(columns, "\t")))
	for _, row := range result.Items {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = truncate(entities.FormatValue(row[c]), 40)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()

	for id, snippets := range result.Highlights {
		fmt.Printf("\n%s: %s", id, strings.Join(snippets, " | "))
	}
	for field, buckets := range result.Facets {
		fmt.Printf("\n%s:", field)
		for _, b := range buckets {
			marker := ""
			if b.Selected {
				marker = "*"
			}
			fmt.Printf(" %s%s(%d)", marker, b.Value, b.Count)
		}
	}
	if len(result.Highlights) > 0 || len(result.Facets) > 0 {
		fmt.Println()
	}
}

// rowColumns returns id first, then every other column in sorted order
func rowColumns(rows []entities.Row) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	delete(seen, "id")

	columns := make([]string, 0, len(seen)+1)
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return append([]string{"id"}, columns...)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
