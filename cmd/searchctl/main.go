package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghxstship/search-service/internal/app"
	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	"github.com/ghxstship/search-service/pkg/config"
	"github.com/spf13/cobra"
)

// Global flags
var (
	configPath string
	backend    string
	seedPath   string
	table      string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "searchctl",
	Short: "Query the search dispatchers from the command line",
	Long: `searchctl builds the same dispatchers the API serves and runs searches,
metrics and suggestions against them directly.

With --backend memory, rows are loaded from a JSON seed file shaped as
{"<table>": [{...row...}, ...]}.`,
	Example: `  searchctl search "crew" --table companies
  searchctl search "^stage" --type regex --fields name --highlight
  searchctl --backend memory --seed fixtures.json search alpah --type fuzzy
  searchctl metrics --table companies --since 24h
  searchctl suggest cr --table companies`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file overlaid on the environment")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Override the search backend (postgres|sqlite|typesense|memory)")
	rootCmd.PersistentFlags().StringVar(&seedPath, "seed", "", "JSON rows to load into the memory backend")
	rootCmd.PersistentFlags().StringVarP(&table, "table", "t", "", "Table to search (defaults to the first configured table)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(suggestCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// openApp loads configuration and builds the dispatchers. The caller closes the app.
func openApp(ctx context.Context) (*app.App, *config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	if backend != "" {
		cfg.Search.Backend = backend
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	observability.InitCLILogger(cfg.App.Name+"-cli", verbose)

	a, err := app.Build(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}

	if seedPath != "" {
		if a.Memory == nil {
			a.Close(ctx)
			return nil, nil, fmt.Errorf("--seed requires the memory backend")
		}
		if err := loadSeed(a, seedPath); err != nil {
			a.Close(ctx)
			return nil, nil, err
		}
	}

	if table == "" && len(cfg.Search.Tables) > 0 {
		table = cfg.Search.Tables[0]
	}
	return a, cfg, nil
}

func loadSeed(a *app.App, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var tables map[string][]entities.Row
	if err := json.Unmarshal(data, &tables); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for name, rows := range tables {
		a.Memory.Put(name, rows...)
	}
	return nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
