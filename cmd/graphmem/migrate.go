package graphmem

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/graph"
	"github.com/soundprediction/graphmem/pkg/logger"
	"github.com/soundprediction/graphmem/pkg/migrate"
	"github.com/soundprediction/graphmem/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate <dump-file>",
	Aliases: []string{"import"},
	Short:   "Migrate a legacy line-delimited JSON memory dump",
	Long: `Migrate a legacy memory dump into the configured backend.

The dump is one JSON object per line, each tagged "entity" or "relation".
Malformed lines go through a repair pass before being skipped; entities are
created before relations so references resolve regardless of file order.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	mgr, err := store.Open(ctx, cfg.Registry(), cfg.Database.Active)
	if err != nil {
		return fmt.Errorf("failed to open backend %q: %w", cfg.Database.Active, err)
	}
	defer mgr.Close()

	if err := mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log := logger.NewLogger(logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	importer := migrate.NewImporter(graph.NewStore(mgr), log)

	report, err := importer.ImportFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Migrated %d entities and %d relations (%d repaired, %d skipped)\n",
		report.Entities, report.Relations, report.Repaired, report.Skipped)
	return nil
}
