package graphmem

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/graph"
	"github.com/soundprediction/graphmem/pkg/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend pool status and graph statistics",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	status, err := mgr.PoolStatus()
	if err != nil {
		return err
	}
	fmt.Printf("Backend:  %s\n", status.Backend)
	fmt.Printf("Strategy: %s\n", status.Strategy)
	fmt.Printf("Open:     %d / %d (in use: %d)\n", status.Open, status.Capacity, status.InUse)
	if status.Recycle > 0 {
		fmt.Printf("Recycle:  %s\n", status.Recycle)
	}

	stats, err := graph.NewStore(mgr).Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Entities:  %d (%d types)\n", stats.EntitiesCount, stats.EntityTypesCount)
	fmt.Printf("Relations: %d\n", stats.RelationsCount)
	return nil
}
