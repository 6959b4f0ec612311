package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/AzielCF/az-compare/core/config"
	coreDB "github.com/AzielCF/az-compare/core/database"
	"github.com/AzielCF/az-compare/infrastructure/provider"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the local provider tables and optionally load seed data",
	Run: func(cmd *cobra.Command, _ []string) {
		seed, _ := cmd.Flags().GetString("seed")
		if err := runMigration(cmd.Context(), config.Global, seed); err != nil {
			logrus.Fatalf("[MIGRATION] %v", err)
		}
	},
}

func init() {
	migrateCmd.Flags().String("seed", "", `json file with vendors and products to upsert --seed <path> | example: --seed="seed.json"`)
	rootCmd.AddCommand(migrateCmd)
}

// runMigration creates the provider schema and upserts seedPath when given.
// Seeding twice leaves the same rows.
func runMigration(ctx context.Context, cfg *config.Config, seedPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		return err
	}
	defer coreDB.Close(db)
	local := provider.NewGormProvider(db)

	logrus.Infof("[MIGRATION] Migrating %s database %s...", cfg.Database.Driver, cfg.Database.Name)
	if err := local.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if seedPath == "" {
		logrus.Info("[MIGRATION] Schema is up to date")
		return nil
	}

	raw, err := os.ReadFile(seedPath)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var data provider.SeedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", seedPath, err)
	}

	rows, err := local.Seed(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}
	logrus.Infof("[MIGRATION] Seeded %d vendors, %s rows written", len(data.Vendors), humanize.Comma(int64(rows)))
	return nil
}
