package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openepi/sentinel/internal/iodb"
	"github.com/openepi/sentinel/internal/iopopulate"
	"github.com/openepi/sentinel/internal/ioschema"
)

func getSetupDBCmd() *cobra.Command {
	var drop bool

	setupCmd := &cobra.Command{
		Use:   "setup-db",
		Short: "Create the database schema and seed the reference tables",
		Long: `Create the sentinel database schema from the country configuration.

This command:
  1. Connects to PostgreSQL using configuration settings
  2. Creates the fixed tables and one raw table per configured form
  3. Creates the alert variable indexes
  4. Seeds locations, devices and the rule catalogue

Use --drop to wipe an existing schema without confirmation.

Examples:
  sentinel setup-db
  sentinel setup-db --drop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupDB(drop)
		},
	}

	setupCmd.Flags().BoolVar(&drop, "drop",
		false, "drop existing tables without confirmation")
	return setupCmd
}

func runSetupDB(drop bool) error {
	ctx := context.Background()

	dep, err := loadDeployment(cfg)
	if err != nil {
		return err
	}

	op := iodb.NewPgxOperator()
	if err := op.Connect(ctx, &cfg.Database); err != nil {
		return err
	}
	defer op.Close()

	slog.Info("Connected to database",
		"host", cfg.Database.Host, "database", cfg.Database.Database)

	hasTables, err := op.HasTables(ctx)
	if err != nil {
		return err
	}
	if hasTables {
		if !drop && !confirmDrop() {
			slog.Info("Aborted, no changes made")
			return nil
		}
		slog.Info("Dropping all existing tables")
		if err := op.DropAllTables(ctx); err != nil {
			return err
		}
	}

	manager := ioschema.NewManager(op)
	slog.Info("Creating schema")
	if err := manager.Create(ctx, dep.country, dep.catalogue); err != nil {
		return err
	}

	seeder, err := iopopulate.NewBootstrapFromPool(op.Pool())
	if err != nil {
		return err
	}
	err = seeder.Seed(ctx, dep.tree.Root(), dep.locations, dep.devices, dep.vars)
	if err != nil {
		return err
	}

	slog.Info("Database setup complete")
	return nil
}

// confirmDrop asks before wiping an existing schema.
func confirmDrop() bool {
	fmt.Print("Database contains existing tables; setup will drop ALL " +
		"tables and data.\nDo you want to continue? (yes/no): ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes" || response == "y"
}
