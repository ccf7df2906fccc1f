// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"chirp/internal/bootstrap"
	"chirp/internal/config"
	"chirp/internal/database"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Manage the Chirp database schema",
	SilenceUsage: true,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "text", "Output format: text, yaml or json")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(autoCmd)
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending SQL migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *gorm.DB, _ *config.Config) error {
			if err := database.RunMigrations(ctx, db); err != nil {
				return fmt.Errorf("sql migrations failed: %w", err)
			}
			log.Println("sql migrations applied")
			return nil
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down [version]",
	Short: "Roll back a migration (the latest applied one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version := 0
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			version = v
		}

		return withDB(cmd.Context(), func(ctx context.Context, db *gorm.DB, _ *config.Config) error {
			if version == 0 {
				latest, err := database.RollbackLatest(ctx, db)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				if latest == 0 {
					log.Println("nothing to roll back")
					return nil
				}
				version = latest
			} else if err := database.RollbackMigration(ctx, db, version); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			log.Printf("rolled back migration %d", version)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema policy and pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("output")
		return withDB(cmd.Context(), func(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
			status, err := database.GetSchemaStatus(ctx, db, cfg)
			if err != nil {
				return fmt.Errorf("schema status failed: %w", err)
			}
			return renderStatus(cmd.OutOrStdout(), status, format)
		})
	},
}

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Sync the GORM models into the schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
			cfg.DBSchemaMode = database.SchemaModeAuto
			if err := database.ApplySchema(ctx, db, cfg); err != nil {
				return fmt.Errorf("auto schema apply failed: %w", err)
			}
			log.Println("automigrations applied")
			return nil
		})
	},
}

func withDB(ctx context.Context, fn func(context.Context, *gorm.DB, *config.Config) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, _, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipRedis: true})
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	return fn(ctx, db, cfg)
}

type statusView struct {
	Mode               string   `json:"mode" yaml:"mode"`
	Environment        string   `json:"environment" yaml:"environment"`
	WillRunSQL         bool     `json:"will_run_sql" yaml:"will_run_sql"`
	WillRunAutoMigrate bool     `json:"will_run_auto_migrate" yaml:"will_run_auto_migrate"`
	Applied            []int    `json:"applied" yaml:"applied"`
	Pending            []string `json:"pending" yaml:"pending"`
}

func renderStatus(w io.Writer, status *database.SchemaStatus, format string) error {
	view := statusView{
		Mode:               status.Mode,
		Environment:        status.Environment,
		WillRunSQL:         status.WillRunSQL,
		WillRunAutoMigrate: status.WillRunAutoMigrate,
		Applied:            status.AppliedVersions,
		Pending:            make([]string, 0, len(status.PendingMigrations)),
	}
	for _, m := range status.PendingMigrations {
		view.Pending = append(view.Pending, m.String())
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "text", "":
		_, err := fmt.Fprintf(w, "mode=%s env=%s run_sql=%t run_auto=%t applied=%d pending=%d\n",
			view.Mode, view.Environment, view.WillRunSQL, view.WillRunAutoMigrate, len(view.Applied), len(view.Pending))
		if err != nil {
			return err
		}
		for _, p := range view.Pending {
			if _, err := fmt.Fprintf(w, "pending: %s\n", p); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
