package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/medication-safety-cds/internal/app"
	"github.com/medication-safety-cds/internal/config"
	"github.com/medication-safety-cds/internal/database"
	"github.com/medication-safety-cds/internal/domain"
	"github.com/medication-safety-cds/internal/logging"
	"github.com/medication-safety-cds/internal/repository"
	"github.com/medication-safety-cds/internal/service"
	"github.com/medication-safety-cds/internal/setup"
	"github.com/medication-safety-cds/pkg/formulary"
)

type rootOptions struct {
	kbPath   string
	logLevel string
	compact  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "cdsctl",
		Short:        "Medication safety clinical decision support tool",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.kbPath, "kb", os.Getenv("MEDSAFE_KB_PATH"), "Formulary JSON file (embedded seed when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	rootCmd.PersistentFlags().BoolVar(&opts.compact, "compact", false, "Print compact JSON")

	rootCmd.AddCommand(checkCmd(opts))
	rootCmd.AddCommand(doseCmd(opts))
	rootCmd.AddCommand(formularyCmd(opts))
	rootCmd.AddCommand(seedCmd(opts))
	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(setupCmd())

	return rootCmd
}

func checkCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [request.json]",
		Short: "Run an interaction check; reads the request from stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req domain.CheckRequest
			if err := readRequest(cmd, args, &req); err != nil {
				return err
			}
			engine, err := opts.engine()
			if err != nil {
				return err
			}
			result, err := engine.CheckInteractions(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return opts.writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func doseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dose [request.json]",
		Short: "Calculate a patient-specific dose; reads the request from stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req domain.DosageRequest
			if err := readRequest(cmd, args, &req); err != nil {
				return err
			}
			engine, err := opts.engine()
			if err != nil {
				return err
			}
			rec, err := engine.CalculateDosage(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return opts.writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func formularyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "formulary",
		Short: "Summarize the formulary in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := opts.formulary()
			if err != nil {
				return err
			}
			return opts.writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"version":      kb.Version(),
				"drugs":        kb.DrugIDs(),
				"interactions": kb.InteractionCount(),
			})
		},
	}
}

func seedCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the formulary into the reference database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			skipMigrate, _ := cmd.Flags().GetBool("skip-migrate")

			doc, err := opts.document()
			if err != nil {
				return err
			}
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			dbCfg := database.ConfigFromDomain(cfg.Database)
			if !skipMigrate {
				if err := app.Migrate(ctx, dbCfg.URL(), cfg.Database.MigrationsPath, logger); err != nil {
					return err
				}
			}

			db, err := database.NewConnection(ctx, dbCfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			drugs, interactions, err := repository.NewReferenceRepository(db.Pool, logger).ImportDocument(ctx, doc)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d drug(s) and %d interaction(s) from formulary %s.\n",
				drugs, interactions, doc.Version)
			return nil
		},
	}
	cmd.Flags().Bool("skip-migrate", false, "Do not apply pending migrations first")
	return cmd
}

func migrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withRunner := func(fn func(context.Context, *database.MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			dbCfg := database.ConfigFromDomain(cfg.Database)
			runner, err := database.NewMigrationRunner(dbCfg.URL(), cfg.Database.MigrationsPath, logger)
			if err != nil {
				return err
			}
			defer runner.Close()
			return fn(cmd.Context(), runner)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withRunner(func(ctx context.Context, r *database.MigrationRunner) error {
			return r.Up(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back one migration",
		RunE: withRunner(func(ctx context.Context, r *database.MigrationRunner) error {
			return r.Down(ctx)
		}),
	})

	versionCmd := &cobra.Command{Use: "version", Short: "Show the current schema version"}
	versionCmd.RunE = withRunner(func(ctx context.Context, r *database.MigrationRunner) error {
		version, dirty, err := r.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(versionCmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	})
	cmd.AddCommand(versionCmd)

	return cmd
}

func setupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the lite MCP server with a desktop MCP client",
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Add or update the server entry in the client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts setup.Options
			opts.ConfigPath, _ = cmd.Flags().GetString("config")
			opts.BinaryPath, _ = cmd.Flags().GetString("binary")
			opts.DataDir, _ = cmd.Flags().GetString("data-dir")
			opts.KnowledgeBase, _ = cmd.Flags().GetString("kb")

			path, err := setup.Register(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s. Restart the client to load it.\n", setup.ServerName, path)
			return nil
		},
	}
	registerCmd.Flags().String("config", "", "Client config file (platform default when empty)")
	registerCmd.Flags().String("binary", "", "Path to "+setup.BinaryName)
	registerCmd.Flags().String("data-dir", "", "Data directory for feedback and exports")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			status, err := setup.GetStatus(path)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	statusCmd.Flags().String("config", "", "Client config file (platform default when empty)")

	cmd.AddCommand(registerCmd, statusCmd)
	return cmd
}

func readRequest(cmd *cobra.Command, args []string, dst interface{}) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("request", "malformed JSON: "+err.Error(), nil)
	}
	return nil
}

func (o *rootOptions) logger() (*logrus.Logger, error) {
	return logging.NewLogger(domain.LoggingConfig{Level: o.logLevel, Format: "text", Output: "stderr"})
}

func (o *rootOptions) formulary() (*formulary.Formulary, error) {
	if o.kbPath == "" {
		return formulary.Default()
	}
	return formulary.LoadFile(o.kbPath)
}

func (o *rootOptions) document() (formulary.Document, error) {
	if o.kbPath == "" {
		return formulary.SeedDocument()
	}
	data, err := os.ReadFile(o.kbPath)
	if err != nil {
		return formulary.Document{}, fmt.Errorf("failed to read formulary: %w", err)
	}
	return formulary.ParseDocument(data)
}

func (o *rootOptions) engine() (*service.SafetyChecker, error) {
	logger, err := o.logger()
	if err != nil {
		return nil, err
	}
	kb, err := o.formulary()
	if err != nil {
		return nil, err
	}
	return service.NewSafetyChecker(logger, kb, nil, domain.SystemClock{},
		domain.EngineConfig{CheckTimeout: 10 * time.Second, MaxMedications: 50}), nil
}

func (o *rootOptions) loadConfig() (*domain.Config, *logrus.Logger, error) {
	manager, err := config.NewManager()
	if err != nil {
		return nil, nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := o.logger()
	if err != nil {
		return nil, nil, err
	}
	return manager.GetConfig(), logger, nil
}

func (o *rootOptions) writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if !o.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
