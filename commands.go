package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kendall-kelly/bistro-api/config"
	"github.com/kendall-kelly/bistro-api/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCommand creates the bistro command with its subcommands
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bistro",
		Short: "Bistro API - restaurant orders, payments and loyalty",
		// Running the binary without a subcommand starts the server
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newRulesCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return serve(ctx, cfg, logger)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update the database schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return migrate(config.GetDB(), logger)
		},
	}
}

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage fidelity point earning rules",
	}
	cmd.AddCommand(newRulesImportCommand())
	return cmd
}

func newRulesImportCommand() *cobra.Command {
	var file string
	var replace bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import point earning rules from a YAML file",
		Long: `Import point earning rules from a YAML file of the form:

  rules:
    - name: Silver
      min: "20.01"
      max: "50"
      points: 15
      priority: 10

With --replace the existing rules are deleted in the same transaction.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := config.LoadEarningRules(file)
			if err != nil {
				return err
			}

			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db := config.GetDB()
			if err := migrate(db, logger); err != nil {
				return err
			}
			engine, err := services.NewEngine(db, logger, services.NewLogNotifier(logger), cfg.Engine)
			if err != nil {
				return err
			}

			count, err := engine.Fidelity.ImportEarningRules(cmd.Context(), rules, replace)
			if err != nil {
				return err
			}
			logger.Info("earning rules imported", zap.Int("count", count), zap.Bool("replace", replace))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d earning rules\n", count)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with the rules")
	cmd.Flags().BoolVar(&replace, "replace", false, "delete existing rules first")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
