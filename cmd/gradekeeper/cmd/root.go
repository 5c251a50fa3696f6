package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/cmd/cmdutil"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/config"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/logger"
)

var (
	cfg     *config.Config
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "gradekeeper",
	Short: "Grade lifecycle and access control service",
	Long: `gradekeeper manages academic years per grade, the teacher to grade access
index and the bricks reward ledger. It serves a JSON API and offers
administrative commands that run as the system superadmin.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger.Init(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (YAML)")
	flags.String("db-url", "", "Database connection URL (env: GRADEKEEPER_DATABASE_URL)")
	flags.String("server-addr", "", "Server bind address (env: GRADEKEEPER_SERVER_ADDR)")
	flags.Bool("debug", false, "Enable debug logging (env: GRADEKEEPER_DEBUG)")
	flags.String("log-format", "", "Log format, json or console (env: GRADEKEEPER_LOG_FORMAT)")

	_ = viper.BindPFlag("database_url", flags.Lookup("db-url"))
	_ = viper.BindPFlag("server_addr", flags.Lookup("server-addr"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("log_format", flags.Lookup("log-format"))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp opens the application as the system identity, runs fn and closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cmdutil.App) error) error {
	ctx := identity.WithIdentity(cmd.Context(), identity.System)
	app, err := cmdutil.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
