// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/observability"
	"github.com/nelakvee/recordsync/internal/service"
)

const envPrefix = "RECORDSYNC"

type contextKey string

const configKey contextKey = "config"

// flagBindings maps command flags onto config keys so flags override the
// config file and environment.
var flagBindings = map[string]string{
	"input":  "input.path",
	"sheet":  "input.sheet",
	"commit": "transfer.commit_enabled",
	"report": "diagnostics.report_path",
}

// app carries the dependencies commands need beyond configuration.
type app struct {
	factory service.ComponentFactory
	in      io.Reader
}

// NewRootCommand builds the command tree with production dependencies.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{factory: service.NewComponentFactory(), in: os.Stdin})
}

func newRootCommand(a *app) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "recordsync",
		Short: "Copies utility account records from the bill portal into the site inventory.",
		Long: `recordsync signs in to the bill portal (SSO + MFA) and the site inventory,
then for every row of the input workbook finds the matching account, reads its
vendor, account and meter numbers and enters them on the site's form.

Saving the form is disabled unless --commit or transfer.commit_enabled is set.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Info("Starting recordsync", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg, a, cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringP("input", "i", "", "work item file, .xlsx or .csv (overrides input.path)")
	rootCmd.PersistentFlags().String("sheet", "", "worksheet to read (overrides input.sheet)")
	rootCmd.Flags().Bool("commit", false, "save each target form after filling it (overrides transfer.commit_enabled)")
	rootCmd.Flags().StringP("report", "o", "", "write a JSON run report to this path (overrides diagnostics.report_path)")
	rootCmd.SetVersionTemplate(`{{printf "recordsync version %s\n" .Version}}`)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newInspectInputCmd())
	return rootCmd
}

// Execute runs the root command with the given (signal-aware) context.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Run interrupted.")
		} else {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	observability.Sync()
	return err
}

// initializeConfig reads in the config file and ENV variables if set, and
// binds the flags of cmd that override config keys.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	for name, key := range flagBindings {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}
	return nil
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return cfg, nil
}
