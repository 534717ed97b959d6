package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benvon/vaultflow/internal/bootstrap"
	"github.com/benvon/vaultflow/internal/config"
	"github.com/benvon/vaultflow/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd builds the vaultctl command tree. Each call gets its own viper
// instance so commands can be executed repeatedly in tests.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("VAULTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operator tool for the vault workflow engine",
		Long:          "Inspect stages, the audit ledger and the dashboard, and trigger single passes by hand",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("vault", "", "vault root (overrides VAULT_PATH)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = v.BindPFlag("vault", rootCmd.PersistentFlags().Lookup("vault"))
	_ = v.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(newStagesCmd(v))
	rootCmd.AddCommand(newLedgerCmd(v))
	rootCmd.AddCommand(newDashboardCmd(v))
	rootCmd.AddCommand(newPostCmd(v))
	rootCmd.AddCommand(newRunCmd(v))
	rootCmd.AddCommand(newEventsCmd(v))
	return rootCmd
}

// withRuntime loads configuration and hands fn a runtime that is closed afterwards
func withRuntime(ctx context.Context, v *viper.Viper, fn func(context.Context, *bootstrap.Runtime) error) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	log, err := logger.NewDevelopmentLogger(cfg.DebugMode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt, err := bootstrap.NewWithLogger(ctx, "vaultctl", cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadVault(v.GetString("vault"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v.GetBool("debug") {
		cfg.DebugMode = true
	}
	return cfg, nil
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
