// -- cmd/root.go --
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/embershell/embershell/internal/config"
	"github.com/embershell/embershell/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "embershell",
	Short:   "Embershell is an embeddable shell with script-defined URL scheme handling.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Runs before any command: config first, then logging.
		loaded, err := config.Load(cfgFile)
		if err != nil {
			observability.InitializeLogger(config.Default().Logger)
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("starting embershell", zap.String("version", Version))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./embershell.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
