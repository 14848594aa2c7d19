// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/embershell/embershell/internal/engine"
	"github.com/embershell/embershell/internal/observability"
	"github.com/embershell/embershell/internal/protocol"
	"github.com/embershell/embershell/internal/scripting"
)

var fetchURLs []string

// runCmd evaluates a control script against a live engine. The script
// registers or intercepts schemes through the `protocol` global; each
// --fetch URL is then resolved through the engine and printed.
var runCmd = &cobra.Command{
	Use:   "run <script.js>",
	Short: "Run a control script and fetch URLs through its scheme handlers.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading script: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		eng := engine.New(cfg.Engine, logger)
		eng.Start()
		defer eng.Stop()

		runtime := scripting.NewRuntime(logger)
		runtime.Start()
		defer runtime.Stop()

		registry := protocol.NewRegistry(runtime.Runner(), eng, logger)
		if err := scripting.Install(runtime, registry, eng, logger); err != nil {
			return fmt.Errorf("installing protocol bindings: %w", err)
		}

		scriptCtx, cancel := context.WithTimeout(ctx, cfg.Scripting.ScriptTimeout)
		defer cancel()
		if err := runtime.RunScript(scriptCtx, args[0], string(src)); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, rawURL := range fetchURLs {
			rawURL := rawURL
			g.Go(func() error {
				resp, err := eng.Fetch(gctx, "GET", rawURL, "")
				if err != nil {
					return fmt.Errorf("fetching %s: %w", rawURL, err)
				}
				logger.Info("fetched",
					zap.String("url", rawURL),
					zap.String("mime_type", resp.MimeType),
					zap.Int("bytes", len(resp.Data)))
				fmt.Fprintf(cmd.OutOrStdout(), "-- %s (%s)\n%s\n", rawURL, resp.MimeType, resp.Data)
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&fetchURLs, "fetch", nil, "URL to fetch after the script runs (repeatable)")
	rootCmd.AddCommand(runCmd)
}
