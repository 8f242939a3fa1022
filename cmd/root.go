// Package cmd defines the CLI commands of the sejmaudit executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sejmwatch/sejmaudit/internal/api"
	"github.com/sejmwatch/sejmaudit/internal/app"
	"github.com/sejmwatch/sejmaudit/internal/crawl"
	"github.com/sejmwatch/sejmaudit/internal/results"
)

var cfgFile string

type appKeyType struct{}

var appKey appKeyType

// App is the service surface the commands depend on; the concrete container
// lives in internal/app. An interface here lets tests inject a fake.
type App interface {
	Logger() *zap.Logger
	Runner() *crawl.Runner
	Writer() *results.Writer
	Server() *api.Server
	Close(ctx context.Context)
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context) (App, error) {
	return app.New(ctx, cfgFile)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sejmaudit",
		Short: "Risk audit of legislative documents published by the Sejm API",
		Long: `sejmaudit walks every legislative process of the configured terms,
downloads the attachments of their prints, extracts both the machine text
layer and the rendered (OCR) layer, and scores each document against a
trigger vocabulary. Findings land in checkpointed CSV segments.`,

		// Build the service container after flags are parsed and before any
		// subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize audit services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if instance, ok := cmd.Context().Value(appKey).(App); ok && instance != nil {
				instance.Close(context.Background())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; defaults and AUDIT_* env vars apply without one)")
	cmd.AddCommand(newAuditCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	instance, ok := ctx.Value(appKey).(App)
	if !ok || instance == nil {
		return nil, fmt.Errorf("audit services not initialized")
	}
	return instance, nil
}

// Execute runs the CLI. Interrupts cancel the run context so checkpoints
// still flush on the way out.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
