package cmd

import (
	"context"
	"errors"
	"fmt"

	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serverShutdownTimeout = 10 * time.Second

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Runs the full audit of the configured terms",
		Long: `Walks every legislative process of the configured terms, scans all
attachments, and writes the findings as CSV segments. The run is resumable
at segment granularity: an interrupted run keeps everything flushed so far.`,
		RunE: runAuditCommand,
	}
}

func runAuditCommand(cmd *cobra.Command, _ []string) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := instance.Logger()

	if server := instance.Server(); server != nil {
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown", zap.Error(err))
			}
		}()
	}

	runErr := instance.Runner().Run(cmd.Context())

	// Flush the tail segment even when the run was canceled; whatever was
	// audited is worth keeping.
	if err := instance.Writer().FlushFinal(context.Background()); err != nil {
		logger.Error("final flush failed", zap.Error(err))
		return errors.Join(runErr, err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("audit run: %w", runErr)
	}
	logger.Info("audit finished", zap.String("run_id", instance.Runner().RunID().String()))
	return nil
}
