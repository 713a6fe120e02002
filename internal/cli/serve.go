package cli

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"karte/internal/application/dto"
	"karte/internal/infrastructure/di"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var statusInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent HTTP API and event delivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := log.New(cmd.OutOrStdout(), "", log.LstdFlags|log.LUTC)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, err := di.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeContainer(container, cfg.ShutdownTimeout, logger)

			if appErr := container.Initialize(ctx); appErr != nil {
				return appErr
			}
			if appErr := container.Start(ctx); appErr != nil {
				return appErr
			}

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				return container.Server.Run(groupCtx)
			})
			if statusInterval > 0 {
				group.Go(func() error {
					reportQueueStatus(groupCtx, container, statusInterval, logger)
					return nil
				})
			}
			if err := group.Wait(); err != nil {
				return err
			}
			logger.Printf("server stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&statusInterval, "status-interval", time.Minute, "interval between queue status log lines, 0 disables them")
	return cmd
}

func reportQueueStatus(ctx context.Context, container *di.Container, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		overview, appErr := container.QueueOverviewUseCase.Execute(ctx, dto.GetQueueOverviewQuery{})
		if appErr != nil {
			logger.Printf("queue status failed code=%s message=%s", appErr.Code, appErr.Message)
			continue
		}
		logger.Printf(
			"queue status queued=%d requesting=%d failed=%d online=%t circuit_open=%t rate_limited=%t",
			overview.QueuedCount,
			overview.RequestingCount,
			overview.FailedCount,
			overview.Online,
			overview.CircuitOpen,
			overview.RateLimited,
		)
	}
}

func closeContainer(container *di.Container, timeout time.Duration, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := container.Close(ctx); err != nil {
		logger.Printf("container close warning error=%v", err)
	}
}
