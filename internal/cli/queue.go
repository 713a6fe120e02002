package cli

import (
	"karte/internal/application/dto"
	"karte/internal/infrastructure/di"

	"github.com/spf13/cobra"
)

func newQueueCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Print the state of the persisted event queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())
			ctx := cmd.Context()

			container, err := di.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeContainer(container, cfg.ShutdownTimeout, logger)

			if appErr := container.Initialize(ctx); appErr != nil {
				return appErr
			}
			overview, appErr := container.QueueOverviewUseCase.Execute(ctx, dto.GetQueueOverviewQuery{})
			if appErr != nil {
				return appErr
			}
			return writeJSON(cmd, overview)
		},
	}
}
