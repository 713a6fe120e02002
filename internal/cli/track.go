package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"karte/internal/application/dto"
	"karte/internal/domain/entities"
	"karte/internal/infrastructure/di"

	"github.com/spf13/cobra"
)

type trackResult struct {
	dto.TrackEventOutput
	Delivered bool `json:"delivered"`
}

func newTrackCommand(opts *rootOptions) *cobra.Command {
	var (
		rawValues string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "track EVENT_NAME",
		Short: "Track one event and wait for its delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(rawValues)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

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

			output, delivered, appErr := container.Track(ctx, entities.NewEvent(args[0], values))
			if appErr != nil {
				return appErr
			}
			if err := writeJSON(cmd, trackResult{TrackEventOutput: output, Delivered: delivered}); err != nil {
				return err
			}
			if output.Accepted && !delivered {
				return fmt.Errorf("event %s was accepted but not delivered", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rawValues, "values", "", "event values as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for delivery")
	return cmd
}

func parseValues(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	var values map[string]any
	if err := decoder.Decode(&values); err != nil {
		return nil, fmt.Errorf("values must be a JSON object: %w", err)
	}
	return values, nil
}

func writeJSON(cmd *cobra.Command, payload any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
