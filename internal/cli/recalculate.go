package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quiz-exercise-service/internal/config"
)

// NewRecalculateCmd rebuilds the statistics of the given exercises from their persisted results.
func NewRecalculateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate EXERCISE_ID...",
		Short: "Rebuild quiz statistics from persisted results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg).Logger
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			w, err := buildService(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer w.Close()

			for _, id := range args {
				stats, err := w.service.RecalculateStatistics(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("recalculate %s: %w", id, err)
				}
				log.Info("statistics recalculated", "exercise", id,
					"rated", stats.ParticipantsRated, "unrated", stats.ParticipantsUnrated, "buckets", len(stats.PointCounters))
			}
			return nil
		},
	}
}
