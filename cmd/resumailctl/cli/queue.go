package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/resumail/resumail/internal/app"
	"github.com/resumail/resumail/internal/platform/cache"
)

// NewQueueCmd groups the queue inspection commands.
func NewQueueCmd(cfg *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the background queue",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobsCLI, err := NewJobsCLI(cache.QueueOpts(cfg.RedisAddr))
			if err != nil {
				return err
			}
			defer func() { _ = jobsCLI.Close() }()
			s, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobsCLI, err := NewJobsCLI(cache.QueueOpts(cfg.RedisAddr))
			if err != nil {
				return err
			}
			defer func() { _ = jobsCLI.Close() }()
			tasks, err := jobsCLI.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				cmd.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "Maximum tasks to list")

	var olderThan time.Duration
	var limit int
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Requeue archives stuck in PENDING now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobsCLI, err := NewJobsCLI(cache.QueueOpts(cfg.RedisAddr))
			if err != nil {
				return err
			}
			defer func() { _ = jobsCLI.Close() }()
			info, err := jobsCLI.Sweep(cmd.Context(), olderThan, limit)
			if err != nil {
				return err
			}
			cmd.Printf("queued %s\n", info.ID)
			return nil
		},
	}
	sweep.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute, "Minimum PENDING age")
	sweep.Flags().IntVar(&limit, "limit", 100, "Maximum archives to requeue")

	cmd.AddCommand(stats, scheduled, sweep)
	return cmd
}
