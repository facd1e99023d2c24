package cli

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/resumail/resumail/internal/app"
	"github.com/resumail/resumail/internal/archive"
	"github.com/resumail/resumail/internal/platform/cache"
	"github.com/resumail/resumail/internal/platform/db"
)

var errNoDSN = errors.New("--pg-dsn (or PG_DSN) is required")

func openArchives(ctx context.Context, cfg *app.Config) (*archive.Service, func(), error) {
	if strings.TrimSpace(cfg.PGDSN) == "" {
		return nil, nil, errNoDSN
	}
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		return nil, nil, err
	}
	return archive.NewService(archive.NewRepository(pool)), pool.Close, nil
}

// NewArchiveCmd groups the archive commands.
func NewArchiveCmd(cfg *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect and queue report archives",
	}
	cmd.AddCommand(newArchiveCreateCmd(cfg), newArchiveGetCmd(cfg), newArchiveEnqueueCmd(cfg))
	return cmd
}

func newArchiveCreateCmd(cfg *app.Config) *cobra.Command {
	var req archive.CreateRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record an archive for a stored report and queue it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeDB, err := openArchives(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB()
			arc, err := svc.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			jobsCLI, err := NewJobsCLI(cache.QueueOpts(cfg.RedisAddr))
			if err != nil {
				return err
			}
			defer func() { _ = jobsCLI.Close() }()
			if _, err := jobsCLI.EnqueueArchive(cmd.Context(), arc.ID.String()); err != nil {
				cmd.PrintErrf("archive %s recorded but not queued: %v\n", arc.ID, err)
			}
			return printJSON(cmd, arc)
		},
	}
	cmd.Flags().StringVar(&req.ReportID, "report", "", "Stored report identifier")
	cmd.Flags().StringVar(&req.Viewer, "viewer", "", "Viewer printed in the report header")
	cmd.Flags().StringVar(&req.Locale, "locale", "", "Label and number locale")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func newArchiveGetCmd(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an archive record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			svc, closeDB, err := openArchives(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB()
			arc, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, arc)
		},
	}
}

func newArchiveEnqueueCmd(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <id>",
		Short: "Queue generation of an existing archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			jobsCLI, err := NewJobsCLI(cache.QueueOpts(cfg.RedisAddr))
			if err != nil {
				return err
			}
			defer func() { _ = jobsCLI.Close() }()
			info, err := jobsCLI.EnqueueArchive(cmd.Context(), id.String())
			if err != nil {
				return err
			}
			if info == nil {
				cmd.Printf("archive %s is already queued\n", id)
				return nil
			}
			cmd.Printf("queued %s on %s\n", info.ID, info.Queue)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
