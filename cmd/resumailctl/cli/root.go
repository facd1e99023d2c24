// Package cli implements the resumailctl commands.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/resumail/resumail/internal/app"
)

// NewRootCmd builds the command tree. cfg supplies flag defaults.
func NewRootCmd(cfg *app.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "resumailctl",
		Short:         "Operate Resumail report exports, archives and queues",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address used by the queue")
	root.PersistentFlags().StringVar(&cfg.PGDSN, "pg-dsn", cfg.PGDSN, "Postgres DSN holding report archives")

	root.AddCommand(
		NewExportCmd(cfg),
		NewRenderCmd(cfg),
		NewArchiveCmd(cfg),
		NewHistoryCmd(cfg),
		NewQueueCmd(cfg),
		NewMigrateCmd(cfg),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

func quietLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func readPayloadSource(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}
