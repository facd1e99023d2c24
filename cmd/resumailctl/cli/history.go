package cli

import (
	"errors"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/resumail/resumail/internal/app"
	"github.com/resumail/resumail/internal/backend"
	"github.com/resumail/resumail/internal/history"
	"github.com/resumail/resumail/internal/render"
)

// NewHistoryCmd lists a user's stored reports, or their dashboard aggregate
// with --stats.
func NewHistoryCmd(cfg *app.Config) *cobra.Command {
	var (
		user   string
		stats  bool
		locale string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's reports or print their dashboard stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" {
				return errors.New("history: --user is required")
			}
			client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, nil)
			svc := history.NewService(client, quietLogger(cmd.ErrOrStderr()))
			if stats {
				s, err := svc.Stats(cmd.Context(), user)
				if err != nil {
					return err
				}
				cmd.Printf("reports\t%s\n", render.FormatCount(locale, s.Reports))
				cmd.Printf("emails\t%s\n", render.FormatCount(locale, s.TotalEmails))
				cmd.Printf("average\t+%d =%d -%d ?%d\n", s.Average.Positive, s.Average.Neutral, s.Average.Negative, s.Average.Other)
				cmd.Printf("source\t%s\n", s.Source)
				for _, day := range s.Series {
					cmd.Printf("%s\t%s\n", day.Date, render.FormatCount(locale, day.Emails))
				}
				return nil
			}
			entries, err := svc.History(cmd.Context(), user)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				created := "-"
				if e.CreatedAt != nil {
					created = e.CreatedAt.Format(time.DateTime)
				}
				_, _ = tw.Write([]byte(e.ShortID + "\t" + created + "\t" + render.FormatCount(locale, e.TotalEmails) + "\t" + e.PDFURL + "\n"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&cfg.BackendURL, "backend", cfg.BackendURL, "Analysis backend base URL")
	cmd.Flags().StringVar(&user, "user", "", "User id")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print the dashboard aggregate instead of the list")
	cmd.Flags().StringVar(&locale, "locale", cfg.ReportLocale, "Number locale")
	return cmd
}
