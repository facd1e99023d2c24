package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/resumail/resumail/internal/app"
	"github.com/resumail/resumail/internal/platform/db"
	"github.com/resumail/resumail/migrations"
)

// NewMigrateCmd applies pending schema migrations.
func NewMigrateCmd(cfg *app.Config) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun {
				all, err := db.LoadMigrations(migrations.FS)
				if err != nil {
					return err
				}
				for _, m := range all {
					cmd.Println(m.Name)
				}
				return nil
			}
			if strings.TrimSpace(cfg.PGDSN) == "" {
				return errNoDSN
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN, 2)
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := db.Migrate(cmd.Context(), pool, migrations.FS)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				cmd.Println("schema is up to date")
				return nil
			}
			for _, v := range applied {
				cmd.Println("applied", v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "list", false, "List bundled migrations without connecting")
	return cmd
}
