package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/resumail/resumail/internal/app"
	"github.com/resumail/resumail/internal/export"
	"github.com/resumail/resumail/internal/raster"
	"github.com/resumail/resumail/internal/report"
)

// ExportCmd renders a report payload to a PDF on disk.
type ExportCmd struct {
	cfg    *app.Config
	in     string
	out    string
	viewer string
	locale string
	engine string
	now    func() time.Time
}

// NewExportCmd constructs the export command.
func NewExportCmd(cfg *app.Config) *cobra.Command {
	ec := &ExportCmd{cfg: cfg, now: time.Now}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a report payload to Resumail_Report_<date>.pdf",
		RunE:  ec.run,
	}
	cmd.Flags().StringVar(&ec.in, "in", "-", "Report payload JSON file, - for stdin")
	cmd.Flags().StringVar(&ec.out, "out", ".", "Directory receiving the PDF")
	cmd.Flags().StringVar(&ec.viewer, "viewer", "", "Viewer printed in the report header")
	cmd.Flags().StringVar(&ec.locale, "locale", cfg.ReportLocale, "Label and number locale")
	cmd.Flags().StringVar(&ec.engine, "engine", raster.EngineLayout, "Rasterizer engine (layout|chrome)")
	return cmd
}

func (ec *ExportCmd) run(cmd *cobra.Command, _ []string) error {
	src, err := readPayloadSource(cmd, ec.in)
	if err != nil {
		return err
	}
	payload, err := report.Decode(src)
	_ = src.Close()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	rcfg := ec.cfg.RasterConfig()
	rcfg.Engine = strings.ToLower(ec.engine)
	rcfg.Logger = quietLogger(cmd.ErrOrStderr())
	rasterizer, closeRaster, err := raster.New(cmd.Context(), rcfg)
	if err != nil {
		return err
	}
	defer closeRaster()

	svc := export.NewService(export.Config{
		Rasterizer: rasterizer,
		Logger:     rcfg.Logger,
		Locale:     ec.cfg.ReportLocale,
		Location:   ec.cfg.Location(),
		Options:    ec.cfg.RasterOptions(),
	})
	svc.WithNow(ec.now)

	art, path, err := svc.ExportToFile(cmd.Context(), export.Request{Payload: payload, Viewer: ec.viewer, Locale: ec.locale}, ec.out)
	if err != nil {
		return fmt.Errorf("%s (%w)", export.Notice, err)
	}
	cmd.Printf("%s\t%d page(s)\t%s\n", path, art.Pages, art.Digest)
	return nil
}

// NewRenderCmd constructs the render command printing the report markup.
func NewRenderCmd(cfg *app.Config) *cobra.Command {
	var in, viewer, locale string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the HTML markup of a report payload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := readPayloadSource(cmd, in)
			if err != nil {
				return err
			}
			payload, err := report.Decode(src)
			_ = src.Close()
			if err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
			svc := export.NewService(export.Config{
				Logger:   quietLogger(cmd.ErrOrStderr()),
				Locale:   cfg.ReportLocale,
				Location: cfg.Location(),
				Options:  cfg.RasterOptions(),
			})
			markup, err := svc.Preview(export.Request{Payload: payload, Viewer: viewer, Locale: locale})
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), markup)
			return err
		},
	}
	cmd.Flags().StringVar(&in, "in", "-", "Report payload JSON file, - for stdin")
	cmd.Flags().StringVar(&viewer, "viewer", "", "Viewer printed in the report header")
	cmd.Flags().StringVar(&locale, "locale", cfg.ReportLocale, "Label and number locale")
	return cmd
}
