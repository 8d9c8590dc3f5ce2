package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaw77735-web/JuteVisionAudit/internal/report"
)

var (
	exportFormat    string
	exportInspector string
	exportOut       string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Report format: json or yaml")
	exportCmd.Flags().StringVar(&exportInspector, "inspector", "", "Inspector name (default $JUTE_INSPECTOR)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write the report to a file instead of stdout")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current audit as a graded report",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	ctrl := app.newController(nil)
	defer ctrl.Close()

	snap, err := ctrl.Sync(cmd.Context())
	if err != nil {
		return err
	}

	inspector := exportInspector
	if inspector == "" {
		inspector = app.cfg.Inspector
	}
	r := report.Build(inspector, snap, time.Now())

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.OpenFile(exportOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := report.Write(w, r, format); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", exportOut)
	}
	return nil
}
