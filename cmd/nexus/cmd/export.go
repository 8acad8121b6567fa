package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zerodaily/nexus/internal/clock"
	"github.com/zerodaily/nexus/internal/service"
	"github.com/zerodaily/nexus/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the document store",
	Long: `Export every persisted collection (pipeline states, incidents, buffers,
costs, reviews) as JSON lines.

With a file argument the output is compressed according to the extension
(.gz, .bz2, .xz, .br); without one the export streams uncompressed to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.Default()
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	exporter := service.NewExportService(store.NewDocumentStore(db.DB), clock.NewSystem(), logger)

	if len(args) == 0 {
		_, err := exporter.Export(cmd.Context(), os.Stdout)
		return err
	}

	meta, err := exporter.ExportToFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d documents to %s\n", meta.ItemCount, args[0])
	return nil
}
