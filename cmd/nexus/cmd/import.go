package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zerodaily/nexus/internal/models"
	"github.com/zerodaily/nexus/internal/service"
	"github.com/zerodaily/nexus/internal/store"
)

var (
	importOverwrite bool
	importDryRun    bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a document store export",
	Long: `Restore documents from an export file produced by nexus export.

Compression is detected from the file contents. Existing documents are kept
and counted as skipped unless --overwrite is set. Imports are per-document:
a bad line is reported and the rest of the file still imports, so re-running
a partial import is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace documents that already exist")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "report what would happen without writing")
}

func runImport(cmd *cobra.Command, args []string) error {
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

	importer := service.NewImportService(store.NewDocumentStore(db.DB), logger)
	result, err := importer.ImportFromFile(cmd.Context(), args[0], service.ImportOptions{
		Overwrite: importOverwrite,
		DryRun:    importDryRun,
	})
	if err != nil {
		return err
	}

	printImportResult(result)
	if result.Errors > 0 {
		return fmt.Errorf("%d documents failed to import", result.Errors)
	}
	return nil
}

func printImportResult(result *models.ImportResult) {
	fmt.Printf("total:       %d\n", result.TotalItems)
	fmt.Printf("imported:    %d\n", result.Imported)
	fmt.Printf("overwritten: %d\n", result.Overwritten)
	fmt.Printf("skipped:     %d\n", result.Skipped)
	fmt.Printf("errors:      %d\n", result.Errors)
	for _, detail := range result.ErrorDetails {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", detail.Item, detail.Error)
	}
}
