package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamusis/lscope/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <dataset> <file.parquet>",
	Short: "Create or refresh a dataset from a parquet table",
	Long: `Copy a parquet table into <data-dir>/<dataset>/input.parquet and record its
row count, columns and text column in meta.json.

Re-importing an identical file is a no-op. A different file is refused unless
--force is given; existing artifacts and tags are kept either way.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

var (
	flagImportTextColumn string
	flagImportForce      bool
)

func init() {
	importCmd.Flags().StringVar(&flagImportTextColumn, "text-column", "", "Column holding the row text")
	importCmd.Flags().BoolVar(&flagImportForce, "force", false, "Replace a different existing input table")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	res, err := importer.Import(cmd.Context(), a.layout, importer.Options{
		Dataset:    args[0],
		Source:     args[1],
		TextColumn: flagImportTextColumn,
		Force:      flagImportForce,
	}, a.log)
	if err != nil {
		return err
	}
	switch {
	case res.Skipped:
		printSkip(res.Dataset, "Input table unchanged")
	case res.Replaced:
		printWarn(res.Dataset, fmt.Sprintf("Input table replaced (%d rows); existing tags and artifacts may not match", res.Rows))
	default:
		printOK(res.Dataset, fmt.Sprintf("Imported %d rows, columns %v", res.Rows, res.Columns))
	}
	return nil
}
