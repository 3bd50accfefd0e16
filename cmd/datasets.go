package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List datasets in the data directory",
	Args:  cobra.NoArgs,
	RunE:  runDatasets,
}

var metaCmd = &cobra.Command{
	Use:   "meta <dataset> [key value]",
	Short: "Show a dataset's meta.json, or set one key",
	Long: `Without key and value, prints the dataset's meta.json.

With key and value, sets that key and rewrites meta.json atomically. The value
is stored as JSON when it parses as JSON (numbers, booleans, arrays, objects)
and as a string otherwise.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 && len(args) != 3 {
			return fmt.Errorf("expected <dataset> or <dataset> <key> <value>")
		}
		return nil
	},
	RunE: runMeta,
}

var flagDatasetsJSON bool

func init() {
	datasetsCmd.Flags().BoolVar(&flagDatasetsJSON, "json", false, "Print full meta records as JSON")
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(metaCmd)
}

func runDatasets(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	metas, err := a.layout.List()
	if err != nil {
		return err
	}
	if flagDatasetsJSON {
		return printJSON(metas)
	}
	printSection("Datasets")
	if len(metas) == 0 {
		printMiss("", fmt.Sprintf("No datasets in %s", a.layout.Root))
		return nil
	}
	for _, m := range metas {
		name, _ := m["name"].(string)
		if col := m.TextColumn(); col != "" {
			printOK(name, fmt.Sprintf("text column: %s", col))
		} else {
			printWarn(name, "no text_column in meta.json")
		}
	}
	return nil
}

func runMeta(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		m, err := a.layout.ReadMeta(args[0])
		if err != nil {
			return err
		}
		return printJSON(m)
	}
	m, err := a.layout.UpdateMeta(args[0], args[1], parseMetaValue(args[2]))
	if err != nil {
		return err
	}
	return printJSON(m)
}

func parseMetaValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
