package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var rowsCmd = &cobra.Command{
	Use:   "rows <dataset> <indices>",
	Short: "Print input-table rows by position",
	Long: `Print the rows of a dataset's input table at the given positions, in the
given order. Duplicates are returned as many times as they are requested.

Indices are a comma or space separated list ("2,0,2") or a JSON array ("[2,0,2]").`,
	Args: cobra.ExactArgs(2),
	RunE: runRows,
}

func init() {
	rootCmd.AddCommand(rowsCmd)
}

func runRows(cmd *cobra.Command, args []string) error {
	indices, err := parseIndices(args[1])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	rows, err := a.tables.Rows(cmd.Context(), args[0], indices)
	if err != nil {
		return err
	}
	return printJSON(rows)
}

// parseIndices accepts "2,0,2", "2 0 2" or "[2,0,2]".
func parseIndices(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var out []int
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("invalid index list %q: %w", s, err)
		}
		if out == nil {
			out = []int{}
		}
		return out, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		i, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", f)
		}
		out = append(out, i)
	}
	return out, nil
}
