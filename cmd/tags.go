package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage named sets of row indices per dataset",
}

var tagsListCmd = &cobra.Command{
	Use:   "list <dataset>",
	Short: "List every tag of a dataset with its indices",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagsList,
}

var tagsNewCmd = &cobra.Command{
	Use:   "new <dataset> <tag>",
	Short: "Create an empty tag (no-op when it exists)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTagsNew,
}

var tagsAddCmd = &cobra.Command{
	Use:   "add <dataset> <tag> <index>",
	Short: "Add a row index to a tag, creating the tag when missing",
	Args:  cobra.ExactArgs(3),
	RunE:  runTagsAdd,
}

var tagsRemoveCmd = &cobra.Command{
	Use:   "remove <dataset> <tag> <index>",
	Short: "Remove a row index from a tag",
	Args:  cobra.ExactArgs(3),
	RunE:  runTagsRemove,
}

var tagsRowsCmd = &cobra.Command{
	Use:   "rows <dataset> <tag>",
	Short: "Print the input-table rows of a tag in insertion order",
	Args:  cobra.ExactArgs(2),
	RunE:  runTagsRows,
}

var flagTagsJSON bool

func init() {
	tagsListCmd.Flags().BoolVar(&flagTagsJSON, "json", false, "Print the tag map as JSON")
	tagsCmd.AddCommand(tagsListCmd, tagsNewCmd, tagsAddCmd, tagsRemoveCmd, tagsRowsCmd)
	rootCmd.AddCommand(tagsCmd)
}

func runTagsList(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	m, err := a.tags.List(args[0])
	if err != nil {
		return err
	}
	if flagTagsJSON {
		return printJSON(m)
	}
	printTagMap(args[0], m)
	return nil
}

func runTagsNew(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if _, err := a.tags.Create(args[0], args[1]); err != nil {
		return err
	}
	printOK(args[1], "Tag ready")
	return nil
}

func runTagsAdd(_ *cobra.Command, args []string) error {
	return mutateTag(args, true)
}

func runTagsRemove(_ *cobra.Command, args []string) error {
	return mutateTag(args, false)
}

func mutateTag(args []string, add bool) error {
	index, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[2])
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	var m map[string][]int
	if add {
		m, err = a.tags.Add(args[0], args[1], index)
	} else {
		m, err = a.tags.Remove(args[0], args[1], index)
	}
	if err != nil {
		return fmt.Errorf("tag %s: %w", args[1], err)
	}
	return printJSON(m)
}

func runTagsRows(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	rows, err := a.tags.Rows(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func printTagMap(id string, m map[string][]int) {
	printSection(fmt.Sprintf("Tags of %s", id))
	if len(m) == 0 {
		printMiss("", "No tags")
		return
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	printBullet(fmt.Sprintf("%d tags:", len(names)))
	for _, name := range names {
		idx := m[name]
		if len(idx) == 0 {
			printSkip(name, "empty")
			continue
		}
		printInfo(name, fmt.Sprintf("%d rows %v", len(idx), idx))
	}
}
