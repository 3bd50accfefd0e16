package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamusis/lscope/internal/artifact"
)

var nextCmd = &cobra.Command{
	Use:   "next <dataset> <class>",
	Short: "Print the next artifact id of a class (embedding, umap, cluster, scopes, sae)",
	Long: `Print the id the next artifact of a class would get, e.g. umap-003.

The id is one greater than the highest version on disk; gaps are not reused.
The answer is advisory: commands that write artifacts allocate under a lock.`,
	Args: cobra.ExactArgs(2),
	RunE: runNext,
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts <dataset> <class>",
	Short: "List the JSON records of an artifact class",
	Args:  cobra.ExactArgs(2),
	RunE:  runArtifacts,
}

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Manage saved scopes",
}

var scopeSaveCmd = &cobra.Command{
	Use:   "save <dataset>",
	Short: "Save a scope record (allocates scopes-NNN when --name is omitted)",
	Args:  cobra.ExactArgs(1),
	RunE:  runScopeSave,
}

var flagScope artifact.Scope

func init() {
	f := scopeSaveCmd.Flags()
	f.StringVar(&flagScope.Name, "name", "", "Scope name; overwrites an existing scope of that name")
	f.StringVar(&flagScope.Embeddings, "embeddings", "", "Embedding id")
	f.StringVar(&flagScope.UMAP, "umap", "", "UMAP id")
	f.StringVar(&flagScope.Cluster, "cluster", "", "Cluster id")
	f.StringVar(&flagScope.ClusterLabels, "cluster-labels", "", "Cluster labels id")
	f.StringVar(&flagScope.Label, "label", "", "Short label")
	f.StringVar(&flagScope.Description, "description", "", "Description")
	scopeCmd.AddCommand(scopeSaveCmd)

	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(scopeCmd)
}

func resolveClass(name string) (artifact.Class, error) {
	c, ok := artifact.ClassByName(name)
	if !ok {
		names := make([]string, 0, len(artifact.Classes))
		for _, c := range artifact.Classes {
			names = append(names, c.Prefix)
		}
		return artifact.Class{}, fmt.Errorf("unknown artifact class %q (want one of: %s)", name, strings.Join(names, ", "))
	}
	return c, nil
}

func runNext(_ *cobra.Command, args []string) error {
	c, err := resolveClass(args[1])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	id, err := a.namer.NextID(args[0], c)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runArtifacts(_ *cobra.Command, args []string) error {
	c, err := resolveClass(args[1])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	recs, err := a.namer.ListRecords(args[0], c)
	if err != nil {
		return err
	}
	return printJSON(recs)
}

func runScopeSave(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	s, err := a.namer.SaveScope(cmd.Context(), args[0], flagScope)
	if err != nil {
		return err
	}
	printOK(args[0], fmt.Sprintf("Scope saved: %s", s.Name))
	return nil
}
