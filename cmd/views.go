package cmd

import (
	"github.com/spf13/cobra"
)

var umapCmd = &cobra.Command{
	Use:   "umap",
	Short: "Read umap artifacts",
}

var umapPointsCmd = &cobra.Command{
	Use:   "points <dataset> <umap-id>",
	Short: "Print the projected points of a umap (umaps/<umap-id>.parquet)",
	Args:  cobra.ExactArgs(2),
	RunE:  runUMAPPoints,
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Read cluster label tables",
}

var clustersLabelsCmd = &cobra.Command{
	Use:   "labels <dataset> <cluster-id>",
	Short: "Print the labels of a cluster (default table, or one model's with --model)",
	Args:  cobra.ExactArgs(2),
	RunE:  runClustersLabels,
}

var clustersLabelsAvailableCmd = &cobra.Command{
	Use:   "labels-available <dataset> <cluster-id>",
	Short: "List the models that labelled a cluster, newest first",
	Args:  cobra.ExactArgs(2),
	RunE:  runClustersLabelsAvailable,
}

var slidesCmd = &cobra.Command{
	Use:   "slides <dataset>",
	Short: "Print the slides of the cluster named by active_slides in meta.json",
	Args:  cobra.ExactArgs(1),
	RunE:  runSlides,
}

var flagLabelsModel string

func init() {
	clustersLabelsCmd.Flags().StringVar(&flagLabelsModel, "model", "", "Labelling model (reads <cluster-id>-labels-<model>.parquet)")
	umapCmd.AddCommand(umapPointsCmd)
	clustersCmd.AddCommand(clustersLabelsCmd, clustersLabelsAvailableCmd)
	rootCmd.AddCommand(umapCmd, clustersCmd, slidesCmd)
}

func runUMAPPoints(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	rows, err := a.namer.UMAPPoints(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func runClustersLabels(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	rows, err := a.namer.ClusterLabels(cmd.Context(), args[0], args[1], flagLabelsModel)
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func runClustersLabelsAvailable(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	models, err := a.namer.LabelsAvailable(args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(models)
}

func runSlides(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	rows, err := a.namer.Slides(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(rows)
}
