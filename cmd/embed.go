package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamusis/lscope/internal/embedding"
	"github.com/kamusis/lscope/internal/embeddings"
)

var embedCmd = &cobra.Command{
	Use:   "embed <dataset>",
	Short: "Embed the text column of a dataset into the next embedding artifact",
	Long: `Embed every row of the dataset's input table with the configured provider
(LSCOPE_EMBEDDINGS_* in the environment or ~/.lscope/.env) and write
embeddings/embedding-NNN.f32 with its JSON manifest.

The text column comes from --text-column, else text_column in meta.json.`,
	Args: cobra.ExactArgs(1),
	RunE: runEmbed,
}

var (
	flagEmbedTextColumn string
	flagEmbedNormalize  bool
	flagEmbedBatch      int
)

func init() {
	embedCmd.Flags().StringVar(&flagEmbedTextColumn, "text-column", "", "Column to embed (default: text_column from meta.json)")
	embedCmd.Flags().BoolVar(&flagEmbedNormalize, "normalize", true, "L2-normalize vectors")
	embedCmd.Flags().IntVar(&flagEmbedBatch, "batch-size", 64, "Texts per provider request")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id := args[0]
	col := flagEmbedTextColumn
	if col == "" {
		m, err := a.layout.ReadMeta(id)
		if err != nil {
			return fmt.Errorf("cannot resolve text column (pass --text-column): %w", err)
		}
		if col = m.TextColumn(); col == "" {
			return fmt.Errorf("meta.json of %s has no text_column (pass --text-column)", id)
		}
	}

	pcfg, err := embeddings.LoadConfig()
	if err != nil {
		return err
	}
	prov, err := embeddings.NewFromConfig(pcfg)
	if err != nil {
		return err
	}

	b := &embedding.Builder{Tables: a.tables, Namer: a.namer, Provider: prov, Log: a.log}
	m, err := b.Build(cmd.Context(), embedding.BuildOptions{
		Dataset:    id,
		TextColumn: col,
		Normalize:  flagEmbedNormalize,
		BatchSize:  flagEmbedBatch,
	})
	if err != nil {
		return err
	}
	printOK(id, fmt.Sprintf("Embedding written: %s (%d rows, dim %d, model %s)", m.ID, m.Rows, m.Dim, m.ModelID))
	return nil
}
