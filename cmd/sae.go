package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamusis/lscope/internal/artifact"
	"github.com/kamusis/lscope/internal/sae"
)

var saeCmd = &cobra.Command{
	Use:   "sae <dataset> <embedding-id>",
	Short: "Encode an embedding with a sparse autoencoder and record feature statistics",
	Long: `Send the vectors of an embedding artifact to the configured encoder
(LSCOPE_ENCODER_BASE_URL), keep each row's top-k features, and write
saes/sae-NNN.parquet with saes/sae-NNN.json holding per-feature max
activations and the dead/alive split.`,
	Args: cobra.ExactArgs(2),
	RunE: runSAE,
}

var (
	flagSAEModel   string
	flagSAEK       string
	flagSAEWorkers int
	flagSAEBatch   int
)

func init() {
	saeCmd.Flags().StringVar(&flagSAEModel, "model", "", "Encoder model id (default: sae.model_id from config)")
	saeCmd.Flags().StringVar(&flagSAEK, "k-expansion", "", "Expansion/top-k variant (default: sae.k_expansion from config)")
	saeCmd.Flags().IntVar(&flagSAEWorkers, "workers", 0, "Reduction workers (default: sae.workers from config)")
	saeCmd.Flags().IntVar(&flagSAEBatch, "batch-size", 0, "Rows per encoder request (default: sae.batch_size from config)")
	rootCmd.AddCommand(saeCmd)
}

func runSAE(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ecfg, err := sae.LoadEncoderConfig()
	if err != nil {
		return err
	}
	opts := sae.RunOptions{
		Dataset:     args[0],
		EmbeddingID: args[1],
		ModelID:     firstNonEmpty(flagSAEModel, a.cfg.SAE.ModelID),
		KExpansion:  firstNonEmpty(flagSAEK, a.cfg.SAE.KExpansion),
	}
	r := &sae.Runner{
		Layout:    a.layout,
		Namer:     a.namer,
		Encoder:   sae.NewHTTPEncoder(ecfg),
		Log:       a.log,
		Workers:   firstPositive(flagSAEWorkers, a.cfg.SAE.Workers),
		BatchSize: firstPositive(flagSAEBatch, a.cfg.SAE.BatchSize),
	}
	meta, err := r.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	printSection(fmt.Sprintf("%s/%s/%s", args[0], artifact.SAEs.Dir, meta.ID))
	printOK("", fmt.Sprintf("%d rows encoded with %s (k=%d)", meta.Rows, meta.ModelID, meta.K))
	printInfo("", fmt.Sprintf("%d features: %d alive, %d dead", meta.NumFeatures, meta.AliveFeatures, meta.DeadFeatures))
	if meta.NumFeatures > 0 && meta.DeadFeatures == meta.NumFeatures {
		printWarn("", "no feature was selected by any row")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
