package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamusis/lscope/internal/artifact"
	"github.com/kamusis/lscope/internal/embedding"
	"github.com/kamusis/lscope/internal/embeddings"
	"github.com/kamusis/lscope/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <dataset> <query>",
	Short: "Search rows by keyword or by similarity to an embedding artifact",
	Long: `Without --embedding, returns rows whose text column contains every query
word. With --embedding, embeds the query with the configured provider and
returns the most similar rows of that embedding artifact.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSearch,
}

var (
	flagSearchEmbedding string
	flagSearchColumn    string
	flagSearchK         int
	flagSearchMinScore  float64
)

func init() {
	searchCmd.Flags().StringVar(&flagSearchEmbedding, "embedding", "", "Embedding id for semantic search, e.g. embedding-001")
	searchCmd.Flags().StringVar(&flagSearchColumn, "text-column", "", "Column for keyword search (default: text_column from meta.json)")
	searchCmd.Flags().IntVar(&flagSearchK, "k", 10, "Number of results to show (0 = all)")
	searchCmd.Flags().Float64Var(&flagSearchMinScore, "min-score", -1, "Minimum cosine similarity (semantic only)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id := args[0]
	query := strings.Join(args[1:], " ")

	var results []search.Result
	if flagSearchEmbedding == "" {
		results, err = keywordSearch(cmd, a, id, query)
	} else {
		results, err = semanticSearch(cmd, a, id, query)
	}
	if err != nil {
		return err
	}

	indices := make([]int, len(results))
	for i, r := range results {
		indices[i] = r.Index
	}
	rows, err := a.tables.Rows(cmd.Context(), id, indices)
	if err != nil {
		return err
	}
	type hit struct {
		search.Result
		Row map[string]any `json:"row"`
	}
	out := make([]hit, len(results))
	for i, r := range results {
		out[i] = hit{Result: r, Row: rows[i]}
	}
	return printJSON(out)
}

func keywordSearch(cmd *cobra.Command, a *app, id, query string) ([]search.Result, error) {
	col := flagSearchColumn
	if col == "" {
		m, err := a.layout.ReadMeta(id)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve text column (pass --text-column): %w", err)
		}
		col = m.TextColumn()
	}
	tbl, err := a.tables.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	texts, err := tbl.Strings(col)
	if err != nil {
		return nil, err
	}
	return search.Keyword(texts, query, flagSearchK), nil
}

func semanticSearch(cmd *cobra.Command, a *app, id, query string) ([]search.Result, error) {
	dir, err := a.namer.Dir(id, artifact.Embeddings)
	if err != nil {
		return nil, err
	}
	m, err := embedding.Load(dir, flagSearchEmbedding)
	if err != nil {
		return nil, err
	}
	pcfg, err := embeddings.LoadConfig()
	if err != nil {
		return nil, err
	}
	prov, err := embeddings.NewFromConfig(pcfg)
	if err != nil {
		return nil, err
	}
	if prov.ModelID() != m.Manifest.ModelID {
		a.log.Warn("Query model differs from embedding model",
			zap.String("embedding", flagSearchEmbedding),
			zap.String("embedding_model", m.Manifest.ModelID),
			zap.String("query_model", prov.ModelID()))
	}
	q, _, err := embedding.Embed(cmd.Context(), prov, []string{query}, 1, m.Manifest.Normalize)
	if err != nil {
		return nil, err
	}
	return search.Nearest(m, q, flagSearchK, flagSearchMinScore)
}
