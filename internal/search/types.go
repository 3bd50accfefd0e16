// Package search finds rows of a dataset by keyword over its text column or
// by cosine similarity over an embedding artifact.
package search

// Result is one matched row.
type Result struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
	Why   string  `json:"why"`
}
