// Package embedding stores dense embedding artifacts: a row-major little-endian
// float32 matrix beside a JSON manifest describing it.
package embedding

import "errors"

// ErrVectorLengthMismatch indicates a vector whose dimension differs from the matrix.
var ErrVectorLengthMismatch = errors.New("vector length mismatch")

// Manifest describes an embedding artifact and how to interpret its vectors.
type Manifest struct {
	ID         string `json:"id"`
	DatasetID  string `json:"dataset_id"`
	ModelID    string `json:"model_id"`
	TextColumn string `json:"text_column,omitempty"`
	Dim        int    `json:"dim"`
	Rows       int    `json:"rows"`
	Normalize  bool   `json:"normalize"`
	VectorFile string `json:"vector_file"`
	CreatedAt  string `json:"created_at"`
}

// Matrix is a loaded embedding artifact.
type Matrix struct {
	Manifest Manifest
	Data     []float32 // Rows x Dim, row-major
}

// Row returns the vector of row i.
func (m *Matrix) Row(i int) []float32 {
	d := m.Manifest.Dim
	return m.Data[i*d : (i+1)*d]
}
