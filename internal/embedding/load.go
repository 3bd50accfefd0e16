package embedding

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Load reads the embedding artifact id from dir.
func Load(dir, id string) (*Matrix, error) {
	manifestPath := filepath.Join(dir, id+".json")
	b, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", manifestPath, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON %s: %w", manifestPath, err)
	}
	if m.Dim <= 0 {
		return nil, fmt.Errorf("invalid dim in manifest: %d", m.Dim)
	}
	if m.Rows < 0 {
		return nil, fmt.Errorf("invalid rows in manifest: %d", m.Rows)
	}
	if m.ID == "" {
		m.ID = id
	}
	if m.VectorFile == "" {
		m.VectorFile = id + ".f32"
	}

	data, err := loadVectors(filepath.Join(dir, m.VectorFile), m.Rows, m.Dim)
	if err != nil {
		return nil, err
	}
	return &Matrix{Manifest: m, Data: data}, nil
}

func loadVectors(path string, rows, dim int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat vector file %s: %w", path, err)
	}
	expected := int64(rows) * int64(dim) * 4
	if expected != st.Size() {
		return nil, fmt.Errorf("vector file size mismatch: got %d want %d (rows=%d dim=%d)", st.Size(), expected, rows, dim)
	}

	out := make([]float32, rows*dim)
	if err := binary.Read(bufio.NewReader(io.LimitReader(f, expected)), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("cannot read vectors from %s: %w", path, err)
	}
	return out, nil
}
