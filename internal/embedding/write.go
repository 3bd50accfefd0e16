package embedding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kamusis/lscope/internal/fsutil"
)

// Write writes the vectors of manifest.ID to <dir>/<id>.f32 and then its
// manifest to <dir>/<id>.json. The manifest is only written once the vectors
// are in place.
func Write(dir string, manifest Manifest, vectors []float32) error {
	if manifest.ID == "" {
		return fmt.Errorf("embedding id is required")
	}
	if manifest.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d", manifest.Dim)
	}
	if len(vectors) != manifest.Rows*manifest.Dim {
		return fmt.Errorf("%w: got %d values want %d", ErrVectorLengthMismatch, len(vectors), manifest.Rows*manifest.Dim)
	}
	if manifest.VectorFile == "" {
		manifest.VectorFile = manifest.ID + ".f32"
	}
	if manifest.CreatedAt == "" {
		manifest.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create embeddings dir %s: %w", dir, err)
	}

	vecPath := filepath.Join(dir, manifest.VectorFile)
	err := fsutil.WriteAtomic(vecPath, 0o644, func(w io.Writer) error {
		return binary.Write(w, binary.LittleEndian, vectors)
	})
	if err != nil {
		return fmt.Errorf("cannot write vectors: %w", err)
	}

	mb, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, manifest.ID+".json"), mb, 0o644); err != nil {
		_ = os.Remove(vecPath)
		return fmt.Errorf("cannot write manifest: %w", err)
	}
	return nil
}
