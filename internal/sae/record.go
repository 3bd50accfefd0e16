package sae

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/kamusis/lscope/internal/fsutil"
	"github.com/kamusis/lscope/internal/table"
)

const (
	// RawExt is the extension of raw sparse activation records.
	RawExt = ".parquet"

	colActs    = "top_acts"
	colIndices = "top_indices"

	// rows per record batch and row group
	writeBatchRows = 64 * 1024
)

// Metadata is the JSON record written beside every raw activation record.
type Metadata struct {
	ID             string    `json:"id"`
	ModelID        string    `json:"model_id"`
	KExpansion     string    `json:"k_expansion"`
	EmbeddingID    string    `json:"embedding_id"`
	DatasetID      string    `json:"dataset_id"`
	MaxActivations []float32 `json:"max_activations"`
	NumFeatures    int       `json:"num_features"`
	DeadFeatures   int       `json:"dead_features"`
	AliveFeatures  int       `json:"alive_features"`
	Rows           int       `json:"rows"`
	K              int       `json:"k"`
	CreatedAt      string    `json:"created_at"`
}

var rawSchema = arrow.NewSchema([]arrow.Field{
	{Name: colActs, Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)},
	{Name: colIndices, Type: arrow.ListOf(arrow.PrimitiveTypes.Int32)},
}, nil)

// WriteRun persists a run into dir as <id>.parquet then <id>.json. Both files
// are renamed into place only when complete; if the metadata cannot be
// written the raw record is removed, so a raw record never exists without
// its metadata.
func WriteRun(dir string, meta Metadata, acts Activations, mem memory.Allocator) error {
	if meta.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := acts.Validate(); err != nil {
		return err
	}
	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	rawPath := filepath.Join(dir, meta.ID+RawExt)
	if err := writeRaw(rawPath, acts, mem); err != nil {
		return err
	}
	b, err := json.Marshal(meta)
	if err == nil {
		err = fsutil.WriteFileAtomic(filepath.Join(dir, meta.ID+".json"), b, 0o644)
	}
	if err != nil {
		_ = os.Remove(rawPath)
		return fmt.Errorf("cannot write run metadata: %w", err)
	}
	return nil
}

func writeRaw(path string, acts Activations, mem memory.Allocator) error {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	props := parquet.NewWriterProperties(
		parquet.WithAllocator(mem),
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithMaxRowGroupLength(writeBatchRows),
	)
	return fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		fw, err := pqarrow.NewFileWriter(rawSchema, w, props, pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(mem)))
		if err != nil {
			return fmt.Errorf("cannot create raw record writer: %w", err)
		}
		for lo := 0; lo < acts.Rows; lo += writeBatchRows {
			hi := min(lo+writeBatchRows, acts.Rows)
			rec := buildBatch(mem, acts, lo, hi)
			err := fw.Write(rec)
			rec.Release()
			if err != nil {
				_ = fw.Close()
				return fmt.Errorf("cannot write raw record: %w", err)
			}
		}
		return fw.Close()
	})
}

func buildBatch(mem memory.Allocator, acts Activations, lo, hi int) arrow.Record {
	b := array.NewRecordBuilder(mem, rawSchema)
	defer b.Release()
	actsList := b.Field(0).(*array.ListBuilder)
	actsVals := actsList.ValueBuilder().(*array.Float32Builder)
	idxList := b.Field(1).(*array.ListBuilder)
	idxVals := idxList.ValueBuilder().(*array.Int32Builder)
	for r := lo; r < hi; r++ {
		from, to := r*acts.K, (r+1)*acts.K
		actsList.Append(true)
		actsVals.AppendValues(acts.Values[from:to], nil)
		idxList.Append(true)
		idxVals.AppendValues(acts.Indices[from:to], nil)
	}
	return b.NewRecord()
}

// ReadActivations loads a raw activation record written by WriteRun.
func ReadActivations(ctx context.Context, path string, mem memory.Allocator) (Activations, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	tbl, err := table.ReadArrow(ctx, path, mem)
	if err != nil {
		return Activations{}, err
	}
	defer tbl.Release()

	acts := Activations{Rows: int(tbl.NumRows()), K: -1}
	schema := tbl.Schema()
	for _, name := range []string{colActs, colIndices} {
		idx := schema.FieldIndices(name)
		if len(idx) != 1 {
			return Activations{}, fmt.Errorf("%w: %s has no %s column", ErrShape, path, name)
		}
		for _, chunk := range tbl.Column(idx[0]).Data().Chunks() {
			list, ok := chunk.(*array.List)
			if !ok {
				return Activations{}, fmt.Errorf("%w: %s column %s is %s", ErrShape, path, name, chunk.DataType())
			}
			for i := 0; i < list.Len(); i++ {
				start, end := list.ValueOffsets(i)
				if acts.K < 0 {
					acts.K = int(end - start)
				}
				if int(end-start) != acts.K {
					return Activations{}, fmt.Errorf("%w: %s row width %d want %d", ErrShape, path, end-start, acts.K)
				}
				switch vals := list.ListValues().(type) {
				case *array.Float32:
					acts.Values = append(acts.Values, vals.Float32Values()[start:end]...)
				case *array.Int32:
					acts.Indices = append(acts.Indices, vals.Int32Values()[start:end]...)
				default:
					return Activations{}, fmt.Errorf("%w: %s column %s holds %s", ErrShape, path, name, vals.DataType())
				}
			}
		}
	}
	if acts.K < 0 {
		acts.K = 0
	}
	if err := acts.Validate(); err != nil {
		return Activations{}, err
	}
	return acts, nil
}

// ReadMetadata loads the metadata record of run id from dir.
func ReadMetadata(dir, id string) (*Metadata, error) {
	p := filepath.Join(dir, id+".json")
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid run metadata %s: %w", p, err)
	}
	return &m, nil
}
