// Package testutil builds on-disk dataset fixtures for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// NewDataset creates <root>/<id> and, when rows > 0, an input.parquet with
// columns id (int64) and text (string, "row <i>") holding rows rows.
func NewDataset(t testing.TB, root, id string, rows int) string {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if rows > 0 {
		WriteInput(t, filepath.Join(dir, "input.parquet"), rows)
	}
	return dir
}

// WriteInput writes a rows-row parquet table to path.
func WriteInput(t testing.TB, path string, rows int) {
	t.Helper()
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "text", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	ids := b.Field(0).(*array.Int64Builder)
	texts := b.Field(1).(*array.StringBuilder)
	for i := 0; i < rows; i++ {
		ids.Append(int64(i))
		texts.Append(fmt.Sprintf("row %d", i))
	}
	rec := b.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	// a small row group size gives the reader several chunks to stitch together
	if err := pqarrow.WriteTable(tbl, f, 2, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()); err != nil {
		t.Fatal(err)
	}
}
