// Package table loads a dataset's primary parquet table and materializes rows
// by position.
package table

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// ErrIndexOutOfRange is returned when a requested row position is outside the table.
var ErrIndexOutOfRange = errors.New("row index out of range")

// Row is one materialized table row keyed by column name.
type Row map[string]any

type column struct {
	name    string
	chunks  []arrow.Array
	offsets []int64 // first row of each chunk
}

// Table is an immutable, fully loaded table with random access by row position.
type Table struct {
	tbl     arrow.Table
	columns []column
	numRows int
}

// ReadArrow loads the whole parquet file at path as an arrow table.
// A missing file is reported with an error satisfying os.IsNotExist.
func ReadArrow(ctx context.Context, path string, mem memory.Allocator) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("cannot read parquet %s: %w", path, err)
	}
	return tbl, nil
}

// ReadParquet loads the whole parquet file at path.
func ReadParquet(ctx context.Context, path string, mem memory.Allocator) (*Table, error) {
	tbl, err := ReadArrow(ctx, path, mem)
	if err != nil {
		return nil, err
	}
	return newTable(tbl), nil
}

func newTable(tbl arrow.Table) *Table {
	schema := tbl.Schema()
	t := &Table{tbl: tbl, numRows: int(tbl.NumRows())}
	for i := 0; i < int(tbl.NumCols()); i++ {
		chunks := tbl.Column(i).Data().Chunks()
		offsets := make([]int64, len(chunks))
		var off int64
		for j, c := range chunks {
			offsets[j] = off
			off += int64(c.Len())
		}
		t.columns = append(t.columns, column{
			name:    schema.Field(i).Name,
			chunks:  chunks,
			offsets: offsets,
		})
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return t.numRows
}

// Columns returns the column names in schema order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.name
	}
	return out
}

func (c column) locate(row int) (arrow.Array, int) {
	j := sort.Search(len(c.offsets), func(k int) bool { return c.offsets[k] > int64(row) }) - 1
	return c.chunks[j], row - int(c.offsets[j])
}

// Row returns the row at position i.
func (t *Table) Row(i int) (Row, error) {
	if i < 0 || i >= t.numRows {
		return nil, fmt.Errorf("%w: %d (rows=%d)", ErrIndexOutOfRange, i, t.numRows)
	}
	r := make(Row, len(t.columns))
	for _, c := range t.columns {
		arr, local := c.locate(i)
		if arr.IsNull(local) {
			r[c.name] = nil
			continue
		}
		r[c.name] = arr.GetOneForMarshal(local)
	}
	return r, nil
}

// Rows returns the rows at the given positions in order, duplicates included.
// Nothing is returned unless every position is valid.
func (t *Table) Rows(indices []int) ([]Row, error) {
	for _, i := range indices {
		if i < 0 || i >= t.numRows {
			return nil, fmt.Errorf("%w: %d (rows=%d)", ErrIndexOutOfRange, i, t.numRows)
		}
	}
	out := make([]Row, 0, len(indices))
	for _, i := range indices {
		r, err := t.Row(i)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// All returns every row in table order.
func (t *Table) All() ([]Row, error) {
	indices := make([]int, t.numRows)
	for i := range indices {
		indices[i] = i
	}
	return t.Rows(indices)
}

// Strings returns the named column as text, one entry per row. Nulls become "".
func (t *Table) Strings(name string) ([]string, error) {
	for _, c := range t.columns {
		if c.name != name {
			continue
		}
		out := make([]string, 0, t.numRows)
		for _, chunk := range c.chunks {
			for i := 0; i < chunk.Len(); i++ {
				if chunk.IsNull(i) {
					out = append(out, "")
				} else if s, ok := chunk.(*array.String); ok {
					out = append(out, s.Value(i))
				} else {
					out = append(out, chunk.ValueStr(i))
				}
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("column %q not found", name)
}
