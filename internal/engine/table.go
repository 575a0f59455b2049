package engine

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
)

// Format is the inner columnar container a payload was decoded from.
type Format string

const (
	FormatParquet   Format = "parquet"
	FormatIPCFile   Format = "arrow-file"
	FormatIPCStream Format = "arrow-stream"
)

// Table is a decoded columnar table: an ordered schema plus one chunked
// column per field, all with the same row count. Values are exposed exactly
// as decoded; nothing is coerced.
type Table struct {
	tbl         arrow.Table
	rows        int
	format      Format
	container   string
	fingerprint uint64
}

// NewTable wraps an arrow table after checking that every column has the
// table's row count.
func NewTable(tbl arrow.Table) (*Table, error) {
	rows := int(tbl.NumRows())
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		if col.Len() != rows {
			return nil, decodeErr("validate", fmt.Sprintf("column %q has %d rows, table has %d", col.Name(), col.Len(), rows), nil)
		}
	}

	return &Table{tbl: tbl, rows: rows}, nil
}

func (t *Table) NumRows() int { return t.rows }

func (t *Table) Schema() *arrow.Schema { return t.tbl.Schema() }

// Format reports the inner container format.
func (t *Table) Format() Format { return t.format }

// Container reports the outer compression container ("none" when plain).
func (t *Table) Container() string { return t.container }

// Fingerprint is the xxh3 hash of the raw payload the table was decoded from.
func (t *Table) Fingerprint() uint64 { return t.fingerprint }

// Arrow exposes the underlying arrow table for pass-through consumers.
func (t *Table) Arrow() arrow.Table { return t.tbl }

// FieldNames returns the schema field names in source order.
func (t *Table) FieldNames() []string {
	fields := t.tbl.Schema().Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Column returns the first column called name.
func (t *Table) Column(name string) (*arrow.Column, bool) {
	idx := t.tbl.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, false
	}
	return t.tbl.Column(idx[0]), true
}

// ValueAt returns a JSON-friendly representation of column name at row i.
func (t *Table) ValueAt(name string, i int) (any, error) {
	if i < 0 || i >= t.rows {
		return nil, &IndexOutOfRangeError{Index: i, Rows: t.rows}
	}
	col, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("no field %q", name)
	}

	arr, j := locate(col.Data(), i)
	if arr == nil || arr.IsNull(j) {
		return nil, nil
	}
	return arr.GetOneForMarshal(j), nil
}

// Release drops the table's reference on its buffers.
func (t *Table) Release() {
	t.tbl.Release()
}

// locate maps a table row to the chunk holding it and the row within that chunk.
func locate(chunked *arrow.Chunked, i int) (arrow.Array, int) {
	for _, chunk := range chunked.Chunks() {
		if i < chunk.Len() {
			return chunk, i
		}
		i -= chunk.Len()
	}
	return nil, 0
}

func newTableFromRecords(schema *arrow.Schema, recs []arrow.Record) arrow.Table {
	tbl := array.NewTableFromRecords(schema, recs)
	for _, rec := range recs {
		rec.Release()
	}
	return tbl
}
