package engine

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
)

// BinaryColumn is the physical layout of a variable-length column: one
// shared byte buffer and N+1 offsets. Row i is RawBytes[ValueOffsets[i]:ValueOffsets[i+1]].
type BinaryColumn struct {
	RawBytes     []byte
	ValueOffsets []int64
}

// Len is the number of rows N.
func (c BinaryColumn) Len() int {
	if len(c.ValueOffsets) == 0 {
		return 0
	}
	return len(c.ValueOffsets) - 1
}

// Validate checks offsets[0] == 0, offsets non-decreasing and offsets[N] == len(RawBytes).
func (c BinaryColumn) Validate() error {
	if len(c.ValueOffsets) == 0 {
		if len(c.RawBytes) != 0 {
			return fmt.Errorf("no offsets for %d bytes", len(c.RawBytes))
		}
		return nil
	}
	if c.ValueOffsets[0] != 0 {
		return fmt.Errorf("first offset is %d, want 0", c.ValueOffsets[0])
	}
	for i := 1; i < len(c.ValueOffsets); i++ {
		if c.ValueOffsets[i] < c.ValueOffsets[i-1] {
			return fmt.Errorf("offset %d (%d) is below offset %d (%d)", i, c.ValueOffsets[i], i-1, c.ValueOffsets[i-1])
		}
	}
	if last := c.ValueOffsets[len(c.ValueOffsets)-1]; last != int64(len(c.RawBytes)) {
		return fmt.Errorf("last offset is %d, buffer holds %d bytes", last, len(c.RawBytes))
	}
	return nil
}

// ExtractStrings decodes every row of col into a string, in row order.
// Empty ranges give "" and repeated values are kept once per row, so the
// result can be indexed by row number. Invalid UTF-8 is handled by policy.
func ExtractStrings(col BinaryColumn, policy TextPolicy) ([]string, error) {
	if err := col.Validate(); err != nil {
		return nil, decodeErr("derive", "malformed binary column", err)
	}

	n := col.Len()
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = policy.Decode(col.RawBytes[col.ValueOffsets[i]:col.ValueOffsets[i+1]])
	}
	return out, nil
}

// binaryColumnOf exposes an arrow variable-length array as a BinaryColumn.
// Sliced arrays carry offsets that do not start at zero; they are rebased.
func binaryColumnOf(arr arrow.Array) (BinaryColumn, bool) {
	switch a := arr.(type) {
	case interface {
		ValueOffsets() []int32
		ValueBytes() []byte
	}:
		offs := a.ValueOffsets()
		col := BinaryColumn{RawBytes: a.ValueBytes(), ValueOffsets: make([]int64, len(offs))}
		if len(offs) > 0 {
			base := int64(offs[0])
			for i, o := range offs {
				col.ValueOffsets[i] = int64(o) - base
			}
		}
		return col, true
	case interface {
		ValueOffsets() []int64
		ValueBytes() []byte
	}:
		offs := a.ValueOffsets()
		col := BinaryColumn{RawBytes: a.ValueBytes(), ValueOffsets: make([]int64, len(offs))}
		if len(offs) > 0 {
			base := offs[0]
			for i, o := range offs {
				col.ValueOffsets[i] = o - base
			}
		}
		return col, true
	case *array.StringView:
		return packValues(a.Len(), func(i int) []byte { return []byte(a.Value(i)) }), true
	case *array.BinaryView:
		return packValues(a.Len(), a.Value), true
	}
	return BinaryColumn{}, false
}

func packValues(n int, value func(int) []byte) BinaryColumn {
	col := BinaryColumn{ValueOffsets: make([]int64, n+1)}
	for i := 0; i < n; i++ {
		col.RawBytes = append(col.RawBytes, value(i)...)
		col.ValueOffsets[i+1] = int64(len(col.RawBytes))
	}
	return col
}

// isTextual reports whether extractColumn can read arrays of type dt.
func isTextual(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.STRING, arrow.LARGE_STRING, arrow.BINARY, arrow.LARGE_BINARY, arrow.STRING_VIEW, arrow.BINARY_VIEW:
		return true
	case arrow.DICTIONARY:
		return isTextual(dt.(*arrow.DictionaryType).ValueType)
	}
	return false
}

// extractColumn runs ExtractStrings over every chunk of a column and
// concatenates the results, so the output has one entry per table row.
func extractColumn(chunked *arrow.Chunked, policy TextPolicy) ([]string, error) {
	out := make([]string, 0, chunked.Len())
	for _, chunk := range chunked.Chunks() {
		vals, err := extractChunk(chunk, policy)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func extractChunk(chunk arrow.Array, policy TextPolicy) ([]string, error) {
	if dict, ok := chunk.(*array.Dictionary); ok {
		values, err := extractChunk(dict.Dictionary(), policy)
		if err != nil {
			return nil, err
		}
		out := make([]string, dict.Len())
		for i := range out {
			if dict.IsNull(i) {
				continue
			}
			idx := dict.GetValueIndex(i)
			if idx < 0 || idx >= len(values) {
				return nil, decodeErr("derive", fmt.Sprintf("dictionary index %d out of range [0, %d)", idx, len(values)), nil)
			}
			out[i] = values[idx]
		}
		return out, nil
	}

	col, ok := binaryColumnOf(chunk)
	if !ok {
		return nil, decodeErr("derive", fmt.Sprintf("column type %s is not variable-length binary", chunk.DataType()), nil)
	}
	out, err := ExtractStrings(col, policy)
	if err != nil {
		return nil, err
	}
	if chunk.NullN() > 0 {
		for i := range out {
			if chunk.IsNull(i) {
				out[i] = ""
			}
		}
	}
	return out, nil
}
