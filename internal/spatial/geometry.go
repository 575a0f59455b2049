package spatial

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/paulmach/orb/encoding/wkb"
)

// RowBounds returns the bounds of the geometry at row i of arr. It reads
// GeoArrow native layouts (nested lists ending in interleaved
// fixed_size_list<double> or separated struct<x, y> coordinates) and WKB
// binary. ok is false for null, empty or unreadable geometry, including
// nested offsets that point outside their child arrays.
func RowBounds(arr arrow.Array, i int) (b Bounds, ok bool) {
	if i < 0 || i >= arr.Len() || arr.IsNull(i) {
		return b, false
	}

	b = EmptyBounds()
	switch {
	case isCoords(arr):
		if !extendCoords(&b, arr, i, i+1) {
			return b, false
		}
	case isList(arr):
		l := arr.(array.ListLike)
		start, end := l.ValueOffsets(i)
		if !walk(&b, l.ListValues(), start, end) {
			return b, false
		}
	default:
		raw, isBinary := binaryValue(arr, i)
		if !isBinary {
			return b, false
		}
		if err := wkbBounds(&b, raw); err != nil {
			return b, false
		}
	}
	return b, !b.IsEmpty()
}

// inRange reports whether [start, end) is a valid range of an array of length n.
func inRange(start, end int64, n int) bool {
	return start >= 0 && start <= end && end <= int64(n)
}

func walk(b *Bounds, arr arrow.Array, start, end int64) bool {
	if !inRange(start, end, arr.Len()) {
		return false
	}
	if start == end {
		return true
	}
	if isCoords(arr) {
		return extendCoords(b, arr, int(start), int(end))
	}
	l, ok := arr.(array.ListLike)
	if !ok {
		return false
	}
	for j := int(start); j < int(end); j++ {
		if l.IsNull(j) {
			continue
		}
		s, e := l.ValueOffsets(j)
		if !walk(b, l.ListValues(), s, e) {
			return false
		}
	}
	return true
}

func isList(arr arrow.Array) bool {
	switch arr.DataType().ID() {
	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST, arrow.LIST_VIEW, arrow.LARGE_LIST_VIEW:
		_, ok := arr.(array.ListLike)
		return ok
	}
	return false
}

// isCoords reports whether each element of arr is one coordinate.
func isCoords(arr arrow.Array) bool {
	switch a := arr.(type) {
	case *array.FixedSizeList:
		n := a.DataType().(*arrow.FixedSizeListType).Len()
		_, f64 := a.ListValues().(*array.Float64)
		return f64 && n >= 2 && n <= 4
	case *array.Struct:
		if a.NumField() < 2 {
			return false
		}
		_, x := a.Field(0).(*array.Float64)
		_, y := a.Field(1).(*array.Float64)
		return x && y
	}
	return false
}

func extendCoords(b *Bounds, arr arrow.Array, start, end int) bool {
	switch a := arr.(type) {
	case *array.FixedSizeList:
		vals := a.ListValues().(*array.Float64)
		for j := start; j < end; j++ {
			if a.IsNull(j) {
				continue
			}
			s, _ := a.ValueOffsets(j)
			if s < 0 || s+1 >= int64(vals.Len()) {
				return false
			}
			b.Extend(vals.Value(int(s)), vals.Value(int(s)+1))
		}
	case *array.Struct:
		xs := a.Field(0).(*array.Float64)
		ys := a.Field(1).(*array.Float64)
		if end > xs.Len() || end > ys.Len() {
			return false
		}
		for j := start; j < end; j++ {
			if a.IsNull(j) {
				continue
			}
			b.Extend(xs.Value(j), ys.Value(j))
		}
	}
	return true
}

func binaryValue(arr arrow.Array, i int) ([]byte, bool) {
	switch a := arr.(type) {
	case *array.Binary:
		return a.Value(i), true
	case *array.LargeBinary:
		return a.Value(i), true
	case *array.BinaryView:
		return a.Value(i), true
	case array.ExtensionArray:
		return binaryValue(a.Storage(), i)
	}
	return nil, false
}

const (
	ewkbZ = 0x80000000
	ewkbM = 0x40000000
)

var errWKBDimensions = errors.New("wkb: only 2D geometries are supported")

// wkbBounds decodes raw with orb, which reads 2D WKB and EWKB. Z and M
// variants would be misread as 2D, so they are rejected up front.
func wkbBounds(b *Bounds, raw []byte) (err error) {
	// orb slices by counts read from the payload; a hostile count can
	// overflow its length checks and panic.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("wkb: corrupt geometry: %v", r)
		}
	}()

	if has3D(raw) {
		return errWKBDimensions
	}

	geom, err := wkb.Unmarshal(raw)
	if err != nil {
		return err
	}
	bound := geom.Bound()
	if bound.IsEmpty() {
		return nil
	}
	b.Extend(bound.Min.X(), bound.Min.Y())
	b.Extend(bound.Max.X(), bound.Max.Y())
	return nil
}

// has3D checks the outer geometry header for EWKB Z/M flags or ISO
// 1000/2000/3000 type codes.
func has3D(raw []byte) bool {
	if len(raw) < 5 {
		return false
	}
	var order binary.ByteOrder = binary.LittleEndian
	if raw[0] == 0 {
		order = binary.BigEndian
	}
	typ := order.Uint32(raw[1:5])
	return typ&(ewkbZ|ewkbM) != 0 || (typ&0xffff)/1000 != 0
}
