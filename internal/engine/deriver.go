package engine

import (
	"context"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/labstack/gommon/log"
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
)

// DefaultExtrusionScale converts a floor count into metres of extrusion.
const DefaultExtrusionScale = 9.0

// DeriveOptions names the columns the deriver reads.
type DeriveOptions struct {
	NumericField     string
	CategoricalField string
	ExtrusionScale   float64
	TextPolicy       TextPolicy
}

// DerivedAttributes are row-aligned with the table they came from.
// Each slice is either empty (field absent) or has exactly NumRows entries.
type DerivedAttributes struct {
	Elevations []float64
	Categories []string
}

// Derive reads the numeric and categorical fields of t and produces the
// per-row elevation and category arrays. A missing field is not an error:
// its slice is left empty and rendering falls back to defaults.
func Derive(ctx context.Context, t *Table, opts DeriveOptions) (*DerivedAttributes, error) {
	out := &DerivedAttributes{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		col, ok := t.Column(opts.NumericField)
		if !ok {
			log.Warnf("field %q not in schema, extrusion disabled", opts.NumericField)
			return nil
		}
		elevations, ok := scaleColumn(col.Data(), opts.ExtrusionScale)
		if !ok {
			log.Warnf("field %q has non-numeric type %s, extrusion disabled", opts.NumericField, col.DataType())
			return nil
		}
		out.Elevations = elevations
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		col, ok := t.Column(opts.CategoricalField)
		if !ok {
			log.Warnf("field %q not in schema, using default style", opts.CategoricalField)
			return nil
		}
		if !isTextual(col.DataType()) {
			log.Warnf("field %q has non-binary type %s, using default style", opts.CategoricalField, col.DataType())
			return nil
		}
		categories, err := extractColumn(col.Data(), opts.TextPolicy)
		if err != nil {
			return err
		}
		out.Categories = categories
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := t.NumRows()
	if n := len(out.Elevations); n != 0 && n != rows {
		return nil, decodeErr("derive", "elevations not aligned with table rows", nil)
	}
	if n := len(out.Categories); n != 0 && n != rows {
		return nil, decodeErr("derive", "categories not aligned with table rows", nil)
	}
	return out, nil
}

// scaleColumn multiplies every value of a numeric column by scale. Null
// rows become 0. It reports false for non-numeric columns.
func scaleColumn(chunked *arrow.Chunked, scale float64) ([]float64, bool) {
	out := make([]float64, 0, chunked.Len())
	for _, chunk := range chunked.Chunks() {
		base := len(out)
		switch a := chunk.(type) {
		case *array.Int8:
			out = appendScaled(out, a.Int8Values(), scale)
		case *array.Int16:
			out = appendScaled(out, a.Int16Values(), scale)
		case *array.Int32:
			out = appendScaled(out, a.Int32Values(), scale)
		case *array.Int64:
			out = appendScaled(out, a.Int64Values(), scale)
		case *array.Uint8:
			out = appendScaled(out, a.Uint8Values(), scale)
		case *array.Uint16:
			out = appendScaled(out, a.Uint16Values(), scale)
		case *array.Uint32:
			out = appendScaled(out, a.Uint32Values(), scale)
		case *array.Uint64:
			out = appendScaled(out, a.Uint64Values(), scale)
		case *array.Float32:
			out = appendScaled(out, a.Float32Values(), scale)
		case *array.Float64:
			out = appendScaled(out, a.Float64Values(), scale)
		default:
			return nil, false
		}
		if chunk.NullN() > 0 {
			for i := 0; i < chunk.Len(); i++ {
				if chunk.IsNull(i) {
					out[base+i] = 0
				}
			}
		}
	}
	return out, true
}

func appendScaled[T constraints.Integer | constraints.Float](dst []float64, vals []T, scale float64) []float64 {
	for _, v := range vals {
		dst = append(dst, float64(v)*scale)
	}
	return dst
}
