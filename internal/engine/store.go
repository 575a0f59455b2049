package engine

import (
	"fmt"
	"time"

	"buildingmap/internal/spatial"
)

// Dataset is one published load: the decoded table and everything derived
// from it. It is built once and never mutated, so readers need no locking.
// The derived arrays, accessor, index and summary always come from Table.
type Dataset struct {
	LoadID   string
	LoadedAt time.Time

	Table    *Table
	Derived  *DerivedAttributes
	Accessor *Accessor
	Index    *spatial.Index // nil when the table has no usable geometry column

	geometryField string
	summary       *Summary
}

// NumRows is the number of buildings.
func (d *Dataset) NumRows() int { return d.Table.NumRows() }

// GeometryField is the name of the geometry column handed to the renderer.
func (d *Dataset) GeometryField() string { return d.geometryField }

// Summary returns the per-period statistics computed at load time.
func (d *Dataset) Summary() *Summary { return d.summary }

// Row returns the named fields of row i, skipping names the schema lacks.
func (d *Dataset) Row(i int, names []string) (map[string]any, error) {
	if err := d.Accessor.CheckIndex(i); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(names))
	for _, name := range names {
		if _, ok := d.Table.Column(name); !ok {
			continue
		}
		v, err := d.Table.ValueAt(name, i)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Geometry returns the geometry value of row i exactly as decoded.
func (d *Dataset) Geometry(i int) (any, error) {
	if err := d.Accessor.CheckIndex(i); err != nil {
		return nil, err
	}
	if _, ok := d.Table.Column(d.geometryField); !ok {
		return nil, fmt.Errorf("no geometry field %q", d.geometryField)
	}
	return d.Table.ValueAt(d.geometryField, i)
}
