package engine

// DefaultElevation is returned for every row when no numeric field was loaded.
const DefaultElevation = 0.0

// RenderAttributeAccessor answers the renderer's per-row style callbacks.
// Implementations must be O(1), read-only and safe for concurrent use.
type RenderAttributeAccessor interface {
	Len() int
	ElevationAt(i int) float64
	StyleAt(i int) Style
}

// Accessor serves ElevationAt/StyleAt by direct slice indexing. Category
// labels are resolved to alphas once at construction, never per call.
type Accessor struct {
	rows       int
	elevations []float64
	alphas     []uint8
	strict     bool
}

var _ RenderAttributeAccessor = (*Accessor)(nil)

// NewAccessor builds an accessor over rows rows. With strict set, an index
// outside [0, rows) panics with *IndexOutOfRangeError; otherwise the
// default elevation and style are returned.
func NewAccessor(rows int, d *DerivedAttributes, strict bool) *Accessor {
	a := &Accessor{rows: rows, strict: strict}
	if d == nil {
		return a
	}
	if len(d.Elevations) == rows {
		a.elevations = d.Elevations
	}
	if len(d.Categories) == rows && rows > 0 {
		a.alphas = make([]uint8, rows)
		for i, c := range d.Categories {
			a.alphas[i] = alphaOfSlot(slotOf(c))
		}
	}
	return a
}

func (a *Accessor) Len() int { return a.rows }

// HasElevations reports whether extrusion is enabled for this load.
func (a *Accessor) HasElevations() bool { return a.elevations != nil }

// HasCategories reports whether category styling is enabled for this load.
func (a *Accessor) HasCategories() bool { return a.alphas != nil }

// CheckIndex returns an *IndexOutOfRangeError for i outside [0, Len()).
func (a *Accessor) CheckIndex(i int) error {
	if i < 0 || i >= a.rows {
		return &IndexOutOfRangeError{Index: i, Rows: a.rows}
	}
	return nil
}

func (a *Accessor) ElevationAt(i int) float64 {
	if !a.inRange(i) {
		return DefaultElevation
	}
	if a.elevations == nil {
		return DefaultElevation
	}
	return a.elevations[i]
}

func (a *Accessor) StyleAt(i int) Style {
	if !a.inRange(i) {
		return DefaultStyle
	}
	if a.alphas == nil {
		return DefaultStyle
	}
	return Style{Color: BaseColor, Alpha: a.alphas[i]}
}

func (a *Accessor) inRange(i int) bool {
	if uint(i) < uint(a.rows) {
		return true
	}
	if a.strict {
		panic(&IndexOutOfRangeError{Index: i, Rows: a.rows})
	}
	return false
}
