// Package spatial indexes building footprints by bounding box so a viewport
// can be resolved to the row indices that intersect it.
package spatial

import (
	"math"
	"sort"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/dhconnelly/rtreego"
)

// minExtent pads degenerate (point or axis-aligned line) boxes so rtreego
// accepts them.
const minExtent = 1e-9

// Bounds is a lon/lat bounding box.
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// EmptyBounds is the identity for Extend.
func EmptyBounds() Bounds {
	return Bounds{
		MinLon: math.Inf(1), MinLat: math.Inf(1),
		MaxLon: math.Inf(-1), MaxLat: math.Inf(-1),
	}
}

// IsEmpty reports whether no point has been added.
func (b Bounds) IsEmpty() bool {
	return b.MinLon > b.MaxLon || b.MinLat > b.MaxLat
}

// Extend grows b to cover (lon, lat). NaN coordinates are ignored.
func (b *Bounds) Extend(lon, lat float64) {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return
	}
	b.MinLon = math.Min(b.MinLon, lon)
	b.MinLat = math.Min(b.MinLat, lat)
	b.MaxLon = math.Max(b.MaxLon, lon)
	b.MaxLat = math.Max(b.MaxLat, lat)
}

// Union grows b to cover o.
func (b *Bounds) Union(o Bounds) {
	if o.IsEmpty() {
		return
	}
	b.Extend(o.MinLon, o.MinLat)
	b.Extend(o.MaxLon, o.MaxLat)
}

func (b Bounds) rect() rtreego.Rect {
	point := rtreego.Point{b.MinLon, b.MinLat}
	lengths := []float64{
		math.Max(b.MaxLon-b.MinLon, minExtent),
		math.Max(b.MaxLat-b.MinLat, minExtent),
	}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

type entry struct {
	row  int
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// Index is an R-tree over per-row footprint bounds.
type Index struct {
	rtree   *rtreego.Rtree
	rows    int
	indexed int
	extent  Bounds
}

// BuildIndex computes each row's bounds from a geometry column and inserts
// them into an R-tree. Rows with null or unreadable geometry are skipped.
func BuildIndex(geometry *arrow.Chunked) *Index {
	idx := &Index{
		// 2D, min=25 children, max=50 children
		rtree:  rtreego.NewTree(2, 25, 50),
		extent: EmptyBounds(),
	}

	base := 0
	for _, chunk := range geometry.Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			b, ok := RowBounds(chunk, i)
			if !ok {
				continue
			}
			idx.rtree.Insert(&entry{row: base + i, rect: b.rect()})
			idx.extent.Union(b)
			idx.indexed++
		}
		base += chunk.Len()
	}
	idx.rows = base
	return idx
}

// Rows is the number of rows the index was built over.
func (idx *Index) Rows() int { return idx.rows }

// Indexed is the number of rows with usable geometry.
func (idx *Index) Indexed() int { return idx.indexed }

// Extent is the union of all indexed bounds.
func (idx *Index) Extent() Bounds { return idx.extent }

// Query returns, in ascending order, the rows whose bounds intersect b.
func (idx *Index) Query(b Bounds) []int {
	if b.IsEmpty() {
		return nil
	}
	hits := idx.rtree.SearchIntersect(b.rect())
	rows := make([]int, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, h.(*entry).row)
	}
	sort.Ints(rows)
	return rows
}
