package engine

import (
	"bytes"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

var mem = memory.DefaultAllocator

var (
	pointType   = arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Float64)
	ringType    = arrow.ListOf(pointType)
	polygonType = arrow.ListOf(ringType)
)

// building is one row of a test dataset. A nil Floors or Period means null.
type building struct {
	Name   string
	Floors *int64
	Period *string
	Lon    float64
	Lat    float64
}

func i64(v int64) *int64    { return &v }
func str(v string) *string { return &v }

func buildingSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "Name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "floors_ag", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "Period_con", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "GEOMETRY", Type: polygonType, Nullable: true},
	}, nil)
}

// buildingRecord builds a record batch whose geometry is a 0.001 degree
// square per building with its south-west corner at (Lon, Lat).
func buildingRecord(t *testing.T, rows []building) arrow.Record {
	t.Helper()

	names := array.NewStringBuilder(mem)
	defer names.Release()
	floors := array.NewInt64Builder(mem)
	defer floors.Release()
	periods := array.NewStringBuilder(mem)
	defer periods.Release()
	polys := array.NewListBuilder(mem, ringType)
	defer polys.Release()
	rings := polys.ValueBuilder().(*array.ListBuilder)
	points := rings.ValueBuilder().(*array.FixedSizeListBuilder)
	coords := points.ValueBuilder().(*array.Float64Builder)

	for _, r := range rows {
		names.Append(r.Name)
		if r.Floors == nil {
			floors.AppendNull()
		} else {
			floors.Append(*r.Floors)
		}
		if r.Period == nil {
			periods.AppendNull()
		} else {
			periods.Append(*r.Period)
		}

		polys.Append(true)
		rings.Append(true)
		for _, c := range [][2]float64{{0, 0}, {0.001, 0}, {0.001, 0.001}, {0, 0.001}, {0, 0}} {
			points.Append(true)
			coords.Append(r.Lon + c[0])
			coords.Append(r.Lat + c[1])
		}
	}

	cols := []arrow.Array{names.NewArray(), floors.NewArray(), periods.NewArray(), polys.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	return array.NewRecord(buildingSchema(), cols, int64(len(rows)))
}

// buildingTable builds a table with one chunk per batch.
func buildingTable(t *testing.T, batches ...[]building) *Table {
	t.Helper()

	recs := make([]arrow.Record, 0, len(batches))
	for _, b := range batches {
		recs = append(recs, buildingRecord(t, b))
	}
	tbl, err := NewTable(newTableFromRecords(buildingSchema(), recs))
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

// ipcStream serializes batches as an Arrow IPC stream.
func ipcStream(t *testing.T, batches ...[]building) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(buildingSchema()), ipc.WithAllocator(mem))
	for _, b := range batches {
		rec := buildingRecord(t, b)
		if err := w.Write(rec); err != nil {
			t.Fatalf("ipc write: %v", err)
		}
		rec.Release()
	}
	if err := w.Close(); err != nil {
		t.Fatalf("ipc close: %v", err)
	}
	return buf.Bytes()
}

var lisbon = []building{
	{Name: "Torre do Tombo", Floors: i64(2), Period: str("antes de 1919"), Lon: -9.150, Lat: 38.750},
	{Name: "Pavilhão Central", Floors: i64(5), Period: str("1961-1970"), Lon: -9.139, Lat: 38.736},
	{Name: "Anexo", Floors: i64(0), Period: str("NA"), Lon: -9.120, Lat: 38.760},
}
