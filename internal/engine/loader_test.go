package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource serves a fixed payload and counts fetches. When gate is
// set, Fetch blocks until it is closed.
type countingSource struct {
	payload []byte
	err     error
	gate    chan struct{}
	calls   atomic.Int32
}

func (s *countingSource) Fetch(ctx context.Context) ([]byte, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func newTestLoader(src ByteSource) *Loader {
	return NewLoader(Pipeline{
		Source:        src,
		Derive:        defaultDerive(),
		GeometryField: "GEOMETRY",
		StrictBounds:  true,
	})
}

func TestLoader_Load(t *testing.T) {
	src := &countingSource{payload: ipcStream(t, lisbon)}
	l := newTestLoader(src)

	require.Equal(t, Unloaded, l.Current().State)
	_, ok := l.Dataset()
	require.False(t, ok)

	snap := l.Load(context.Background())
	require.Equal(t, Loaded, snap.State, "err: %v", snap.Err)
	require.NotEmpty(t, snap.LoadID)

	ds, ok := l.Dataset()
	require.True(t, ok)
	assert.Equal(t, 3, ds.NumRows())
	assert.Equal(t, 45.0, ds.Accessor.ElevationAt(1))
	assert.Equal(t, uint8(255), ds.Accessor.StyleAt(0).Alpha)
	require.NotNil(t, ds.Index)
	assert.Equal(t, 3, ds.Index.Indexed())
	assert.Equal(t, 3, ds.Summary().TotalBuildings)
}

func TestLoader_LoadRunsOnce(t *testing.T) {
	src := &countingSource{payload: ipcStream(t, lisbon)}
	l := newTestLoader(src)

	first := l.Load(context.Background())
	second := l.Load(context.Background())

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, first.LoadID, second.LoadID)
	assert.Same(t, first.Dataset, second.Dataset)
}

func TestLoader_ConcurrentLoads(t *testing.T) {
	src := &countingSource{payload: ipcStream(t, lisbon), gate: make(chan struct{})}
	l := newTestLoader(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Load(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, Loading, l.Current().State)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, Loaded, l.Current().State)
}

func TestLoader_FetchFailure(t *testing.T) {
	boom := errors.New("connection reset")
	src := &countingSource{err: boom}
	l := newTestLoader(src)

	snap := l.Load(context.Background())
	assert.Equal(t, Failed, snap.State)
	assert.ErrorIs(t, snap.Err, boom)
	_, ok := l.Dataset()
	assert.False(t, ok)

	// Failed is terminal for Load.
	l.Load(context.Background())
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestLoader_DecodeFailure(t *testing.T) {
	stream := ipcStream(t, lisbon)
	l := newTestLoader(&countingSource{payload: stream[:len(stream)/2]})

	snap := l.Load(context.Background())
	require.Equal(t, Failed, snap.State)
	var de *DecodeError
	assert.True(t, errors.As(snap.Err, &de))
}

func TestLoader_MissingFieldsStillLoad(t *testing.T) {
	l := NewLoader(Pipeline{
		Source: &countingSource{payload: ipcStream(t, lisbon)},
		Derive: DeriveOptions{NumericField: "height", CategoricalField: "era"},
	})

	snap := l.Load(context.Background())
	require.Equal(t, Loaded, snap.State)
	ds := snap.Dataset
	assert.False(t, ds.Accessor.HasElevations())
	assert.False(t, ds.Accessor.HasCategories())
	assert.Nil(t, ds.Index)
	assert.Equal(t, DefaultStyle, ds.Accessor.StyleAt(2))
}

func TestLoader_Start(t *testing.T) {
	src := &countingSource{payload: ipcStream(t, lisbon), gate: make(chan struct{})}
	l := newTestLoader(src)

	snap := l.Start(context.Background())
	assert.Equal(t, Loading, snap.State)
	assert.Equal(t, Loading, l.Current().State)

	again := l.Start(context.Background())
	assert.Equal(t, snap.LoadID, again.LoadID)

	close(src.gate)
	require.Eventually(t, func() bool { return l.Current().State == Loaded }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestLoader_Reload(t *testing.T) {
	src := &countingSource{payload: ipcStream(t, lisbon)}
	l := newTestLoader(src)

	first := l.Load(context.Background())
	require.Equal(t, Loaded, first.State)

	src.payload = ipcStream(t, lisbon[:2])
	second := l.Reload(context.Background())
	require.Equal(t, Loaded, second.State)
	assert.NotEqual(t, first.LoadID, second.LoadID)
	assert.Equal(t, 2, second.Dataset.NumRows())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestLoader_FailedReloadKeepsDataset(t *testing.T) {
	src := &countingSource{payload: ipcStream(t, lisbon)}
	l := newTestLoader(src)

	first := l.Load(context.Background())
	require.Equal(t, Loaded, first.State)

	src.err = errors.New("503 from origin")
	snap := l.Reload(context.Background())
	assert.Equal(t, Loaded, snap.State)
	assert.Equal(t, first.LoadID, snap.LoadID)
	assert.Same(t, first.Dataset, snap.Dataset)
	assert.Error(t, snap.Err)
}

func TestLoader_ReloadAfterFailure(t *testing.T) {
	src := &countingSource{err: errors.New("timeout")}
	l := newTestLoader(src)

	require.Equal(t, Failed, l.Load(context.Background()).State)

	src.err = nil
	src.payload = ipcStream(t, lisbon)
	snap := l.Reload(context.Background())
	assert.Equal(t, Loaded, snap.State)
	assert.Equal(t, 3, snap.Dataset.NumRows())
}

// cachingSource records Invalidate calls the way the disk cache would.
type cachingSource struct {
	countingSource
	invalidated atomic.Int32
}

func (s *cachingSource) Invalidate() error {
	s.invalidated.Add(1)
	return nil
}

func TestLoader_DecodeFailureInvalidatesCache(t *testing.T) {
	stream := ipcStream(t, lisbon)
	src := &cachingSource{countingSource: countingSource{payload: stream[:len(stream)/2]}}
	l := newTestLoader(src)

	require.Equal(t, Failed, l.Load(context.Background()).State)
	assert.Equal(t, int32(1), src.invalidated.Load())

	src.payload = stream
	snap := l.Reload(context.Background())
	require.Equal(t, Loaded, snap.State)
	assert.Equal(t, int32(1), src.invalidated.Load())
}

func TestLoader_FetchFailureKeepsCache(t *testing.T) {
	src := &cachingSource{countingSource: countingSource{err: errors.New("connection reset")}}
	l := newTestLoader(src)

	require.Equal(t, Failed, l.Load(context.Background()).State)
	assert.Zero(t, src.invalidated.Load())
}

type panickingSource struct{}

func (panickingSource) Fetch(ctx context.Context) ([]byte, error) {
	panic("source exploded")
}

func TestLoader_PanicEndsFailed(t *testing.T) {
	l := newTestLoader(panickingSource{})

	var snap Snapshot
	require.NotPanics(t, func() { snap = l.Load(context.Background()) })
	require.Equal(t, Failed, snap.State)
	var de *DecodeError
	require.True(t, errors.As(snap.Err, &de))
	assert.Equal(t, "pipeline", de.Stage)
}

// corruptGeometryStream is an IPC stream of two polygons whose ring offsets
// [0, 1000, 10] point past the ten coordinates they index.
func corruptGeometryStream(t *testing.T) []byte {
	t.Helper()

	coords := make([]float64, 20)
	for i := range coords {
		coords[i] = float64(i)
	}
	vb := array.NewFloat64Builder(mem)
	defer vb.Release()
	vb.AppendValues(coords, nil)
	vals := vb.NewFloat64Array()
	defer vals.Release()

	points := array.NewData(pointType, 10, []*memory.Buffer{nil}, []arrow.ArrayData{vals.Data()}, 0, 0)
	defer points.Release()
	rings := array.NewData(ringType, 2,
		[]*memory.Buffer{nil, memory.NewBufferBytes(arrow.Int32Traits.CastToBytes([]int32{0, 1000, 10}))},
		[]arrow.ArrayData{points}, 0, 0)
	defer rings.Release()
	polys := array.NewData(polygonType, 2,
		[]*memory.Buffer{nil, memory.NewBufferBytes(arrow.Int32Traits.CastToBytes([]int32{0, 1, 2}))},
		[]arrow.ArrayData{rings}, 0, 0)
	defer polys.Release()
	geom := array.MakeFromData(polys)
	defer geom.Release()

	schema := arrow.NewSchema([]arrow.Field{{Name: "GEOMETRY", Type: polygonType, Nullable: true}}, nil)
	rec := array.NewRecord(schema, []arrow.Array{geom}, 2)
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestLoader_CorruptGeometryOffsets(t *testing.T) {
	l := newTestLoader(&countingSource{payload: corruptGeometryStream(t)})

	var snap Snapshot
	require.NotPanics(t, func() { snap = l.Load(context.Background()) })
	require.Equal(t, Loaded, snap.State, "err: %v", snap.Err)
	require.NotNil(t, snap.Dataset.Index)
	assert.Equal(t, 2, snap.Dataset.Index.Rows())
	assert.Zero(t, snap.Dataset.Index.Indexed())
}

func TestLoader_StartReload(t *testing.T) {
	src := &countingSource{payload: ipcStream(t, lisbon)}
	l := newTestLoader(src)

	first := l.Load(context.Background())
	require.Equal(t, Loaded, first.State)

	src.gate = make(chan struct{})
	snap := l.StartReload(context.Background())
	assert.Equal(t, Loading, snap.State)
	assert.NotEqual(t, first.LoadID, snap.LoadID)
	assert.Same(t, first.Dataset, snap.Dataset)

	// a second trigger while loading reports the running reload
	again := l.StartReload(context.Background())
	assert.Equal(t, snap.LoadID, again.LoadID)

	close(src.gate)
	require.Eventually(t, func() bool {
		s := l.Current()
		return s.State == Loaded && s.LoadID == snap.LoadID
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unloaded", Unloaded.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "loaded", Loaded.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
