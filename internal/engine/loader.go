package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/singleflight"

	"buildingmap/internal/spatial"
)

// State is where the loader is in its lifecycle.
type State int32

const (
	Unloaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ByteSource supplies the compressed payload. Any error is fatal for the load.
type ByteSource interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Pipeline is the fetch, decode, derive sequence run for one load.
type Pipeline struct {
	Source        ByteSource
	Decoder       *Decoder
	Derive        DeriveOptions
	GeometryField string
	StrictBounds  bool
}

// Snapshot is an immutable view of the loader. Dataset stays set while a
// reload is in flight or after a failed reload.
type Snapshot struct {
	State     State
	LoadID    string
	Dataset   *Dataset
	Err       error
	StartedAt time.Time
}

// Loader owns the single live Dataset. Load runs the pipeline only from
// Unloaded; every other trigger is a no-op that reports the current state.
type Loader struct {
	pipeline Pipeline
	current  atomic.Pointer[Snapshot]
	group    singleflight.Group
}

func NewLoader(p Pipeline) *Loader {
	if p.Decoder == nil {
		p.Decoder = NewDecoder()
	}
	if p.Derive.ExtrusionScale == 0 {
		p.Derive.ExtrusionScale = DefaultExtrusionScale
	}
	l := &Loader{pipeline: p}
	l.current.Store(&Snapshot{State: Unloaded})
	return l
}

// Current returns the latest snapshot.
func (l *Loader) Current() Snapshot {
	return *l.current.Load()
}

// Dataset returns the published dataset, if any.
func (l *Loader) Dataset() (*Dataset, bool) {
	ds := l.current.Load().Dataset
	return ds, ds != nil
}

// Load runs the pipeline once. Calls made while a load is running, or after
// one finished (successfully or not), do nothing and return the current
// snapshot. There is no retry: a failed load stays Failed until Reload.
func (l *Loader) Load(ctx context.Context) Snapshot {
	next, ok := l.begin()
	if !ok {
		return l.Current()
	}
	return l.run(ctx, next, nil)
}

// Start is Load without waiting for the pipeline. The Loading transition
// has happened by the time it returns.
func (l *Loader) Start(ctx context.Context) Snapshot {
	next, ok := l.begin()
	if !ok {
		return l.Current()
	}
	go l.run(ctx, next, nil)
	return *next
}

func (l *Loader) begin() (*Snapshot, bool) {
	prev := l.current.Load()
	if prev.State != Unloaded {
		return nil, false
	}
	next := &Snapshot{State: Loading, LoadID: uuid.NewString(), StartedAt: time.Now()}
	if !l.current.CompareAndSwap(prev, next) {
		return nil, false
	}
	return next, true
}

// Reload explicitly re-runs the pipeline from Loaded or Failed. The current
// dataset keeps serving until the new one is published; if the reload
// fails a previously loaded dataset stays in place. Concurrent callers
// share one run.
func (l *Loader) Reload(ctx context.Context) Snapshot {
	v, _, _ := l.group.Do("reload", func() (any, error) {
		next, prev, ok := l.beginReload()
		if !ok {
			return l.Current(), nil
		}
		return l.run(ctx, next, prev), nil
	})
	return v.(Snapshot)
}

// StartReload is Reload without waiting. The returned snapshot is the
// Loading one the reload published, or the current one if a load is
// already running.
func (l *Loader) StartReload(ctx context.Context) Snapshot {
	next, prev, ok := l.beginReload()
	if !ok {
		return l.Current()
	}
	go l.run(ctx, next, prev)
	return *next
}

func (l *Loader) beginReload() (*Snapshot, *Dataset, bool) {
	prev := l.current.Load()
	if prev.State == Loading {
		return nil, nil, false
	}
	next := &Snapshot{State: Loading, LoadID: uuid.NewString(), StartedAt: time.Now(), Dataset: prev.Dataset}
	if !l.current.CompareAndSwap(prev, next) {
		return nil, nil, false
	}
	return next, prev.Dataset, true
}

func (l *Loader) run(ctx context.Context, snap *Snapshot, prev *Dataset) Snapshot {
	log.Infof("load %s: starting", snap.LoadID)

	ds, err := l.pipeline.run(ctx, snap.LoadID)
	if err != nil {
		log.Errorf("load %s: failed after %v: %v", snap.LoadID, time.Since(snap.StartedAt), err)
		l.pipeline.invalidate(snap.LoadID, err)
		done := &Snapshot{State: Failed, LoadID: snap.LoadID, Err: err, StartedAt: snap.StartedAt}
		if prev != nil {
			done.State = Loaded
			done.LoadID = prev.LoadID
			done.Dataset = prev
		}
		l.current.Store(done)
		return *done
	}

	log.Infof("load %s: %d rows published in %v", snap.LoadID, ds.NumRows(), time.Since(snap.StartedAt))
	done := &Snapshot{State: Loaded, LoadID: snap.LoadID, Dataset: ds, StartedAt: snap.StartedAt}
	l.current.Store(done)
	return *done
}

// Invalidator is implemented by sources that keep a local copy of the
// payload, so a copy that failed to decode is not served again.
type Invalidator interface {
	Invalidate() error
}

func (p Pipeline) invalidate(loadID string, cause error) {
	var de *DecodeError
	if !errors.As(cause, &de) {
		return
	}
	inv, ok := p.Source.(Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(); err != nil {
		log.Warnf("load %s: cannot drop cached payload: %v", loadID, err)
		return
	}
	log.Infof("load %s: dropped cached payload after decode failure", loadID)
}

// run fetches, decodes and derives one dataset. A panic anywhere in the
// pipeline ends the load as a DecodeError instead of taking the process down.
func (p Pipeline) run(ctx context.Context, loadID string) (ds *Dataset, err error) {
	var table *Table
	defer func() {
		if r := recover(); r != nil {
			if table != nil {
				table.Release()
			}
			ds = nil
			err = decodeErr("pipeline", "load panicked", fmt.Errorf("%v", r))
		}
	}()

	t0 := time.Now()
	payload, err := p.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("load %s: fetched %d bytes in %v", loadID, len(payload), time.Since(t0))

	t1 := time.Now()
	table, err = p.Decoder.Decode(ctx, payload)
	if err != nil {
		return nil, err
	}
	log.Infof("load %s: decoded %s/%s, %d rows x %d fields in %v",
		loadID, table.Container(), table.Format(), table.NumRows(), len(table.FieldNames()), time.Since(t1))

	derived, err := Derive(ctx, table, p.Derive)
	if err != nil {
		table.Release()
		return nil, err
	}

	ds = &Dataset{
		LoadID:        loadID,
		LoadedAt:      time.Now(),
		Table:         table,
		Derived:       derived,
		Accessor:      NewAccessor(table.NumRows(), derived, p.StrictBounds),
		geometryField: p.GeometryField,
		summary:       Aggregate(derived, table.NumRows()),
	}
	if col, ok := table.Column(p.GeometryField); ok {
		ds.Index = spatial.BuildIndex(col.Data())
		log.Infof("load %s: indexed %d/%d footprints", loadID, ds.Index.Indexed(), ds.Index.Rows())
	} else {
		log.Warnf("load %s: geometry field %q not in schema, viewport queries disabled", loadID, p.GeometryField)
	}
	return ds, nil
}
