package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/zeebo/xxh3"

	"buildingmap/internal/compress"
)

var (
	parquetMagic = []byte("PAR1")
	arrowMagic   = []byte("ARROW1")

	// continuation token followed by a zero metadata length
	eosMarker = []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}
)

// Decoder turns a (possibly compressed) Parquet or Arrow IPC payload into a Table.
type Decoder struct {
	mem             memory.Allocator
	maxDecompressed int64
	batchSize       int64
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithAllocator sets the arrow allocator used for decoded buffers.
func WithAllocator(mem memory.Allocator) DecoderOption {
	return func(d *Decoder) { d.mem = mem }
}

// WithMaxDecompressed caps the size of an unwrapped payload. Zero disables the cap.
func WithMaxDecompressed(n int64) DecoderOption {
	return func(d *Decoder) { d.maxDecompressed = n }
}

// WithBatchSize sets the Parquet read batch size.
func WithBatchSize(n int64) DecoderOption {
	return func(d *Decoder) { d.batchSize = n }
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		mem:       memory.DefaultAllocator,
		batchSize: 64 * 1024,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode parses data into a Table. Any failure, including a panic raised by
// the arrow readers on corrupt input, comes back as a *DecodeError and no
// table.
func (d *Decoder) Decode(ctx context.Context, data []byte) (t *Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = decodeErr("format", "corrupt payload", fmt.Errorf("%v", r))
		}
	}()

	if len(data) == 0 {
		return nil, decodeErr("container", "empty payload", nil)
	}

	inner, kind, err := compress.Unwrap(data, d.maxDecompressed)
	if err != nil {
		return nil, decodeErr("container", "cannot unwrap "+kind.String(), err)
	}

	var (
		tbl    arrow.Table
		format Format
	)
	switch {
	case bytes.HasPrefix(inner, parquetMagic):
		format = FormatParquet
		tbl, err = d.readParquet(ctx, inner)
	case bytes.HasPrefix(inner, arrowMagic):
		format = FormatIPCFile
		tbl, err = d.readIPCFile(inner)
	default:
		format = FormatIPCStream
		tbl, err = d.readIPCStream(inner)
	}
	if err != nil {
		return nil, err
	}

	t, err = NewTable(tbl)
	if err != nil {
		tbl.Release()
		return nil, err
	}
	t.format = format
	t.container = kind.String()
	t.fingerprint = xxh3.Hash(data)
	return t, nil
}

func (d *Decoder) readParquet(ctx context.Context, data []byte) (arrow.Table, error) {
	if len(data) < 2*len(parquetMagic) || !bytes.HasSuffix(data, parquetMagic) {
		return nil, decodeErr("parquet", "truncated file: missing footer", nil)
	}

	props := parquet.NewReaderProperties(d.mem)
	arrProps := pqarrow.ArrowReadProperties{BatchSize: d.batchSize}
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data), props, arrProps, d.mem)
	if err != nil {
		return nil, decodeErr("parquet", "cannot read table", err)
	}
	return tbl, nil
}

func (d *Decoder) readIPCFile(data []byte) (arrow.Table, error) {
	r, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(d.mem))
	if err != nil {
		return nil, decodeErr("ipc", "cannot open file", err)
	}
	defer r.Close()

	recs := make([]arrow.Record, 0, r.NumRecords())
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			for _, rec := range recs {
				rec.Release()
			}
			return nil, decodeErr("ipc", fmt.Sprintf("cannot read batch %d", i), err)
		}
		rec.Retain()
		recs = append(recs, rec)
	}
	return newTableFromRecords(r.Schema(), recs), nil
}

func (d *Decoder) readIPCStream(data []byte) (arrow.Table, error) {
	// A complete stream ends with the 8 byte end-of-stream marker. Without
	// it a stream cut at a batch boundary would read as a shorter table.
	if !bytes.HasSuffix(data, eosMarker) {
		return nil, decodeErr("format", "not a parquet or arrow payload, or truncated stream", nil)
	}

	r, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(d.mem))
	if err != nil {
		return nil, decodeErr("format", "not a parquet or arrow payload", err)
	}
	defer r.Release()

	var recs []arrow.Record
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := r.Err(); err != nil {
		for _, rec := range recs {
			rec.Release()
		}
		return nil, decodeErr("ipc", "cannot read stream", err)
	}
	return newTableFromRecords(r.Schema(), recs), nil
}
