// Package compress unwraps the optional outer compression container that a
// columnar payload may be shipped in before the Parquet/Arrow bytes proper.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

// Kind identifies an outer container.
type Kind uint8

const (
	None Kind = iota
	Zstd
	Gzip
	LZ4
	Snappy
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case Gzip:
		return "gzip"
	case LZ4:
		return "lz4"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ErrTooLarge is returned when a decompressed payload exceeds the caller's limit.
var ErrTooLarge = errors.New("decompressed payload exceeds limit")

var (
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic   = []byte{0x1f, 0x8b}
	lz4Magic    = []byte{0x04, 0x22, 0x4d, 0x18}
	snappyMagic = []byte{0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'}
)

// Detect sniffs the magic bytes at the start of b.
func Detect(b []byte) Kind {
	switch {
	case bytes.HasPrefix(b, zstdMagic):
		return Zstd
	case bytes.HasPrefix(b, gzipMagic):
		return Gzip
	case bytes.HasPrefix(b, lz4Magic):
		return LZ4
	case bytes.HasPrefix(b, snappyMagic):
		return Snappy
	default:
		return None
	}
}

// Decompressor turns one container's bytes back into the payload it wraps.
// Implementations must be safe for concurrent use.
type Decompressor interface {
	Decompress(data []byte, limit int64) ([]byte, error)
}

type streamDecompressor func(r io.Reader) (io.Reader, error)

func (f streamDecompressor) Decompress(data []byte, limit int64) ([]byte, error) {
	r, err := f(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return readLimited(r, limit)
}

type noop struct{}

func (noop) Decompress(data []byte, limit int64) ([]byte, error) {
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrTooLarge
	}

	return data, nil
}

var builtin = map[Kind]Decompressor{
	None: noop{},
	Zstd: zstdDecompressor{},
	Gzip: streamDecompressor(func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	}),
	LZ4: streamDecompressor(func(r io.Reader) (io.Reader, error) {
		return lz4.NewReader(r), nil
	}),
	Snappy: streamDecompressor(func(r io.Reader) (io.Reader, error) {
		return snappy.NewReader(r), nil
	}),
}

// Get returns the built-in decompressor for k.
func Get(k Kind) (Decompressor, error) {
	if d, ok := builtin[k]; ok {
		return d, nil
	}

	return nil, fmt.Errorf("unsupported container: %s", k)
}

// Unwrap detects the container of data and decompresses it. A limit <= 0
// disables the size check. The detected kind is returned even on error.
func Unwrap(data []byte, limit int64) ([]byte, Kind, error) {
	kind := Detect(data)
	d, err := Get(kind)
	if err != nil {
		return nil, kind, err
	}

	out, err := d.Decompress(data, limit)
	if err != nil {
		return nil, kind, fmt.Errorf("%s: %w", kind, err)
	}

	return out, kind, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrTooLarge
	}

	return out, nil
}
