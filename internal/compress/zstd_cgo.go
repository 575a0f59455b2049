//go:build cgo

package compress

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/valyala/gozstd"
)

type zstdDecompressor struct{}

func (zstdDecompressor) Decompress(data []byte, limit int64) ([]byte, error) {
	if limit <= 0 {
		out, err := gozstd.Decompress(nil, data)
		if err != nil {
			return nil, fmt.Errorf("zstd decompression failed: %w", err)
		}
		return out, nil
	}

	// stream so decoding stops one byte past limit
	zr := gozstd.NewReader(bytes.NewReader(data))
	defer zr.Release()

	out, err := readLimited(zr, limit)
	if errors.Is(err, ErrTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}

	return out, nil
}
