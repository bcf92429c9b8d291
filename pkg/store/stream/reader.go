package stream

import (
	"bytes"
	"errors"
	"io"

	"github.com/marmos91/dittostore/pkg/store"
)

// RangeReader yields exactly size bytes of r.
//
// Transports sometimes return more than the requested range (a server that
// ignores Range headers); the surplus is never read. A stream ending before
// size bytes fails with Unexpected instead of a silent short read.
type RangeReader struct {
	r         io.ReadCloser
	size      uint64
	remaining uint64
}

// NewRangeReader wraps r.
func NewRangeReader(r io.ReadCloser, size uint64) *RangeReader {
	return &RangeReader{r: r, size: size, remaining: size}
}

// Read implements io.Reader.
func (rr *RangeReader) Read(p []byte) (int, error) {
	if rr.remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(p)) > rr.remaining {
		p = p[:rr.remaining]
	}

	n, err := rr.r.Read(p)
	rr.remaining -= uint64(n)

	if errors.Is(err, io.EOF) {
		if rr.remaining > 0 {
			return n, store.Errorf(store.KindUnexpected,
				"reader got too little data, expect: %d, actual: %d", rr.size, rr.size-rr.remaining).
				WithOperation("Reader::read").
				SetTemporary()
		}
		return n, io.EOF
	}
	if err != nil {
		return n, err
	}
	if rr.remaining == 0 {
		return n, io.EOF
	}
	return n, nil
}

// Close closes the underlying reader.
func (rr *RangeReader) Close() error {
	return rr.r.Close()
}

// LimitReader yields at most n bytes of r and treats an earlier end as the
// end of the range. Used when the backend cannot report the range size.
type LimitReader struct {
	io.Reader
	c io.Closer
}

// NewLimitReader wraps r.
func NewLimitReader(r io.ReadCloser, n uint64) *LimitReader {
	return &LimitReader{Reader: io.LimitReader(r, int64(n)), c: r}
}

// Close closes the underlying reader.
func (lr *LimitReader) Close() error {
	return lr.c.Close()
}

// BytesReader serves an in-memory payload.
func BytesReader(data []byte) store.Reader {
	return io.NopCloser(bytes.NewReader(data))
}
