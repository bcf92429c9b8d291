package store

import (
	"fmt"
)

// BytesRange is a byte range of an object: Offset plus an optional Size.
// Size < 0 means "until the end". The zero value is the full object.
//
// A zero Size at a non-zero offset is an empty range: it still resolves the
// object (and fails with RangeNotSatisfied past its end) but yields no bytes.
type BytesRange struct {
	Offset uint64
	Size   int64
}

// FullRange returns the range covering the whole object.
func FullRange() BytesRange {
	return BytesRange{Offset: 0, Size: -1}
}

// NewRange returns [offset, offset+size).
func NewRange(offset uint64, size int64) BytesRange {
	return BytesRange{Offset: offset, Size: size}
}

// RangeFrom returns [offset, end).
func RangeFrom(offset uint64) BytesRange {
	return BytesRange{Offset: offset, Size: -1}
}

// IsFull reports whether the range covers the whole object.
func (r BytesRange) IsFull() bool {
	return r.Offset == 0 && r.Size < 0
}

// HasSize reports whether the range has a bounded size.
func (r BytesRange) HasSize() bool {
	return r.Size >= 0
}

// Limit returns the number of bytes the range asks for, when bounded.
func (r BytesRange) Limit() (uint64, bool) {
	r = r.normalized()
	if r.Size < 0 {
		return 0, false
	}
	return uint64(r.Size), true
}

// IsEmpty reports whether the range asks for zero bytes.
func (r BytesRange) IsEmpty() bool {
	n, ok := r.Limit()
	return ok && n == 0
}

// normalized treats the zero value as "full object".
func (r BytesRange) normalized() BytesRange {
	if r.Offset == 0 && r.Size == 0 {
		return FullRange()
	}
	return r
}

// Resolve interprets the range against the object's actual size and returns
// the offset and exact number of bytes to deliver.
//
// A range starting beyond the end of a non-empty object is not satisfiable.
// A size running past the end is clamped.
func (r BytesRange) Resolve(total uint64) (offset uint64, length uint64, err error) {
	r = r.normalized()
	if r.Offset > total || (r.Offset == total && total > 0 && r.Size != 0) {
		return 0, 0, Errorf(KindRangeNotSatisfied, "range %s is beyond object size %d", r, total)
	}
	remaining := total - r.Offset
	if r.Size < 0 || uint64(r.Size) > remaining {
		return r.Offset, remaining, nil
	}
	return r.Offset, uint64(r.Size), nil
}

// HeaderValue renders the range as an HTTP Range header value. HTTP cannot
// express an empty range: it asks for one byte, which readers drop.
func (r BytesRange) HeaderValue() string {
	r = r.normalized()
	if r.Size < 0 {
		return fmt.Sprintf("bytes=%d-", r.Offset)
	}
	if r.Size == 0 {
		return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+uint64(r.Size)-1)
}

// String renders the range as "offset-end" or "offset-".
func (r BytesRange) String() string {
	r = r.normalized()
	if r.Size < 0 {
		return fmt.Sprintf("%d-", r.Offset)
	}
	return fmt.Sprintf("%d-%d", r.Offset, r.Offset+uint64(r.Size))
}

// Slice applies the range to an in-memory object.
func (r BytesRange) Slice(data []byte) ([]byte, error) {
	offset, length, err := r.Resolve(uint64(len(data)))
	if err != nil {
		return nil, err
	}
	return data[offset : offset+length], nil
}
