package stream

import (
	"context"

	"github.com/marmos91/dittostore/pkg/store"
)

// AppendWrite is the primitive of backends supporting offset-checked appends.
type AppendWrite interface {
	// Offset returns the current size of the object, 0 if it does not exist.
	Offset(ctx context.Context) (uint64, error)

	// Append writes data at offset. The backend must fail with
	// ConditionNotMatch when offset is not the object's current size.
	Append(ctx context.Context, offset uint64, data []byte) (store.Metadata, error)
}

// AppendWriter drives an AppendWrite primitive.
//
// The current offset is queried lazily before the first append and then
// advanced locally after every successful append. Each Write is one append
// and appends never overlap: the writer is not safe for concurrent use and
// does not guard against other writers targeting the same path. A concurrent
// writer shows up as a ConditionNotMatch on the next append.
type AppendWriter struct {
	w AppendWrite

	offset   uint64
	resolved bool
	meta     store.Metadata
	written  bool
	closed   bool
}

// NewAppendWriter wraps w.
func NewAppendWriter(w AppendWrite) *AppendWriter {
	return &AppendWriter{w: w}
}

// Write appends p at the current offset.
func (a *AppendWriter) Write(ctx context.Context, p []byte) error {
	if a.closed {
		return errWriterClosed("Writer::write")
	}
	if len(p) == 0 {
		return nil
	}

	if !a.resolved {
		offset, err := a.w.Offset(ctx)
		if err != nil {
			return err
		}
		a.offset = offset
		a.resolved = true
	}

	meta, err := a.w.Append(ctx, a.offset, p)
	if err != nil {
		return err
	}
	a.offset += uint64(len(p))
	a.meta = meta
	a.written = true
	return nil
}

// Close returns the metadata of the last append. Appends are already durable
// so there is nothing to commit.
func (a *AppendWriter) Close(ctx context.Context) (store.Metadata, error) {
	if a.closed {
		return store.Metadata{}, errWriterClosed("Writer::close")
	}
	a.closed = true

	if a.written {
		return a.meta, nil
	}

	// No append happened: report the object as it stands.
	if !a.resolved {
		offset, err := a.w.Offset(ctx)
		if err != nil {
			return store.Metadata{}, err
		}
		a.offset = offset
	}
	meta := store.NewMetadata(store.ModeFile)
	meta.ContentLength = a.offset
	return meta, nil
}

// Abort stops the writer. Appends already issued stay in place.
func (a *AppendWriter) Abort(context.Context) error {
	a.closed = true
	return nil
}
