// Package stream provides the generic streaming adapters backends build on.
//
// A backend implements a minimal primitive (upload a whole object, append at
// an offset, upload one part, fetch one page, delete one path) and wraps it in
// the matching adapter to obtain a full store.Writer, store.Lister or
// store.Deleter. The adapters never apply timeouts and never retry: both are
// layer concerns.
package stream

import (
	"bytes"
	"context"

	"github.com/marmos91/dittostore/pkg/store"
)

// OneShotWrite is the primitive of backends that can only upload a whole
// object in a single request.
type OneShotWrite interface {
	WriteOnce(ctx context.Context, data []byte) (store.Metadata, error)
}

// OneShotWriter buffers every chunk in memory and uploads the payload with a
// single WriteOnce call on Close.
//
// At most one remote write is issued per writer: a second Close is rejected.
type OneShotWriter struct {
	w      OneShotWrite
	buf    bytes.Buffer
	closed bool
}

// NewOneShotWriter wraps w.
func NewOneShotWriter(w OneShotWrite) *OneShotWriter {
	return &OneShotWriter{w: w}
}

// Write appends p to the buffer.
func (o *OneShotWriter) Write(_ context.Context, p []byte) error {
	if o.closed {
		return errWriterClosed("Writer::write")
	}
	o.buf.Write(p)
	return nil
}

// Close uploads the buffered payload.
func (o *OneShotWriter) Close(ctx context.Context) (store.Metadata, error) {
	if o.closed {
		return store.Metadata{}, errWriterClosed("Writer::close")
	}
	o.closed = true

	data := o.buf.Bytes()
	meta, err := o.w.WriteOnce(ctx, data)
	o.buf = bytes.Buffer{}
	if err != nil {
		return store.Metadata{}, err
	}
	return meta, nil
}

// Abort drops the buffer. Nothing was sent, so nothing needs cleaning up.
func (o *OneShotWriter) Abort(context.Context) error {
	o.closed = true
	o.buf = bytes.Buffer{}
	return nil
}

func errWriterClosed(op string) error {
	return store.NewError(store.KindUnexpected, "writer already closed").WithOperation(op)
}
