package stream

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/dittostore/pkg/store"
	"golang.org/x/sync/semaphore"
)

// Part is one uploaded part of a multipart upload.
type Part struct {
	// Number is the 1-based position of the part in the final object.
	Number int
	// ETag is the identifier returned by the backend for the part.
	ETag string
	// Size is the number of bytes in the part.
	Size int
}

// MultipartWrite is the primitive of backends supporting multipart uploads.
type MultipartWrite interface {
	// WriteOnce uploads a payload that fits in a single part. It is used
	// when Close is reached before the first part was cut.
	WriteOnce(ctx context.Context, data []byte) (store.Metadata, error)

	// InitiateUpload opens an upload session and returns its id.
	InitiateUpload(ctx context.Context) (string, error)

	// WritePart uploads one part. Parts of the same upload may be uploaded
	// concurrently and complete in any order.
	WritePart(ctx context.Context, uploadID string, partNumber int, data []byte) (Part, error)

	// CompleteUpload commits the parts, sorted by number.
	CompleteUpload(ctx context.Context, uploadID string, parts []Part) (store.Metadata, error)

	// AbortUpload discards the upload session and its parts.
	AbortUpload(ctx context.Context, uploadID string) error
}

// MultipartOptions tunes a MultipartWriter.
type MultipartOptions struct {
	// PartSize is the size of every part but the last. Defaults to 8MiB.
	PartSize int

	// Concurrency is the maximum number of parts in flight. Defaults to 1.
	Concurrency int

	// AbortOnFailure makes the writer abort the remote session as soon as
	// a part fails. When false the session is left for the backend's own
	// expiry and only an explicit Abort discards it.
	AbortOnFailure bool
}

// DefaultPartSize is used when MultipartOptions.PartSize is not set.
const DefaultPartSize = 8 * 1024 * 1024

// PartError reports the failure of one part.
type PartError struct {
	PartNumber int
	UploadID   string
	Err        error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("upload part %d of %s: %v", e.PartNumber, e.UploadID, e.Err)
}

func (e *PartError) Unwrap() error {
	return e.Err
}

// MultipartWriter splits the payload into parts and uploads them
// concurrently.
//
// Bytes are buffered until a full part is available; the part is then
// handed to a goroutine as soon as one of Concurrency permits is free, so
// Write blocks while every permit is taken. Parts keep the number they were
// cut with whatever the order in which they complete. The remote upload
// session is opened with the first part, so payloads smaller than a part
// go through WriteOnce instead.
//
// The first failing part fails the writer: parts already in flight are
// waited for (not cancelled), no further part is started and Close never
// completes the upload. Nothing is retried here.
//
// In-flight parts run detached from the caller's cancellation: once
// started, a part always settles.
type MultipartWriter struct {
	w    MultipartWrite
	opts MultipartOptions

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	buf        []byte
	uploadID   string
	nextNumber int

	mu    sync.Mutex
	parts []Part
	err   error

	closed bool
}

// NewMultipartWriter wraps w.
func NewMultipartWriter(w MultipartWrite, opts MultipartOptions) *MultipartWriter {
	if opts.PartSize <= 0 {
		opts.PartSize = DefaultPartSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &MultipartWriter{
		w:          w,
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.Concurrency)),
		nextNumber: 1,
	}
}

// Write buffers p and starts uploading every full part.
func (m *MultipartWriter) Write(ctx context.Context, p []byte) error {
	if m.closed {
		return errWriterClosed("Writer::write")
	}
	if err := m.failure(); err != nil {
		return m.fail(ctx, err)
	}

	m.buf = append(m.buf, p...)
	for len(m.buf) >= m.opts.PartSize {
		part := make([]byte, m.opts.PartSize)
		copy(part, m.buf[:m.opts.PartSize])
		m.buf = m.buf[m.opts.PartSize:]

		if err := m.dispatch(ctx, part); err != nil {
			return m.fail(ctx, err)
		}
	}
	return nil
}

// Close uploads the remaining bytes and completes the upload once every
// part succeeded.
func (m *MultipartWriter) Close(ctx context.Context) (store.Metadata, error) {
	if m.closed {
		return store.Metadata{}, errWriterClosed("Writer::close")
	}
	m.closed = true

	if m.uploadID == "" {
		data := m.buf
		m.buf = nil
		return m.w.WriteOnce(ctx, data)
	}

	if len(m.buf) > 0 {
		part := m.buf
		m.buf = nil
		if err := m.dispatch(ctx, part); err != nil {
			return store.Metadata{}, m.fail(ctx, err)
		}
	}

	m.wg.Wait()
	if err := m.failure(); err != nil {
		return store.Metadata{}, m.fail(ctx, err)
	}

	m.mu.Lock()
	parts := make([]Part, len(m.parts))
	copy(parts, m.parts)
	m.mu.Unlock()
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })

	meta, err := m.w.CompleteUpload(ctx, m.uploadID, parts)
	if err != nil {
		return store.Metadata{}, err
	}
	m.uploadID = ""
	return meta, nil
}

// Abort waits for in-flight parts and discards the upload session.
func (m *MultipartWriter) Abort(ctx context.Context) error {
	m.closed = true
	m.buf = nil
	m.wg.Wait()

	if m.uploadID == "" {
		return nil
	}
	uploadID := m.uploadID
	m.uploadID = ""
	return m.w.AbortUpload(ctx, uploadID)
}

// UploadID returns the remote session id, "" before the first part.
func (m *MultipartWriter) UploadID() string {
	return m.uploadID
}

func (m *MultipartWriter) dispatch(ctx context.Context, data []byte) error {
	if m.uploadID == "" {
		uploadID, err := m.w.InitiateUpload(ctx)
		if err != nil {
			return err
		}
		m.uploadID = uploadID
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// A part may have failed while this one waited for its permit.
	if err := m.failure(); err != nil {
		m.sem.Release(1)
		return err
	}

	number := m.nextNumber
	m.nextNumber++
	uploadID := m.uploadID
	partCtx := context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.sem.Release(1)

		part, err := m.w.WritePart(partCtx, uploadID, number, data)

		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			if m.err == nil {
				m.err = &PartError{PartNumber: number, UploadID: uploadID, Err: err}
			}
			return
		}
		part.Number = number
		if part.Size == 0 {
			part.Size = len(data)
		}
		m.parts = append(m.parts, part)
	}()
	return nil
}

func (m *MultipartWriter) failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// fail drains in-flight parts, optionally aborts the session and returns
// the first error seen.
func (m *MultipartWriter) fail(ctx context.Context, err error) error {
	m.closed = true
	m.wg.Wait()

	if first := m.failure(); first != nil {
		err = first
	}

	if m.opts.AbortOnFailure && m.uploadID != "" {
		uploadID := m.uploadID
		m.uploadID = ""
		_ = m.w.AbortUpload(context.WithoutCancel(ctx), uploadID)
	}
	return err
}
