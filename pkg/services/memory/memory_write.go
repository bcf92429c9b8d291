package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
)

// defaultPartSize is the multipart part size when the caller gives no chunk.
const defaultPartSize = 5 * 1024 * 1024

// Write picks the writer matching args: append, multipart or one-shot.
func (b *Backend) Write(ctx context.Context, path string, args store.OpWrite) (store.RpWrite, store.Writer, error) {
	if err := ctx.Err(); err != nil {
		return store.RpWrite{}, nil, err
	}

	w := &writer{b: b, path: path, args: args}

	switch {
	case args.Append:
		return store.RpWrite{}, stream.NewAppendWriter(w), nil
	case args.IsMultipart():
		partSize := args.Chunk
		if partSize <= 0 {
			partSize = defaultPartSize
		}
		return store.RpWrite{}, stream.NewMultipartWriter(w, stream.MultipartOptions{
			PartSize:       partSize,
			Concurrency:    args.Concurrent,
			AbortOnFailure: !b.cfg.KeepMultipartOnFailure,
		}), nil
	default:
		return store.RpWrite{}, stream.NewOneShotWriter(w), nil
	}
}

// writer implements every write primitive for one path.
type writer struct {
	b    *Backend
	path string
	args store.OpWrite

	// appended is set after the first append; conditions apply to the
	// object as the writer found it.
	appended bool
}

// checkWrite evaluates the write preconditions against the current object.
// Callers hold b.mu.
func (w *writer) checkWrite() error {
	current := w.b.currentFile(w.path)
	exists := current != nil && current.meta.IsFile()

	if w.args.IfNotExists && exists {
		return store.NewError(store.KindConditionNotMatch, "object already exists").WithPath(w.path)
	}
	if w.args.IfMatch != "" {
		if !exists || (w.args.IfMatch != "*" && w.args.IfMatch != current.meta.ETag) {
			return store.NewError(store.KindConditionNotMatch, "doesn't match the condition if_match").WithPath(w.path)
		}
	}
	if w.args.IfNoneMatch != "" && exists {
		if w.args.IfNoneMatch == "*" || w.args.IfNoneMatch == current.meta.ETag {
			return store.NewError(store.KindConditionNotMatch, "doesn't match the condition if_none_match").WithPath(w.path)
		}
	}
	return nil
}

func (w *writer) checkSize(size int) error {
	if limit := w.b.cfg.WriteTotalMaxSize; limit > 0 && int64(size) > limit {
		return store.Errorf(store.KindUnsupported, "object size %d exceeds write_total_max_size %d", size, limit).
			WithPath(w.path)
	}
	return nil
}

// commit stores data as the new current version. Callers hold b.mu.
func (w *writer) commit(data []byte) store.Metadata {
	obj := w.b.newObject(data, w.args.ContentType)
	w.b.put(w.path, obj)
	return obj.meta
}

// ============================================================================
// One-shot
// ============================================================================

func (w *writer) WriteOnce(ctx context.Context, data []byte) (store.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return store.Metadata{}, err
	}
	if err := w.checkSize(len(data)); err != nil {
		return store.Metadata{}, err
	}

	value := append([]byte{}, data...)

	w.b.mu.Lock()
	defer w.b.mu.Unlock()

	if err := w.checkWrite(); err != nil {
		return store.Metadata{}, err
	}
	return w.commit(value), nil
}

// ============================================================================
// Append
// ============================================================================

func (w *writer) Offset(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w.b.mu.RLock()
	defer w.b.mu.RUnlock()

	if current := w.b.currentFile(w.path); current != nil {
		return current.meta.ContentLength, nil
	}
	return 0, nil
}

func (w *writer) Append(ctx context.Context, offset uint64, data []byte) (store.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return store.Metadata{}, err
	}

	w.b.mu.Lock()
	defer w.b.mu.Unlock()

	if !w.appended {
		if err := w.checkWrite(); err != nil {
			return store.Metadata{}, err
		}
	}

	var existing []byte
	if current := w.b.currentFile(w.path); current != nil {
		existing = current.data
	}
	if offset != uint64(len(existing)) {
		return store.Metadata{}, store.Errorf(store.KindConditionNotMatch,
			"append offset %d does not match object size %d", offset, len(existing)).WithPath(w.path)
	}
	if err := w.checkSize(len(existing) + len(data)); err != nil {
		return store.Metadata{}, err
	}

	value := make([]byte, 0, len(existing)+len(data))
	value = append(value, existing...)
	value = append(value, data...)
	w.appended = true
	return w.commit(value), nil
}

// ============================================================================
// Multipart
// ============================================================================

type upload struct {
	path  string
	mu    sync.Mutex
	parts map[int][]byte
}

func (w *writer) InitiateUpload(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()

	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	w.b.uploads[id] = &upload{path: w.path, parts: make(map[int][]byte)}
	return id, nil
}

func (w *writer) session(uploadID string) (*upload, error) {
	w.b.mu.RLock()
	defer w.b.mu.RUnlock()
	u, ok := w.b.uploads[uploadID]
	if !ok {
		return nil, store.NewError(store.KindNotFound, "upload session not found").
			WithPath(w.path).
			WithContext("upload_id", uploadID)
	}
	return u, nil
}

func (w *writer) WritePart(ctx context.Context, uploadID string, partNumber int, data []byte) (stream.Part, error) {
	if err := ctx.Err(); err != nil {
		return stream.Part{}, err
	}

	u, err := w.session(uploadID)
	if err != nil {
		return stream.Part{}, err
	}

	value := append([]byte{}, data...)
	sum := md5.Sum(value)

	u.mu.Lock()
	u.parts[partNumber] = value
	u.mu.Unlock()

	return stream.Part{
		Number: partNumber,
		ETag:   hex.EncodeToString(sum[:]),
		Size:   len(value),
	}, nil
}

func (w *writer) CompleteUpload(ctx context.Context, uploadID string, parts []stream.Part) (store.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return store.Metadata{}, err
	}

	u, err := w.session(uploadID)
	if err != nil {
		return store.Metadata{}, err
	}

	sorted := make([]stream.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	u.mu.Lock()
	var value []byte
	for _, p := range sorted {
		data, ok := u.parts[p.Number]
		if !ok {
			u.mu.Unlock()
			return store.Metadata{}, store.Errorf(store.KindUnexpected, "part %d was never uploaded", p.Number).
				WithPath(w.path).
				WithContext("upload_id", uploadID)
		}
		value = append(value, data...)
	}
	u.mu.Unlock()

	if err := w.checkSize(len(value)); err != nil {
		return store.Metadata{}, err
	}

	w.b.mu.Lock()
	defer w.b.mu.Unlock()

	if err := w.checkWrite(); err != nil {
		return store.Metadata{}, err
	}
	delete(w.b.uploads, uploadID)
	if value == nil {
		value = []byte{}
	}
	return w.commit(value), nil
}

func (w *writer) AbortUpload(ctx context.Context, uploadID string) error {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	if _, ok := w.b.uploads[uploadID]; !ok {
		return store.NewError(store.KindNotFound, fmt.Sprintf("upload %s not found", uploadID)).WithPath(w.path)
	}
	delete(w.b.uploads, uploadID)
	return nil
}

// PendingUploads returns the number of open multipart sessions.
func (b *Backend) PendingUploads() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.uploads)
}
