package stream

import (
	"context"

	"github.com/marmos91/dittostore/pkg/store"
)

// DeleteItem is one queued deletion.
type DeleteItem struct {
	Path string
	Args store.OpDelete
}

// OneShotDelete is the primitive of backends deleting one path per request.
//
// Deleting a missing path must either always succeed or always fail with
// NotFound, as declared by the backend's delete_strict capability.
type OneShotDelete interface {
	DeleteOnce(ctx context.Context, path string, args store.OpDelete) error
}

// OneShotDeleter queues paths and deletes them one request at a time.
//
// Errors from the primitive are returned as is: a NotFound is never turned
// into a success, nor the other way round.
type OneShotDeleter struct {
	d     OneShotDelete
	queue []DeleteItem
}

// NewOneShotDeleter wraps d.
func NewOneShotDeleter(d OneShotDelete) *OneShotDeleter {
	return &OneShotDeleter{d: d}
}

// Delete queues path.
func (o *OneShotDeleter) Delete(path string, args store.OpDelete) error {
	o.queue = append(o.queue, DeleteItem{Path: path, Args: args})
	return nil
}

// Flush deletes the queued paths in order. On error, the failed path and
// those after it stay queued.
func (o *OneShotDeleter) Flush(ctx context.Context) (int, error) {
	deleted := 0
	for len(o.queue) > 0 {
		item := o.queue[0]
		if err := o.d.DeleteOnce(ctx, item.Path, item.Args); err != nil {
			return deleted, err
		}
		o.queue = o.queue[1:]
		deleted++
	}
	return deleted, nil
}

// BatchResult is the outcome of one batch request.
type BatchResult struct {
	Succeeded []DeleteItem
	Failed    []BatchFailure
}

// BatchFailure is one path a batch request could not delete.
type BatchFailure struct {
	Item DeleteItem
	Err  error
}

// BatchDelete is the primitive of backends with a bulk delete request.
type BatchDelete interface {
	OneShotDelete

	// DeleteBatch deletes up to the declared delete_max_size paths.
	DeleteBatch(ctx context.Context, batch []DeleteItem) (BatchResult, error)
}

// BatchDeleter queues paths and deletes them in batches of at most maxSize.
// Each Flush sends one request; callers loop until Flush returns 0.
type BatchDeleter struct {
	d       BatchDelete
	maxSize int
	queue   []DeleteItem
}

// NewBatchDeleter wraps d.
func NewBatchDeleter(d BatchDelete, maxSize int) *BatchDeleter {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &BatchDeleter{d: d, maxSize: maxSize}
}

// Delete queues path.
func (b *BatchDeleter) Delete(path string, args store.OpDelete) error {
	b.queue = append(b.queue, DeleteItem{Path: path, Args: args})
	return nil
}

// Flush sends one batch.
//
// Succeeded paths leave the queue; failed ones stay queued and the first
// failure is returned.
func (b *BatchDeleter) Flush(ctx context.Context) (int, error) {
	if len(b.queue) == 0 {
		return 0, nil
	}

	if len(b.queue) == 1 || b.maxSize == 1 {
		item := b.queue[0]
		if err := b.d.DeleteOnce(ctx, item.Path, item.Args); err != nil {
			return 0, err
		}
		b.queue = b.queue[1:]
		return 1, nil
	}

	n := min(len(b.queue), b.maxSize)
	batch := make([]DeleteItem, n)
	copy(batch, b.queue[:n])

	result, err := b.d.DeleteBatch(ctx, batch)
	if err != nil {
		return 0, err
	}

	failed := make(map[string]bool, len(result.Failed))
	for _, f := range result.Failed {
		failed[f.Item.Path] = true
	}

	remaining := make([]DeleteItem, 0, len(b.queue)-n+len(result.Failed))
	for _, item := range batch {
		if failed[item.Path] {
			remaining = append(remaining, item)
		}
	}
	remaining = append(remaining, b.queue[n:]...)
	b.queue = remaining

	if len(result.Failed) > 0 {
		return len(result.Succeeded), result.Failed[0].Err
	}
	return len(result.Succeeded), nil
}

// FlushAll flushes d until its queue is empty.
func FlushAll(ctx context.Context, d store.Deleter) (int, error) {
	total := 0
	for {
		n, err := d.Flush(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}
