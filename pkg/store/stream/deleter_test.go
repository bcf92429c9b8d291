package stream

import (
	"context"
	"testing"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setDeleter struct {
	objects map[string]bool
	strict  bool
	batches int
}

func (s *setDeleter) DeleteOnce(_ context.Context, path string, _ store.OpDelete) error {
	if !s.objects[path] {
		if s.strict {
			return store.NewError(store.KindNotFound, "object not found").WithPath(path)
		}
		return nil
	}
	delete(s.objects, path)
	return nil
}

func (s *setDeleter) DeleteBatch(ctx context.Context, batch []DeleteItem) (BatchResult, error) {
	s.batches++
	var result BatchResult
	for _, item := range batch {
		if err := s.DeleteOnce(ctx, item.Path, item.Args); err != nil {
			result.Failed = append(result.Failed, BatchFailure{Item: item, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, item)
	}
	return result, nil
}

func TestOneShotDeleterIdempotent(t *testing.T) {
	ctx := context.Background()
	prim := &setDeleter{objects: map[string]bool{"a": true}}
	d := NewOneShotDeleter(prim)

	for i := 0; i < 2; i++ {
		require.NoError(t, d.Delete("a", store.OpDelete{}))
		n, err := d.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

func TestOneShotDeleterStrict(t *testing.T) {
	ctx := context.Background()
	prim := &setDeleter{objects: map[string]bool{"a": true}, strict: true}
	d := NewOneShotDeleter(prim)

	require.NoError(t, d.Delete("a", store.OpDelete{}))
	_, err := d.Flush(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Delete("a", store.OpDelete{}))
	_, err = d.Flush(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The failed path stays queued.
	_, err = d.Flush(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBatchDeleter(t *testing.T) {
	ctx := context.Background()
	objects := map[string]bool{}
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		objects[p] = true
	}
	prim := &setDeleter{objects: objects}
	d := NewBatchDeleter(prim, 2)

	for _, p := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, d.Delete(p, store.OpDelete{}))
	}

	total, err := FlushAll(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, prim.objects)
	// Two full batches, then a single path through DeleteOnce.
	assert.Equal(t, 2, prim.batches)
}

func TestBatchDeleterKeepsFailedQueued(t *testing.T) {
	ctx := context.Background()
	prim := &setDeleter{objects: map[string]bool{"a": true}, strict: true}
	d := NewBatchDeleter(prim, 10)

	require.NoError(t, d.Delete("a", store.OpDelete{}))
	require.NoError(t, d.Delete("missing", store.OpDelete{}))

	n, err := d.Flush(ctx)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, d.queue, 1)
	assert.Equal(t, "missing", d.queue[0].Path)
}
