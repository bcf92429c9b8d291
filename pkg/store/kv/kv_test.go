package kv

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/marmos91/dittostore/pkg/store/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapAdapter struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapAdapter() *mapAdapter {
	return &mapAdapter{data: make(map[string][]byte)}
}

func (m *mapAdapter) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, store.NewError(store.KindNotFound, "key not found").WithPath(key)
	}
	return v, nil
}

func (m *mapAdapter) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapAdapter) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mapAdapter) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func write(t *testing.T, b *Backend, path, data string) {
	t.Helper()
	ctx := context.Background()
	_, w, err := b.Write(ctx, path, store.OpWrite{})
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, []byte(data)))
	_, err = w.Close(ctx)
	require.NoError(t, err)
}

func paths(entries []store.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestBackendReadWriteStat(t *testing.T) {
	ctx := context.Background()
	b := New(newMapAdapter(), Options{Scheme: "test", Name: "db"})

	write(t, b, "dir/file", "hello world")

	rp, err := b.Stat(ctx, "dir/file", store.OpStat{})
	require.NoError(t, err)
	assert.True(t, rp.Metadata.IsFile())
	assert.Equal(t, uint64(11), rp.Metadata.ContentLength)

	rp, err = b.Stat(ctx, "dir/", store.OpStat{})
	require.NoError(t, err)
	assert.True(t, rp.Metadata.IsDir())

	_, err = b.Stat(ctx, "nope/", store.OpStat{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	rr, r, err := b.Read(ctx, "dir/file", store.OpRead{Range: store.NewRange(6, 5)})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rr.Size)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestBackendList(t *testing.T) {
	ctx := context.Background()
	b := New(newMapAdapter(), Options{})

	write(t, b, "a/1", "x")
	write(t, b, "a/2", "x")
	write(t, b, "a/sub/3", "x")
	write(t, b, "b", "x")
	_, err := b.CreateDir(ctx, "a/", store.OpCreateDir{})
	require.NoError(t, err)

	_, l, err := b.List(ctx, "a/", store.OpList{})
	require.NoError(t, err)
	entries, err := stream.Collect(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2", "a/sub/"}, paths(entries))

	_, l, err = b.List(ctx, "", store.OpList{Recursive: true, Limit: 2})
	require.NoError(t, err)
	entries, err = stream.Collect(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/", "a/1", "a/2", "a/sub/", "a/sub/3", "b"}, paths(entries))

	_, l, err = b.List(ctx, "a/", store.OpList{StartAfter: "a/1"})
	require.NoError(t, err)
	entries, err = stream.Collect(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/2", "a/sub/"}, paths(entries))
}

func TestBackendDeleteCopyRename(t *testing.T) {
	ctx := context.Background()
	b := New(newMapAdapter(), Options{})
	write(t, b, "src", "payload")

	_, err := b.Copy(ctx, "src", "copy", store.OpCopy{})
	require.NoError(t, err)
	_, err = b.Rename(ctx, "copy", "moved", store.OpRename{})
	require.NoError(t, err)

	_, err = b.Stat(ctx, "copy", store.OpStat{})
	assert.ErrorIs(t, err, store.ErrNotFound)
	rp, err := b.Stat(ctx, "moved", store.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rp.Metadata.ContentLength)

	_, d, err := b.Delete(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Delete("moved", store.OpDelete{}))
	require.NoError(t, d.Delete("moved", store.OpDelete{}))
	n, err := d.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, b.Info().FullCapability().DeleteStrict)
}

func TestChildren(t *testing.T) {
	keys := []string{"d/", "d/x", "d/y/z", "d/y/w/v", "e"}

	assert.Equal(t, []string{"d/x", "d/y/"}, paths(Children("d/", keys, false, "")))
	assert.Equal(t, []string{"d/x", "d/y/", "d/y/w/", "d/y/w/v", "d/y/z"},
		paths(Children("d/", keys, true, "")))
	assert.Equal(t, []string{"d/", "e"}, paths(Children("", keys, false, "")))
}
