package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedSnapshot serves a fixed set of entries pageSize at a time.
type pagedSnapshot struct {
	entries  []string
	pageSize int
	calls    int
	err      error
}

func (p *pagedSnapshot) NextPage(_ context.Context, pc *PageContext) error {
	p.calls++
	if p.err != nil {
		return p.err
	}

	start := 0
	if pc.Token != "" {
		start, _ = strconv.Atoi(pc.Token)
	}
	end := min(start+p.pageSize, len(p.entries))
	for _, name := range p.entries[start:end] {
		pc.Push(store.NewEntry(name, store.NewMetadata(store.ModeFromPath(name))))
	}
	if end >= len(p.entries) {
		pc.Done = true
		return nil
	}
	pc.Token = strconv.Itoa(end)
	return nil
}

func snapshot(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("dir/file-%03d", i)
	}
	return out
}

func TestPageListerEnumeratesOnce(t *testing.T) {
	ctx := context.Background()
	src := &pagedSnapshot{entries: snapshot(25), pageSize: 10}

	entries, err := Collect(ctx, NewPageLister(src))
	require.NoError(t, err)
	require.Len(t, entries, 25)
	assert.Equal(t, 3, src.calls)

	seen := make(map[string]int)
	for _, e := range entries {
		seen[e.Path]++
	}
	for _, name := range src.entries {
		assert.Equal(t, 1, seen[name], name)
	}

	again, err := Collect(ctx, NewPageLister(&pagedSnapshot{entries: src.entries, pageSize: 7}))
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestPageListerEmptyPages(t *testing.T) {
	src := &pagedSnapshot{entries: nil, pageSize: 10}
	entries, err := Collect(context.Background(), NewPageLister(src))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPageListerNotFoundIsEmpty(t *testing.T) {
	src := &pagedSnapshot{err: store.NewError(store.KindNotFound, "no such dir")}
	l := NewPageLister(src)

	_, err := l.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
	_, err = l.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, 1, src.calls)
}

func TestPageListerPropagatesErrors(t *testing.T) {
	src := &pagedSnapshot{err: store.NewError(store.KindPermissionDenied, "denied")}
	_, err := NewPageLister(src).Next(context.Background())
	assert.ErrorIs(t, err, store.ErrPermissionDenied)
}

func TestSliceLister(t *testing.T) {
	entries := []store.Entry{
		store.NewEntry("a", store.NewMetadata(store.ModeFile)),
		store.NewEntry("b/", store.NewMetadata(store.ModeDir)),
	}
	got, err := Collect(context.Background(), NewSliceLister(entries))
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}
