package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/services/memory"
	"github.com/marmos91/dittostore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingBackend struct {
	store.Accessor
	closed bool
	err    error
}

func (c *closingBackend) Close() error {
	c.closed = true
	return c.err
}

func newBackend(t *testing.T, root string) *closingBackend {
	t.Helper()
	b, err := memory.New(context.Background(), memory.Config{Root: root})
	require.NoError(t, err)
	return &closingBackend{Accessor: b}
}

func register(t *testing.T, reg *Registry, name string) *closingBackend {
	t.Helper()
	b := newBackend(t, "/"+name)
	require.NoError(t, reg.Register(name, b, operator.New(b)))
	return b
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "a")
	register(t, reg, "b")

	op, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "/a", op.Info().Root())

	svc, err := reg.GetService("b")
	require.NoError(t, err)
	assert.Equal(t, store.SchemeMemory, svc.Scheme())
	assert.Equal(t, "/b", svc.Root())
	assert.False(t, svc.RegisteredAt.IsZero())

	assert.Equal(t, []string{"a", "b"}, reg.List())
	assert.Equal(t, 2, reg.Count())
	assert.True(t, reg.Exists("a"))
	assert.False(t, reg.Exists("c"))

	_, err = reg.Get("c")
	assert.Error(t, err)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	b := newBackend(t, "")

	assert.Error(t, reg.Register("", b, operator.New(b)))
	assert.Error(t, reg.Register("x", nil, operator.New(b)))
	assert.Error(t, reg.Register("x", b, nil))

	require.NoError(t, reg.Register("x", b, operator.New(b)))
	err := reg.Register("x", b, operator.New(b))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestDefaultService(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("")
	assert.Error(t, err)

	register(t, reg, "only")
	op, err := reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, "/only", op.Info().Root())

	register(t, reg, "other")
	_, err = reg.Get("")
	assert.Error(t, err, "ambiguous without a default")

	assert.Error(t, reg.SetDefault("missing"))
	require.NoError(t, reg.SetDefault("other"))
	assert.Equal(t, "other", reg.Default())

	op, err = reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, "/other", op.Info().Root())
}

func TestRemoveClosesBackend(t *testing.T) {
	reg := NewRegistry()
	b := register(t, reg, "a")
	require.NoError(t, reg.SetDefault("a"))

	require.NoError(t, reg.Remove("a"))
	assert.True(t, b.closed)
	assert.False(t, reg.Exists("a"))
	assert.Empty(t, reg.Default())

	assert.Error(t, reg.Remove("a"))
}

func TestCloseJoinsErrors(t *testing.T) {
	reg := NewRegistry()
	a := register(t, reg, "a")
	b := register(t, reg, "b")
	b.err = errors.New("disk gone")

	err := reg.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Zero(t, reg.Count())
}

func TestListByScheme(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "m1")
	register(t, reg, "m2")

	assert.Equal(t, []string{"m1", "m2"}, reg.ListByScheme(store.SchemeMemory))
	assert.Empty(t, reg.ListByScheme(store.SchemeS3))
}

func TestBlockingService(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "a")

	bop, err := reg.Blocking("a")
	require.NoError(t, err)
	_, err = bop.Write("f", []byte("hi"))
	require.NoError(t, err)

	data, err := bop.Read("f")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}
