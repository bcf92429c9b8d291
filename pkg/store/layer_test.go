package store

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopAccessor struct {
	Unimplemented
	info  *Info
	trace *[]string
}

func (a nopAccessor) Info() *Info { return a.info }

func (a nopAccessor) Stat(context.Context, string, OpStat) (RpStat, error) {
	*a.trace = append(*a.trace, "backend")
	return NewRpStat(NewMetadata(ModeFile)), nil
}

type tracingLayer struct {
	name  string
	trace *[]string
}

func (l tracingLayer) Layer(inner Accessor) Accessor {
	return &tracingAccessor{LayeredAccessor: NewLayeredAccessor(inner), layer: l}
}

type tracingAccessor struct {
	LayeredAccessor
	layer tracingLayer
}

func (a *tracingAccessor) Stat(ctx context.Context, path string, args OpStat) (RpStat, error) {
	*a.layer.trace = append(*a.layer.trace, a.layer.name+">")
	rp, err := a.Inner.Stat(ctx, path, args)
	*a.layer.trace = append(*a.layer.trace, "<"+a.layer.name)
	return rp, err
}

func TestApplyOrder(t *testing.T) {
	var trace []string
	backend := nopAccessor{info: NewInfo(), trace: &trace}

	acc := Apply(backend,
		tracingLayer{name: "A", trace: &trace},
		tracingLayer{name: "B", trace: &trace},
		nil,
		tracingLayer{name: "C", trace: &trace},
	)

	_, err := acc.Stat(context.Background(), "x", OpStat{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A>", "B>", "C>", "backend", "<C", "<B", "<A"}, trace)
	assert.Same(t, backend.Info(), acc.Info())
}

func TestLayeredAccessorForwardsUnimplemented(t *testing.T) {
	var trace []string
	acc := LayerFunc(func(inner Accessor) Accessor {
		return NewLayeredAccessor(inner)
	}).Layer(nopAccessor{info: NewInfo(), trace: &trace})

	_, _, err := acc.Read(context.Background(), "x", OpRead{})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.NotErrorIs(t, err, ErrCapabilityMissing)
}

func TestInfoDefaults(t *testing.T) {
	info := NewInfo()
	assert.Equal(t, "/", info.Root())
	assert.NotNil(t, info.HTTPClient())

	info.SetScheme(SchemeMemory).SetRoot("data/").SetName("bucket")
	assert.Equal(t, SchemeMemory, info.Scheme())
	assert.Equal(t, "/data", info.Root())
	assert.Equal(t, "bucket", info.Name())
}

func TestInfoCapability(t *testing.T) {
	info := NewInfo().SetNativeCapability(Capability{Stat: true, Read: true})
	assert.Equal(t, info.NativeCapability(), info.FullCapability())

	info.UpdateFullCapability(func(c Capability) Capability {
		c.List = true
		return c
	})
	assert.True(t, info.FullCapability().List)
	assert.False(t, info.NativeCapability().List)

	m := info.FullCapability().Map()
	assert.Equal(t, true, m["stat"])
	assert.Equal(t, false, m["write_can_multi"])
}

func TestInfoHTTPClientSwap(t *testing.T) {
	info := NewInfo()
	old := info.HTTPClient()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info.UpdateHTTPClient(func(*HTTPClient) *HTTPClient {
				return HTTPClientWith(&http.Client{})
			})
		}()
	}
	wg.Wait()

	assert.NotSame(t, old, info.HTTPClient())
	// A holder of the old client keeps a usable client.
	assert.NotNil(t, old.Client())
}
