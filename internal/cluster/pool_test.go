package cluster

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aonescu/kubedit/internal/cluster/clustertest"
	"github.com/aonescu/kubedit/internal/resource"
)

func TestPool_AcquireReturnsOneHandlePerIdentity(t *testing.T) {
	pool := NewPool(clustertest.NewTransport())
	defer pool.Close()
	ref := resource.Ref{APIVersion: "apps/v1", Identity: fooID}

	const callers = 32
	handles := make([]*Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := pool.Acquire(ref)
			if err == nil {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		require.NotNil(t, h)
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, 1, pool.Len())
}

func TestPool_ReleaseClosesOnLastReference(t *testing.T) {
	pool := NewPool(clustertest.NewTransport())
	ref := resource.Ref{APIVersion: "apps/v1", Identity: fooID}

	first, err := pool.Acquire(ref)
	require.NoError(t, err)
	second, err := pool.Acquire(ref)
	require.NoError(t, err)
	require.Same(t, first, second)

	pool.Release(first)
	assert.False(t, first.IsClosed())
	assert.Equal(t, 1, pool.Len())

	pool.Release(second)
	assert.True(t, first.IsClosed())
	assert.Equal(t, 0, pool.Len())

	third, err := pool.Acquire(ref)
	require.NoError(t, err)
	assert.NotSame(t, first, third)

	// foreign handles are ignored
	pool.Release(first)
	assert.False(t, third.IsClosed())
	pool.Release(nil)
}

func TestPool_AcquireRejectsMalformedIdentity(t *testing.T) {
	pool := NewPool(clustertest.NewTransport())

	_, err := pool.Acquire(resource.Ref{Identity: resource.Identity{Kind: "deployment", Name: "x"}})
	assert.Error(t, err)
	assert.Equal(t, 0, pool.Len())
}

func TestResolveHandle(t *testing.T) {
	pool := NewPool(clustertest.NewTransport())
	defer pool.Close()
	ref := resource.Ref{APIVersion: "apps/v1", Identity: fooID}

	h, replaced, err := ResolveHandle(nil, ref, pool.Acquire)
	require.NoError(t, err)
	assert.True(t, replaced)

	same, replaced, err := ResolveHandle(h, ref, pool.Acquire)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Same(t, h, same)

	renamed := resource.Ref{APIVersion: "apps/v1", Identity: resource.Identity{Kind: "Deployment", Namespace: "ns", Name: "bar"}}
	other, replaced, err := ResolveHandle(h, renamed, pool.Acquire)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.NotSame(t, h, other)

	h.Close()
	reopened, replaced, err := ResolveHandle(h, ref, pool.Acquire)
	require.NoError(t, err)
	assert.True(t, replaced, "a closed handle is always replaced")
	assert.NotSame(t, h, reopened)
	assert.False(t, reopened.IsClosed())
}
