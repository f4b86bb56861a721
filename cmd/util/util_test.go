package util

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pubkey/storagebench/lib/adapter"
	adaptertesting "github.com/pubkey/storagebench/lib/adapter/testing"
	"github.com/pubkey/storagebench/lib/compose/mapped"
	"github.com/pubkey/storagebench/lib/compose/sharded"
	"github.com/pubkey/storagebench/lib/lockmgr"
	"github.com/pubkey/storagebench/rpc/client"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
		assert.NotEmpty(t, line)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestInitConfigReadsEnv(t *testing.T) {
	t.Setenv("STORAGEBENCH_BATCH_SIZE", "42")
	InitConfig()
	assert.Equal(t, 42, viper.GetInt("batch-size"))
}

func TestBackendsAreSorted(t *testing.T) {
	names := Backends()
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "kvmap")
	assert.Contains(t, names, "sqlstore-file")
}

func TestUnknownBackend(t *testing.T) {
	for _, kind := range []string{"nope", "sharded-nope", "worker-", "mapped-worker-nope"} {
		_, err := NewBackend(kind, BackendOptions{Name: "x"})
		assert.Error(t, err, kind)
	}

	_, err := NewBackend("worker-kvmap", BackendOptions{Name: "x", Serializer: "xml"})
	assert.Error(t, err)
}

func TestEveryBaseBackendBuilds(t *testing.T) {
	opts := BackendOptions{Name: "registry", DataDir: t.TempDir()}
	for _, kind := range Backends() {
		a, err := NewBackend(kind, opts)
		require.NoError(t, err, kind)
		assert.Equal(t, "registry", a.Name(), kind)
	}
}

func TestComposedBackends(t *testing.T) {
	opts := BackendOptions{Name: "composed", Shards: 3}

	a, err := NewBackend("sharded-worker-kvmap", opts)
	require.NoError(t, err)
	s, ok := a.(*sharded.Adapter)
	require.True(t, ok)
	require.Len(t, s.Shards(), 3)
	for i, child := range s.Shards() {
		assert.IsType(t, &client.WorkerAdapter{}, child)
		assert.Equal(t, fmt.Sprintf("composed-%d", i), child.Name())
	}

	a, err = NewBackend("mapped-sqlstore-memory", opts)
	require.NoError(t, err)
	assert.IsType(t, &mapped.Adapter{}, a)

	a, err = NewBackend("process-docstore-memory", opts)
	require.NoError(t, err)
	assert.IsType(t, &client.WorkerAdapter{}, a)
	assert.Equal(t, adapter.BackendWorker, a.Info().Backend)
}

func TestComposedConformance(t *testing.T) {
	for _, kind := range []string{"sharded-worker-kvmap", "mapped-sqlstore-memory", "worker-docstore-memory"} {
		adaptertesting.RunAdapterTests(t, kind, func() adapter.Adapter {
			a, err := NewBackend(kind, BackendOptions{Name: kind, Serializer: "json"})
			require.NoError(t, err)
			return a
		})
	}
}

func TestSharedLocksRejectSecondInstance(t *testing.T) {
	locks := lockmgr.NewInMemory()
	opts := BackendOptions{Name: "locked", Locks: locks}

	first, err := NewBackend("docstore-memory", opts)
	require.NoError(t, err)
	second, err := NewBackend("docstore-memory", opts)
	require.NoError(t, err)

	ctx := t.Context()
	require.NoError(t, first.Init(ctx))
	assert.True(t, adapter.IsCode(second.Init(ctx), adapter.RetCProvisioning))
	require.NoError(t, first.Clear(ctx))
}
