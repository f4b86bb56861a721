package kvmap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pubkey/storagebench/lib/adapter"
	adaptertesting "github.com/pubkey/storagebench/lib/adapter/testing"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	adaptertesting.RunAdapterTests(t, "kvmap", func() adapter.Adapter {
		return New(Options{Name: "kvmap"})
	})
}

func TestWithSnapshot(t *testing.T) {
	dir := t.TempDir()
	adaptertesting.RunAdapterTests(t, "kvmap-snapshot", func() adapter.Adapter {
		return New(Options{Name: "kvmap-snapshot", Snapshot: filepath.Join(dir, "kv.snapshot")})
	})
}

func Benchmark(b *testing.B) {
	adaptertesting.RunAdapterBenchmarks(b, "kvmap", func() adapter.Adapter {
		return New(Options{Name: "kvmap"})
	})
}

func TestSnapshotSurvivesInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.snapshot")
	docs := document.NewGenerator(nil).Take(10)

	first := New(Options{Name: "kv", Snapshot: path})
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.WriteDocs(ctx, docs))
	assert.FileExists(t, path)

	second := New(Options{Name: "kv", Snapshot: path})
	require.NoError(t, second.Init(ctx))
	found, err := second.FindDocs(ctx, document.IDs(docs))
	require.NoError(t, err)
	assert.Len(t, found, len(docs))

	require.NoError(t, second.Clear(ctx))
	assert.NoFileExists(t, path)
}

func TestOperationsBeforeInit(t *testing.T) {
	a := New(Options{Name: "kv"})
	_, err := a.QueryIndex(context.Background(), 0)
	assert.True(t, adapter.IsCode(err, adapter.RetCInvalidOperation))
}

func TestExclusiveResource(t *testing.T) {
	ctx := context.Background()
	locks := lockmgr.NewInMemory()

	first := New(Options{Name: "shared", Locks: locks})
	second := New(Options{Name: "shared", Locks: locks})

	require.NoError(t, first.Init(ctx))
	err := second.Init(ctx)
	assert.True(t, adapter.IsCode(err, adapter.RetCProvisioning))
	assert.ErrorIs(t, err, lockmgr.ErrBusy)

	require.NoError(t, first.Clear(ctx))
	require.NoError(t, second.Init(ctx))
	require.NoError(t, second.Clear(ctx))
}
