package idb

import (
	"context"
	"testing"

	"github.com/pubkey/storagebench/lib/adapter"
	adaptertesting "github.com/pubkey/storagebench/lib/adapter/testing"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	adaptertesting.RunAdapterTests(t, "idb-cursor", func() adapter.Adapter {
		return NewCursor(Options{Name: "idb-cursor"})
	})
	adaptertesting.RunAdapterTests(t, "idb-bulk", func() adapter.Adapter {
		return NewBulk(Options{Name: "idb-bulk"})
	})
}

func TestOnDisk(t *testing.T) {
	dir := t.TempDir()
	adaptertesting.RunAdapterTests(t, "idb-disk", func() adapter.Adapter {
		return NewCursor(Options{Name: "idb-disk", Dir: dir})
	})
}

func Benchmark(b *testing.B) {
	adaptertesting.RunAdapterBenchmarks(b, "idb-cursor", func() adapter.Adapter {
		return NewCursor(Options{Name: "idb-cursor"})
	})
	adaptertesting.RunAdapterBenchmarks(b, "idb-bulk", func() adapter.Adapter {
		return NewBulk(Options{Name: "idb-bulk"})
	})
}

func TestStrategiesAgree(t *testing.T) {
	ctx := context.Background()
	docs := document.NewGenerator(nil).Take(300)

	cursor := NewCursor(Options{Name: "c"})
	bulk := NewBulk(Options{Name: "b"})
	for _, a := range []adapter.Adapter{cursor, bulk} {
		require.NoError(t, a.Init(ctx))
		defer a.Clear(ctx)
		require.NoError(t, a.WriteDocs(ctx, docs))
	}

	for _, minAge := range []int{0, 25, 75} {
		fromCursor, err := cursor.QueryRegexIndex(ctx, "ab", minAge)
		require.NoError(t, err)
		fromBulk, err := bulk.QueryRegexIndex(ctx, "ab", minAge)
		require.NoError(t, err)

		// both walk the age index, so even the order is the same
		assert.Equal(t, document.IDs(fromCursor), document.IDs(fromBulk))
	}

	assert.Equal(t, adapter.StrategyCursor, cursor.Info().Strategy)
	assert.Equal(t, adapter.StrategyBulk, bulk.Info().Strategy)
}

func TestRejectedBatchIsNotApplied(t *testing.T) {
	ctx := context.Background()
	a := NewCursor(Options{Name: "reject"})
	require.NoError(t, a.Init(ctx))
	defer a.Clear(ctx)

	require.NoError(t, a.WriteDocs(ctx, []document.Document{{ID: "a"}}))
	err := a.WriteDocs(ctx, []document.Document{{ID: "b"}, {ID: "a"}})
	assert.True(t, adapter.IsCode(err, adapter.RetCDuplicateID))

	found, err := a.FindDocs(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, document.IDs(found))
}
