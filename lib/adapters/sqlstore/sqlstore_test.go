package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pubkey/storagebench/lib/adapter"
	adaptertesting "github.com/pubkey/storagebench/lib/adapter/testing"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	adaptertesting.RunAdapterTests(t, "sqlstore-memory", func() adapter.Adapter {
		return New(Options{Name: "sqlstore-memory"})
	})

	dir := t.TempDir()
	adaptertesting.RunAdapterTests(t, "sqlstore-file", func() adapter.Adapter {
		return New(Options{Name: "sqlstore-file", Dir: dir})
	})
}

func Benchmark(b *testing.B) {
	adaptertesting.RunAdapterBenchmarks(b, "sqlstore-memory", func() adapter.Adapter {
		return New(Options{Name: "sqlstore-memory"})
	})
}

func TestDuplicateRollsBackBatch(t *testing.T) {
	ctx := context.Background()
	a := New(Options{Name: "rollback"})
	require.NoError(t, a.Init(ctx))
	defer a.Clear(ctx)

	require.NoError(t, a.WriteDocs(ctx, []document.Document{{ID: "a", Age: 1}}))

	err := a.WriteDocs(ctx, []document.Document{{ID: "b", Age: 2}, {ID: "a", Age: 3}})
	require.Error(t, err)
	assert.True(t, adapter.IsCode(err, adapter.RetCDuplicateID))

	all, err := a.QueryIndex(ctx, document.NoAgeBound)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, document.IDs(all))
}

func TestNestedColumnsRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := New(Options{Name: "columns"})
	require.NoError(t, a.Init(ctx))
	defer a.Clear(ctx)

	doc := document.Document{
		ID: "x", Age: 7, LongText: "it's \"quoted\"",
		Nes:  document.Nested{Ted: 42},
		List: []document.ListItem{{Value: "one"}, {Value: "two"}},
	}
	require.NoError(t, a.WriteDocs(ctx, []document.Document{doc}))

	found, err := a.FindDocs(ctx, []string{"x", "x", "missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, doc.Equal(&found[0]))
}

func TestClearRemovesFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := New(Options{Name: "files", Dir: dir})
	require.NoError(t, a.Init(ctx))
	require.NoError(t, a.WriteDocs(ctx, []document.Document{{ID: "a"}}))

	_, err := os.Stat(filepath.Join(dir, "files.sqlite"))
	require.NoError(t, err)

	require.NoError(t, a.Clear(ctx))
	_, err = os.Stat(filepath.Join(dir, "files.sqlite"))
	assert.True(t, os.IsNotExist(err))
}

func TestManyIDsAreChunked(t *testing.T) {
	ctx := context.Background()
	a := New(Options{Name: "chunks"})
	require.NoError(t, a.Init(ctx))
	defer a.Clear(ctx)

	docs := document.NewGenerator(nil).Take(maxParams*2 + 3)
	require.NoError(t, a.WriteDocs(ctx, docs))

	found, err := a.FindDocs(ctx, document.IDs(docs))
	require.NoError(t, err)
	assert.Len(t, found, len(docs))
}

func TestClearReportsDropFailure(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{Name: "drop-fails", Dir: dir})
	require.NoError(t, a.Init(context.Background()))
	require.NoError(t, a.WriteDocs(context.Background(), []document.Document{{ID: "a"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Clear(ctx)
	assert.True(t, adapter.IsCode(err, adapter.RetCInternalError), "got %v", err)
	assert.ErrorIs(t, err, context.Canceled)

	// the rest of the cleanup still ran
	_, statErr := os.Stat(filepath.Join(dir, "drop-fails.sqlite"))
	assert.True(t, os.IsNotExist(statErr))
	require.NoError(t, a.Init(context.Background()))
	require.NoError(t, a.Clear(context.Background()))
}
