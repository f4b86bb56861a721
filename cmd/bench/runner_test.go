package bench

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/adapters/kvmap"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workload(n, batch, find int) Workload {
	docs := document.NewGenerator(nil).Take(n)
	return Workload{
		Docs:      docs,
		BatchSize: batch,
		FindIDs:   document.IDs(docs[:find]),
		Pattern:   "a",
		MinAge:    document.NoAgeBound,
	}
}

func TestRunTimesEveryPhase(t *testing.T) {
	w := workload(25, 10, 5)
	results, err := Run(context.Background(), "kvmap", kvmap.New(kvmap.Options{Name: "bench"}), w)
	require.NoError(t, err)

	byPhase := make(map[string]Result)
	var order []string
	for _, r := range results {
		byPhase[r.Phase] = r
		order = append(order, r.Phase)
		assert.Equal(t, "kvmap", r.Backend)
	}
	assert.Equal(t, phases, order)

	assert.EqualValues(t, 1, byPhase[adapter.OpInit].Calls)
	assert.EqualValues(t, 3, byPhase[adapter.OpWriteDocs].Calls)
	assert.Equal(t, 25, byPhase[adapter.OpWriteDocs].Docs)
	assert.Equal(t, 5, byPhase[adapter.OpFindDocs].Docs)
	assert.Equal(t, 25, byPhase[adapter.OpQueryIndex].Docs)
	assert.EqualValues(t, 1, byPhase[adapter.OpClear].Calls)
	assert.GreaterOrEqual(t, byPhase[adapter.OpWriteDocs].Total, byPhase[adapter.OpWriteDocs].Max)
}

func TestRunWithoutBatchSizeWritesOnce(t *testing.T) {
	results, err := Run(context.Background(), "kvmap", kvmap.New(kvmap.Options{Name: "bench"}), workload(12, 0, 1))
	require.NoError(t, err)
	for _, r := range results {
		if r.Phase == adapter.OpWriteDocs {
			assert.EqualValues(t, 1, r.Calls)
			assert.Equal(t, 12, r.Docs)
		}
	}
}

// failingWrites rejects every write and records whether Clear ran
type failingWrites struct {
	adapter.Adapter
	cleared bool
}

func (f *failingWrites) WriteDocs(context.Context, []document.Document) error {
	return adapter.NewError(adapter.RetCWrite, "failing", adapter.OpWriteDocs, errors.New("disk full"))
}

func (f *failingWrites) Clear(ctx context.Context) error {
	f.cleared = true
	return f.Adapter.Clear(ctx)
}

func TestRunClearsAfterFailure(t *testing.T) {
	a := &failingWrites{Adapter: kvmap.New(kvmap.Options{Name: "bench"})}

	results, err := Run(context.Background(), "failing", a, workload(5, 2, 1))
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, adapter.IsCode(err, adapter.RetCWrite))
	assert.True(t, a.cleared)
}

func TestWriteResultsToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	results := []Result{
		{Backend: "kvmap", Phase: adapter.OpInit, Calls: 1, Mean: time.Millisecond, P99: time.Millisecond, Max: time.Millisecond, Total: time.Millisecond},
		{Backend: "kvmap", Phase: adapter.OpWriteDocs, Calls: 2, Docs: 10, Mean: 2 * time.Microsecond},
	}
	require.NoError(t, writeResultsToCSV(path, results))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "backend", records[0][0])
	assert.Equal(t, []string{"kvmap", adapter.OpWriteDocs, "2", "10", "2000", "0", "0", "0"}, records[2])
}
