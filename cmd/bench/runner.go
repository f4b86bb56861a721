package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	gometrics "github.com/rcrowley/go-metrics"
)

// Workload is the data and the query arguments of one run
type Workload struct {
	Docs      []document.Document
	BatchSize int
	FindIDs   []string
	Pattern   string
	MinAge    int
}

// Result is the timing of one phase of one backend
type Result struct {
	Backend string
	Phase   string
	Calls   int64
	Docs    int // documents written or returned
	Mean    time.Duration
	P99     time.Duration
	Max     time.Duration
	Total   time.Duration
}

// phases in execution order
var phases = []string{
	adapter.OpInit,
	adapter.OpWriteDocs,
	adapter.OpFindDocs,
	adapter.OpQueryRegex,
	adapter.OpQueryIndex,
	adapter.OpQueryRegexIndex,
	adapter.OpClear,
}

// runner times the phases of one backend with one timer per phase
type runner struct {
	a        adapter.Adapter
	registry gometrics.Registry
	docs     map[string]int
}

// Run executes every phase against a in order and returns one result per phase.
// The adapter is cleared even when a phase in between fails.
func Run(ctx context.Context, backend string, a adapter.Adapter, w Workload) ([]Result, error) {
	r := &runner{
		a:        a,
		registry: gometrics.NewRegistry(),
		docs:     make(map[string]int, len(phases)),
	}
	defer r.registry.UnregisterAll()

	if err := r.time(adapter.OpInit, func() (int, error) { return 0, a.Init(ctx) }); err != nil {
		return nil, err
	}

	err := r.workload(ctx, w)
	if clearErr := r.time(adapter.OpClear, func() (int, error) { return 0, a.Clear(ctx) }); err == nil {
		err = clearErr
	}
	if err != nil {
		return nil, err
	}
	return r.results(backend), nil
}

func (r *runner) workload(ctx context.Context, w Workload) error {
	batch := w.BatchSize
	if batch <= 0 {
		batch = len(w.Docs)
	}
	for start := 0; start < len(w.Docs); start += batch {
		chunk := w.Docs[start:min(start+batch, len(w.Docs))]
		if err := r.time(adapter.OpWriteDocs, func() (int, error) { return len(chunk), r.a.WriteDocs(ctx, chunk) }); err != nil {
			return err
		}
	}

	queries := []struct {
		op   string
		call func() ([]document.Document, error)
	}{
		{adapter.OpFindDocs, func() ([]document.Document, error) { return r.a.FindDocs(ctx, w.FindIDs) }},
		{adapter.OpQueryRegex, func() ([]document.Document, error) { return r.a.QueryRegex(ctx, w.Pattern) }},
		{adapter.OpQueryIndex, func() ([]document.Document, error) { return r.a.QueryIndex(ctx, w.MinAge) }},
		{adapter.OpQueryRegexIndex, func() ([]document.Document, error) { return r.a.QueryRegexIndex(ctx, w.Pattern, w.MinAge) }},
	}
	for _, q := range queries {
		err := r.time(q.op, func() (int, error) {
			docs, err := q.call()
			return len(docs), err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// time runs call and records its duration under the timer of op
func (r *runner) time(op string, call func() (int, error)) error {
	start := time.Now()
	n, err := call()
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	gometrics.GetOrRegisterTimer(op, r.registry).UpdateSince(start)
	r.docs[op] += n
	return nil
}

func (r *runner) results(backend string) []Result {
	results := make([]Result, 0, len(phases))
	for _, op := range phases {
		t, ok := r.registry.Get(op).(gometrics.Timer)
		if !ok {
			continue
		}
		s := t.Snapshot()
		results = append(results, Result{
			Backend: backend,
			Phase:   op,
			Calls:   s.Count(),
			Docs:    r.docs[op],
			Mean:    time.Duration(s.Mean()),
			P99:     time.Duration(s.Percentile(0.99)),
			Max:     time.Duration(s.Max()),
			Total:   time.Duration(s.Sum()),
		})
	}
	return results
}
