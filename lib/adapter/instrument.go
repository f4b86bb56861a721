package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pubkey/storagebench/lib/document"
)

// instrumented wraps an adapter and records per-operation metrics into a metrics.Set.
// Errors and results of the wrapped adapter are passed through unchanged.
type instrumented struct {
	inner Adapter
	set   *metrics.Set
}

// Instrument returns an adapter that records the following metrics for every operation:
//
//	storagebench_adapter_calls_total{adapter="...",op="..."}
//	storagebench_adapter_errors_total{adapter="...",op="..."}
//	storagebench_adapter_docs_total{adapter="...",op="..."}
//	storagebench_adapter_duration_seconds{adapter="...",op="..."}
//
// Use set.WritePrometheus to export them.
func Instrument(a Adapter, set *metrics.Set) Adapter {
	return &instrumented{inner: a, set: set}
}

func (i *instrumented) observe(op string, start time.Time, docs int, err error) {
	labels := fmt.Sprintf(`{adapter=%q,op=%q}`, i.inner.Name(), op)
	i.set.GetOrCreateCounter("storagebench_adapter_calls_total" + labels).Inc()
	i.set.GetOrCreateHistogram("storagebench_adapter_duration_seconds" + labels).UpdateDuration(start)
	if err != nil {
		i.set.GetOrCreateCounter("storagebench_adapter_errors_total" + labels).Inc()
		return
	}
	if docs > 0 {
		i.set.GetOrCreateCounter("storagebench_adapter_docs_total" + labels).Add(docs)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (i *instrumented) Name() string { return i.inner.Name() }

func (i *instrumented) Info() Info { return i.inner.Info() }

func (i *instrumented) Init(ctx context.Context) error {
	start := time.Now()
	err := i.inner.Init(ctx)
	i.observe(OpInit, start, 0, err)
	return err
}

func (i *instrumented) WriteDocs(ctx context.Context, docs []document.Document) error {
	start := time.Now()
	err := i.inner.WriteDocs(ctx, docs)
	i.observe(OpWriteDocs, start, len(docs), err)
	return err
}

func (i *instrumented) FindDocs(ctx context.Context, ids []string) ([]document.Document, error) {
	start := time.Now()
	docs, err := i.inner.FindDocs(ctx, ids)
	i.observe(OpFindDocs, start, len(docs), err)
	return docs, err
}

func (i *instrumented) QueryRegex(ctx context.Context, pattern string) ([]document.Document, error) {
	start := time.Now()
	docs, err := i.inner.QueryRegex(ctx, pattern)
	i.observe(OpQueryRegex, start, len(docs), err)
	return docs, err
}

func (i *instrumented) QueryIndex(ctx context.Context, minAge int) ([]document.Document, error) {
	start := time.Now()
	docs, err := i.inner.QueryIndex(ctx, minAge)
	i.observe(OpQueryIndex, start, len(docs), err)
	return docs, err
}

func (i *instrumented) QueryRegexIndex(ctx context.Context, pattern string, minAge int) ([]document.Document, error) {
	start := time.Now()
	docs, err := i.inner.QueryRegexIndex(ctx, pattern, minAge)
	i.observe(OpQueryRegexIndex, start, len(docs), err)
	return docs, err
}

func (i *instrumented) Clear(ctx context.Context) error {
	start := time.Now()
	err := i.inner.Clear(ctx)
	i.observe(OpClear, start, 0, err)
	return err
}
