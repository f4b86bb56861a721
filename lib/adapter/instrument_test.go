package adapter

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter returns fixed results and a configurable error
type stubAdapter struct {
	docs []document.Document
	err  error
}

func (s *stubAdapter) Name() string { return "stub" }
func (s *stubAdapter) Info() Info { return Info{Name: "stub"} }
func (s *stubAdapter) Init(context.Context) error { return s.err }
func (s *stubAdapter) Clear(context.Context) error { return s.err }
func (s *stubAdapter) WriteDocs(context.Context, []document.Document) error { return s.err }

func (s *stubAdapter) FindDocs(context.Context, []string) ([]document.Document, error) {
	return s.docs, s.err
}

func (s *stubAdapter) QueryRegex(context.Context, string) ([]document.Document, error) {
	return s.docs, s.err
}

func (s *stubAdapter) QueryIndex(context.Context, int) ([]document.Document, error) {
	return s.docs, s.err
}

func (s *stubAdapter) QueryRegexIndex(context.Context, string, int) ([]document.Document, error) {
	return s.docs, s.err
}

func TestInstrumentRecordsMetrics(t *testing.T) {
	set := metrics.NewSet()
	stub := &stubAdapter{docs: []document.Document{{ID: "a"}, {ID: "b"}}}
	a := Instrument(stub, set)
	ctx := context.Background()

	require.NoError(t, a.Init(ctx))
	docs, err := a.QueryIndex(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	stub.err = errors.New("boom")
	_, err = a.QueryIndex(ctx, 0)
	assert.EqualError(t, err, "boom")

	var buf bytes.Buffer
	set.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `storagebench_adapter_calls_total{adapter="stub",op="QueryIndex"} 2`)
	assert.Contains(t, out, `storagebench_adapter_errors_total{adapter="stub",op="QueryIndex"} 1`)
	assert.Contains(t, out, `storagebench_adapter_docs_total{adapter="stub",op="QueryIndex"} 2`)
	assert.Contains(t, out, `storagebench_adapter_calls_total{adapter="stub",op="Init"} 1`)
	assert.Equal(t, "stub", a.Name())
}
