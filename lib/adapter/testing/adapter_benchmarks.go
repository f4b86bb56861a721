package testing

import (
	"context"
	"testing"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
)

// benchDocs is the number of documents loaded before the read benchmarks run
const benchDocs = 2000

// RunAdapterBenchmarks runs the standard benchmarks for an adapter implementation.
func RunAdapterBenchmarks(b *testing.B, name string, factory adapter.Factory) {
	b.Run(name, func(b *testing.B) {
		b.Run("WriteDocs", func(b *testing.B) {
			benchmarkWriteDocs(b, factory())
		})

		b.Run("FindDocs", func(b *testing.B) {
			benchmarkFindDocs(b, factory())
		})

		b.Run("QueryRegex", func(b *testing.B) {
			benchmarkQuery(b, factory(), func(ctx context.Context, a adapter.Adapter) error {
				_, err := a.QueryRegex(ctx, "abc")
				return err
			})
		})

		b.Run("QueryIndex", func(b *testing.B) {
			benchmarkQuery(b, factory(), func(ctx context.Context, a adapter.Adapter) error {
				_, err := a.QueryIndex(ctx, 50)
				return err
			})
		})

		b.Run("QueryRegexIndex", func(b *testing.B) {
			benchmarkQuery(b, factory(), func(ctx context.Context, a adapter.Adapter) error {
				_, err := a.QueryRegexIndex(ctx, "abc", 50)
				return err
			})
		})
	})
}

// loaded initializes the adapter and writes benchDocs documents
func loaded(b *testing.B, a adapter.Adapter) (context.Context, []document.Document) {
	ctx := setup(b, a)
	docs := document.NewGenerator(nil).Take(benchDocs)
	if err := a.WriteDocs(ctx, docs); err != nil {
		b.Fatalf("WriteDocs failed: %v", err)
	}
	return ctx, docs
}

func benchmarkWriteDocs(b *testing.B, a adapter.Adapter) {
	ctx := setup(b, a)
	gen := document.NewGenerator(nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// fresh ids every round, reject-policy backends would fail otherwise
		b.StopTimer()
		docs := gen.Take(100)
		b.StartTimer()
		if err := a.WriteDocs(ctx, docs); err != nil {
			b.Fatalf("WriteDocs failed: %v", err)
		}
	}
}

func benchmarkFindDocs(b *testing.B, a adapter.Adapter) {
	ctx, docs := loaded(b, a)
	ids := document.IDs(docs[:100])

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.FindDocs(ctx, ids); err != nil {
			b.Fatalf("FindDocs failed: %v", err)
		}
	}
}

func benchmarkQuery(b *testing.B, a adapter.Adapter, query func(context.Context, adapter.Adapter) error) {
	ctx, _ := loaded(b, a)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := query(ctx, a); err != nil {
			b.Fatalf("Query failed: %v", err)
		}
	}
}
