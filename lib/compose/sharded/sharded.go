package sharded

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/db/util"
	"github.com/pubkey/storagebench/lib/document"
)

var log = logger.GetLogger("sharded")

// Adapter distributes documents across its shards
type Adapter struct {
	name    string
	shards  []adapter.Adapter
	written []atomic.Int64 // documents written per shard
}

// New creates a sharded adapter over the given children. It panics without children.
func New(name string, shards []adapter.Adapter) *Adapter {
	if len(shards) == 0 {
		panic("sharded: at least one shard is required")
	}
	return &Adapter{
		name:    name,
		shards:  shards,
		written: make([]atomic.Int64, len(shards)),
	}
}

// NewFromFactory creates n shards with factory. The index is passed so children can
// be named after their shard.
func NewFromFactory(name string, n int, factory func(i int) adapter.Adapter) *Adapter {
	shards := make([]adapter.Adapter, n)
	for i := range shards {
		shards[i] = factory(i)
	}
	return New(name, shards)
}

// ShardOf returns the shard index of id for n shards
func ShardOf(id string, n int) int {
	// Shift right by 7 bits to use higher-quality bits for distribution
	h := uint64(util.HashString(id, 0)) >> 7
	return int(h % uint64(n))
}

// Shards returns the children of the adapter
func (s *Adapter) Shards() []adapter.Adapter { return s.shards }

func (s *Adapter) Name() string { return s.name }

// Info inherits the policies of the first shard
func (s *Adapter) Info() adapter.Info {
	child := s.shards[0].Info()

	sizes := make([]float64, len(s.written))
	for i := range s.written {
		sizes[i] = float64(s.written[i].Load())
	}

	return adapter.Info{
		Name:       s.name,
		Backend:    adapter.BackendSharded,
		Strategy:   child.Strategy,
		Duplicates: child.Duplicates,
		Missing:    child.Missing,
		Matching:   child.Matching,
		Features:   child.Features | adapter.FeatureSharded,
		Metadata: map[string]interface{}{
			"shards":       len(s.shards),
			"child":        child.Backend,
			"distribution": util.NewDistributionStats(sizes),
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (s *Adapter) Init(ctx context.Context) error {
	_, err := s.fanOut(ctx, adapter.OpInit, func(ctx context.Context, _ int, a adapter.Adapter) ([]document.Document, error) {
		return nil, a.Init(ctx)
	})
	return err
}

func (s *Adapter) WriteDocs(ctx context.Context, docs []document.Document) error {
	parts := make([][]document.Document, len(s.shards))
	for i := range docs {
		shard := ShardOf(docs[i].ID, len(s.shards))
		parts[shard] = append(parts[shard], docs[i])
	}

	_, err := s.fanOut(ctx, adapter.OpWriteDocs, func(ctx context.Context, i int, a adapter.Adapter) ([]document.Document, error) {
		if len(parts[i]) == 0 {
			return nil, nil
		}
		if err := a.WriteDocs(ctx, parts[i]); err != nil {
			return nil, err
		}
		s.written[i].Add(int64(len(parts[i])))
		return nil, nil
	})
	return err
}

func (s *Adapter) FindDocs(ctx context.Context, ids []string) ([]document.Document, error) {
	parts := make([][]string, len(s.shards))
	for _, id := range ids {
		shard := ShardOf(id, len(s.shards))
		parts[shard] = append(parts[shard], id)
	}

	return s.fanOut(ctx, adapter.OpFindDocs, func(ctx context.Context, i int, a adapter.Adapter) ([]document.Document, error) {
		if len(parts[i]) == 0 {
			return nil, nil
		}
		return a.FindDocs(ctx, parts[i])
	})
}

func (s *Adapter) QueryRegex(ctx context.Context, pattern string) ([]document.Document, error) {
	return s.fanOut(ctx, adapter.OpQueryRegex, func(ctx context.Context, _ int, a adapter.Adapter) ([]document.Document, error) {
		return a.QueryRegex(ctx, pattern)
	})
}

func (s *Adapter) QueryIndex(ctx context.Context, minAge int) ([]document.Document, error) {
	return s.fanOut(ctx, adapter.OpQueryIndex, func(ctx context.Context, _ int, a adapter.Adapter) ([]document.Document, error) {
		return a.QueryIndex(ctx, minAge)
	})
}

func (s *Adapter) QueryRegexIndex(ctx context.Context, pattern string, minAge int) ([]document.Document, error) {
	return s.fanOut(ctx, adapter.OpQueryRegexIndex, func(ctx context.Context, _ int, a adapter.Adapter) ([]document.Document, error) {
		return a.QueryRegexIndex(ctx, pattern, minAge)
	})
}

func (s *Adapter) Clear(ctx context.Context) error {
	_, err := s.fanOut(ctx, adapter.OpClear, func(ctx context.Context, i int, a adapter.Adapter) ([]document.Document, error) {
		if err := a.Clear(ctx); err != nil {
			return nil, err
		}
		s.written[i].Store(0)
		return nil, nil
	})
	return err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// fanOut runs call on every shard concurrently and merges the results in shard
// order. All shard errors are joined, a failed call returns no documents.
func (s *Adapter) fanOut(ctx context.Context, op string, call func(ctx context.Context, i int, a adapter.Adapter) ([]document.Document, error)) ([]document.Document, error) {
	results := make([][]document.Document, len(s.shards))
	errs := make([]error, len(s.shards))

	var wg sync.WaitGroup
	for i, shard := range s.shards {
		wg.Add(1)
		go func(i int, shard adapter.Adapter) {
			defer wg.Done()
			results[i], errs[i] = call(ctx, i, shard)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("shard %d: %w", i, errs[i])
			}
		}(i, shard)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		log.Debugf("%s: %s failed: %v", s.name, op, err)
		return nil, adapter.NewError(adapter.CodeOf(err), s.name, op, err)
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]document.Document, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
