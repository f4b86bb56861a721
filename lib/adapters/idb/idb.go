package idb

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
	"github.com/pubkey/storagebench/lib/objectstore"
)

var log = logger.GetLogger("idb")

// Options configures an indexed object store adapter
type Options struct {
	Name  string               // Adapter name, also the directory name of the store
	Dir   string               // Parent directory of the store (empty = in memory)
	Sync  bool                 // Sync every write batch to disk
	Locks lockmgr.ILockManager // Optional lock manager for exclusive resource ownership
}

type idbAdapter struct {
	opts     Options
	strategy readStrategy
	claim    *lockmgr.Claim

	mu    sync.RWMutex // guards store
	store *objectstore.Store
}

// NewCursor creates an adapter that filters while iterating the store.
func NewCursor(opts Options) adapter.Adapter {
	return newAdapter(opts, cursorStrategy{})
}

// NewBulk creates an adapter that materializes key ranges before filtering.
func NewBulk(opts Options) adapter.Adapter {
	return newAdapter(opts, bulkStrategy{})
}

func newAdapter(opts Options, strategy readStrategy) *idbAdapter {
	return &idbAdapter{
		opts:     opts,
		strategy: strategy,
		claim:    lockmgr.NewClaim(opts.Locks, opts.Name),
	}
}

func (a *idbAdapter) Name() string { return a.opts.Name }

func (a *idbAdapter) Info() adapter.Info {
	features := adapter.FeatureNativeBatch | adapter.FeatureRangeIndex
	if a.opts.Dir != "" {
		features |= adapter.FeaturePersistent
	}
	return adapter.Info{
		Name:       a.opts.Name,
		Backend:    adapter.BackendIDB,
		Strategy:   a.strategy.kind(),
		Duplicates: adapter.DuplicateReject,
		Missing:    adapter.MissingOmit,
		Matching:   document.MatchSubstring,
		Features:   features,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (a *idbAdapter) Init(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return nil
	}

	if err := a.claim.Acquire(); err != nil {
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	storeOpts := objectstore.Options{InMemory: a.opts.Dir == "", Sync: a.opts.Sync}
	if a.opts.Dir != "" {
		storeOpts.Dir = filepath.Join(a.opts.Dir, a.opts.Name)
	}
	store, err := objectstore.Open(storeOpts)
	if err != nil {
		_ = a.claim.Release()
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	a.store = store
	log.Debugf("%s: opened (%s strategy)", a.opts.Name, a.strategy.kind())
	return nil
}

func (a *idbAdapter) WriteDocs(_ context.Context, docs []document.Document) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return adapter.NotInitialized(a.opts.Name, adapter.OpWriteDocs)
	}

	err := a.store.Insert(docs, false)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, objectstore.ErrDuplicate):
		return adapter.NewError(adapter.RetCDuplicateID, a.opts.Name, adapter.OpWriteDocs, err)
	default:
		return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, err)
	}
}

func (a *idbAdapter) FindDocs(_ context.Context, ids []string) ([]document.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return nil, adapter.NotInitialized(a.opts.Name, adapter.OpFindDocs)
	}

	docs, err := a.store.Get(ids)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, adapter.OpFindDocs, err)
	}
	return docs, nil
}

func (a *idbAdapter) QueryRegex(_ context.Context, pattern string) ([]document.Document, error) {
	return a.query(adapter.OpQueryRegex, pattern, document.NoAgeBound)
}

func (a *idbAdapter) QueryIndex(_ context.Context, minAge int) ([]document.Document, error) {
	return a.query(adapter.OpQueryIndex, "", minAge)
}

func (a *idbAdapter) QueryRegexIndex(_ context.Context, pattern string, minAge int) ([]document.Document, error) {
	return a.query(adapter.OpQueryRegexIndex, pattern, minAge)
}

func (a *idbAdapter) Clear(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Destroy(); err != nil {
			return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
		}
		a.store = nil
	}
	if err := a.claim.Release(); err != nil {
		return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
	}
	return nil
}

func (a *idbAdapter) query(op, pattern string, minAge int) ([]document.Document, error) {
	q, err := adapter.OpQuery(a.opts.Name, op, document.MatchSubstring, pattern, minAge)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return nil, adapter.NotInitialized(a.opts.Name, op)
	}

	docs, err := a.strategy.scan(a.store, q)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, err)
	}
	return docs, nil
}
