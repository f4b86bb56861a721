package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/docstore"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
	"github.com/pubkey/storagebench/lib/objectstore"
)

var log = logger.GetLogger("docstore")

// Options configures a document store adapter
type Options struct {
	Name  string               // Adapter and collection name
	Dir   string               // Parent directory of the object store (empty = memory engine)
	Locks lockmgr.ILockManager // Optional lock manager for exclusive resource ownership
}

type docstoreAdapter struct {
	opts  Options
	claim *lockmgr.Claim

	mu   sync.RWMutex // guards coll
	coll *docstore.Collection
}

// New creates a document store adapter.
func New(opts Options) adapter.Adapter {
	return &docstoreAdapter{
		opts:  opts,
		claim: lockmgr.NewClaim(opts.Locks, opts.Name),
	}
}

func (a *docstoreAdapter) Name() string { return a.opts.Name }

func (a *docstoreAdapter) Info() adapter.Info {
	features := adapter.FeatureNativeBatch | adapter.FeatureRangeIndex
	engine := "memory"
	if a.opts.Dir != "" {
		features |= adapter.FeaturePersistent
		engine = "objectstore"
	}

	meta := map[string]interface{}{"engine": engine}
	a.mu.RLock()
	if a.coll != nil {
		meta["documents"] = a.coll.Count()
		meta["dropped_events"] = a.coll.Dropped()
	}
	a.mu.RUnlock()

	return adapter.Info{
		Name:       a.opts.Name,
		Backend:    adapter.BackendDocStore,
		Strategy:   adapter.StrategyCursor,
		Duplicates: adapter.DuplicateReject,
		Missing:    adapter.MissingOmit,
		Matching:   document.MatchRegex,
		Features:   features,
		Metadata:   meta,
	}
}

func (a *docstoreAdapter) newEngine() docstore.Engine {
	if a.opts.Dir == "" {
		return docstore.NewMemoryEngine(docstore.MemoryOptions{})
	}
	return docstore.NewObjectStoreEngine(objectstore.Options{Dir: filepath.Join(a.opts.Dir, a.opts.Name)})
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (a *docstoreAdapter) Init(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.coll != nil {
		return nil
	}

	if err := a.claim.Acquire(); err != nil {
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	coll := docstore.NewCollection(a.opts.Name, a.newEngine())
	if err := coll.Open(); err != nil {
		_ = a.claim.Release()
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}
	a.coll = coll
	return nil
}

func (a *docstoreAdapter) WriteDocs(_ context.Context, docs []document.Document) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.coll == nil {
		return adapter.NotInitialized(a.opts.Name, adapter.OpWriteDocs)
	}

	err := a.coll.Insert(docs)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrConflict):
		return adapter.NewError(adapter.RetCDuplicateID, a.opts.Name, adapter.OpWriteDocs, err)
	default:
		return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, err)
	}
}

func (a *docstoreAdapter) FindDocs(_ context.Context, ids []string) ([]document.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.coll == nil {
		return nil, adapter.NotInitialized(a.opts.Name, adapter.OpFindDocs)
	}

	docs, err := a.coll.FindByIDs(ids)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, adapter.OpFindDocs, err)
	}
	return docs, nil
}

func (a *docstoreAdapter) QueryRegex(_ context.Context, pattern string) ([]document.Document, error) {
	return a.find(adapter.OpQueryRegex, pattern, document.NoAgeBound)
}

func (a *docstoreAdapter) QueryIndex(_ context.Context, minAge int) ([]document.Document, error) {
	return a.find(adapter.OpQueryIndex, "", minAge)
}

func (a *docstoreAdapter) QueryRegexIndex(_ context.Context, pattern string, minAge int) ([]document.Document, error) {
	return a.find(adapter.OpQueryRegexIndex, pattern, minAge)
}

func (a *docstoreAdapter) Clear(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.coll != nil {
		if err := a.coll.Remove(); err != nil {
			return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
		}
		if dropped := a.coll.Dropped(); dropped > 0 {
			log.Infof("%s: %d change events were dropped", a.opts.Name, dropped)
		}
		a.coll = nil
	}
	if err := a.claim.Release(); err != nil {
		return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
	}
	return nil
}

func (a *docstoreAdapter) find(op, pattern string, minAge int) ([]document.Document, error) {
	q, err := adapter.OpQuery(a.opts.Name, op, document.MatchRegex, pattern, minAge)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.coll == nil {
		return nil, adapter.NotInitialized(a.opts.Name, op)
	}

	docs, err := a.coll.Find(q)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, err)
	}
	return docs, nil
}
