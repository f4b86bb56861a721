package kvmap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/db"
	"github.com/pubkey/storagebench/lib/db/engines/maple"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
)

var log = logger.GetLogger("kvmap")

// keyPrefix marks document entries, other keys in the map are ignored by queries
const keyPrefix = "doc_"

// Options configures a key-value map adapter
type Options struct {
	Name      string               // Adapter name
	NumShards int                  // Number of maple shards (0 = number of CPUs)
	Snapshot  string               // Optional snapshot file, loaded by Init and rewritten by WriteDocs
	Locks     lockmgr.ILockManager // Optional lock manager for exclusive resource ownership
}

// kvMapAdapter stores every document as one JSON value under doc_<id>
type kvMapAdapter struct {
	opts  Options
	claim *lockmgr.Claim

	mu    sync.RWMutex // guards store, writers also serialize snapshot saves
	store db.KVDB
}

// New creates a key-value map adapter. The map is created by Init.
func New(opts Options) adapter.Adapter {
	return &kvMapAdapter{
		opts:  opts,
		claim: lockmgr.NewClaim(opts.Locks, opts.Name),
	}
}

func (a *kvMapAdapter) Name() string { return a.opts.Name }

func (a *kvMapAdapter) Info() adapter.Info {
	features := adapter.Feature(0)
	if a.opts.Snapshot != "" {
		features |= adapter.FeaturePersistent
	}

	var meta interface{}
	a.mu.RLock()
	if a.store != nil {
		meta = a.store.GetInfo()
	}
	a.mu.RUnlock()

	return adapter.Info{
		Name:       a.opts.Name,
		Backend:    adapter.BackendKVMap,
		Strategy:   adapter.StrategyCursor,
		Duplicates: adapter.DuplicateOverwrite,
		Missing:    adapter.MissingError,
		Matching:   document.MatchSubstring,
		Features:   features,
		Metadata:   meta,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (a *kvMapAdapter) Init(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return nil
	}

	if err := a.claim.Acquire(); err != nil {
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	store := maple.NewMapleDB(&maple.DBOptions{NumShards: a.opts.NumShards})
	if a.opts.Snapshot != "" {
		if err := loadSnapshot(store, a.opts.Snapshot); err != nil {
			_ = a.claim.Release()
			return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
		}
	}

	a.store = store
	log.Debugf("%s: initialized with %d entries", a.opts.Name, store.Len())
	return nil
}

func (a *kvMapAdapter) WriteDocs(_ context.Context, docs []document.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return adapter.NotInitialized(a.opts.Name, adapter.OpWriteDocs)
	}

	// encode everything first so a bad document leaves the map untouched
	values := make([][]byte, len(docs))
	for i := range docs {
		raw, err := json.Marshal(&docs[i])
		if err != nil {
			return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, err)
		}
		values[i] = raw
	}

	for i := range docs {
		a.store.Set(keyPrefix+docs[i].ID, values[i])
	}

	if a.opts.Snapshot != "" {
		if err := saveSnapshot(a.store, a.opts.Snapshot); err != nil {
			return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, err)
		}
	}
	return nil
}

func (a *kvMapAdapter) FindDocs(_ context.Context, ids []string) ([]document.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return nil, adapter.NotInitialized(a.opts.Name, adapter.OpFindDocs)
	}

	result := make([]document.Document, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var missing []string
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		raw, ok := a.store.Get(keyPrefix + id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		var doc document.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, adapter.OpFindDocs, err)
		}
		result = append(result, doc)
	}

	if len(missing) > 0 {
		return nil, adapter.NewErrorf(adapter.RetCNotFound, a.opts.Name, adapter.OpFindDocs,
			"%d ids not stored: %s", len(missing), strings.Join(missing, ", "))
	}
	return result, nil
}

func (a *kvMapAdapter) QueryRegex(_ context.Context, pattern string) ([]document.Document, error) {
	return a.scan(adapter.OpQueryRegex, pattern, document.NoAgeBound)
}

func (a *kvMapAdapter) QueryIndex(_ context.Context, minAge int) ([]document.Document, error) {
	return a.scan(adapter.OpQueryIndex, "", minAge)
}

func (a *kvMapAdapter) QueryRegexIndex(_ context.Context, pattern string, minAge int) ([]document.Document, error) {
	return a.scan(adapter.OpQueryRegexIndex, pattern, minAge)
}

func (a *kvMapAdapter) Clear(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		a.store.Clear()
		_ = a.store.Close()
		a.store = nil
	}
	if a.opts.Snapshot != "" {
		if err := os.Remove(a.opts.Snapshot); err != nil && !errors.Is(err, os.ErrNotExist) {
			return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
		}
	}
	if err := a.claim.Release(); err != nil {
		return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
	}
	log.Debugf("%s: cleared", a.opts.Name)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// scan walks the whole map, a key-value map has no secondary index
func (a *kvMapAdapter) scan(op, pattern string, minAge int) ([]document.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return nil, adapter.NotInitialized(a.opts.Name, op)
	}

	q, err := adapter.OpQuery(a.opts.Name, op, document.MatchSubstring, pattern, minAge)
	if err != nil {
		return nil, err
	}

	result := make([]document.Document, 0)
	var decodeErr error
	a.store.Range(func(key string, value []byte) bool {
		if !strings.HasPrefix(key, keyPrefix) {
			return true
		}
		var doc document.Document
		if err := json.Unmarshal(value, &doc); err != nil {
			decodeErr = fmt.Errorf("entry %s: %w", key, err)
			return false
		}
		if q.Keep(&doc) {
			result = append(result, doc)
		}
		return true
	})
	if decodeErr != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, decodeErr)
	}
	return result, nil
}

// loadSnapshot restores store from path, a missing file is an empty map
func loadSnapshot(store db.KVDB, path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return store.Load(bytes.NewReader(raw))
}

// saveSnapshot writes store to a temporary file and renames it over path
func saveSnapshot(store db.KVDB, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if err := store.Save(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
