package docstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/objectstore"
)

// ObjectStoreEngine persists documents in an objectstore.Store.
type ObjectStoreEngine struct {
	opts objectstore.Options

	mu    sync.RWMutex
	store *objectstore.Store
}

// NewObjectStoreEngine creates an engine on top of the pebble object store.
func NewObjectStoreEngine(opts objectstore.Options) *ObjectStoreEngine {
	return &ObjectStoreEngine{opts: opts}
}

func (e *ObjectStoreEngine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil {
		return nil
	}
	store, err := objectstore.Open(e.opts)
	if err != nil {
		return err
	}
	e.store = store
	return nil
}

func (e *ObjectStoreEngine) Insert(docs []document.Document) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return ErrClosed
	}

	err := e.store.Insert(docs, false)
	if errors.Is(err, objectstore.ErrDuplicate) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func (e *ObjectStoreEngine) Get(ids []string) ([]document.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return nil, ErrClosed
	}
	return e.store.Get(ids)
}

func (e *ObjectStoreEngine) Scan(q document.Query) ([]document.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return nil, ErrClosed
	}

	result := make([]document.Document, 0)
	err := e.store.EachFromAge(q.MinAge, func(doc *document.Document) bool {
		if q.Keep(doc) {
			result = append(result, *doc)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *ObjectStoreEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return 0
	}
	n, err := e.store.Count()
	if err != nil {
		log.Warningf("counting documents failed: %v", err)
		return 0
	}
	return n
}

func (e *ObjectStoreEngine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return nil
	}
	err := e.store.Destroy()
	e.store = nil
	return err
}
