package docstore

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/pubkey/storagebench/lib/document"
)

const defaultDegree = 32

// MemoryOptions configures a MemoryEngine
type MemoryOptions struct {
	Overwrite bool // Replace stored documents instead of reporting a conflict
	Degree    int  // Degree of the age index btree (0 = 32)
}

// ageItem is the index entry ordered by (age, id)
type ageItem struct {
	age int
	id  string
	doc *document.Document
}

func (a *ageItem) Less(than btree.Item) bool {
	b := than.(*ageItem)
	if a.age != b.age {
		return a.age < b.age
	}
	return a.id < b.id
}

// MemoryEngine keeps all documents in memory.
type MemoryEngine struct {
	opts MemoryOptions

	mu    sync.RWMutex
	open  bool
	byID  map[string]*ageItem
	byAge *btree.BTree
}

// NewMemoryEngine creates an in-memory engine. It has to be opened before use.
func NewMemoryEngine(opts MemoryOptions) *MemoryEngine {
	if opts.Degree <= 1 {
		opts.Degree = defaultDegree
	}
	return &MemoryEngine{opts: opts}
}

func (e *MemoryEngine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open {
		return nil
	}
	e.byID = make(map[string]*ageItem)
	e.byAge = btree.New(e.opts.Degree)
	e.open = true
	return nil
}

func (e *MemoryEngine) Insert(docs []document.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return ErrClosed
	}

	if !e.opts.Overwrite {
		seen := make(map[string]struct{}, len(docs))
		for i := range docs {
			id := docs[i].ID
			_, stored := e.byID[id]
			_, repeated := seen[id]
			if stored || repeated {
				return fmt.Errorf("%w: id %q", ErrConflict, id)
			}
			seen[id] = struct{}{}
		}
	}

	for i := range docs {
		doc := docs[i].Clone()
		if old, ok := e.byID[doc.ID]; ok {
			e.byAge.Delete(old)
		}
		item := &ageItem{age: doc.Age, id: doc.ID, doc: &doc}
		e.byID[doc.ID] = item
		e.byAge.ReplaceOrInsert(item)
	}
	return nil
}

func (e *MemoryEngine) Get(ids []string) ([]document.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.open {
		return nil, ErrClosed
	}

	result := make([]document.Document, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if item, ok := e.byID[id]; ok {
			result = append(result, item.doc.Clone())
		}
	}
	return result, nil
}

func (e *MemoryEngine) Scan(q document.Query) ([]document.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.open {
		return nil, ErrClosed
	}

	result := make([]document.Document, 0)
	visit := func(i btree.Item) bool {
		doc := i.(*ageItem).doc
		if q.Keep(doc) {
			result = append(result, doc.Clone())
		}
		return true
	}

	if q.HasAgeBound() {
		e.byAge.AscendGreaterOrEqual(&ageItem{age: q.MinAge}, visit)
	} else {
		e.byAge.Ascend(visit)
	}
	return result, nil
}

func (e *MemoryEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.open {
		return 0
	}
	return len(e.byID)
}

func (e *MemoryEngine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID = nil
	e.byAge = nil
	e.open = false
	return nil
}
