package idb

import (
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/objectstore"
)

// readStrategy evaluates a query against the object store
type readStrategy interface {
	kind() adapter.Strategy
	scan(store *objectstore.Store, q document.Query) ([]document.Document, error)
}

// cursorStrategy filters inside the store iterator
type cursorStrategy struct{}

func (cursorStrategy) kind() adapter.Strategy { return adapter.StrategyCursor }

func (cursorStrategy) scan(store *objectstore.Store, q document.Query) ([]document.Document, error) {
	result := make([]document.Document, 0)
	keep := func(doc *document.Document) bool {
		if q.Keep(doc) {
			result = append(result, *doc)
		}
		return true
	}

	var err error
	if q.HasAgeBound() {
		err = store.EachFromAge(q.MinAge, keep)
	} else {
		err = store.Each(keep)
	}
	return result, err
}

// bulkStrategy materializes the range, then decodes and filters
type bulkStrategy struct{}

func (bulkStrategy) kind() adapter.Strategy { return adapter.StrategyBulk }

func (bulkStrategy) scan(store *objectstore.Store, q document.Query) ([]document.Document, error) {
	var (
		raws [][]byte
		err  error
	)
	if q.HasAgeBound() {
		raws, err = store.AllFromAge(q.MinAge)
	} else {
		raws, err = store.All()
	}
	if err != nil {
		return nil, err
	}

	docs := make([]document.Document, len(raws))
	for i, raw := range raws {
		if docs[i], err = objectstore.Decode(raw); err != nil {
			return nil, err
		}
	}
	return adapter.Filter(docs, q), nil
}
