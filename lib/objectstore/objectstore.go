package objectstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/document"
)

var log = logger.GetLogger("objectstore")

var (
	// ErrDuplicate is returned by Insert when an id is already stored or appears
	// twice in one batch and overwrite is not set.
	ErrDuplicate = errors.New("duplicate id")

	// ErrClosed is returned by every operation after Destroy.
	ErrClosed = errors.New("object store closed")
)

const (
	prefixDoc = "d/"
	prefixAge = "a/"
)

// Options configures an object store
type Options struct {
	Dir      string // Directory of the store (ignored when InMemory is set)
	InMemory bool   // Keep all data in a pebble memory filesystem
	Sync     bool   // Sync the WAL on every committed batch
}

// Store is an ordered document store with a primary keyspace and an age index.
// All methods are safe for concurrent use. Inserts are serialized so the
// duplicate check and the batch commit are atomic.
type Store struct {
	opts    Options
	db      *pebble.DB
	writeMu sync.Mutex

	mu     sync.RWMutex // guards db against Destroy
	closed bool
}

// Open opens or creates the store. Opening an existing directory keeps its documents.
func Open(opts Options) (*Store, error) {
	pebbleOpts := &pebble.Options{}
	dir := opts.Dir
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
		dir = ""
	} else if dir == "" {
		return nil, fmt.Errorf("objectstore: no directory given")
	}

	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, err
	}
	log.Debugf("opened object store (dir=%q, memory=%v)", dir, opts.InMemory)

	return &Store{opts: opts, db: db}, nil
}

// --------------------------------------------------------------------------
// Key encoding
// --------------------------------------------------------------------------

func docKey(id string) []byte {
	return append([]byte(prefixDoc), id...)
}

// ageBound returns the first index key of all documents with an age >= age
func ageBound(age int) []byte {
	k := make([]byte, len(prefixAge)+8)
	copy(k, prefixAge)
	binary.BigEndian.PutUint64(k[len(prefixAge):], uint64(age)^(1<<63))
	return k
}

func indexKey(age int, id string) []byte {
	k := ageBound(age)
	k = append(k, '/')
	return append(k, id...)
}

// upperBound returns the smallest key greater than every key with the given prefix
func upperBound(prefix string) []byte {
	b := []byte(prefix)
	b[len(b)-1]++
	return b
}

// Decode decodes a raw value returned by All or AllFromAge
func Decode(raw []byte) (document.Document, error) {
	var doc document.Document
	err := json.Unmarshal(raw, &doc)
	return doc, err
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Insert stores docs in a single pebble batch.
//
// Without overwrite an id that is already stored, or that appears twice in docs,
// fails the whole call with ErrDuplicate and nothing is written. With overwrite
// the last document per id wins and stale index entries are removed.
func (s *Store) Insert(docs []document.Document, overwrite bool) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	// ages of ids written earlier in this batch, for overwrite within one call
	written := make(map[string]int, len(docs))

	for i := range docs {
		doc := &docs[i]

		prevAge, hasPrev := written[doc.ID]
		if hasPrev && !overwrite {
			return fmt.Errorf("%w: %s (twice in batch)", ErrDuplicate, doc.ID)
		}

		if !hasPrev {
			old, found, err := s.get(doc.ID)
			if err != nil {
				return err
			}
			if found && !overwrite {
				return fmt.Errorf("%w: %s", ErrDuplicate, doc.ID)
			}
			prevAge, hasPrev = old.Age, found
		}
		if hasPrev && prevAge != doc.Age {
			if err := batch.Delete(indexKey(prevAge, doc.ID), nil); err != nil {
				return err
			}
		}

		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := batch.Set(docKey(doc.ID), raw, nil); err != nil {
			return err
		}
		if err := batch.Set(indexKey(doc.Age, doc.ID), raw, nil); err != nil {
			return err
		}
		written[doc.ID] = doc.Age
	}

	return batch.Commit(s.writeOpts())
}

func (s *Store) writeOpts() *pebble.WriteOptions {
	if s.opts.Sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// get reads a single document, the caller holds s.mu
func (s *Store) get(id string) (document.Document, bool, error) {
	raw, closer, err := s.db.Get(docKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return document.Document{}, false, nil
	}
	if err != nil {
		return document.Document{}, false, err
	}
	defer closer.Close()

	doc, err := Decode(raw)
	if err != nil {
		return document.Document{}, false, err
	}
	return doc, true, nil
}

// Get returns the stored documents for ids in request order.
// Missing ids are omitted, an id requested twice is returned once.
func (s *Store) Get(ids []string) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	result := make([]document.Document, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		doc, found, err := s.get(id)
		if err != nil {
			return nil, err
		}
		if found {
			result = append(result, doc)
		}
	}
	return result, nil
}

// scan iterates the raw values of [lower, upper) while the iterator is open
func (s *Store) scan(lower, upper []byte, fn func(raw []byte) (bool, error)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	iter := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	for valid := iter.First(); valid; valid = iter.Next() {
		more, err := fn(iter.Value())
		if err != nil {
			_ = iter.Close()
			return err
		}
		if !more {
			break
		}
	}
	return iter.Close()
}

// cursor decodes every value of the range and hands it to fn
func (s *Store) cursor(lower, upper []byte, fn func(doc *document.Document) bool) error {
	return s.scan(lower, upper, func(raw []byte) (bool, error) {
		doc, err := Decode(raw)
		if err != nil {
			return false, err
		}
		return fn(&doc), nil
	})
}

// materialize copies the raw values of the range
func (s *Store) materialize(lower, upper []byte) ([][]byte, error) {
	var values [][]byte
	err := s.scan(lower, upper, func(raw []byte) (bool, error) {
		c := make([]byte, len(raw))
		copy(c, raw)
		values = append(values, c)
		return true, nil
	})
	return values, err
}

// Each calls fn for every document in id order until fn returns false.
func (s *Store) Each(fn func(doc *document.Document) bool) error {
	return s.cursor([]byte(prefixDoc), upperBound(prefixDoc), fn)
}

// EachFromAge calls fn for every document with age >= minAge in age order
// until fn returns false. It seeks the index to the lower bound.
func (s *Store) EachFromAge(minAge int, fn func(doc *document.Document) bool) error {
	return s.cursor(ageBound(minAge), upperBound(prefixAge), fn)
}

// All returns the raw values of all documents in id order.
func (s *Store) All() ([][]byte, error) {
	return s.materialize([]byte(prefixDoc), upperBound(prefixDoc))
}

// AllFromAge returns the raw values of all documents with age >= minAge in age order.
func (s *Store) AllFromAge(minAge int) ([][]byte, error) {
	return s.materialize(ageBound(minAge), upperBound(prefixAge))
}

// Count returns the number of stored documents.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.scan([]byte(prefixDoc), upperBound(prefixDoc), func([]byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Destroy closes the store and removes its directory. The store can't be used afterward.
func (s *Store) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return err
	}
	if !s.opts.InMemory {
		if err := os.RemoveAll(s.opts.Dir); err != nil {
			return err
		}
	}
	log.Debugf("destroyed object store (dir=%q, memory=%v)", s.opts.Dir, s.opts.InMemory)
	return nil
}
