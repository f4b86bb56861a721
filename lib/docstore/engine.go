package docstore

import (
	"errors"

	"github.com/pubkey/storagebench/lib/document"
)

var (
	// ErrConflict is returned by Insert when an id is already stored
	ErrConflict = errors.New("docstore: document conflict")

	// ErrClosed is returned by engine operations before Open or after Destroy
	ErrClosed = errors.New("docstore: engine closed")
)

// Engine stores the documents of a collection. Implementations must be safe for
// concurrent use.
type Engine interface {
	// Open prepares the engine. Calling Open on an open engine is a no-op.
	Open() error

	// Insert stores docs atomically. If any id is already stored, or appears twice in
	// docs, nothing is stored and an error wrapping ErrConflict is returned.
	Insert(docs []document.Document) error

	// Get returns the stored documents for ids in request order. Unknown ids are
	// omitted, repeated ids are returned once.
	Get(ids []string) ([]document.Document, error)

	// Scan returns all documents satisfying q, ordered by age where the engine
	// keeps an age index.
	Scan(q document.Query) ([]document.Document, error)

	// Len returns the number of stored documents.
	Len() int

	// Destroy removes all documents and releases the engine's resources.
	// The engine can be opened again afterward.
	Destroy() error
}
