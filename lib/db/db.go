package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
)

type DatabaseInfo struct {
	SizeBytes int            `json:"size_bytes"`
	Entries   int            `json:"entries"`
	DbType    Implementation `json:"db_type"`
	Metadata  interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for in-memory key-value database implementations.
// Keys are arbitrary strings, values are opaque byte slices. Implementations must
// copy values on the way in and on the way out so callers can reuse their buffers.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// If the key already exists, the old value is overwritten.
	Set(key string, value []byte)

	// SetIfUnset inserts an entry only if the key does not exist yet.
	// It returns true if the value was stored. The check and the insert are atomic.
	SetIfUnset(key string, value []byte) (stored bool)

	// Delete removes the entry with the specified key. Deleting a missing key is a no-op.
	Delete(key string)

	// Clear removes all entries.
	Clear()

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool)

	// Range calls fn for every entry until fn returns false. The iteration order is
	// not defined. Entries written concurrently may or may not be visited.
	// fn must not retain value after it returns.
	Range(fn func(key string, value []byte) bool)

	// Len returns the number of entries.
	Len() (n int)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close releases the database. It must not be used afterward.
	Close() (err error)
}
