package adapter

import (
	"context"
	"strings"

	"github.com/pubkey/storagebench/lib/document"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory is a function type that creates a new, not yet initialized adapter.
// Suites and decorators use it to create fresh instances on demand.
type Factory func() Adapter

// Adapter is the uniform contract every storage backend implements.
//
// Init must be called once before any other operation. Clear irreversibly destroys
// all documents and releases the underlying resource, afterward the instance must be
// initialized again. Behavior of overlapping Clear with other in-flight calls is
// undefined.
//
// Every operation is attempted exactly once. Errors of the underlying primitive are
// passed through (wrapped in *Error, reachable with errors.Is/As).
type Adapter interface {
	// Name returns the adapter name. Persisted resources are named after it.
	Name() string

	// Init idempotently provisions the underlying resource.
	// Calling Init on an already provisioned resource keeps existing documents.
	Init(ctx context.Context) (err error)

	// WriteDocs persists all given documents. Backends with a native batch primitive
	// issue one batched operation.
	WriteDocs(ctx context.Context, docs []document.Document) (err error)

	// FindDocs looks up documents by id. The result order is not defined.
	// Missing ids are either omitted or fail the call, see Info().Missing.
	FindDocs(ctx context.Context, ids []string) (docs []document.Document, err error)

	// QueryRegex returns all documents whose longtext matches pattern.
	// The matching semantics are reported by Info().Matching.
	QueryRegex(ctx context.Context, pattern string) (docs []document.Document, err error)

	// QueryIndex returns all documents with age >= minAge.
	QueryIndex(ctx context.Context, minAge int) (docs []document.Document, err error)

	// QueryRegexIndex returns the intersection of QueryRegex(pattern) and QueryIndex(minAge).
	QueryRegexIndex(ctx context.Context, pattern string, minAge int) (docs []document.Document, err error)

	// Clear destroys all documents and releases the underlying resource.
	Clear(ctx context.Context) (err error)

	// Info describes the backend and its documented policies.
	Info() (info Info)
}

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Backend identifies the storage technology behind an adapter.
type Backend string

const (
	BackendKVMap      Backend = "kvmap"
	BackendCookieJar  Backend = "cookiejar"
	BackendIDB        Backend = "idb"
	BackendAppendFile Backend = "appendfile"
	BackendSQLite     Backend = "sqlite"
	BackendDocStore   Backend = "docstore"
	BackendSharded    Backend = "sharded"
	BackendMapped     Backend = "mapped"
	BackendReplicated Backend = "replicated"
	BackendWorker     Backend = "worker"
)

// Strategy names the read strategy of an entity-scan backend.
type Strategy string

const (
	StrategyCursor Strategy = "cursor" // filter while iterating the native cursor
	StrategyBulk   Strategy = "bulk"   // materialize the range, then filter
	StrategyNative Strategy = "native" // the primitive evaluates the predicate itself
)

// DuplicatePolicy documents what WriteDocs does with an id that is already stored.
type DuplicatePolicy uint8

const (
	DuplicateOverwrite DuplicatePolicy = iota // the new document replaces the old one
	DuplicateReject                           // the write fails with RetCDuplicateID
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateOverwrite:
		return "overwrite"
	case DuplicateReject:
		return "reject"
	default:
		return "unknown"
	}
}

// MissingPolicy documents what FindDocs does with an id that is not stored.
type MissingPolicy uint8

const (
	MissingOmit  MissingPolicy = iota // the id is left out of the result
	MissingError                      // the call fails with RetCNotFound
)

func (p MissingPolicy) String() string {
	switch p {
	case MissingOmit:
		return "omit"
	case MissingError:
		return "error"
	default:
		return "unknown"
	}
}

// Feature represents adapter capabilities as bit flags
type Feature uint64

const (
	FeatureNativeBatch   Feature = 1 << iota // WriteDocs is a single batched primitive call
	FeatureRangeIndex                        // QueryIndex uses an ordered age index
	FeatureCombinedIndex                     // QueryRegexIndex is evaluated natively in one pass
	FeaturePersistent                        // documents survive the process
	FeatureWorker                            // operations run in an isolated worker
	FeatureSharded                           // documents are partitioned across shards
	FeatureBuffered                          // writes are buffered before reaching the backend
	FeatureReplicated                        // writes are replicated through consensus
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeatureNativeBatch, "NativeBatch"},
	{FeatureRangeIndex, "RangeIndex"},
	{FeatureCombinedIndex, "CombinedIndex"},
	{FeaturePersistent, "Persistent"},
	{FeatureWorker, "Worker"},
	{FeatureSharded, "Sharded"},
	{FeatureBuffered, "Buffered"},
	{FeatureReplicated, "Replicated"},
}

// Has reports whether all bits of o are set in f.
func (f Feature) Has(o Feature) bool {
	return f&o == o
}

func (f Feature) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	for _, fn := range featureNames {
		if f.Has(fn.f) {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// Info describes an adapter. Metadata is backend specific and may be nil.
type Info struct {
	Name       string             `json:"name"`
	Backend    Backend            `json:"backend"`
	Strategy   Strategy           `json:"strategy"`
	Duplicates DuplicatePolicy    `json:"duplicates"`
	Missing    MissingPolicy      `json:"missing"`
	Matching   document.MatchMode `json:"matching"`
	Features   Feature            `json:"features"`
	Metadata   interface{}        `json:"metadata,omitempty"`
}
