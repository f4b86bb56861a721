// Package kvmap implements the key-value map backend: every document is one JSON
// value under the key doc_<id> of a maple in-memory database.
//
// A key-value map offers no batch primitive and no secondary index, so WriteDocs
// issues one Set per document and every query walks the whole map. With a snapshot
// path the map survives the process: Init loads the snapshot and WriteDocs rewrites
// it atomically.
package kvmap
