// Package idb implements the indexed object store backend on lib/objectstore: a
// primary keyspace by id plus an ordered age index, written in one batch per call.
//
// The read strategy is chosen at construction:
//
//   - cursor: documents are decoded and filtered while the store iterator is open
//   - bulk: the raw key range is materialized first, then decoded and filtered in
//     a tight loop
//
// Both strategies use the age index for every query with an age bound, the text
// predicate is applied second.
package idb
