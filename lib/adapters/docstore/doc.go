// Package docstore adapts a docstore.Collection to the adapter contract.
//
// Queries use full regular expressions. Inserting an id that is already stored is
// a conflict and rejects the whole batch with RetCDuplicateID. Without a directory
// the collection uses the memory engine, otherwise the pebble object store engine.
package docstore
