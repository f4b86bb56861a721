/*
Package docstore is a small reactive document database.

A Collection sits on top of an Engine that stores the documents. Engines are
insert-only: writing an id that is already stored is a conflict and fails the
whole batch. Two engines are available:

  - MemoryEngine keeps documents in a map with an ordered (age, id) index on
    google/btree. It can optionally overwrite instead of rejecting.
  - ObjectStoreEngine persists documents in the pebble backed objectstore.

Collections publish a ChangeEvent after every successful write or removal.
Subscribers get a buffered channel, events that don't fit into a full buffer are
dropped and counted so slow subscribers never hold up writers.

Usage:

	coll := docstore.NewCollection("users", docstore.NewMemoryEngine(docstore.MemoryOptions{}))
	if err := coll.Open(); err != nil {
		// handle error
	}
	events, cancel := coll.Changes(16)
	defer cancel()

	err := coll.Insert(docs)
	young, err := coll.Find(document.AgeQuery(18))
*/
package docstore
