// Package replicated implements a document store replicated through raft consensus
// using dragonboat. It plays the role of several coordinated store instances
// sharing one logical collection.
//
// Architecture:
//
//   - Adapter: implements adapter.Adapter. Writes are serialized into commands and
//     proposed with SyncPropose, reads are linearizable SyncRead lookups.
//
//   - State Machine: a dragonboat IConcurrentStateMachine holding the documents in
//     a docstore.MemoryEngine. Inserting a stored id rejects the whole command.
//     Snapshots are a stream of JSON documents.
//
//   - Commands and queries: defined in the internal package.
//
// Init starts a single replica NodeHost and waits until it has elected itself
// leader. Clear proposes a wipe, stops the NodeHost and removes its directory.
// Proposals and reads are not retried, dragonboat.ErrSystemBusy is returned to the
// caller like any other error.
package replicated
