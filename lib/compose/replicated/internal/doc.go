// Package internal defines the commands and queries exchanged with the replicated
// document state machine.
//
// Commands are written to the raft log and have to be serialized. The layout is
//
//	1 byte   command type
//	4 bytes  number of documents (big endian)
//	N bytes  JSON array of the documents (optional)
//
// Queries never leave the process, they are handed to the state machine as values
// through SyncRead.
package internal
