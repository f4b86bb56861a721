// Package maple implements a sharded in-memory key-value database that satisfies
// the db.KVDB interface.
//
// Keys are distributed across shards in a two-step process:
//  1. String keys are converted to 64-bit integers using util.HashString with a
//     database-specific seed
//  2. The integer key is right-shifted by 7 bits to use higher-quality bits for
//     distribution and taken modulo the shard count
//
// Every shard is an xsync.MapOf keyed by the integer hash. The entry keeps the
// original string key, so Range can hand it back and a hash collision is reported
// as a missing key instead of returning a foreign value.
//
// Persistence Format: magic number "MAPLEDB\x00", version (currently 4), the hash
// seed, the entry count and one length prefixed key and value per entry. The
// snapshot is fuzzy, it does not lock the database while collecting entries.
//
// GetInfo estimates the memory footprint by sampling up to 100 entries per shard
// and reports the shard distribution quality.
package maple
