package internal

import (
	"github.com/pubkey/storagebench/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair)
// --------------------------------------------------------------------------

// Entry stores a key-value pair. The original key is kept next to the value so
// iteration can hand it back and hash collisions can be detected.
type Entry struct {
	Key   string
	Value []byte
}

// Matches reports whether the entry belongs to key
func (e Entry) Matches(key string) bool {
	return e.Key == key
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[util.UintKey, Entry] // Map of active key-value entries
}

// NewShard creates a new shard with the provided hash function
func NewShard(hasher func(util.UintKey, uint64) uint64) *Shard {
	return &Shard{
		Data: xsync.NewMapOfWithHasher[util.UintKey, Entry](hasher),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
