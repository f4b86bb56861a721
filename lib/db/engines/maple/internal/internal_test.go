package internal

import (
	"testing"

	"github.com/pubkey/storagebench/lib/db/util"
	"github.com/stretchr/testify/assert"
)

func TestGetShardIsStable(t *testing.T) {
	shards := []*int{new(int), new(int), new(int)}
	key := util.HashString("doc_abc", 42)

	first := GetShard(key, shards)
	for i := 0; i < 10; i++ {
		assert.Same(t, first, GetShard(key, shards))
	}
}

func TestGetShardUsesHighBits(t *testing.T) {
	shards := []*int{new(int), new(int)}

	// keys that only differ in the lowest 7 bits end up in the same shard
	assert.Same(t, GetShard(util.UintKey(0), shards), GetShard(util.UintKey(127), shards))
	assert.NotSame(t, GetShard(util.UintKey(0), shards), GetShard(util.UintKey(128), shards))
}

func TestEntryMatches(t *testing.T) {
	e := Entry{Key: "a", Value: []byte("1")}
	assert.True(t, e.Matches("a"))
	assert.False(t, e.Matches("b"))
}
