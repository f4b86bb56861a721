package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/pubkey/storagebench/lib/db"
	"github.com/pubkey/storagebench/lib/db/engines/maple/internal"
	"github.com/pubkey/storagebench/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Database version
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a sharded in-memory key-value database
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	return &mapleImpl{
		numShards: numShards,
		seed:      util.GenerateSeed(),
		shards:    newShards(numShards),
	}
}

// newShards creates n empty shards
func newShards(n int) []*internal.Shard {
	hasher := createIdentityHasher()
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard(hasher)
	}
	return shards
}

// --------------------------------------------------------------------------
// Hash Helper Functions
// --------------------------------------------------------------------------

// StringToUint64 converts a string to a util.UintKey with hashing
// and applies the mapleImpl seed to ensure uniqueness between mapleImpl instances
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) StringToUint64(s string) util.UintKey {
	return util.HashString(s, maple.seed)
}

// createIdentityHasher creates a hash function that combines a key with a seed
func createIdentityHasher() func(util.UintKey, uint64) uint64 {
	return func(key util.UintKey, mapSeed uint64) uint64 {
		return uint64(key) ^ mapSeed
	}
}

// locate returns the integer key and the shard responsible for key
func (maple *mapleImpl) locate(key string) (util.UintKey, *internal.Shard) {
	intKey := maple.StringToUint64(key)
	return intKey, internal.GetShard(intKey, maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key and value.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte) {
	intKey, shard := maple.locate(key)
	shard.Data.Store(intKey, internal.Entry{Key: key, Value: clone(value)})
}

// SetIfUnset inserts an entry only if the key does not exist yet.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetIfUnset(key string, value []byte) bool {
	intKey, shard := maple.locate(key)

	stored := false
	shard.Data.Compute(intKey, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && old.Matches(key) {
			return old, false
		}
		stored = true
		return internal.Entry{Key: key, Value: clone(value)}, false
	})
	return stored
}

// Delete removes the entry with the specified key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string) {
	intKey, shard := maple.locate(key)
	shard.Data.Compute(intKey, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		// only delete if the slot really belongs to key
		return old, !loaded || old.Matches(key)
	})
}

// Clear removes all entries.
//
// Thread-safety: Concurrent writes during Clear may survive it.
func (maple *mapleImpl) Clear() {
	for _, shard := range maple.shards {
		shard.Data.Clear()
	}
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	intKey, shard := maple.locate(key)

	e, ok := shard.Data.Load(intKey)
	if !ok || !e.Matches(key) {
		return nil, false
	}
	return clone(e.Value), true
}

// Range calls fn for every entry, shard by shard, until fn returns false.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Range(fn func(key string, value []byte) bool) {
	for _, shard := range maple.shards {
		stop := false
		shard.Data.Range(func(_ util.UintKey, e internal.Entry) bool {
			if !fn(e.Key, e.Value) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return
		}
	}
}

// Len returns the number of entries over all shards.
func (maple *mapleImpl) Len() int {
	n := 0
	for _, shard := range maple.shards {
		n += shard.Data.Size()
	}
	return n
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
// Concurrent writes are allowed during Save, the snapshot is fuzzy in that case.
//
// Format: magic, version (uint8), seed (uint64), count (uint64) followed by
// count times key length (uint32), key, value length (uint32), value.
func (maple *mapleImpl) Save(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	var entries []internal.Entry
	maple.Range(func(key string, value []byte) bool {
		entries = append(entries, internal.Entry{Key: key, Value: clone(value)})
		return true
	})

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, maple.seed); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := writeBytes(bw, []byte(e.Key)); err != nil {
			return err
		}
		if err := writeBytes(bw, e.Value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the database content with a snapshot written by Save.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var seed uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	// fill fresh shards first so a broken snapshot leaves the database untouched
	shards := newShards(maple.numShards)
	for i := uint64(0); i < count; i++ {
		key, err := readBytes(br)
		if err != nil {
			return err
		}
		value, err := readBytes(br)
		if err != nil {
			return err
		}

		intKey := util.HashString(string(key), seed)
		internal.GetShard(intKey, shards).Data.Store(intKey, internal.Entry{Key: string(key), Value: value})
	}

	maple.shards = shards
	maple.seed = seed
	return nil
}

// writeBytes writes a length prefixed byte slice
func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readBytes reads a length prefixed byte slice
func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {

	// create a size histogram for the info
	histogram := util.NewSizeHistogram()
	samplesPerShard := 100
	wg := sync.WaitGroup{}
	wg.Add(len(maple.shards))

	shardSizes := make([]float64, len(maple.shards))

	// concurrently collect samples from all shards
	for shardIndex, shard := range maple.shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()
			count := 0
			s.Data.Range(func(_ util.UintKey, entry internal.Entry) bool {
				histogram.AddSample(len(entry.Key) + len(entry.Value))

				// only sample a few entries per shard
				count++
				return count < samplesPerShard
			})
			shardSizes[i] = float64(s.Data.Size())
		}(shardIndex, shard)
	}

	// wait for all shards to finish
	wg.Wait()

	entries := 0
	for _, size := range shardSizes {
		entries += int(size)
	}

	// weighted estimate per entry (60% median, 40% average) plus the 8 byte map key
	entryOverhead := 8
	perEntry := (histogram.MedianEstimate()*60+histogram.AverageSize()*40)/100 + entryOverhead

	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Info              string                 `json:"info"`
	}{
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Info:              "SizeBytes is an estimate based on sampled entries.",
	}

	return db.DatabaseInfo{
		SizeBytes: perEntry * entries,
		Entries:   entries,
		DbType:    db.ImplMaple,
		Metadata:  meta,
	}
}

// Close drops all entries
func (maple *mapleImpl) Close() error {
	maple.Clear()
	return nil
}

// clone copies a value to prevent memory corruption by callers reusing buffers
func clone(value []byte) []byte {
	c := make([]byte, len(value))
	copy(c, value)
	return c
}
