package testing

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pubkey/storagebench/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs the conformance suite for a KVDB implementation. It covers what
// the key-value map backend (document values, snapshots) and the lock manager
// (atomic claims) rely on.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, database db.KVDB)
	}{
		{"ValuesAreCopied", testValuesAreCopied},
		{"Overwrite", testOverwrite},
		{"Delete", testDelete},
		{"Claims", testClaims},
		{"ContendedClaim", testContendedClaim},
		{"RangeAndLen", testRangeAndLen},
		{"Clear", testClear},
		{"LoadRejectsGarbage", testLoadRejectsGarbage},
		{"ManyKeys", testManyKeys},
		{"ConcurrentWriters", testConcurrentWriters},
	}

	t.Run(name, func(t *testing.T) {
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				database := factory()
				defer database.Close()
				tt.fn(t, database)
			})
		}

		t.Run("Snapshot", func(t *testing.T) {
			testSnapshot(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testValuesAreCopied(t *testing.T, database db.KVDB) {
	input := []byte(`{"id":"a"}`)
	database.Set("doc_a", input)
	input[0] = 'X'

	stored, ok := database.Get("doc_a")
	require.True(t, ok)
	assert.Equal(t, `{"id":"a"}`, string(stored))

	// mutating a returned value leaves the stored one alone
	stored[0] = 'X'
	again, _ := database.Get("doc_a")
	assert.Equal(t, `{"id":"a"}`, string(again))

	// empty keys and nil values are regular entries
	database.Set("", nil)
	value, ok := database.Get("")
	assert.True(t, ok)
	assert.Empty(t, value)
}

func testOverwrite(t *testing.T, database db.KVDB) {
	database.Set("doc_a", []byte("v1"))
	database.Set("doc_a", []byte("v2"))

	value, ok := database.Get("doc_a")
	require.True(t, ok)
	assert.Equal(t, "v2", string(value))
	assert.Equal(t, 1, database.Len())

	_, ok = database.Get("doc_missing")
	assert.False(t, ok)
}

func testDelete(t *testing.T, database db.KVDB) {
	database.Set("doc_a", []byte("v"))
	database.Delete("doc_a")
	database.Delete("doc_never_written")

	_, ok := database.Get("doc_a")
	assert.False(t, ok)
	assert.Zero(t, database.Len())

	database.Set("doc_a", []byte("again"))
	value, ok := database.Get("doc_a")
	assert.True(t, ok)
	assert.Equal(t, "again", string(value))
}

func testClaims(t *testing.T, database db.KVDB) {
	require.True(t, database.SetIfUnset("resource", []byte("owner-1")))
	assert.False(t, database.SetIfUnset("resource", []byte("owner-2")))

	owner, _ := database.Get("resource")
	assert.Equal(t, "owner-1", string(owner))

	// a released claim can be taken by the next owner
	database.Delete("resource")
	assert.True(t, database.SetIfUnset("resource", []byte("owner-2")))
}

func testContendedClaim(t *testing.T, database db.KVDB) {
	const owners = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < owners; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if database.SetIfUnset("contended", []byte(fmt.Sprintf("owner-%d", id))) {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func testRangeAndLen(t *testing.T, database db.KVDB) {
	expected := make(map[string]string, 500)
	for i := 0; i < 500; i++ {
		key, value := fmt.Sprintf("doc_%d", i), fmt.Sprintf("v%d", i)
		expected[key] = value
		database.Set(key, []byte(value))
	}
	assert.Equal(t, len(expected), database.Len())

	seen := make(map[string]string, len(expected))
	database.Range(func(key string, value []byte) bool {
		_, twice := seen[key]
		assert.False(t, twice, "key %s visited twice", key)
		seen[key] = string(value)
		return true
	})
	assert.Equal(t, expected, seen)

	visited := 0
	database.Range(func(string, []byte) bool {
		visited++
		return visited < 10
	})
	assert.Equal(t, 10, visited)
}

func testClear(t *testing.T, database db.KVDB) {
	for i := 0; i < 100; i++ {
		database.Set(fmt.Sprintf("doc_%d", i), []byte("v"))
	}
	database.Clear()
	assert.Zero(t, database.Len())

	_, ok := database.Get("doc_1")
	assert.False(t, ok)

	database.Set("doc_after", []byte("v"))
	_, ok = database.Get("doc_after")
	assert.True(t, ok)
}

func testSnapshot(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()
	target := factory()
	defer target.Close()

	for i := 0; i < 1000; i++ {
		source.Set(fmt.Sprintf("doc_%d", i), []byte(fmt.Sprintf("v%d", i)))
	}
	target.Set("stale", []byte("v"))

	var buf bytes.Buffer
	require.NoError(t, source.Save(&buf))
	require.NoError(t, target.Load(&buf))

	// Load replaces the content
	assert.Equal(t, 1000, target.Len())
	_, ok := target.Get("stale")
	assert.False(t, ok)
	for i := 0; i < 1000; i++ {
		value, ok := target.Get(fmt.Sprintf("doc_%d", i))
		if assert.True(t, ok, "doc_%d missing after Load", i) {
			assert.Equal(t, fmt.Sprintf("v%d", i), string(value))
		}
	}
	assert.Equal(t, 1000, source.Len())
}

func testLoadRejectsGarbage(t *testing.T, database db.KVDB) {
	database.Set("kept", []byte("v"))

	assert.Error(t, database.Load(bytes.NewReader([]byte("not a snapshot"))))

	_, ok := database.Get("kept")
	assert.True(t, ok, "a failed Load must keep the content")
}

// testManyKeys writes enough keys that hash slots are shared
func testManyKeys(t *testing.T, database db.KVDB) {
	const n = 5000
	for i := 0; i < n; i++ {
		database.Set(fmt.Sprintf("doc_%d", i), []byte(fmt.Sprintf("v%d", i)))
	}
	for i := 0; i < n; i += 2 {
		database.Delete(fmt.Sprintf("doc_%d", i))
	}

	for i := 0; i < n; i++ {
		value, ok := database.Get(fmt.Sprintf("doc_%d", i))
		if i%2 == 0 {
			assert.False(t, ok, "doc_%d should be deleted", i)
			continue
		}
		if assert.True(t, ok, "doc_%d missing", i) {
			assert.Equal(t, fmt.Sprintf("v%d", i), string(value))
		}
	}
	assert.Equal(t, n/2, database.Len())
}

func testConcurrentWriters(t *testing.T, database db.KVDB) {
	const (
		writers    = 8
		writesEach = 1000
	)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writesEach; i++ {
				key := fmt.Sprintf("doc_%d", i%100) // shared hot keys
				if i%3 == 0 {
					key = fmt.Sprintf("doc_w%d_%d", w, i)
				}
				database.Set(key, bytes.Repeat([]byte{byte(w)}, 64))
				if i%10 == 0 {
					database.Delete(key)
				}
			}
		}(w)
	}
	wg.Wait()

	// once writers are done Range and Get agree
	count := 0
	database.Range(func(key string, value []byte) bool {
		count++
		stored, ok := database.Get(key)
		if assert.True(t, ok, "%s visited by Range but not found", key) {
			assert.Equal(t, value, stored)
		}
		return true
	})
	assert.Equal(t, database.Len(), count)
}
