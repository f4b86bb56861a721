package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/pubkey/storagebench/lib/db"
)

// RunKVDBBenchmarks benchmarks the access patterns of the key-value map backend
// and the lock manager against a KVDB implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("SetDocs", func(b *testing.B) {
			benchmarkSetDocs(b, factory())
		})
		b.Run("GetDocs", func(b *testing.B) {
			benchmarkGetDocs(b, factory())
		})
		b.Run("ClaimRelease", func(b *testing.B) {
			benchmarkClaimRelease(b, factory())
		})
		b.Run("Range", func(b *testing.B) {
			benchmarkRange(b, factory())
		})
		b.Run("Snapshot", func(b *testing.B) {
			benchmarkSnapshot(b, factory)
		})
	})
}

const benchKeys = 10_000

// docValue is roughly the size of an encoded generated document
var docValue = bytes.Repeat([]byte("x"), 256)

func prefill(database db.KVDB) {
	for i := 0; i < benchKeys; i++ {
		database.Set(fmt.Sprintf("doc_%d", i), docValue)
	}
}

func benchmarkSetDocs(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { _ = database.Close() })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.Set(fmt.Sprintf("doc_%d", rnd.Intn(benchKeys)), docValue)
		}
	})
}

func benchmarkGetDocs(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { _ = database.Close() })
	prefill(database)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.Get(fmt.Sprintf("doc_%d", rnd.Intn(benchKeys)))
		}
	})
}

// benchmarkClaimRelease is the lock manager cycle: conditional insert, owner check, delete
func benchmarkClaimRelease(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { _ = database.Close() })
	owner := []byte("owner")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("resource_%d", rnd.Intn(64))
			if database.SetIfUnset(key, owner) {
				database.Get(key)
				database.Delete(key)
			}
		}
	})
}

func benchmarkRange(b *testing.B, database db.KVDB) {
	b.Cleanup(func() { _ = database.Close() })
	prefill(database)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Range(func(string, []byte) bool { return true })
	}
}

func benchmarkSnapshot(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() { _ = database.Close() })
	prefill(database)

	var snapshot bytes.Buffer
	if err := database.Save(&snapshot); err != nil {
		b.Fatalf("Save failed: %v", err)
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatalf("Save failed: %v", err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(snapshot.Bytes())); err != nil {
				b.Fatalf("Load failed: %v", err)
			}
		}
	})
}
