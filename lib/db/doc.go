// Package db provides a standardized interface for in-memory key-value database
// implementations. The key-value map backend of the benchmark and the resource
// claim manager are both built on it.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for basic operations (Set, Get, Delete), the atomic
//     conditional insert SetIfUnset, full iteration (Range, Len, Clear) and
//     persistence operations (Save, Load).
//
//   - Database Information: The DatabaseInfo structure reports on database state,
//     including size estimates, the number of entries, the implementation type and
//     implementation-specific metadata.
//
// Related Packages:
//
// The engines/maple package provides a sharded implementation of KVDB on top of
// xsync.MapOf with binary persistence.
//
// The util package provides hashing, size statistics and a lock-free queue.
//
// The testing package provides RunKVDBTests and RunKVDBBenchmarks, the standardized
// test suite and benchmarks every KVDB implementation runs.
package db
