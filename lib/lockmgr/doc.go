// Package lockmgr implements exclusive locks on top of a db.KVDB. The benchmark uses
// it to guarantee that one named storage resource is owned by at most one live
// adapter instance at a time.
//
// The lock manager only ever stores in the provided KVDB and has no other internal
// state. It is therefore safe to create it multiple times on the same database.
//
// Implementation Approach:
//
//	- Lock Acquisition: SetIfUnset of the lock key with a random owner ID (a UUID).
//	  The database guarantees that only one requester can create the key.
//
//	- Safe Release: ReleaseLock compares the stored owner ID with the one of the
//	  caller before deleting the key.
//
// Claim wraps acquire and release for a single resource named "resource:<name>".
// Adapters acquire their claim in Init and release it in Clear:
//
//	claim := lockmgr.NewClaim(locks, "bench-idb")
//	if err := claim.Acquire(); errors.Is(err, lockmgr.ErrBusy) {
//		// a second live instance uses the same resource
//	}
//	defer claim.Release()
//
// The locks are not designed to resist malicious attacks, anyone with access to the
// database can manipulate lock data directly.
package lockmgr
