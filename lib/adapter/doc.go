// Package adapter defines the Storage Adapter contract that every backend of the
// benchmark implements, together with the error type, the capability flags and
// small helpers shared by the implementations.
//
// Lifecycle:
//
//	Init -> (WriteDocs | FindDocs | QueryRegex | QueryIndex | QueryRegexIndex)* -> Clear -> Init ...
//
// Init is idempotent and keeps previously written documents. Clear destroys all
// documents and releases the resource the adapter owns (a database handle, a file,
// a worker channel). A handle captured before Clear is invalid afterward.
//
// Policies that differ between backends are not hidden but reported through Info:
//
//   - Duplicates: whether a write of an existing id overwrites or fails (RetCDuplicateID)
//   - Missing: whether FindDocs omits unknown ids or fails (RetCNotFound)
//   - Matching: whether query patterns are substrings or regular expressions
//
// Errors are returned as *Error carrying a RetCode, the adapter name and the
// operation. The error of the underlying primitive is wrapped, never replaced, so
// callers can attribute failures to the correct backend. Nothing is retried.
//
// The conformance suite in the testing sub package checks an implementation
// against the contract and is run by every adapter package.
package adapter
