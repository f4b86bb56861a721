// Package inproc connects a proxy to a worker running as goroutines of the same
// process. Each direction is a lock-free multi-producer single-consumer mailbox,
// so concurrent writers never block each other and a slow reader never stalls
// a writer. Payloads are copied on write, the two sides share no memory.
package inproc
