// Package worker implements the executor side of the worker protocol.
//
// An Executor hosts one adapter per shard id and answers call envelopes read
// from a transport.IConn:
//
//   - Serve emits one ready frame (correlation id 0) before it reads any call.
//   - Every call runs in its own goroutine, bounded by a semaphore. Calls of the
//     same shard are serialized by a per-shard mutex, so the hosted adapter is
//     never used concurrently. Replies are written in completion order and carry
//     the correlation id of their call.
//   - A call with an operation the executor does not know is logged and receives
//     no reply. A call for a shard that is not hosted, or a payload that can't be
//     decoded, receives an error reply.
//
// ListenAndServe serves every connection accepted by a socket listener.
package worker
