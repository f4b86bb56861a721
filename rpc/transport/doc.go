// Package transport defines the framed connection between a proxy adapter and
// its worker. The protocol on top (ready frame, correlation ids, call envelopes)
// is implemented by the worker and client packages, a transport only moves frames.
//
// Key Components:
//
//   - IConn: a bidirectional channel of frames. Each frame carries a shard id,
//     a correlation id and an opaque payload.
//
//   - IListener: accepts connections for workers running as a server.
//
// Implementations:
//
//   - inproc: a goroutine worker in the same process, connected through two
//     lock-free mailboxes. Payloads are copied, nothing is shared.
//   - stdio: a child process reached over its stdin and stdout.
//   - unix, tcp: sockets to a long-running worker process.
package transport
