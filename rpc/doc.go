// Package rpc implements the worker protocol: adapters can run in an isolated
// worker and are reached only through correlated request/response messages.
//
// The package is organized into several subpackages:
//
//   - common: the message envelope, the closed set of requests, configuration
//     structures and logging.
//
//   - serializer: message serialization with multiple format options (Binary, JSON, GOB).
//
//   - transport: framed connections between proxy and worker with pluggable
//     implementations (in process, stdio of a child process, Unix sockets, TCP).
//
//   - worker: the executor that hosts adapters and answers calls.
//
//   - client: the proxy adapter that forwards every operation to a worker,
//     and the spawners that start or dial workers.
package rpc
