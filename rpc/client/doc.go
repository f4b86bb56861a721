// Package client implements the proxy side of the worker protocol.
//
// WorkerAdapter implements adapter.Adapter by forwarding every operation to an
// adapter hosted by a worker (see package worker). The worker is started or
// dialed by a Spawner when the proxy is initialized:
//
//   - InProcess: an executor running as goroutines of the same process.
//   - Process: a child process serving over its stdin and stdout.
//   - Dial: a worker server listening on a Unix or TCP socket.
//
// Protocol:
//
//   - Init waits for the ready frame of the worker before it issues any call.
//   - Every call gets a correlation id from an atomic counter and a slot in the
//     pending map. One reader goroutine resolves the slot of every reply and
//     removes it. Replies with an unknown correlation id (unknown or answered
//     twice) are logged and dropped.
//   - Calls are not cancelled. When ctx ends first the caller gets ctx.Err(),
//     the slot stays until the worker answers and the reply is then dropped.
//   - If the channel breaks, every pending and later call fails with RetCProtocol.
//   - Clear sends Clear and then closes the channel. The next Init spawns a fresh worker.
package client
