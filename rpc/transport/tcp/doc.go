// Package tcp implements the worker transport over TCP sockets, for workers
// running on another host or in a container.
//
// Every accepted and dialed connection is upgraded with the socket settings of
// Options (TCP_NODELAY, buffer sizes, keep-alive, linger). The framing is the one
// of the base package.
//
// The default buffer size is set to 512 KB, which suits batches of documents
// with a long text each.
package tcp
