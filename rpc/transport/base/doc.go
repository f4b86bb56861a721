// Package base provides the frame format shared by all byte stream transports
// (stdio, Unix sockets, TCP) and a transport.IConn on top of any io.ReadWriteCloser.
//
// Frame format (big endian):
//
//	+----------------+----------------+-----------+-------------------+
//	| shardID (8)    | corrID (8)     | len (4)   | payload (len)     |
//	+----------------+----------------+-----------+-------------------+
//
// Correlation id 0 is reserved for the ready frame a worker emits once it accepts calls.
//
// Key Components:
//
//   - NewStreamConn: frames a byte stream. Writes are serialized with a mutex and
//     combine header and payload with net.Buffers, so a frame is one writev on sockets.
//     Reads go through a bufio.Reader and allocate a fresh payload per frame, since
//     the receiver dispatches calls concurrently.
//
//   - NewListener / WrapConn: adapt net.Listener and net.Conn, applying an optional
//     protocol specific upgrade (e.g. TCP_NODELAY) to every connection.
//
// Thread Safety:
//
//	WriteFrame and Close are safe for concurrent use, ReadFrame must be called by
//	a single reader goroutine.
package base
