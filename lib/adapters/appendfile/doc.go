// Package appendfile implements the append-only file backend. Every WriteDocs call
// appends exactly one frame to a single file, bytes once written are never changed.
//
// Frame layout (little endian):
//
//	magic       uint32  "SBAF"
//	payloadLen  uint32  length of the JSON payload
//	frameLen    uint32  length of the whole frame including header and padding
//	checksum    uint32  CRC-32 (Castagnoli) of the payload
//	payload     []byte  JSON array of documents
//	padding     []byte  zero bytes up to frameLen (direct I/O only)
//
// Reads decode the whole file, there is no index. Later frames win for repeated
// ids. A frame that is cut short or fails its checksum ends the readable log: an
// interrupted append leaves exactly such a tail behind. Init truncates it so
// further appends stay readable.
//
// With DirectIO the file is opened through ncw/directio and every frame is padded
// to a multiple of the block size, written from an aligned buffer.
package appendfile
