package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
)

// headerSize is the size of a frame header: shardID, corrID and payload length
const headerSize = 20

// writeFrame writes a frame to w with the format:
// - 8 bytes: shardId (uint64, big endian)
// - 8 bytes: corrID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(w io.Writer, header []byte, shardID uint64, corrID uint64, data []byte) error {
	if len(data) > math.MaxUint32 {
		return fmt.Errorf("frame payload of %d bytes exceeds the maximum size", len(data))
	}

	binary.BigEndian.PutUint64(header[:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], corrID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	// one writev on connections, two writes on other writers
	b := net.Buffers{header[:headerSize], data}
	_, err := b.WriteTo(w)
	return err
}

// readFrame reads a frame from r, header is reused for the frame header.
// The payload is always freshly allocated since calls are dispatched concurrently.
func readFrame(r io.Reader, header []byte) (uint64, uint64, []byte, error) {
	// Read header
	if _, err := io.ReadFull(r, header[:headerSize]); err != nil {
		return 0, 0, nil, err
	}

	// Parse header
	shardID := binary.BigEndian.Uint64(header[:8])
	corrID := binary.BigEndian.Uint64(header[8:16])
	contentLength := binary.BigEndian.Uint32(header[16:20])

	// If no data, return empty slice
	if contentLength == 0 {
		return shardID, corrID, []byte{}, nil
	}

	data := make([]byte, contentLength)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF // the header promised data
		}
		return 0, 0, nil, err
	}
	return shardID, corrID, data, nil
}
