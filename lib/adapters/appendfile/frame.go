package appendfile

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/ncw/directio"
	"github.com/pubkey/storagebench/lib/document"
)

const (
	frameMagic = 0x46414253 // "SBAF" in little endian
	headerSize = 16
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// encodeFrame builds one frame for docs. With aligned set the frame is padded to
// a multiple of the direct I/O block size and lives in an aligned buffer.
func encodeFrame(docs []document.Document, aligned bool) ([]byte, error) {
	if docs == nil {
		docs = []document.Document{}
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}

	frameLen := headerSize + len(payload)
	var frame []byte
	if aligned {
		if rem := frameLen % directio.BlockSize; rem != 0 {
			frameLen += directio.BlockSize - rem
		}
		frame = directio.AlignedBlock(frameLen)
	} else {
		frame = make([]byte, frameLen)
	}

	binary.LittleEndian.PutUint32(frame[0:4], frameMagic)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[8:12], uint32(frameLen))
	binary.LittleEndian.PutUint32(frame[12:16], crc32.Checksum(payload, castagnoli))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// errCorruptFrame marks a complete frame that fails validation. Unlike a torn
// tail it is never dropped.
var errCorruptFrame = errors.New("corrupt frame")

// decodeLog decodes all complete frames of data. It returns the documents in write
// order and the length of the valid prefix. Only an incomplete trailing frame is
// left out of the prefix, any other broken frame fails with errCorruptFrame.
func decodeLog(data []byte) ([]document.Document, int, error) {
	var (
		docs   []document.Document
		offset int
	)
	for offset < len(data) {
		payload, frameLen, err := nextFrame(data[offset:])
		if err != nil {
			return nil, offset, fmt.Errorf("frame at offset %d: %w", offset, err)
		}
		if payload == nil {
			break
		}

		var batch []document.Document
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, offset, fmt.Errorf("frame at offset %d: %w", offset, err)
		}
		docs = append(docs, batch...)
		offset += frameLen
	}
	return docs, offset, nil
}

// nextFrame validates the frame at the start of data. A nil payload without an
// error means data ends inside the frame.
func nextFrame(data []byte) (payload []byte, frameLen int, err error) {
	if len(data) < headerSize {
		return nil, 0, nil
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != frameMagic {
		return nil, 0, fmt.Errorf("%w: bad magic %#x", errCorruptFrame, magic)
	}
	payloadLen := int(binary.LittleEndian.Uint32(data[4:8]))
	frameLen = int(binary.LittleEndian.Uint32(data[8:12]))
	if frameLen < headerSize+payloadLen {
		return nil, 0, fmt.Errorf("%w: frame length %d too short for payload of %d bytes", errCorruptFrame, frameLen, payloadLen)
	}
	if frameLen > len(data) {
		return nil, 0, nil
	}

	payload = data[headerSize : headerSize+payloadLen]
	if crc32.Checksum(payload, castagnoli) != binary.LittleEndian.Uint32(data[12:16]) {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", errCorruptFrame)
	}
	return payload, frameLen, nil
}
