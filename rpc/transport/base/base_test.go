package base

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, headerSize)

	require.NoError(t, writeFrame(&buf, header, 3, 42, []byte("hello")))
	require.NoError(t, writeFrame(&buf, header, 0, 0, nil))
	assert.Equal(t, 2*headerSize+5, buf.Len())

	shard, corr, data, err := readFrame(&buf, header)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), shard)
	assert.Equal(t, uint64(42), corr)
	assert.Equal(t, []byte("hello"), data)

	_, corr, data, err = readFrame(&buf, header)
	require.NoError(t, err)
	assert.Zero(t, corr)
	assert.Empty(t, data)

	_, _, _, err = readFrame(&buf, header)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, headerSize)
	require.NoError(t, writeFrame(&buf, header, 1, 1, []byte("payload")))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	_, _, _, err := readFrame(truncated, header)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStreamConnConcurrentWriters(t *testing.T) {
	a, b := net.Pipe()
	client := NewStreamConn(a)
	server := NewStreamConn(b)
	defer client.Close()
	defer server.Close()

	const writers, frames = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte(w)}, 100+w)
			for i := 0; i < frames; i++ {
				assert.NoError(t, client.WriteFrame(uint64(w), uint64(i+1), payload))
			}
		}(w)
	}

	seen := make(map[uint64]int)
	for i := 0; i < writers*frames; i++ {
		shard, _, data, err := server.ReadFrame()
		require.NoError(t, err)
		// a frame is never interleaved with another one
		require.Len(t, data, 100+int(shard))
		require.Equal(t, bytes.Repeat([]byte{byte(shard)}, 100+int(shard)), data)
		seen[shard]++
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		assert.Equal(t, frames, seen[uint64(w)])
	}
}

func TestStreamConnEOF(t *testing.T) {
	a, b := net.Pipe()
	client := NewStreamConn(a)
	server := NewStreamConn(b)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "close is idempotent")

	_, _, _, err := server.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}
