package inproc

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeDeliversBothWays(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	require.NoError(t, a.WriteFrame(1, 7, []byte("ping")))
	shard, corr, data, err := b.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), shard)
	assert.Equal(t, uint64(7), corr)
	assert.Equal(t, []byte("ping"), data)

	require.NoError(t, b.WriteFrame(1, 7, []byte("pong")))
	_, _, data, err = a.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), data)
}

func TestPipeCopiesPayload(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	payload := []byte("original")
	require.NoError(t, a.WriteFrame(0, 1, payload))
	copy(payload, "modified")

	_, _, data, err := b.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestPipeKeepsOrderPerWriter(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	const writers, frames = 4, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1; i <= frames; i++ {
				assert.NoError(t, a.WriteFrame(uint64(w), uint64(i), nil))
			}
		}(w)
	}

	last := make(map[uint64]uint64)
	for i := 0; i < writers*frames; i++ {
		shard, corr, _, err := b.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, last[shard]+1, corr)
		last[shard] = corr
	}
	wg.Wait()
}

func TestPipeCloseEndsBothSides(t *testing.T) {
	a, b := Pipe()

	require.NoError(t, a.WriteFrame(0, 1, []byte("queued")))
	require.NoError(t, a.Close())

	// queued frames are still delivered, then EOF
	_, corr, _, err := b.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), corr)

	_, _, _, err = b.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)

	_, _, _, err = a.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)

	assert.ErrorIs(t, a.WriteFrame(0, 2, nil), io.ErrClosedPipe)
	assert.ErrorIs(t, b.WriteFrame(0, 2, nil), io.ErrClosedPipe)
	assert.NoError(t, b.Close())
}
