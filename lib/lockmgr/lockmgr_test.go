package lockmgr

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	lm := NewInMemory()

	ok, owner, err := lm.AcquireLock("resource:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, owner, 16)

	ok, _, err = lm.AcquireLock("resource:a")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail")

	// a foreign owner can't release
	ok, err = lm.ReleaseLock("resource:a", []byte("intruder"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = lm.ReleaseLock("resource:a", owner)
	require.NoError(t, err)
	assert.True(t, ok)

	// releasing a missing lock succeeds
	ok, err = lm.ReleaseLock("resource:a", owner)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = lm.AcquireLock("resource:a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	lm := NewInMemory()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, err := lm.AcquireLock("contended"); err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestClaim(t *testing.T) {
	lm := NewInMemory()
	first := NewClaim(lm, "bench")
	second := NewClaim(lm, "bench")

	require.NoError(t, first.Acquire())
	require.NoError(t, first.Acquire(), "acquire is idempotent")
	assert.True(t, first.Held())

	err := second.Acquire()
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, second.Held())

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "release is idempotent")
	require.NoError(t, second.Acquire())
}

func TestNilClaimIsNoop(t *testing.T) {
	var nilClaim *Claim
	assert.NoError(t, nilClaim.Acquire())
	assert.NoError(t, nilClaim.Release())
	assert.False(t, nilClaim.Held())

	c := NewClaim(nil, "bench")
	assert.NoError(t, c.Acquire())
	assert.False(t, c.Held())
}
