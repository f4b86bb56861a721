package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorShape(t *testing.T) {
	g := NewGenerator(nil)
	docs := g.Take(200)
	require.Len(t, docs, 200)

	for _, d := range docs {
		assert.Len(t, d.ID, 12)
		assert.Len(t, d.LongText, 1000)
		assert.GreaterOrEqual(t, d.Age, 0)
		assert.LessOrEqual(t, d.Age, 100)
		assert.GreaterOrEqual(t, d.Nes.Ted, 0)
		assert.LessOrEqual(t, d.Nes.Ted, 100)
		assert.Len(t, d.List, 3)
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	a := NewGenerator(nil).Take(10)
	b := NewGenerator(nil).Take(10)
	assert.Equal(t, a, b)
}

func TestStreamIsNotRestartable(t *testing.T) {
	seq := NewGenerator(nil).Stream(5)

	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}

	assert.Equal(t, 5, first)
	assert.Equal(t, 0, second)
}

func TestStreamAcrossYieldBoundary(t *testing.T) {
	count := 0
	for range NewGenerator(nil).Stream(yieldEvery + 10) {
		count++
	}
	assert.Equal(t, yieldEvery+10, count)
}

func TestStreamEarlyStop(t *testing.T) {
	count := 0
	for range NewGenerator(nil).Stream(100) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}
