package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStats(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 5.0, s.Mean)
	assert.InDelta(t, 2.0, s.StdDeviation, 1e-9)

	assert.Equal(t, Stats{}, NewStats(nil))
}

func TestDistributionQuality(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	skewed := NewDistributionStats([]float64{1, 1, 1, 37})

	assert.InDelta(t, 1.0, even.DistributionQuality, 1e-9)
	assert.Less(t, skewed.DistributionQuality, even.DistributionQuality)
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	assert.Equal(t, 0, h.AverageSize())
	assert.Equal(t, 0, h.MedianEstimate())

	for i := 0; i < 10; i++ {
		h.AddSample(100)
	}
	assert.Equal(t, int64(10), h.GetCount())
	assert.Equal(t, 100, h.AverageSize())
	// 100 lands in the (64, 256] bucket
	assert.Equal(t, (64+256)/2, h.MedianEstimate())
}

func TestHashStringSeed(t *testing.T) {
	assert.Equal(t, HashString("abc", 1), HashString("abc", 1))
	assert.NotEqual(t, HashString("abc", 1), HashString("abc", 2))
	assert.NotEqual(t, HashString("abc", 0), HashString("abd", 0))
}
