package util

import (
	"math"
	"slices"
	"sort"
	"sync"
)

// Stats summarizes a sample of values
type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the population standard deviation, extremes and mean of values
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Min: slices.Min(values), Max: slices.Max(values), MinMaxRatio: 1}
	for _, v := range values {
		s.Mean += v
	}
	s.Mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDeviation = math.Sqrt(variance / float64(len(values)))

	if s.Max > 0 {
		s.MinMaxRatio = s.Min / s.Max
	}
	return s
}

// DistributionStats describes how evenly documents are spread over shards.
// DistributionQuality is 1 for a perfectly even spread and approaches 0 when
// one shard holds everything.
type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats rates the spread of shardSizes by the coefficient of
// variation and the min/max ratio, weighted equally
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}
	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1-math.Min(1, cv))/2 + stats.MinMaxRatio/2,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// sizeBuckets are the inclusive upper bounds of the histogram buckets, 16B to 4GB
// in steps of 4x. Larger samples land in an overflow bucket.
var sizeBuckets = func() []int {
	bounds := make([]int, 0, 15)
	for b := 16; b <= 1<<32; b *= 4 {
		bounds = append(bounds, b)
	}
	return bounds
}()

// SizeHistogram counts encoded entry sizes in exponential buckets. It is safe
// for concurrent use.
type SizeHistogram struct {
	mu     sync.RWMutex
	counts []int64 // one per bucket plus the overflow bucket
	count  int64
	sum    int64
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{counts: make([]int64, len(sizeBuckets)+1)}
}

// AddSample records one entry of size bytes
func (h *SizeHistogram) AddSample(size int) {
	i := sort.SearchInts(sizeBuckets, size)

	h.mu.Lock()
	h.counts[i]++
	h.count++
	h.sum += int64(size)
	h.mu.Unlock()
}

// GetCount returns the number of samples
func (h *SizeHistogram) GetCount() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// AverageSize returns the exact mean of all samples
func (h *SizeHistogram) AverageSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate returns the midpoint of the bucket holding the median sample
func (h *SizeHistogram) MedianEstimate() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}

	var seen int64
	for i, c := range h.counts {
		seen += c
		if seen < h.count/2 {
			continue
		}
		switch {
		case i == 0:
			return sizeBuckets[0] / 2
		case i == len(sizeBuckets):
			return sizeBuckets[i-1] * 2
		default:
			return (sizeBuckets[i-1] + sizeBuckets[i]) / 2
		}
	}
	return int(h.sum / h.count)
}
