package core

import "math/bits"

// histogram.go implements an HDR-style bounded-memory histogram (component
// H): fixed-size bucket array computed once at construction from the
// tracked value range and significant-figure precision, independent of how
// many values are ever recorded. This mirrors the classic HdrHistogram
// layout (sub-buckets doubling per magnitude) rather than a naive linear
// or exponential-decay scheme, since spec.md requires exact bucket counts
// with bounded quantization error rather than sampling.

// Histogram buckets int64 values in the range and precision given to
// NewHistogram; the metrics reducer builds it for [1ns, 1 hour] at 3
// significant figures, matching the latency range it feeds it.
type Histogram struct {
	lowest           int64
	highest          int64
	sigFigs          int
	unitMagnitude    int
	subBucketCount   int
	subBucketHalfCount int
	subBucketMask    int64
	bucketCount      int
	counts           []uint64
	totalCount       uint64
}

// NewHistogram constructs a histogram tracking values in [lowest, highest]
// with the given number of significant decimal figures (typically 1-5).
func NewHistogram(lowest, highest int64, significantFigures int) *Histogram {
	if lowest < 1 {
		lowest = 1
	}
	if significantFigures < 1 {
		significantFigures = 1
	}
	largestValueWithDigits := int64(pow10(significantFigures))
	subBucketCountMagnitude := int(ceilLog2(float64(largestValueWithDigits)))
	subBucketCount := 1 << uint(subBucketCountMagnitude)
	unitMagnitude := int(floorLog2(float64(lowest)))
	if unitMagnitude < 0 {
		unitMagnitude = 0
	}

	h := &Histogram{
		lowest:             lowest,
		highest:            highest,
		sigFigs:            significantFigures,
		unitMagnitude:      unitMagnitude,
		subBucketCount:     subBucketCount,
		subBucketHalfCount: subBucketCount / 2,
		subBucketMask:      int64(subBucketCount-1) << uint(unitMagnitude),
	}

	smallestUntrackable := int64(subBucketCount) << uint(unitMagnitude)
	bucketsNeeded := 1
	for smallestUntrackable <= highest {
		smallestUntrackable <<= 1
		bucketsNeeded++
	}
	h.bucketCount = bucketsNeeded
	countsLen := (h.bucketCount + 1) * h.subBucketHalfCount
	h.counts = make([]uint64, countsLen)
	return h
}

func pow10(n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}

func ceilLog2(v float64) int {
	n := floorLog2(v)
	if float64(int64(1)<<uint(n)) < v {
		return n + 1
	}
	return n
}

func floorLog2(v float64) int {
	if v < 1 {
		return 0
	}
	return bits.Len64(uint64(v)) - 1
}

func (h *Histogram) bucketIndexOf(value int64) int {
	pow2ceiling := bits.Len64(uint64(value) | uint64(h.subBucketMask))
	return pow2ceiling - h.unitMagnitude - (bits.Len64(uint64(h.subBucketCount)) - 1) - 1
}

func (h *Histogram) subBucketIndexOf(value int64, bucketIdx int) int {
	return int(value >> uint(bucketIdx+h.unitMagnitude))
}

func (h *Histogram) countsIndexFor(value int64) (int, bool) {
	bucketIdx := h.bucketIndexOf(value)
	if bucketIdx < 0 {
		bucketIdx = 0
	}
	subBucketIdx := h.subBucketIndexOf(value, bucketIdx)
	if subBucketIdx >= h.subBucketCount {
		bucketIdx++
		subBucketIdx = h.subBucketIndexOf(value, bucketIdx)
	}
	if bucketIdx >= h.bucketCount {
		return 0, false
	}
	bucketBaseIdx := (bucketIdx + 1) * h.subBucketHalfCount
	offsetInBucket := subBucketIdx - h.subBucketHalfCount
	idx := bucketBaseIdx + offsetInBucket
	if idx < 0 || idx >= len(h.counts) {
		return 0, false
	}
	return idx, true
}

// RecordValue records a single occurrence of value. It fails with
// ErrValueOutOfRange if value falls outside [lowest, highest].
func (h *Histogram) RecordValue(value int64) error {
	return h.RecordValues(value, 1)
}

// RecordValues records n occurrences of value in one call; n == 0 is a
// no-op, never an error.
func (h *Histogram) RecordValues(value int64, n uint64) error {
	if n == 0 {
		return nil
	}
	if value < h.lowest || value > h.highest {
		return ErrValueOutOfRange
	}
	idx, ok := h.countsIndexFor(value)
	if !ok {
		return ErrValueOutOfRange
	}
	h.counts[idx] += n
	h.totalCount += n
	return nil
}

// TotalCount returns the number of values recorded since construction or
// the last Reset.
func (h *Histogram) TotalCount() uint64 { return h.totalCount }

// ValueAtPercentile returns the count-weighted value at percentile p, which
// must be in [0, 100]. An empty histogram returns 0.
func (h *Histogram) ValueAtPercentile(p float64) int64 {
	if h.totalCount == 0 {
		return 0
	}
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	target := uint64((p / 100.0) * float64(h.totalCount))
	if target > 0 {
		target--
	}
	var running uint64
	for bucketIdx := 0; bucketIdx < h.bucketCount; bucketIdx++ {
		subStart := 0
		if bucketIdx == 0 {
			subStart = 0
		} else {
			subStart = h.subBucketHalfCount
		}
		for subIdx := subStart; subIdx < h.subBucketCount; subIdx++ {
			bucketBaseIdx := (bucketIdx + 1) * h.subBucketHalfCount
			offsetInBucket := subIdx - h.subBucketHalfCount
			idx := bucketBaseIdx + offsetInBucket
			if idx < 0 || idx >= len(h.counts) {
				continue
			}
			running += h.counts[idx]
			if running > target {
				return h.valueFromIndex(bucketIdx, subIdx)
			}
		}
	}
	return h.highest
}

func (h *Histogram) valueFromIndex(bucketIdx, subBucketIdx int) int64 {
	return int64(subBucketIdx) << uint(bucketIdx+h.unitMagnitude)
}

// Min returns the smallest recorded value's approximate bucket value, or 0
// if empty.
func (h *Histogram) Min() int64 { return h.ValueAtPercentile(0) }

// Max returns the largest recorded value's approximate bucket value, or 0
// if empty.
func (h *Histogram) Max() int64 { return h.ValueAtPercentile(100) }

// Reset zeroes every counter without reallocating the backing array.
func (h *Histogram) Reset() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.totalCount = 0
}
