package core

import "testing"

func TestHistogramEmptyPercentileIsZero(t *testing.T) {
	h := NewHistogram(1, 3_600_000_000_000, 3)
	if v := h.ValueAtPercentile(50); v != 0 {
		t.Fatalf("expected 0 for empty histogram, got %d", v)
	}
}

func TestHistogramRecordValuesNoOp(t *testing.T) {
	h := NewHistogram(1, 1_000_000, 3)
	if err := h.RecordValues(500, 0); err != nil {
		t.Fatalf("RecordValues with n=0 should be a no-op, got %v", err)
	}
	if h.TotalCount() != 0 {
		t.Fatalf("expected total count 0 after n=0 record, got %d", h.TotalCount())
	}
}

func TestHistogramRejectsOutOfRange(t *testing.T) {
	h := NewHistogram(1, 1000, 3)
	if err := h.RecordValue(100_000); err != ErrValueOutOfRange {
		t.Fatalf("expected ErrValueOutOfRange, got %v", err)
	}
}

func TestHistogramPercentilesMonotonic(t *testing.T) {
	h := NewHistogram(1, 1_000_000, 3)
	for i := int64(1); i <= 1000; i++ {
		if err := h.RecordValue(i * 100); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	p50 := h.ValueAtPercentile(50)
	p90 := h.ValueAtPercentile(90)
	p99 := h.ValueAtPercentile(99)
	if !(p50 <= p90 && p90 <= p99) {
		t.Fatalf("expected p50 <= p90 <= p99, got %d %d %d", p50, p90, p99)
	}
	if h.TotalCount() != 1000 {
		t.Fatalf("expected total count 1000, got %d", h.TotalCount())
	}
}

func TestHistogramResetClearsCounters(t *testing.T) {
	h := NewHistogram(1, 1000, 2)
	_ = h.RecordValue(500)
	h.Reset()
	if h.TotalCount() != 0 {
		t.Fatalf("expected total count 0 after reset, got %d", h.TotalCount())
	}
	if v := h.ValueAtPercentile(50); v != 0 {
		t.Fatalf("expected 0 percentile after reset, got %d", v)
	}
}

func TestHistogramFixedMemoryIndependentOfSamples(t *testing.T) {
	h := NewHistogram(1, 1_000_000, 3)
	before := len(h.counts)
	for i := int64(0); i < 10_000; i++ {
		_ = h.RecordValue(i%999_999 + 1)
	}
	if len(h.counts) != before {
		t.Fatalf("backing array grew from %d to %d", before, len(h.counts))
	}
}
