package core

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestLedger(t *testing.T, capacity int) (*Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "run.ledger")
	l, err := NewLedger(path, capacity, 42, [32]byte{1, 2, 3}, 1000, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l, path
}

func TestLedgerAppendGetIter(t *testing.T) {
	l, _ := newTestLedger(t, 10)
	for i := uint64(0); i < 5; i++ {
		if err := l.Append(i, uint32(i+1), KindVUSpawned, [recordPayloadSize]byte{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if l.Len() != 5 {
		t.Fatalf("expected 5 records, got %d", l.Len())
	}
	r, err := l.Get(2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Tick != 2 {
		t.Fatalf("expected tick 2, got %d", r.Tick)
	}
	it := l.Iter()
	count := 0
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 5 {
		t.Fatalf("expected iterator to yield 5 records, got %d", count)
	}
}

func TestLedgerCapacityExactAndFull(t *testing.T) {
	l, _ := newTestLedger(t, 3)
	for i := 0; i < 3; i++ {
		if err := l.Append(uint64(i), 1, KindSchedulerTick, [recordPayloadSize]byte{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := l.Append(3, 1, KindSchedulerTick, [recordPayloadSize]byte{}); err != ErrLogFull {
		t.Fatalf("expected ErrLogFull, got %v", err)
	}
}

func TestLedgerGetOutOfRange(t *testing.T) {
	l, _ := newTestLedger(t, 3)
	if _, err := l.Get(0); err != ErrRecordOutOfRange {
		t.Fatalf("expected ErrRecordOutOfRange on empty ledger, got %v", err)
	}
}

func TestLedgerFinalizeAndVerifyRoundTrip(t *testing.T) {
	l, path := newTestLedger(t, 100)
	rip := RequestIssuedPayload{RequestID: 1}
	copy(rip.Method[:], "GET")
	_ = l.Append(0, 1, KindVUSpawned, [recordPayloadSize]byte{})
	_ = l.Append(0, 1, KindVUReady, [recordPayloadSize]byte{})
	_ = l.Append(1, 1, KindRequestIssued, rip.Encode())
	rrp := ResponseReceivedPayload{RequestID: 1, StatusCode: 200}
	_ = l.Append(2, 1, KindResponseReceived, rrp.Encode())
	_ = l.Append(2, 1, KindVUComplete, [recordPayloadSize]byte{})

	if err := l.Finalize(2000); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if err := Verify(path); err != nil {
		t.Fatalf("verify: %v", err)
	}

	loaded, err := ReadLedgerFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(loaded.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(loaded.Records))
	}
	if loaded.Footer.RecordCount != 5 {
		t.Fatalf("expected footer record_count 5, got %d", loaded.Footer.RecordCount)
	}
	if loaded.Header.PRNGSeed != 42 {
		t.Fatalf("expected seed 42, got %d", loaded.Header.PRNGSeed)
	}
}

func TestLedgerEmptyRunVerifies(t *testing.T) {
	l, path := newTestLedger(t, 10)
	if err := l.Finalize(500); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := Verify(path); err != nil {
		t.Fatalf("verify on empty ledger: %v", err)
	}
	loaded, err := ReadLedgerFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(loaded.Records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(loaded.Records))
	}
}

func TestLedgerCausalityViolationDetected(t *testing.T) {
	l, path := newTestLedger(t, 10)
	// response_received with no prior request_issued for request_id=1.
	rrp := ResponseReceivedPayload{RequestID: 1, StatusCode: 200}
	_ = l.Append(0, 1, KindResponseReceived, rrp.Encode())
	if err := l.Finalize(100); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := Verify(path); err != ErrCausalityViolation {
		t.Fatalf("expected ErrCausalityViolation, got %v", err)
	}
}

func TestLedgerChecksumCorruptionDetected(t *testing.T) {
	l, path := newTestLedger(t, 10)
	_ = l.Append(0, 1, KindVUSpawned, [recordPayloadSize]byte{})
	if err := l.Finalize(100); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	data[ledgerHeaderSize] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := Verify(path); err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestLedgerFlushReusesArenaAcrossManyRecords(t *testing.T) {
	const n = flushArenaRecords*2 + 10
	l, path := newTestLedger(t, n+1)
	for i := 0; i < n; i++ {
		if err := l.Append(uint64(i), 1, KindSchedulerTick, [recordPayloadSize]byte{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := l.Finalize(100); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := Verify(path); err != nil {
		t.Fatalf("verify: %v", err)
	}
	loaded, err := ReadLedgerFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(loaded.Records) != n {
		t.Fatalf("expected %d records, got %d", n, len(loaded.Records))
	}
	for i, r := range loaded.Records {
		if r.Tick != uint64(i) {
			t.Fatalf("record %d: expected tick %d, got %d (arena reuse corrupted a record)", i, i, r.Tick)
		}
	}
}

func TestLedgerClearDoesNotTruncateFile(t *testing.T) {
	l, _ := newTestLedger(t, 10)
	_ = l.Append(0, 1, KindVUSpawned, [recordPayloadSize]byte{})
	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("expected 0 records after clear, got %d", l.Len())
	}
}
