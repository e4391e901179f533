package core

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"os"

	"github.com/sirupsen/logrus"
)

// ledger.go implements the append-only, fixed-capacity, checksummed event
// ledger (component C). It is the kernel's canonical record of everything
// the scheduler did: the metrics reducer borrows it read-only once a run
// ends, and replaying it is how P1/P2 (determinism, replay) are verified.
//
// The on-disk format follows SPEC_FULL.md / spec.md §6 exactly: a 64-byte
// header, N 272-byte records, and a 64-byte footer, little-endian
// throughout. This file plays the role the teacher's core/ledger.go plays
// for its WAL-backed blockchain ledger (open, append, replay, snapshot) but
// the wire format here is fixed-binary rather than JSON-lines, matching
// spec.md's bit-exact replay requirement.

const (
	ledgerMagic      = 0x5A36_4556_5420
	ledgerVersion    = 1
	ledgerHeaderSize = 64
	ledgerFooterSize = 64

	// DefaultLedgerCapacity is the default bound on in-flight (unflushed +
	// flushed-this-run) records a single Ledger will hold, per spec.md §4.3.
	DefaultLedgerCapacity = 10_000_000

	// flushArenaRecords sizes the bump allocator Flush uses to stage
	// encoded records before they're written, so a run with a large flush
	// interval doesn't allocate one RecordSize slice per record.
	flushArenaRecords = 256
)

// LedgerHeader is the first 64 bytes of a ledger file.
type LedgerHeader struct {
	Magic        uint64
	Version      uint16
	PRNGSeed     uint64
	StartWallNS  uint64
	ScenarioHash [32]byte
}

func (h LedgerHeader) encode() [ledgerHeaderSize]byte {
	var b [ledgerHeaderSize]byte
	binary.LittleEndian.PutUint64(b[0:8], h.Magic)
	binary.LittleEndian.PutUint16(b[8:10], h.Version)
	// b[10:16] reserved, zero
	binary.LittleEndian.PutUint64(b[16:24], h.PRNGSeed)
	binary.LittleEndian.PutUint64(b[24:32], h.StartWallNS)
	copy(b[32:64], h.ScenarioHash[:])
	return b
}

func decodeLedgerHeader(b [ledgerHeaderSize]byte) (LedgerHeader, error) {
	var h LedgerHeader
	h.Magic = binary.LittleEndian.Uint64(b[0:8])
	h.Version = binary.LittleEndian.Uint16(b[8:10])
	h.PRNGSeed = binary.LittleEndian.Uint64(b[16:24])
	h.StartWallNS = binary.LittleEndian.Uint64(b[24:32])
	copy(h.ScenarioHash[:], b[32:64])
	if h.Magic != ledgerMagic {
		return h, ErrBadMagic
	}
	if h.Version != ledgerVersion {
		return h, ErrBadVersion
	}
	return h, nil
}

// LedgerFooter is the trailing 64 bytes of a ledger file.
type LedgerFooter struct {
	RecordCount uint64
	LogSHA256   [32]byte
	EndWallNS   uint64
}

func (f LedgerFooter) encode() [ledgerFooterSize]byte {
	var b [ledgerFooterSize]byte
	binary.LittleEndian.PutUint64(b[0:8], f.RecordCount)
	copy(b[8:40], f.LogSHA256[:])
	binary.LittleEndian.PutUint64(b[40:48], f.EndWallNS)
	return b
}

func decodeLedgerFooter(b [ledgerFooterSize]byte) LedgerFooter {
	var f LedgerFooter
	f.RecordCount = binary.LittleEndian.Uint64(b[0:8])
	copy(f.LogSHA256[:], b[8:40])
	f.EndWallNS = binary.LittleEndian.Uint64(b[40:48])
	return f
}

// Ledger is an append-only, bounded-capacity ring of Records, optionally
// backed by a file. It is writer-exclusive for the duration of a run; the
// metrics reducer only ever sees it after Finalize.
type Ledger struct {
	capacity int
	records  []Record

	file          *os.File
	writer        *bufio.Writer
	headerWritten bool
	flushedCount  int
	runningHash   hash.Hash
	flushArena    *Arena

	header LedgerHeader
	log    *logrus.Entry
}

// NewLedger creates a ledger backed by path with the given capacity, seed,
// and scenario hash. The file is truncated and its header is written
// immediately so a crash before the first Flush still leaves a
// magic/version-valid (if record_count==0) file.
func NewLedger(path string, capacity int, seed uint64, scenarioHash [32]byte, startWallNS uint64, log *logrus.Entry) (*Ledger, error) {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	h := sha256.New()
	l := &Ledger{
		capacity: capacity,
		file:     f,
		writer:   bufio.NewWriter(f),
		header: LedgerHeader{
			Magic:        ledgerMagic,
			Version:      ledgerVersion,
			PRNGSeed:     seed,
			StartWallNS:  startWallNS,
			ScenarioHash: scenarioHash,
		},
		runningHash: h,
		flushArena:  NewArena(flushArenaRecords * RecordSize),
		log:         log.WithField("component", "ledger"),
	}
	hdrBytes := l.header.encode()
	if _, err := l.writer.Write(hdrBytes[:]); err != nil {
		return nil, fmt.Errorf("ledger: write header: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return nil, fmt.Errorf("ledger: write header: %w", err)
	}
	l.runningHash.Write(hdrBytes[:])
	l.headerWritten = true
	return l, nil
}

// Append adds a record to the ledger. It fails with ErrLogFull once Len()
// reaches capacity.
func (l *Ledger) Append(tick uint64, vuID uint32, kind RecordKind, payload [recordPayloadSize]byte) error {
	if len(l.records) >= l.capacity {
		return ErrLogFull
	}
	l.records = append(l.records, Record{Tick: tick, VUID: vuID, Kind: kind, Payload: payload})
	if l.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		l.log.WithFields(logrus.Fields{"tick": tick, "vu_id": vuID, "kind": kind}).Debug("record appended")
	}
	return nil
}

// Len returns the number of records currently held (flushed or not).
func (l *Ledger) Len() int { return len(l.records) }

// Get returns the i-th record in append order.
func (l *Ledger) Get(i int) (Record, error) {
	if i < 0 || i >= len(l.records) {
		return Record{}, ErrRecordOutOfRange
	}
	return l.records[i], nil
}

// RecordIterator is a lazy, finite, non-restartable walk over a Ledger's
// records at the time Iter was called.
type RecordIterator struct {
	records []Record
	pos     int
}

// Iter returns an iterator over the records currently in the ledger. Records
// appended after Iter is called are not visited.
func (l *Ledger) Iter() *RecordIterator {
	snap := make([]Record, len(l.records))
	copy(snap, l.records)
	return &RecordIterator{records: snap}
}

// Next returns the next record, or ok==false once exhausted.
func (it *RecordIterator) Next() (Record, bool) {
	if it.pos >= len(it.records) {
		return Record{}, false
	}
	r := it.records[it.pos]
	it.pos++
	return r, true
}

// Clear discards the ledger's in-memory record content and resets its count.
// It does not truncate or rewind the backing file: per spec.md §4.3, bytes
// already flushed remain on disk.
func (l *Ledger) Clear() {
	l.records = l.records[:0]
	l.flushedCount = 0
}

// Flush writes any records appended since the last Flush to the backing
// file and syncs it. Flush failure (e.g. disk full) is the trigger for the
// scheduler's ResourceExhausted abort path.
func (l *Ledger) Flush() error {
	for ; l.flushedCount < len(l.records); l.flushedCount++ {
		if l.flushArena.Remaining() < RecordSize {
			l.flushArena.Reset()
		}
		window, err := l.flushArena.Alloc(RecordSize)
		if err != nil {
			return fmt.Errorf("ledger: flush record %d: %w", l.flushedCount, err)
		}
		l.records[l.flushedCount].EncodeInto(window)
		if _, err := l.writer.Write(window); err != nil {
			return fmt.Errorf("ledger: flush record %d: %w", l.flushedCount, err)
		}
		l.runningHash.Write(window)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("ledger: flush buffer: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("ledger: sync: %w", err)
	}
	return nil
}

// Finalize flushes remaining records and writes the footer, then closes the
// file. After Finalize the Ledger must not be appended to again.
func (l *Ledger) Finalize(endWallNS uint64) error {
	if err := l.Flush(); err != nil {
		return err
	}
	var sum [32]byte
	copy(sum[:], l.runningHash.Sum(nil))
	footer := LedgerFooter{
		RecordCount: uint64(len(l.records)),
		LogSHA256:   sum,
		EndWallNS:   endWallNS,
	}
	fb := footer.encode()
	if _, err := l.writer.Write(fb[:]); err != nil {
		return fmt.Errorf("ledger: write footer: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}

// Header returns the header this ledger was constructed with.
func (l *Ledger) Header() LedgerHeader { return l.header }

// LoadedLedger is the read-only, fully-materialized view produced by
// ReadLedgerFile: everything the metrics reducer and Verify need.
type LoadedLedger struct {
	Header  LedgerHeader
	Records []Record
	Footer  LedgerFooter
}

// ReadLedgerFile reads and parses an entire ledger file into memory. It does
// not validate checksums or ordering; call Verify for that.
func ReadLedgerFile(path string) (*LoadedLedger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", path, err)
	}
	if len(data) < ledgerHeaderSize+ledgerFooterSize {
		return nil, ErrBadMagic
	}
	var hb [ledgerHeaderSize]byte
	copy(hb[:], data[:ledgerHeaderSize])
	hdr, err := decodeLedgerHeader(hb)
	if err != nil {
		return nil, err
	}

	body := data[ledgerHeaderSize : len(data)-ledgerFooterSize]
	if len(body)%RecordSize != 0 {
		return nil, ErrRecordOutOfRange
	}
	n := len(body) / RecordSize
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		chunk := body[i*RecordSize : (i+1)*RecordSize]
		r, err := DecodeRecord(chunk)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	var fb [ledgerFooterSize]byte
	copy(fb[:], data[len(data)-ledgerFooterSize:])
	footer := decodeLedgerFooter(fb)

	return &LoadedLedger{Header: hdr, Records: records, Footer: footer}, nil
}

// Verify checks, in order: (a) every per-record CRC-64, (b) that record
// ticks never decrease (vu_id order within a tick is not checked), (c) the
// causality invariants from spec.md §3 (request_issued precedes its
// completion; a VU's vu_spawned precedes its vu_ready and vu_complete, and
// is not repeated; vu_complete is not required to follow vu_ready), and
// finally the footer's record count and SHA-256.
func Verify(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ledger: read %s: %w", path, err)
	}
	if len(data) < ledgerHeaderSize+ledgerFooterSize {
		return ErrBadMagic
	}
	var hb [ledgerHeaderSize]byte
	copy(hb[:], data[:ledgerHeaderSize])
	if _, err := decodeLedgerHeader(hb); err != nil {
		return err
	}

	body := data[ledgerHeaderSize : len(data)-ledgerFooterSize]
	if len(body)%RecordSize != 0 {
		return ErrRecordOutOfRange
	}
	n := len(body) / RecordSize

	issuedRequests := make(map[uint64]bool)
	vuStage := make(map[uint32]int) // 0=none,1=spawned,2=ready,3=complete

	var lastTick uint64
	first := true
	for i := 0; i < n; i++ {
		chunk := body[i*RecordSize : (i+1)*RecordSize]
		if !ValidateChecksum(chunk) {
			return ErrChecksumMismatch
		}
		r, err := DecodeRecord(chunk)
		if err != nil {
			return err
		}
		if !first && r.Tick < lastTick {
			return ErrOrderingViolation
		}
		lastTick = r.Tick
		first = false

		switch r.Kind {
		case KindRequestIssued:
			p := DecodeRequestIssued(r.Payload)
			issuedRequests[p.RequestID] = true
		case KindResponseReceived:
			p := DecodeResponseReceived(r.Payload)
			if !issuedRequests[p.RequestID] {
				return ErrCausalityViolation
			}
		case KindRequestTimeout, KindResponseError:
			var requestID uint64
			if r.Kind == KindRequestTimeout {
				requestID = binary.LittleEndian.Uint64(r.Payload[0:8])
			} else {
				requestID = DecodeResponseError(r.Payload).RequestID
			}
			if !issuedRequests[requestID] {
				return ErrCausalityViolation
			}
		case KindVUSpawned:
			if vuStage[r.VUID] != 0 {
				return ErrCausalityViolation
			}
			vuStage[r.VUID] = 1
		case KindVUReady:
			if vuStage[r.VUID] == 0 {
				return ErrCausalityViolation
			}
			if vuStage[r.VUID] == 1 {
				vuStage[r.VUID] = 2
			}
		case KindVUComplete:
			if vuStage[r.VUID] == 0 {
				return ErrCausalityViolation
			}
			vuStage[r.VUID] = 3
		}
	}

	var fb [ledgerFooterSize]byte
	copy(fb[:], data[len(data)-ledgerFooterSize:])
	footer := decodeLedgerFooter(fb)
	if footer.RecordCount != uint64(n) {
		return ErrOrderingViolation
	}
	sum := sha256.Sum256(data[:len(data)-ledgerFooterSize])
	if sum != footer.LogSHA256 {
		return ErrChecksumMismatch
	}
	return nil
}
