package core

import (
	"encoding/binary"
	"hash/crc64"
)

// record.go defines the ledger's fixed 272-byte wire record: a 24-byte
// header, a 240-byte payload region, and an 8-byte CRC-64 trailer covering
// both. Every RecordKind's payload is a typed little-endian encoding into
// that fixed 240-byte window — never a Go struct reinterpreted via unsafe —
// so the layout is portable and independently verifiable byte-for-byte.

const (
	recordHeaderSize  = 24
	recordPayloadSize = 240
	recordCRCSize     = 8
	// RecordSize is the fixed, cache-line-aligned size in bytes of one
	// ledger record: header + payload + CRC-64.
	RecordSize = recordHeaderSize + recordPayloadSize + recordCRCSize
)

var crcTable = crc64.MakeTable(crc64.ISO)

// RecordKind enumerates every ledger event kind the kernel can emit.
type RecordKind uint16

const (
	KindUnspecified RecordKind = iota

	// VU lifecycle
	KindVUSpawned
	KindVUReady
	KindVUComplete

	// Request
	KindRequestIssued
	KindRequestTimeout
	KindRequestCancelled

	// Response
	KindResponseReceived
	KindResponseError

	// Connection
	KindConnEstablished
	KindConnClosed
	KindConnError

	// Scheduler
	KindSchedulerTick
	KindWarningQueueFull

	// Assertion
	KindAssertionPassed
	KindAssertionFailed

	// Typed errors
	KindErrorDNS
	KindErrorTCP
	KindErrorTLS
	KindErrorHTTP
	KindErrorTimeout
	KindErrorProtocolViolation
	KindErrorResourceExhausted
)

// Record is one fixed-layout ledger entry.
type Record struct {
	Tick    uint64
	VUID    uint32
	Kind    RecordKind
	Payload [recordPayloadSize]byte
}

// Encode serializes r into a RecordSize-byte slice: header, payload, then an
// 8-byte little-endian CRC-64 (ISO polynomial) computed over the preceding
// 264 bytes. validate_checksum detects any single-byte flip in either region
// because CRC-64 covers both.
func (r *Record) Encode() []byte {
	buf := make([]byte, RecordSize)
	r.EncodeInto(buf)
	return buf
}

// EncodeInto serializes r into buf, which must be at least RecordSize bytes
// (as handed out by an Arena window), avoiding Encode's per-call allocation.
func (r *Record) EncodeInto(buf []byte) {
	_ = buf[RecordSize-1] // bounds check once, up front
	binary.LittleEndian.PutUint64(buf[0:8], r.Tick)
	binary.LittleEndian.PutUint32(buf[8:12], r.VUID)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(r.Kind))
	// buf[14:16] _pad, buf[16:24] _reserved — left zero.
	copy(buf[recordHeaderSize:recordHeaderSize+recordPayloadSize], r.Payload[:])

	sum := crc64.Checksum(buf[:recordHeaderSize+recordPayloadSize], crcTable)
	binary.LittleEndian.PutUint64(buf[recordHeaderSize+recordPayloadSize:], sum)
}

// DecodeRecord parses a RecordSize-byte slice into a Record without
// validating its checksum; call ValidateChecksum separately.
func DecodeRecord(buf []byte) (Record, error) {
	if len(buf) != RecordSize {
		return Record{}, ErrRecordOutOfRange
	}
	var r Record
	r.Tick = binary.LittleEndian.Uint64(buf[0:8])
	r.VUID = binary.LittleEndian.Uint32(buf[8:12])
	r.Kind = RecordKind(binary.LittleEndian.Uint16(buf[12:14]))
	copy(r.Payload[:], buf[recordHeaderSize:recordHeaderSize+recordPayloadSize])
	return r, nil
}

// ValidateChecksum recomputes the CRC-64 over a raw RecordSize-byte encoding
// and compares it against the trailing 8 bytes.
func ValidateChecksum(buf []byte) bool {
	if len(buf) != RecordSize {
		return false
	}
	want := binary.LittleEndian.Uint64(buf[recordHeaderSize+recordPayloadSize:])
	got := crc64.Checksum(buf[:recordHeaderSize+recordPayloadSize], crcTable)
	return want == got
}

// --- Typed payload overlays -------------------------------------------------
//
// Each payload type below only uses a prefix of the 240-byte region; the
// remainder stays zeroed. Methods encode/decode into a Record's Payload
// field directly so callers never touch byte offsets by hand.

// RequestIssuedPayload records the dispatch of a request to the handler.
type RequestIssuedPayload struct {
	RequestID   uint64
	Method      [8]byte // ASCII, NUL-padded, e.g. "GET"
	URLHash     uint64
	HeaderCount uint16
	BodySize    uint32
}

func (p RequestIssuedPayload) Encode() [recordPayloadSize]byte {
	var b [recordPayloadSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.RequestID)
	copy(b[8:16], p.Method[:])
	binary.LittleEndian.PutUint64(b[16:24], p.URLHash)
	binary.LittleEndian.PutUint16(b[24:26], p.HeaderCount)
	binary.LittleEndian.PutUint32(b[26:30], p.BodySize)
	return b
}

func DecodeRequestIssued(b [recordPayloadSize]byte) RequestIssuedPayload {
	var p RequestIssuedPayload
	p.RequestID = binary.LittleEndian.Uint64(b[0:8])
	copy(p.Method[:], b[8:16])
	p.URLHash = binary.LittleEndian.Uint64(b[16:24])
	p.HeaderCount = binary.LittleEndian.Uint16(b[24:26])
	p.BodySize = binary.LittleEndian.Uint32(b[26:30])
	return p
}

// ResponseReceivedPayload records a completed, successful or unsuccessful
// (by status code) response. latency_ns is a wall-derived measurement from
// the handler, recorded as data and never consulted by scheduler control
// flow — see SPEC_FULL.md's resolution of Open Question 1.
type ResponseReceivedPayload struct {
	RequestID  uint64
	StatusCode uint16
	HeaderSize uint32
	BodySize   uint32
	LatencyNS  uint64
}

func (p ResponseReceivedPayload) Encode() [recordPayloadSize]byte {
	var b [recordPayloadSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.RequestID)
	binary.LittleEndian.PutUint16(b[8:10], p.StatusCode)
	binary.LittleEndian.PutUint32(b[10:14], p.HeaderSize)
	binary.LittleEndian.PutUint32(b[14:18], p.BodySize)
	binary.LittleEndian.PutUint64(b[18:26], p.LatencyNS)
	return b
}

func DecodeResponseReceived(b [recordPayloadSize]byte) ResponseReceivedPayload {
	var p ResponseReceivedPayload
	p.RequestID = binary.LittleEndian.Uint64(b[0:8])
	p.StatusCode = binary.LittleEndian.Uint16(b[8:10])
	p.HeaderSize = binary.LittleEndian.Uint32(b[10:14])
	p.BodySize = binary.LittleEndian.Uint32(b[14:18])
	p.LatencyNS = binary.LittleEndian.Uint64(b[18:26])
	return p
}

// ResponseErrorPayload records a request that completed with a typed
// protocol/network/timeout error instead of a response.
type ResponseErrorPayload struct {
	RequestID uint64
	ErrorKind ProtocolErrorKind
	LatencyNS uint64
}

func (p ResponseErrorPayload) Encode() [recordPayloadSize]byte {
	var b [recordPayloadSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.RequestID)
	binary.LittleEndian.PutUint16(b[8:10], uint16(p.ErrorKind))
	binary.LittleEndian.PutUint64(b[10:18], p.LatencyNS)
	return b
}

func DecodeResponseError(b [recordPayloadSize]byte) ResponseErrorPayload {
	var p ResponseErrorPayload
	p.RequestID = binary.LittleEndian.Uint64(b[0:8])
	p.ErrorKind = ProtocolErrorKind(binary.LittleEndian.Uint16(b[8:10]))
	p.LatencyNS = binary.LittleEndian.Uint64(b[10:18])
	return p
}

// RequestTimeoutPayload records a request whose timeout_ticks elapsed before
// a response arrived.
type RequestTimeoutPayload struct {
	RequestID uint64
}

func (p RequestTimeoutPayload) Encode() [recordPayloadSize]byte {
	var b [recordPayloadSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.RequestID)
	return b
}

func DecodeRequestTimeout(b [recordPayloadSize]byte) RequestTimeoutPayload {
	return RequestTimeoutPayload{RequestID: binary.LittleEndian.Uint64(b[0:8])}
}

// RequestCancelledPayload records a late completion for a request whose
// timeout already fired and was superseded — SPEC_FULL.md's resolution of
// Open Question 4.
type RequestCancelledPayload struct {
	RequestID uint64
}

func (p RequestCancelledPayload) Encode() [recordPayloadSize]byte {
	var b [recordPayloadSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.RequestID)
	return b
}

func DecodeRequestCancelled(b [recordPayloadSize]byte) RequestCancelledPayload {
	return RequestCancelledPayload{RequestID: binary.LittleEndian.Uint64(b[0:8])}
}

// ConnEstablishedPayload records a successful connection handshake.
type ConnEstablishedPayload struct {
	ConnID         uint64
	RemoteAddrHash uint64
	Protocol       uint8
	TLS            bool
	ConnTimeNS     uint64
}

func (p ConnEstablishedPayload) Encode() [recordPayloadSize]byte {
	var b [recordPayloadSize]byte
	binary.LittleEndian.PutUint64(b[0:8], p.ConnID)
	binary.LittleEndian.PutUint64(b[8:16], p.RemoteAddrHash)
	b[16] = p.Protocol
	if p.TLS {
		b[17] = 1
	}
	binary.LittleEndian.PutUint64(b[18:26], p.ConnTimeNS)
	return b
}

func DecodeConnEstablished(b [recordPayloadSize]byte) ConnEstablishedPayload {
	var p ConnEstablishedPayload
	p.ConnID = binary.LittleEndian.Uint64(b[0:8])
	p.RemoteAddrHash = binary.LittleEndian.Uint64(b[8:16])
	p.Protocol = b[16]
	p.TLS = b[17] != 0
	p.ConnTimeNS = binary.LittleEndian.Uint64(b[18:26])
	return p
}
