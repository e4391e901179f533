package core

import "errors"

// Sentinel errors for the kernel's fallible operations. Each corresponds to
// one leaf of the error taxonomy in the kernel's error-handling design:
// Resource errors either trigger backpressure or abort the run; Configuration
// errors abort before any ledger record is written; Network/Protocol/Timeout
// errors are recorded as typed ledger events rather than returned here.
var (
	// PRNG (component A)
	ErrInvalidRange = errors.New("prng: max must be > 0")

	// Arena / Pool (component B)
	ErrOutOfMemory     = errors.New("arena: allocation exceeds remaining space")
	ErrInvalidAlignment = errors.New("arena: alignment must be a power of two")
	ErrPoolExhausted   = errors.New("pool: no free slots available")

	// Event ledger (component C)
	ErrLogFull          = errors.New("ledger: capacity reached")
	ErrRecordOutOfRange = errors.New("ledger: index out of range")
	ErrBadMagic         = errors.New("ledger: file magic mismatch")
	ErrBadVersion       = errors.New("ledger: unsupported file version")
	ErrChecksumMismatch = errors.New("ledger: record checksum mismatch")
	ErrOrderingViolation = errors.New("ledger: total order violation")
	ErrCausalityViolation = errors.New("ledger: causality invariant violation")

	// Event queue (component D)
	ErrQueueFull  = errors.New("eventqueue: capacity reached")
	ErrQueueEmpty = errors.New("eventqueue: no entries")

	// VU state machine (component E)
	ErrIllegalTransition = errors.New("vu: transition not permitted")
	ErrStaleTick         = errors.New("vu: transition tick precedes last transition")

	// Protocol handler (component F)
	ErrConnectionLimitReached = errors.New("handler: connection limit reached")
	ErrUnknownConnection      = errors.New("handler: unknown connection id")
	ErrUnknownRequest         = errors.New("handler: unknown request id")

	// Scheduler (component G)
	ErrTooManyVUs        = errors.New("scheduler: max_vus exceeds hard ceiling")
	ErrResourceExhausted = errors.New("scheduler: resource exhausted, aborting run")

	// Histogram (component H)
	ErrValueOutOfRange = errors.New("histogram: value outside trackable range")

	// Memory budget (component I)
	ErrInvalidSize = errors.New("budget: size must be > 0")
	ErrBudgetExceeded = errors.New("budget: total_budget exceeded")

	// Scenario projection (component J)
	ErrNoWeightedRequests = errors.New("scenario: all requests have zero weight")
)

// ProtocolErrorKind enumerates the typed protocol/network/timeout error
// taxonomy a ProtocolHandler may surface in a Completion. These are recorded
// as ledger events, never returned as Go errors from the scheduler loop.
type ProtocolErrorKind uint16

const (
	ErrKindUnspecified ProtocolErrorKind = iota

	// Network
	ErrKindDNSFailure
	ErrKindConnectionRefused
	ErrKindConnectionReset
	ErrKindConnectionClosed
	ErrKindHostUnreachable
	ErrKindSocketError

	// Protocol
	ErrKindInvalidResponse
	ErrKindProtocolViolation
	ErrKindUnsupportedVersion
	ErrKindInvalidHeader
	ErrKindInvalidChunkedEncoding
	ErrKindContentLengthMismatch
	ErrKindTLSHandshakeFailed
	ErrKindCertificateInvalid
	ErrKindALPNNegotiationFailed

	// Timeout
	ErrKindDNSTimeout
	ErrKindConnectTimeout
	ErrKindTLSTimeout
	ErrKindRequestTimeout
	ErrKindReadTimeout
	ErrKindWriteTimeout

	// Resource
	ErrKindPoolExhausted
	ErrKindEventLogFull
	ErrKindMemoryBudgetExceeded
	ErrKindTooManyVUs
	ErrKindRequestQueueFull
	ErrKindFDLimit
)

// ProtocolError is the value carried by a Completion when a request did not
// succeed. It is never used for scheduler control flow beyond dispatch: it is
// always appended to the ledger as a typed record.
type ProtocolError struct {
	Kind    ProtocolErrorKind
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }
