package core

import (
	"sort"
	"sync"
	"time"
)

// handler.go defines the protocol handler contract (component F): the
// capability set {connect, send, poll, close} the scheduler dispatches I/O
// through, plus a deterministic stub implementation used by tests and the
// bundled CLI's demo scenarios. TCP/TLS mechanics and wire encoding are out
// of scope per spec.md §1 — a real handler satisfying this interface would
// multiplex kernel-level non-blocking I/O (epoll/kqueue/IOCP/io_uring) and
// is not part of this kernel.
//
// z6sim generalizes the teacher's core/connection_pool.go (a sync.Mutex-
// guarded map of idle net.Conn keyed by address, reaped on a TTL) into a
// handler-owned resource the scheduler never reaches into directly.

// Target names the remote endpoint requests are issued against.
type Target struct {
	Host     string
	Port     uint16
	TLS      bool
	Protocol string
}

// Request is one scenario request definition as the handler sees it.
type Request struct {
	Method      string
	Path        string
	HeaderCount int
	BodySize    int
	TimeoutTicks uint64
}

// Response is a successful completion's payload.
type Response struct {
	StatusCode uint16
	HeaderSize uint32
	BodySize   uint32
	LatencyNS  uint64
}

// ConnectionID identifies a connection a handler has established.
type ConnectionID uint64

// RequestID identifies one in-flight request.
type RequestID uint64

// Completion is what Poll surfaces for a previously-sent request: exactly
// one of Response or Err is non-nil.
type Completion struct {
	RequestID RequestID
	Response  *Response
	Err       *ProtocolError
}

// ProtocolHandler is the capability set the scheduler drives during step 3
// of its tick loop (and steps 1/2 for connect/send). Implementations must
// cap total open connections at a configured limit and must never block in
// Send or Poll.
type ProtocolHandler interface {
	// Connect establishes (or reserves) a connection to target, returning a
	// handle synchronously. It may suspend internally but must return
	// promptly; ErrConnectionLimitReached signals the pool is full.
	Connect(target Target) (ConnectionID, error)

	// Send dispatches a request over an established connection and returns
	// its RequestID immediately — it never blocks for the response.
	Send(conn ConnectionID, req Request) (RequestID, error)

	// Poll drains any completions that became ready and appends them to
	// sink. It must not block.
	Poll(sink *[]Completion)

	// Close gracefully tears down a connection, cancelling any outstanding
	// requests on it (the scheduler observes these as timeouts).
	Close(conn ConnectionID) error

	// CancelRequest asks the handler to cancel an in-flight request whose
	// timeout fired. A late response arriving after cancellation is the
	// handler's policy to drop or surface as request_cancelled.
	CancelRequest(id RequestID)
}

// StubHandler is a deterministic, in-memory ProtocolHandler used by tests
// and the bundled CLI's offline demo mode: it never touches the network.
// Completions are driven by the scheduler's own logical clock via AdvanceTick, not
// by wall-clock timers, so runs built on it are reproducible except for the
// wall-derived LatencyNS field every completion still carries (see
// SPEC_FULL.md's resolution of Open Question 1).
type StubHandler struct {
	mu          sync.Mutex
	maxConns    int
	nextConn    ConnectionID
	nextReq     RequestID
	connPool    *Pool[struct{}] // enforces maxConns without consulting a map length
	connHandle  map[ConnectionID]Handle
	openConns   map[ConnectionID]bool
	pending     map[RequestID]pendingRequest
	cancelled   map[RequestID]bool
	responder   func(Request) (Response, *ProtocolError)
	readyDelay  uint64 // ticks between send and completion
	currentTick uint64
}

type pendingRequest struct {
	readyTick uint64
	issuedAt  time.Time
	req       Request
}

// NewStubHandler constructs a stub capped at maxConns concurrent
// connections. readyDelayTicks is how many logical ticks after Send a
// completion becomes available to Poll; responder decides whether that
// completion is a Response or a ProtocolError (a nil responder always
// succeeds with status 200).
func NewStubHandler(maxConns int, readyDelayTicks uint64, responder func(Request) (Response, *ProtocolError)) *StubHandler {
	if responder == nil {
		responder = func(r Request) (Response, *ProtocolError) {
			return Response{StatusCode: 200, HeaderSize: 32, BodySize: 128}, nil
		}
	}
	return &StubHandler{
		maxConns:   maxConns,
		connPool:   NewPool[struct{}](maxConns),
		connHandle: make(map[ConnectionID]Handle),
		openConns:  make(map[ConnectionID]bool),
		pending:    make(map[RequestID]pendingRequest),
		cancelled:  make(map[RequestID]bool),
		responder:  responder,
		readyDelay: readyDelayTicks,
	}
}

// AdvanceTick tells the stub the scheduler's current logical tick, so Poll
// knows which pending requests are now ready. The scheduler calls this once
// per tick, mirroring how a real handler would learn of I/O readiness from
// its own event loop rather than from wall time.
func (h *StubHandler) AdvanceTick(tick uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentTick = tick
}

func (h *StubHandler) Connect(target Target) (ConnectionID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	handle, err := h.connPool.Acquire()
	if err != nil {
		return 0, ErrConnectionLimitReached
	}
	h.nextConn++
	id := h.nextConn
	h.openConns[id] = true
	h.connHandle[id] = handle
	return id, nil
}

func (h *StubHandler) Send(conn ConnectionID, req Request) (RequestID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.openConns[conn] {
		return 0, ErrUnknownConnection
	}
	h.nextReq++
	id := h.nextReq
	h.pending[id] = pendingRequest{readyTick: h.currentTick + h.readyDelay, issuedAt: time.Now(), req: req}
	return id, nil
}

func (h *StubHandler) Poll(sink *[]Completion) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ready := make([]RequestID, 0, len(h.pending))
	for id, p := range h.pending {
		if p.readyTick <= h.currentTick {
			ready = append(ready, id)
		}
	}
	// Map iteration order is randomized; completions must land in the
	// ledger in a fixed order for a given tick so the same seed and
	// scenario always produce the same event log.
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	for _, id := range ready {
		p := h.pending[id]
		delete(h.pending, id)
		if h.cancelled[id] {
			delete(h.cancelled, id)
			continue
		}
		resp, perr := h.responder(p.req)
		resp.LatencyNS = uint64(time.Since(p.issuedAt).Nanoseconds())
		c := Completion{RequestID: id}
		if perr != nil {
			c.Err = perr
		} else {
			c.Response = &resp
		}
		*sink = append(*sink, c)
	}
}

// Close releases conn's slot in the connection pool. It does not cancel
// requests already sent on conn: they stay pending and still complete
// through Poll.
func (h *StubHandler) Close(conn ConnectionID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.openConns[conn] {
		return ErrUnknownConnection
	}
	delete(h.openConns, conn)
	if handle, ok := h.connHandle[conn]; ok {
		h.connPool.Release(handle)
		delete(h.connHandle, conn)
	}
	return nil
}

func (h *StubHandler) CancelRequest(id RequestID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.pending[id]; ok {
		h.cancelled[id] = true
	}
}
