package core

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// scheduler.go implements the scheduler (component G): the single control
// loop that drives every VU through its state machine, dispatches requests
// through a ProtocolHandler, and appends every observation to the Ledger.
// It integrates components B through F and is the only place ticks advance.
//
// The loop's shape is grounded on the teacher's bft_simulation.go round
// driver (a fixed, ordered sequence of phases executed once per round, with
// no wall-clock consultation) generalized from BFT consensus rounds to
// load-generation ticks.

// SchedulerConfig mirrors spec.md §4.7's configuration tuple.
type SchedulerConfig struct {
	MaxVUs              uint32
	MaxEvents           int
	FlushIntervalTicks  uint64
	DefaultTimeoutTicks uint64
	PRNGSeed            uint64
	DurationTicks       uint64
	MemoryBudgetBytes   uint64
	QueueLowWaterMark   int
}

// Scheduler orchestrates a single deterministic run.
type Scheduler struct {
	cfg      SchedulerConfig
	scenario *ScenarioProjection
	handler  ProtocolHandler
	ledger   *Ledger
	queue    *EventQueue
	prng     *PRNG
	budget   *MemoryBudget
	log      *logrus.Entry

	vuPool           *Pool[VU] // pre-allocated VU storage, sized to cfg.MaxVUs
	vus              map[uint32]*VU
	vuConn           map[uint32]ConnectionID
	requestOwner     map[uint64]uint32 // request id -> vu id
	suppressed       map[uint32]bool   // vu id -> backing off after a connect/send failure
	nextVUID         uint32
	tick             uint64
	activationPaused bool

	terminalStep uint32 // scenario_step value that marks completion
}

// NewScheduler constructs a scheduler bound to scenario, handler and ledger.
// It performs the startup checks spec.md §4.7 requires: max_vus against the
// hard ceiling, and a memory budget reservation proportional to max_vus.
func NewScheduler(cfg SchedulerConfig, scenario *ScenarioProjection, handler ProtocolHandler, ledger *Ledger, log *logrus.Entry) (*Scheduler, error) {
	if cfg.MaxVUs > MaxVUsHardCeiling {
		return nil, ErrTooManyVUs
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	budget := NewMemoryBudget(cfg.MemoryBudgetBytes)
	const perVUBytes = 256
	if cfg.MaxVUs > 0 {
		if err := budget.Allocate(uint64(cfg.MaxVUs) * perVUBytes); err != nil {
			return nil, fmt.Errorf("scheduler: memory budget check: %w", err)
		}
	}
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = MaxEventsHardCeiling
	}
	var vuPool *Pool[VU]
	if cfg.MaxVUs > 0 {
		vuPool = NewPool[VU](int(cfg.MaxVUs))
	}
	return &Scheduler{
		cfg:          cfg,
		scenario:     scenario,
		handler:      handler,
		ledger:       ledger,
		queue:        NewEventQueue(maxEvents),
		prng:         NewPRNG(cfg.PRNGSeed),
		budget:       budget,
		log:          log.WithField("component", "scheduler"),
		vuPool:       vuPool,
		vus:          make(map[uint32]*VU),
		vuConn:       make(map[uint32]ConnectionID),
		requestOwner: make(map[uint64]uint32),
		suppressed:   make(map[uint32]bool),
		terminalStep: uint32(len(scenario.Requests)),
	}, nil
}

// Spawn creates n VUs at the current tick and schedules each's activation
// via an EventSpawn entry at that same tick, so they become READY during
// the next step rather than instantaneously. The scenario's Schedule is not
// consulted. Storage for each
// VU comes from vuPool when the scheduler was built with a nonzero MaxVUs;
// spawned VUs are never released back to the pool mid-run, since s.vus
// retains a pointer into pool storage for the life of the scheduler (AllComplete
// needs a COMPLETE VU's fields to stay valid).
func (s *Scheduler) Spawn(n uint32) error {
	for i := uint32(0); i < n; i++ {
		s.nextVUID++
		id := s.nextVUID
		var v *VU
		if s.vuPool != nil {
			h, err := s.vuPool.Acquire()
			if err != nil {
				return fmt.Errorf("scheduler: spawn vu %d: %w", id, err)
			}
			v = s.vuPool.Get(h)
			*v = *NewVU(id, s.tick)
		} else {
			v = NewVU(id, s.tick)
		}
		s.vus[id] = v
		if err := s.ledger.Append(s.tick, id, KindVUSpawned, [recordPayloadSize]byte{}); err != nil {
			return err
		}
		if err := s.queue.Push(s.tick, Event{VUID: id, Kind: EventSpawn}); err != nil {
			if err := s.ledger.Append(s.tick, id, KindWarningQueueFull, [recordPayloadSize]byte{}); err != nil {
				return err
			}
			s.activationPaused = true
			continue
		}
	}
	return nil
}

// Tick returns the scheduler's current logical tick.
func (s *Scheduler) Tick() uint64 { return s.tick }

// AllComplete reports whether every known VU has reached StateComplete.
func (s *Scheduler) AllComplete() bool {
	if len(s.vus) == 0 {
		return false
	}
	for _, v := range s.vus {
		if !v.IsComplete() {
			return false
		}
	}
	return true
}

// Run drives the scheduler loop until termination: every VU COMPLETE or
// current_tick >= duration_ticks, per spec.md §4.7. It performs the full
// five-step per-tick order and the post-loop teardown (cancel remaining
// pending requests, flush). Writing the footer is left to the caller's
// Ledger.Finalize.
func (s *Scheduler) Run() error {
	for !s.AllComplete() && s.tick < s.cfg.DurationTicks {
		if err := s.step(); err != nil {
			return err
		}
	}
	return s.teardown()
}

// step executes one full tick in the exact order spec.md §4.7 mandates.
func (s *Scheduler) step() error {
	if err := s.processTimedEvents(); err != nil {
		return err
	}
	if err := s.activateReadyCohorts(); err != nil {
		return err
	}
	if err := s.pollHandler(); err != nil {
		return err
	}
	s.tick++
	if s.handlerAware() {
		s.handlerAdvance(s.tick)
	}
	if s.cfg.FlushIntervalTicks > 0 && s.tick%s.cfg.FlushIntervalTicks == 0 {
		if err := s.ledger.Flush(); err != nil {
			return s.abortResourceExhausted(err)
		}
	}
	return nil
}

// handlerAware reports whether the bound handler exposes the StubHandler's
// AdvanceTick hook. Real non-blocking handlers learn readiness from their
// own I/O multiplexer instead and do not need this call.
func (s *Scheduler) handlerAware() bool {
	_, ok := s.handler.(*StubHandler)
	return ok
}

func (s *Scheduler) handlerAdvance(tick uint64) {
	if h, ok := s.handler.(*StubHandler); ok {
		h.AdvanceTick(tick)
	}
}

// processTimedEvents is step 1: drain every queue entry whose fire_tick has
// arrived, dispatching spawns, timeout firings, and scheduled retries.
func (s *Scheduler) processTimedEvents() error {
	for {
		fireTick, ev, err := s.queue.Peek()
		if err == ErrQueueEmpty || fireTick > s.tick {
			return nil
		}
		if _, _, err := s.queue.Pop(); err != nil {
			return err
		}
		switch ev.Kind {
		case EventSpawn:
			v, ok := s.vus[ev.VUID]
			if !ok {
				continue
			}
			if err := v.TransitionTo(StateReady, s.tick); err != nil {
				continue
			}
			if err := s.ledger.Append(s.tick, v.ID, KindVUReady, [recordPayloadSize]byte{}); err != nil {
				return err
			}
		case EventRetry:
			delete(s.suppressed, ev.VUID)
		case EventTimeout:
			if err := s.handleTimeout(ev.VUID, ev.RequestID); err != nil {
				return err
			}
		}
		if s.activationPaused && s.queue.Len() <= s.cfg.QueueLowWaterMark {
			s.activationPaused = false
		}
	}
}

func (s *Scheduler) handleTimeout(vuID uint32, requestID uint64) error {
	v, ok := s.vus[vuID]
	if !ok || v.PendingRequestID != requestID {
		// Response already arrived and cleared the pending slot; this
		// timeout is stale and ignored.
		return nil
	}
	s.handler.CancelRequest(RequestID(requestID))
	delete(s.requestOwner, requestID)
	if err := s.ledger.Append(s.tick, vuID, KindRequestTimeout, RequestTimeoutPayload{RequestID: requestID}.Encode()); err != nil {
		return err
	}
	v.RecordRetry()
	if v.RetryCount() > s.scenario.Runtime.MaxRetriesPerStep {
		return s.completeVU(v)
	}
	if err := v.TransitionTo(StateReady, s.tick); err != nil {
		return err
	}
	if err := s.ledger.Append(s.tick, vuID, KindVUReady, [recordPayloadSize]byte{}); err != nil {
		return err
	}
	return nil
}

// completeVU moves v to StateComplete, appends KindVUComplete, and closes
// and frees its connection slot, whatever path led it here (a terminal
// response or a retry budget exhausted by repeated timeouts).
func (s *Scheduler) completeVU(v *VU) error {
	if err := v.TransitionTo(StateComplete, s.tick); err != nil {
		return err
	}
	if err := s.ledger.Append(s.tick, v.ID, KindVUComplete, [recordPayloadSize]byte{}); err != nil {
		return err
	}
	if conn, ok := s.vuConn[v.ID]; ok {
		_ = s.handler.Close(conn)
		delete(s.vuConn, v.ID)
		if err := s.ledger.Append(s.tick, v.ID, KindConnClosed, [recordPayloadSize]byte{}); err != nil {
			return err
		}
	}
	return nil
}

// activateReadyCohorts is step 2: group READY VUs by scenario_step and let
// each cohort, in ascending step order with ids ascending within a cohort,
// emit one request. Cohort order and within-cohort id order are both fixed
// so dispatch is reproducible across replays of the same seed.
func (s *Scheduler) activateReadyCohorts() error {
	if s.activationPaused {
		return nil
	}
	cohorts := make(map[uint32][]*VU)
	for _, v := range s.vus {
		if v.CanExecute() && !s.suppressed[v.ID] {
			cohorts[v.ScenarioStep] = append(cohorts[v.ScenarioStep], v)
		}
	}
	steps := make([]uint32, 0, len(cohorts))
	for step := range cohorts {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })

	for _, step := range steps {
		group := cohorts[step]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for _, v := range group {
			if err := s.activateOne(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scheduler) activateOne(v *VU) error {
	reqSpec, err := s.scenario.SelectRequest(s.prng)
	if err != nil {
		return err
	}
	conn, ok := s.vuConn[v.ID]
	if !ok {
		c, err := s.handler.Connect(s.scenario.Target)
		if err != nil {
			return s.scheduleConnectRetry(v)
		}
		conn = c
		s.vuConn[v.ID] = conn
		if err := s.ledger.Append(s.tick, v.ID, KindConnEstablished, ConnEstablishedPayload{ConnID: uint64(conn)}.Encode()); err != nil {
			return err
		}
	}

	timeoutTicks := reqSpec.TimeoutTicks
	if timeoutTicks == 0 {
		timeoutTicks = s.cfg.DefaultTimeoutTicks
	}
	reqID, err := s.handler.Send(conn, Request{
		Method:       string(reqSpec.Method),
		Path:         reqSpec.Path,
		HeaderCount:  reqSpec.HeaderCount,
		BodySize:     reqSpec.BodySize,
		TimeoutTicks: timeoutTicks,
	})
	if err != nil {
		return s.scheduleConnectRetry(v)
	}

	if err := v.TransitionTo(StateExecuting, s.tick); err != nil {
		return err
	}
	payload := RequestIssuedPayload{RequestID: uint64(reqID), HeaderCount: uint16(reqSpec.HeaderCount), BodySize: uint32(reqSpec.BodySize)}
	copy(payload.Method[:], []byte(reqSpec.Method))
	if err := s.ledger.Append(s.tick, v.ID, KindRequestIssued, payload.Encode()); err != nil {
		return err
	}

	timeoutTick := s.tick + timeoutTicks
	v.BeginRequest(uint64(reqID), timeoutTick)
	s.requestOwner[uint64(reqID)] = v.ID
	if err := s.queue.Push(timeoutTick, Event{VUID: v.ID, Kind: EventTimeout, RequestID: uint64(reqID)}); err != nil {
		if err := s.ledger.Append(s.tick, v.ID, KindWarningQueueFull, [recordPayloadSize]byte{}); err != nil {
			return err
		}
		s.activationPaused = true
	}
	return v.TransitionTo(StateWaiting, s.tick)
}

// scheduleConnectRetry is the connection-pool-exhausted backpressure
// policy: treat the failed send/connect as a retryable event fired after a
// deterministic PRNG-drawn delay, per spec.md §4.7.
func (s *Scheduler) scheduleConnectRetry(v *VU) error {
	delay, err := s.prng.Range(8)
	if err != nil {
		return err
	}
	s.suppressed[v.ID] = true
	return s.queue.Push(s.tick+1+delay, Event{VUID: v.ID, Kind: EventRetry})
}

// pollHandler is step 3: drain handler completions and fold each into the
// owning VU's state and the ledger.
func (s *Scheduler) pollHandler() error {
	var completions []Completion
	s.handler.Poll(&completions)
	for _, c := range completions {
		vuID, ok := s.requestOwner[uint64(c.RequestID)]
		if !ok {
			continue
		}
		v, ok := s.vus[vuID]
		if !ok || v.PendingRequestID != uint64(c.RequestID) {
			if err := s.ledger.Append(s.tick, vuID, KindRequestCancelled, RequestCancelledPayload{RequestID: uint64(c.RequestID)}.Encode()); err != nil {
				return err
			}
			delete(s.requestOwner, uint64(c.RequestID))
			continue
		}
		delete(s.requestOwner, uint64(c.RequestID))

		if c.Response != nil {
			if err := s.ledger.Append(s.tick, vuID, KindResponseReceived, ResponseReceivedPayload{
				RequestID:  uint64(c.RequestID),
				StatusCode: c.Response.StatusCode,
				HeaderSize: c.Response.HeaderSize,
				BodySize:   c.Response.BodySize,
				LatencyNS:  c.Response.LatencyNS,
			}.Encode()); err != nil {
				return err
			}
		} else if c.Err != nil {
			if err := s.ledger.Append(s.tick, vuID, KindResponseError, ResponseErrorPayload{
				RequestID: uint64(c.RequestID),
				ErrorKind: c.Err.Kind,
			}.Encode()); err != nil {
				return err
			}
		}

		v.CompleteRequest()
		if err := v.TransitionTo(StateReady, s.tick); err != nil {
			return err
		}
		if v.ScenarioStep >= s.terminalStep {
			if err := s.completeVU(v); err != nil {
				return err
			}
		} else {
			if err := s.ledger.Append(s.tick, vuID, KindVUReady, [recordPayloadSize]byte{}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scheduler) abortResourceExhausted(cause error) error {
	_ = s.ledger.Append(s.tick, 0, KindErrorResourceExhausted, [recordPayloadSize]byte{})
	return fmt.Errorf("%w: %v", ErrResourceExhausted, cause)
}

// teardown cancels any pending requests as timeouts, flushes, and lets the
// caller write the footer via Ledger.Finalize.
func (s *Scheduler) teardown() error {
	// Map iteration order is randomized; cancel in request-ID order so the
	// timeout records land in the ledger identically on every run.
	reqIDs := make([]uint64, 0, len(s.requestOwner))
	for reqID := range s.requestOwner {
		reqIDs = append(reqIDs, reqID)
	}
	sort.Slice(reqIDs, func(i, j int) bool { return reqIDs[i] < reqIDs[j] })
	for _, reqID := range reqIDs {
		vuID := s.requestOwner[reqID]
		s.handler.CancelRequest(RequestID(reqID))
		if err := s.ledger.Append(s.tick, vuID, KindRequestTimeout, RequestTimeoutPayload{RequestID: reqID}.Encode()); err != nil {
			return err
		}
	}
	s.requestOwner = make(map[uint64]uint32)
	if err := s.ledger.Flush(); err != nil {
		return s.abortResourceExhausted(err)
	}
	return nil
}
