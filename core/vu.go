package core

// vu.go implements the VU (virtual user) state machine (component E). The
// scheduler is the sole mutator: a VU's state changes only via TransitionTo,
// which only ever moves a VU along the edges in spec.md §4.5's table; its
// request bookkeeping changes via BeginRequest, CompleteRequest and
// RecordRetry.

// VUState enumerates the lifecycle stages of a virtual user.
type VUState uint8

const (
	StateSpawned VUState = iota
	StateReady
	StateExecuting
	StateWaiting
	StateComplete
)

func (s VUState) String() string {
	switch s {
	case StateSpawned:
		return "SPAWNED"
	case StateReady:
		return "READY"
	case StateExecuting:
		return "EXECUTING"
	case StateWaiting:
		return "WAITING"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// transitionAllowed mirrors spec.md §4.5's table exactly: TransitionTo
// rejects any edge not listed here with ErrIllegalTransition.
var transitionAllowed = map[VUState]map[VUState]bool{
	StateSpawned:   {StateReady: true},
	StateReady:     {StateExecuting: true, StateComplete: true},
	StateExecuting: {StateWaiting: true},
	StateWaiting:   {StateReady: true, StateComplete: true},
	StateComplete:  {},
}

// VU is a single virtual user's state. Only the scheduler mutates it.
type VU struct {
	ID                 uint32
	State              VUState
	SpawnTick          uint64
	LastTransitionTick uint64
	ScenarioStep       uint32
	PendingRequestID   uint64 // 0 means none
	TimeoutTick        uint64 // 0 means none
	retriesThisStep    uint32
}

// NewVU constructs a VU in the SPAWNED state.
func NewVU(id uint32, spawnTick uint64) *VU {
	return &VU{ID: id, State: StateSpawned, SpawnTick: spawnTick, LastTransitionTick: spawnTick}
}

// IsActive reports whether the VU is neither SPAWNED nor COMPLETE.
func (v *VU) IsActive() bool { return v.State != StateSpawned && v.State != StateComplete }

// IsComplete reports whether the VU has finished its scenario.
func (v *VU) IsComplete() bool { return v.State == StateComplete }

// CanExecute reports whether the VU is eligible to emit its next step,
// exactly iff it is READY.
func (v *VU) CanExecute() bool { return v.State == StateReady }

// TransitionTo moves the VU to newState at logical tick now. It requires
// now >= LastTransitionTick and that (State -> newState) is a permitted
// edge; any other attempt returns an error rather than mutating state,
// since the state machine's invariants are relied upon throughout the
// scheduler and ledger causality checks.
func (v *VU) TransitionTo(newState VUState, now uint64) error {
	if now < v.LastTransitionTick {
		return ErrStaleTick
	}
	allowed, ok := transitionAllowed[v.State]
	if !ok || !allowed[newState] {
		return ErrIllegalTransition
	}
	if newState == StateWaiting && v.PendingRequestID == 0 {
		return ErrIllegalTransition
	}

	v.State = newState
	v.LastTransitionTick = now

	switch newState {
	case StateReady:
		v.TimeoutTick = 0
	case StateComplete:
		v.PendingRequestID = 0
		v.TimeoutTick = 0
	}
	return nil
}

// BeginRequest records that request has been handed to the protocol
// handler with the given timeout tick, ahead of the EXECUTING -> WAITING
// transition.
func (v *VU) BeginRequest(requestID uint64, timeoutTick uint64) {
	v.PendingRequestID = requestID
	v.TimeoutTick = timeoutTick
}

// CompleteRequest clears the pending request slot, advances the scenario
// step counter, and resets the per-step retry counter.
func (v *VU) CompleteRequest() {
	v.PendingRequestID = 0
	v.TimeoutTick = 0
	v.ScenarioStep++
	v.retriesThisStep = 0
}

// RetryCount returns the number of timeouts already observed on the VU's
// current scenario step.
func (v *VU) RetryCount() uint32 { return v.retriesThisStep }

// RecordRetry increments the per-step retry counter, used to enforce
// max_retries_per_step (SPEC_FULL.md's resolution of Open Question 2).
func (v *VU) RecordRetry() { v.retriesThisStep++ }
