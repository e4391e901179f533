package core

// scenario.go defines ScenarioProjection (component J): the read-only view
// of a validated scenario the scheduler consumes. Scenario file parsing
// and semantic validation are an external loader's job per spec.md §1/§6;
// this type is the contract at that boundary. internal/runconfig's YAML
// loader produces values of this shape for the CLI and for tests, but the
// core package itself never parses scenario files.

// MaxVUsHardCeiling is the absolute upper bound on runtime.vus a scenario
// may request, independent of any memory budget check.
const MaxVUsHardCeiling = 100_000

// MaxEventsHardCeiling is the event queue capacity NewScheduler falls back
// to when SchedulerConfig.MaxEvents is zero or negative. Larger MaxEvents
// values are not rejected.
const MaxEventsHardCeiling = 1_000_000

// RequestMethod is the closed set of HTTP-style methods a scenario request
// may use.
type RequestMethod string

const (
	MethodGET     RequestMethod = "GET"
	MethodPOST    RequestMethod = "POST"
	MethodPUT     RequestMethod = "PUT"
	MethodDELETE  RequestMethod = "DELETE"
	MethodPATCH   RequestMethod = "PATCH"
	MethodHEAD    RequestMethod = "HEAD"
	MethodOPTIONS RequestMethod = "OPTIONS"
)

// RequestSpec is one weighted request definition within a scenario.
type RequestSpec struct {
	Name         string
	Method       RequestMethod
	Path         string
	HeaderCount  int
	BodySize     int
	TimeoutTicks uint64
	Weight       uint64
}

// ScheduleType names how VUs are admitted into the run over time. The
// loader carries Type and Parameters into the projection, but the
// scheduler does not read them: every VU passed to Scheduler.Spawn is
// queued for activation at the current tick, whatever the schedule.
type ScheduleType string

const (
	ScheduleConstant ScheduleType = "constant"
	ScheduleRamp     ScheduleType = "ramp"
	ScheduleSpike    ScheduleType = "spike"
	ScheduleSteps    ScheduleType = "steps"
)

// Schedule describes the VU admission curve.
type Schedule struct {
	Type       ScheduleType
	Parameters map[string]float64
}

// AssertionKind is the closed set of declarative post-run predicates.
type AssertionKind string

const (
	AssertP99LatencyMS AssertionKind = "p99_latency_ms"
	AssertErrorRate    AssertionKind = "error_rate"
	AssertSuccessRate  AssertionKind = "success_rate"
)

// Assertion is one declarative predicate evaluated against final metrics,
// never during the run.
type Assertion struct {
	Kind      AssertionKind
	Threshold float64
	LessThan  bool // true: metric < Threshold; false: metric > Threshold
}

// ScenarioMetadata is informational and contributes to the scenario hash
// recorded in the ledger header.
type ScenarioMetadata struct {
	Name    string
	Version string
}

// ScenarioRuntime holds the run-shaping fields the scheduler is configured
// from directly.
type ScenarioRuntime struct {
	DurationTicks     uint32
	VUs               uint32
	PRNGSeed          uint64 // 0 means derive from entropy; internal/runconfig substitutes a derived seed
	MaxRetriesPerStep uint32
}

// ScenarioProjection is the read-only configuration object the external
// loader hands to the scheduler.
type ScenarioProjection struct {
	Metadata   ScenarioMetadata
	Runtime    ScenarioRuntime
	Target     Target
	Requests   []RequestSpec
	Schedule   Schedule
	Assertions []Assertion
}

// TotalWeight sums the weight of every request in the scenario.
func (s *ScenarioProjection) TotalWeight() uint64 {
	var total uint64
	for _, r := range s.Requests {
		total += r.Weight
	}
	return total
}

// Validate performs the minimal Configuration-class checks the kernel
// itself relies on (as opposed to full scenario semantic validation, which
// stays with the external loader): at least one request with nonzero
// weight, and runtime.vus within the hard ceiling.
func (s *ScenarioProjection) Validate() error {
	if s.Runtime.VUs > MaxVUsHardCeiling {
		return ErrTooManyVUs
	}
	if s.TotalWeight() == 0 {
		return ErrNoWeightedRequests
	}
	return nil
}

// SelectRequest draws one RequestSpec using cumulative-weight search over a
// single PRNG draw in [0, TotalWeight) — SPEC_FULL.md's resolution of Open
// Question 3. Zero-weight requests are structurally never selected since
// they never own a nonzero slice of the cumulative range.
func (s *ScenarioProjection) SelectRequest(p *PRNG) (RequestSpec, error) {
	total := s.TotalWeight()
	if total == 0 {
		return RequestSpec{}, ErrNoWeightedRequests
	}
	draw, err := p.Range(total)
	if err != nil {
		return RequestSpec{}, err
	}
	var cumulative uint64
	for _, r := range s.Requests {
		if r.Weight == 0 {
			continue
		}
		cumulative += r.Weight
		if draw < cumulative {
			return r, nil
		}
	}
	// Unreachable if TotalWeight is computed correctly; fall back to the
	// last nonzero-weight request defensively.
	for i := len(s.Requests) - 1; i >= 0; i-- {
		if s.Requests[i].Weight > 0 {
			return s.Requests[i], nil
		}
	}
	return RequestSpec{}, ErrNoWeightedRequests
}
