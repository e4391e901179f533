package core

import "testing"

func sampleScenario() *ScenarioProjection {
	return &ScenarioProjection{
		Metadata: ScenarioMetadata{Name: "smoke", Version: "1"},
		Runtime:  ScenarioRuntime{DurationTicks: 1000, VUs: 10, PRNGSeed: 42},
		Target:   Target{Host: "example.test", Port: 443, TLS: true},
		Requests: []RequestSpec{
			{Name: "home", Method: MethodGET, Path: "/", Weight: 3},
			{Name: "login", Method: MethodPOST, Path: "/login", Weight: 1},
			{Name: "dead", Method: MethodGET, Path: "/dead", Weight: 0},
		},
		Schedule: Schedule{Type: ScheduleConstant, Parameters: map[string]float64{"vus": 10}},
	}
}

func TestScenarioTotalWeight(t *testing.T) {
	s := sampleScenario()
	if got := s.TotalWeight(); got != 4 {
		t.Fatalf("expected total weight 4, got %d", got)
	}
}

func TestScenarioValidateRejectsTooManyVUs(t *testing.T) {
	s := sampleScenario()
	s.Runtime.VUs = MaxVUsHardCeiling + 1
	if err := s.Validate(); err != ErrTooManyVUs {
		t.Fatalf("expected ErrTooManyVUs, got %v", err)
	}
}

func TestScenarioValidateRejectsNoWeightedRequests(t *testing.T) {
	s := sampleScenario()
	s.Requests = []RequestSpec{{Name: "dead", Weight: 0}}
	if err := s.Validate(); err != ErrNoWeightedRequests {
		t.Fatalf("expected ErrNoWeightedRequests, got %v", err)
	}
}

func TestScenarioValidateAccepts(t *testing.T) {
	s := sampleScenario()
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid scenario, got %v", err)
	}
}

func TestScenarioSelectRequestNeverPicksZeroWeight(t *testing.T) {
	s := sampleScenario()
	p := NewPRNG(7)
	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		r, err := s.SelectRequest(p)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[r.Name]++
	}
	if counts["dead"] != 0 {
		t.Fatalf("zero-weight request was selected %d times", counts["dead"])
	}
	if counts["home"] == 0 || counts["login"] == 0 {
		t.Fatalf("expected both nonzero-weight requests to appear, got %+v", counts)
	}
}

func TestScenarioSelectRequestDeterministic(t *testing.T) {
	s := sampleScenario()
	a := NewPRNG(99)
	b := NewPRNG(99)
	for i := 0; i < 50; i++ {
		ra, err := s.SelectRequest(a)
		if err != nil {
			t.Fatalf("select a: %v", err)
		}
		rb, err := s.SelectRequest(b)
		if err != nil {
			t.Fatalf("select b: %v", err)
		}
		if ra.Name != rb.Name {
			t.Fatalf("same seed diverged at iteration %d: %s vs %s", i, ra.Name, rb.Name)
		}
	}
}

func TestScenarioSelectRequestNoWeights(t *testing.T) {
	s := &ScenarioProjection{}
	p := NewPRNG(1)
	if _, err := s.SelectRequest(p); err != ErrNoWeightedRequests {
		t.Fatalf("expected ErrNoWeightedRequests, got %v", err)
	}
}
