package core

import (
	"path/filepath"
	"testing"
)

func testScenario(requestWeight uint64) *ScenarioProjection {
	return &ScenarioProjection{
		Metadata: ScenarioMetadata{Name: "bench", Version: "1"},
		Runtime:  ScenarioRuntime{DurationTicks: 500, VUs: 4, PRNGSeed: 1},
		Target:   Target{Host: "svc.internal", Port: 8080},
		Requests: []RequestSpec{
			{Name: "ping", Method: MethodGET, Path: "/ping", Weight: requestWeight, TimeoutTicks: 10},
		},
	}
}

func newSchedulerTestLedger(t *testing.T, seed uint64) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.z6log")
	l, err := NewLedger(path, 0, seed, [32]byte{}, 0, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func TestSchedulerRunCompletesAllVUs(t *testing.T) {
	scenario := testScenario(1)
	handler := NewStubHandler(8, 2, nil)
	ledger := newSchedulerTestLedger(t, scenario.Runtime.PRNGSeed)

	sched, err := NewScheduler(SchedulerConfig{
		MaxVUs:              scenario.Runtime.VUs,
		DurationTicks:       scenario.Runtime.DurationTicks,
		PRNGSeed:            scenario.Runtime.PRNGSeed,
		DefaultTimeoutTicks: 10,
		FlushIntervalTicks:  50,
		MemoryBudgetBytes:   1 << 20,
		QueueLowWaterMark:   1,
	}, scenario, handler, ledger, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := sched.Spawn(scenario.Runtime.VUs); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := sched.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sched.AllComplete() {
		t.Fatalf("expected all VUs complete after Run")
	}
	if err := ledger.Finalize(0); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	foundSpawn, foundIssued, foundResponse, foundComplete := false, false, false, false
	it := ledger.Iter()
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		switch r.Kind {
		case KindVUSpawned:
			foundSpawn = true
		case KindRequestIssued:
			foundIssued = true
		case KindResponseReceived:
			foundResponse = true
		case KindVUComplete:
			foundComplete = true
		}
	}
	if !foundSpawn || !foundIssued || !foundResponse || !foundComplete {
		t.Fatalf("expected full lifecycle of record kinds, got spawn=%v issued=%v response=%v complete=%v",
			foundSpawn, foundIssued, foundResponse, foundComplete)
	}
}

func TestSchedulerTerminatesOnDurationTicks(t *testing.T) {
	scenario := testScenario(1)
	// readyDelay far larger than duration_ticks so no VU ever completes its
	// single step before the run hits its duration ceiling.
	handler := NewStubHandler(8, 10_000, nil)
	ledger := newSchedulerTestLedger(t, scenario.Runtime.PRNGSeed)

	sched, err := NewScheduler(SchedulerConfig{
		MaxVUs:              scenario.Runtime.VUs,
		DurationTicks:       20,
		PRNGSeed:            scenario.Runtime.PRNGSeed,
		DefaultTimeoutTicks: 10_000,
		FlushIntervalTicks:  5,
		MemoryBudgetBytes:   1 << 20,
		QueueLowWaterMark:   1,
	}, scenario, handler, ledger, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := sched.Spawn(scenario.Runtime.VUs); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := sched.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sched.Tick() != 20 {
		t.Fatalf("expected run to stop exactly at duration_ticks=20, got tick=%d", sched.Tick())
	}
	if sched.AllComplete() {
		t.Fatalf("expected VUs still in flight at duration cutoff")
	}
}

func TestSchedulerRejectsTooManyVUs(t *testing.T) {
	scenario := testScenario(1)
	handler := NewStubHandler(8, 1, nil)
	ledger := newSchedulerTestLedger(t, 1)
	_, err := NewScheduler(SchedulerConfig{MaxVUs: MaxVUsHardCeiling + 1, DurationTicks: 10}, scenario, handler, ledger, nil)
	if err != ErrTooManyVUs {
		t.Fatalf("expected ErrTooManyVUs, got %v", err)
	}
}

func TestSchedulerConnectionLimitTriggersRetryBackoff(t *testing.T) {
	scenario := testScenario(1)
	// Only one connection slot but four VUs: the rest must back off and
	// retry rather than spin forever on the same tick.
	handler := NewStubHandler(1, 1, nil)
	ledger := newSchedulerTestLedger(t, scenario.Runtime.PRNGSeed)

	sched, err := NewScheduler(SchedulerConfig{
		MaxVUs:              scenario.Runtime.VUs,
		DurationTicks:       200,
		PRNGSeed:            scenario.Runtime.PRNGSeed,
		DefaultTimeoutTicks: 10,
		FlushIntervalTicks:  50,
		MemoryBudgetBytes:   1 << 20,
		QueueLowWaterMark:   1,
	}, scenario, handler, ledger, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := sched.Spawn(scenario.Runtime.VUs); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := sched.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sched.AllComplete() {
		t.Fatalf("expected all VUs to eventually complete despite connection contention")
	}
}
