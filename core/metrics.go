package core

// metrics.go implements the single-pass metrics reducer (component H's
// other half): it replays a LoadedLedger exactly once and folds every
// record into the accumulator types spec.md §3/§4.8 define. The reducer
// never mutates the ledger and runs entirely after a run's teardown, so it
// has no determinism obligations of its own beyond reading records in
// append order.

// RequestMetrics summarizes request volume and disposition.
type RequestMetrics struct {
	Total         uint64
	Success       uint64
	Failed        uint64
	Cancelled     uint64 // late completions superseded by an already-counted timeout
	ByMethod      map[string]uint64
	ByStatusClass map[int]uint64
}

// LatencyMetrics summarizes response latency in nanoseconds, derived from
// the histogram.
type LatencyMetrics struct {
	Min         int64
	Max         int64
	Mean        float64
	P50         int64
	P90         int64
	P95         int64
	P99         int64
	P999        int64
	SampleCount uint64
}

// ThroughputMetrics summarizes request completion rate over logical ticks.
type ThroughputMetrics struct {
	ResponseCount      uint64
	TotalDurationTicks uint64
	RequestsPerTick    float64
}

// ConnectionMetrics summarizes connection establishment.
type ConnectionMetrics struct {
	Total                uint64
	Errors               uint64
	AvgConnectionTimeNS  float64
	Reused               uint64
}

// ErrorMetrics summarizes the typed error taxonomy.
type ErrorMetrics struct {
	Total     uint64
	ErrorRate float64
	PerKind   map[ProtocolErrorKind]uint64
}

// RunMetrics is the full reduction over one ledger.
type RunMetrics struct {
	Requests   RequestMetrics
	Latency    LatencyMetrics
	Throughput ThroughputMetrics
	Connection ConnectionMetrics
	Errors     ErrorMetrics
	StartTick  uint64
	EndTick    uint64
}

// Reduce performs the single-pass reduction spec.md §4.8 describes.
func Reduce(ledger *LoadedLedger) RunMetrics {
	hist := NewHistogram(1, 3_600_000_000_000, 3) // 1ns .. 1h, 3 sig figs

	m := RunMetrics{
		Requests: RequestMetrics{ByMethod: make(map[string]uint64), ByStatusClass: make(map[int]uint64)},
		Errors:   ErrorMetrics{PerKind: make(map[ProtocolErrorKind]uint64)},
	}

	var latencySum float64
	var connTimeSum float64
	first := true

	for _, r := range ledger.Records {
		if first || r.Tick < m.StartTick {
			m.StartTick = r.Tick
		}
		if r.Tick > m.EndTick {
			m.EndTick = r.Tick
		}
		first = false

		switch r.Kind {
		case KindRequestIssued:
			p := DecodeRequestIssued(r.Payload)
			m.Requests.Total++
			method := decodeMethodString(p.Method)
			m.Requests.ByMethod[method]++

		case KindResponseReceived:
			p := DecodeResponseReceived(r.Payload)
			if err := hist.RecordValue(int64(p.LatencyNS)); err == nil {
				latencySum += float64(p.LatencyNS)
			}
			statusClass := int(p.StatusCode) / 100
			m.Requests.ByStatusClass[statusClass]++
			if p.StatusCode < 400 {
				m.Requests.Success++
			} else {
				m.Requests.Failed++
			}
			m.Throughput.ResponseCount++

		case KindResponseError:
			p := DecodeResponseError(r.Payload)
			m.Requests.Failed++
			m.Errors.Total++
			m.Errors.PerKind[p.ErrorKind]++

		case KindRequestTimeout:
			m.Requests.Failed++
			m.Errors.Total++
			m.Errors.PerKind[ErrKindRequestTimeout]++

		case KindRequestCancelled:
			// A late completion for a request already counted failed when
			// its timeout fired; record it without double-counting.
			m.Requests.Cancelled++

		case KindErrorDNS, KindErrorTCP, KindErrorTLS, KindErrorHTTP,
			KindErrorTimeout, KindErrorProtocolViolation, KindErrorResourceExhausted:
			m.Errors.Total++
			m.Errors.PerKind[kindToErrorKind(r.Kind)]++

		case KindConnEstablished:
			p := DecodeConnEstablished(r.Payload)
			m.Connection.Total++
			connTimeSum += float64(p.ConnTimeNS)

		case KindConnError:
			m.Connection.Errors++
		}
	}

	m.Latency.SampleCount = hist.TotalCount()
	m.Latency.Min = hist.Min()
	m.Latency.Max = hist.Max()
	if hist.TotalCount() > 0 {
		m.Latency.Mean = latencySum / float64(hist.TotalCount())
	}
	m.Latency.P50 = hist.ValueAtPercentile(50)
	m.Latency.P90 = hist.ValueAtPercentile(90)
	m.Latency.P95 = hist.ValueAtPercentile(95)
	m.Latency.P99 = hist.ValueAtPercentile(99)
	m.Latency.P999 = hist.ValueAtPercentile(99.9)

	if m.Connection.Total > 0 {
		m.Connection.AvgConnectionTimeNS = connTimeSum / float64(m.Connection.Total)
	}

	m.Throughput.TotalDurationTicks = m.EndTick - m.StartTick
	if m.Throughput.TotalDurationTicks > 0 {
		m.Throughput.RequestsPerTick = float64(m.Throughput.ResponseCount) / float64(m.Throughput.TotalDurationTicks)
	}

	if m.Requests.Success+m.Requests.Failed > 0 {
		// success rate lives on RequestMetrics implicitly via Success/Failed;
		// error rate is reported against total completed requests.
		m.Errors.ErrorRate = float64(m.Requests.Failed) / float64(m.Requests.Success+m.Requests.Failed)
	}

	return m
}

func decodeMethodString(b [8]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func kindToErrorKind(k RecordKind) ProtocolErrorKind {
	switch k {
	case KindErrorDNS:
		return ErrKindDNSFailure
	case KindErrorTCP:
		return ErrKindSocketError
	case KindErrorTLS:
		return ErrKindTLSHandshakeFailed
	case KindErrorHTTP:
		return ErrKindInvalidResponse
	case KindErrorTimeout:
		return ErrKindRequestTimeout
	case KindErrorProtocolViolation:
		return ErrKindProtocolViolation
	case KindErrorResourceExhausted:
		return ErrKindPoolExhausted
	default:
		return ErrKindUnspecified
	}
}

// SuccessRate returns success / (success + failed), or 0 if none completed.
func (m RequestMetrics) SuccessRate() float64 {
	denom := m.Success + m.Failed
	if denom == 0 {
		return 0
	}
	return float64(m.Success) / float64(denom)
}

// EvaluateAssertions checks each Assertion from a ScenarioProjection against
// the reduced metrics, returning the subset that failed.
func EvaluateAssertions(assertions []Assertion, m RunMetrics) []Assertion {
	var failed []Assertion
	for _, a := range assertions {
		var actual float64
		switch a.Kind {
		case AssertP99LatencyMS:
			actual = float64(m.Latency.P99) / 1e6
		case AssertErrorRate:
			actual = m.Errors.ErrorRate
		case AssertSuccessRate:
			actual = m.Requests.SuccessRate()
		default:
			continue
		}
		ok := actual > a.Threshold
		if a.LessThan {
			ok = actual < a.Threshold
		}
		if !ok {
			failed = append(failed, a)
		}
	}
	return failed
}
