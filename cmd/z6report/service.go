package main

import (
	"fmt"

	"github.com/copyleftdev/z6sim/core"
)

// ReportService wraps a finalized ledger and its reduction, the data the
// report server's handlers read. It is built once at startup from a
// completed run's ledger file and never mutated afterward.
type ReportService struct {
	loaded  *core.LoadedLedger
	metrics core.RunMetrics
}

// NewReportService loads and reduces the ledger at path.
func NewReportService(path string) (*ReportService, error) {
	loaded, err := core.ReadLedgerFile(path)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return &ReportService{loaded: loaded, metrics: core.Reduce(loaded)}, nil
}

// Metrics returns the reduced run metrics.
func (s *ReportService) Metrics() core.RunMetrics { return s.metrics }

// Info returns a small run summary.
func (s *ReportService) Info() map[string]interface{} {
	return map[string]interface{}{
		"record_count": len(s.loaded.Records),
		"start_tick":   s.metrics.StartTick,
		"end_tick":     s.metrics.EndTick,
		"prng_seed":    s.loaded.Header.PRNGSeed,
	}
}

// RecordsByKind returns up to count records of the given kind, most recent
// first. count <= 0 means unbounded.
func (s *ReportService) RecordsByKind(kind core.RecordKind, count int) []core.Record {
	var out []core.Record
	for i := len(s.loaded.Records) - 1; i >= 0; i-- {
		r := s.loaded.Records[i]
		if r.Kind != kind {
			continue
		}
		out = append(out, r)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out
}
