package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/copyleftdev/z6sim/core"
)

type stubReportService struct{}

func (s *stubReportService) Metrics() core.RunMetrics {
	return core.RunMetrics{Requests: core.RequestMetrics{Total: 10, Success: 9, Failed: 1}}
}

func (s *stubReportService) Info() map[string]interface{} {
	return map[string]interface{}{"record_count": 42}
}

func (s *stubReportService) RecordsByKind(kind core.RecordKind, count int) []core.Record {
	if kind != core.KindResponseReceived {
		return nil
	}
	recs := make([]core.Record, 0, count)
	for i := 0; i < count && i < 3; i++ {
		recs = append(recs, core.Record{Kind: kind})
	}
	return recs
}

func newTestServer() *Server {
	return NewServer(":0", &stubReportService{})
}

func TestHandleInfo(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var res map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res["record_count"].(float64) != 42 {
		t.Fatalf("unexpected info: %v", res)
	}
}

func TestHandleMetrics(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var res core.RunMetrics
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Requests.Total != 10 {
		t.Fatalf("expected total 10, got %d", res.Requests.Total)
	}
}

func TestHandleRecordsInvalidKind(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/records/not-a-number", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleRecordsCountTooLarge(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/records/7?count=5000", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleRecordsSuccess(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/records/7?count=2", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var res []core.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res))
	}
}

func TestHandlePrometheusMetrics(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
