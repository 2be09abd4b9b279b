package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestInstrumentHandlerRecordsMetrics(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/proj_123", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	if !metricCounterGreaterOrEqual(t, "agentcp_http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/v1/projects/:id",
		"status": "202",
	}, 1) {
		t.Fatalf("expected http request counter to increment")
	}

	if !metricHistogramCountGreaterOrEqual(t, "agentcp_http_request_duration_seconds", map[string]string{
		"method": "GET",
		"path":   "/v1/projects/:id",
	}, 1) {
		t.Fatalf("expected http duration histogram to record samples")
	}
}

func TestInstrumentHandler_MetricsPathPassthrough(t *testing.T) {
	called := false
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected /metrics path to pass through to handler")
	}
}

func TestRecordFunctionExecution(t *testing.T) {
	RecordFunctionExecution("unit-test-status", 250*time.Millisecond)
	if !metricCounterGreaterOrEqual(t, "agentcp_functions_executions_total", map[string]string{
		"status": "unit-test-status",
	}, 1) {
		t.Fatalf("expected function execution counter to increase")
	}
	if !metricHistogramCountGreaterOrEqual(t, "agentcp_functions_execution_duration_seconds", map[string]string{
		"status": "unit-test-status",
	}, 1) {
		t.Fatalf("expected function execution duration histogram to record")
	}
}

func TestRecordQuotaRejection(t *testing.T) {
	RecordQuotaRejection("proj_quota_test")
	if !metricCounterGreaterOrEqual(t, "agentcp_quota_rejections_total", map[string]string{
		"project_id": "proj_quota_test",
	}, 1) {
		t.Fatalf("expected quota rejection counter to increase")
	}

	RecordQuotaRejection("")
	if !metricCounterGreaterOrEqual(t, "agentcp_quota_rejections_total", map[string]string{
		"project_id": "unknown",
	}, 1) {
		t.Fatalf("expected empty project id to fall back to unknown label")
	}
}

func TestRecordRateLimitRejection(t *testing.T) {
	RecordRateLimitRejection("per_second")
	if !metricCounterGreaterOrEqual(t, "agentcp_ratelimit_rejections_total", map[string]string{
		"window": "per_second",
	}, 1) {
		t.Fatalf("expected rate limit rejection counter to increase")
	}
}

func TestObservationHooks(t *testing.T) {
	hooks := ObservationHooks("test_ns", "test_sub", "test_op")

	if hooks.OnStart == nil {
		t.Fatal("OnStart should not be nil")
	}
	if hooks.OnComplete == nil {
		t.Fatal("OnComplete should not be nil")
	}

	hooks.OnStart(nil, map[string]string{"resource": "test-res"})
	hooks.OnComplete(nil, map[string]string{"resource": "test-res"}, nil, 100*time.Millisecond)
	hooks.OnComplete(nil, map[string]string{"resource": "test-res"}, fmt.Errorf("test error"), 50*time.Millisecond)

	hooks2 := ObservationHooks("test_ns", "test_sub", "test_op")
	if hooks2.OnStart == nil || hooks2.OnComplete == nil {
		t.Fatal("cached hooks should be valid")
	}
}

func TestDomainHookFactories(t *testing.T) {
	tests := []struct {
		name  string
		hooks func() interface{}
	}{
		{"OAuth2RefreshHooks", func() interface{} { return OAuth2RefreshHooks() }},
		{"OAuth2CallbackHooks", func() interface{} { return OAuth2CallbackHooks() }},
		{"PolicyJudgeHooks", func() interface{} { return PolicyJudgeHooks() }},
		{"DiscoverySearchHooks", func() interface{} { return DiscoverySearchHooks() }},
		{"ConnectorDispatchHooks", func() interface{} { return ConnectorDispatchHooks("MOCK") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.hooks()
			if result == nil {
				t.Errorf("%s() returned nil", tt.name)
			}
		})
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unknown"},
		{"MOCK", "mock"},
		{"agent-secrets.manager", "agent_secrets_manager"},
	}
	for _, tt := range tests {
		if got := sanitizeLabel(tt.input); got != tt.expected {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"/healthz", "/healthz"},
		{"/v1/projects", "/v1/projects"},
		{"/v1/projects/proj_123", "/v1/projects/:id"},
		{"/v1/projects/proj_123/agents", "/v1/projects/:id/agents"},
		{"/v1/agents/agt_456", "/v1/agents/:id"},
		{"/v1/apps/slack", "/v1/apps/:id"},
		{"/v1/functions/SLACK__SEND_MESSAGE", "/v1/functions/:id"},
		{"/v1/linked-accounts/la_789", "/v1/linked-accounts/:id"},
	}
	for _, tt := range tests {
		if got := canonicalPath(tt.input); got != tt.expected {
			t.Errorf("canonicalPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func metricCounterGreaterOrEqual(t *testing.T, name string, labels map[string]string, min float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue() >= min
			}
		}
	}
	return false
}

func metricHistogramCountGreaterOrEqual(t *testing.T, name string, labels map[string]string, min uint64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetHistogram() != nil {
				return metric.GetHistogram().GetSampleCount() >= min
			}
		}
	}
	return false
}

func labelsMatch(metric *io_prometheus_client.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	matched := 0
	for _, lbl := range metric.GetLabel() {
		if val, ok := labels[lbl.GetName()]; ok && val == lbl.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}
