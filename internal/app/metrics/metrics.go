package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	core "github.com/r3e-network/agentcp/internal/app/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentcp",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentcp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentcp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	functionExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentcp",
			Subsystem: "functions",
			Name:      "executions_total",
			Help:      "Total number of function executions.",
		},
		[]string{"status"},
	)

	functionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentcp",
			Subsystem: "functions",
			Name:      "execution_duration_seconds",
			Help:      "Duration of function executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"status"},
	)

	quotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentcp",
			Subsystem: "quota",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected for exceeding a quota.",
		},
		[]string{"project_id"},
	)

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentcp",
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		},
		[]string{"window"},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		functionExecutions,
		functionDuration,
		quotaRejections,
		rateLimitRejections,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordFunctionExecution records metrics for executed functions (spec
// §4.8: status is "success"/"failure"/"error" — a downstream failure
// reported as Result.Success=false is "failure", a Go error returned by
// the execution engine is "error"). Calls rejected before dispatch
// (authorization, policy, credentials, input schema) are not recorded.
func RecordFunctionExecution(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	functionExecutions.WithLabelValues(status).Inc()
	functionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordQuotaRejection records a project's daily quota rejecting a call
// (spec §4.4).
func RecordQuotaRejection(projectID string) {
	if projectID == "" {
		projectID = "unknown"
	}
	quotaRejections.WithLabelValues(projectID).Inc()
}

// RecordRateLimitRejection records the rate limiter rejecting a request
// under the named window ("per_second" or "per_day", spec §5/§6).
func RecordRateLimitRejection(window string) {
	if window == "" {
		window = "unknown"
	}
	rateLimitRejections.WithLabelValues(window).Inc()
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus metrics.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["app_name"]; ok && id != "" {
		return id
	}
	if id, ok := meta["function_name"]; ok && id != "" {
		return id
	}
	if id, ok := meta["project_id"]; ok && id != "" {
		return id
	}
	return "unknown"
}

// OAuth2RefreshHooks captures OAuth2 token refresh attempts (spec §4.5).
func OAuth2RefreshHooks() core.ObservationHooks {
	return ObservationHooks("agentcp", "oauth2", "refresh")
}

// OAuth2CallbackHooks captures OAuth2 authorize/callback round trips.
func OAuth2CallbackHooks() core.ObservationHooks {
	return ObservationHooks("agentcp", "oauth2", "callback")
}

// PolicyJudgeHooks captures custom-instruction judge calls (spec §4.7).
func PolicyJudgeHooks() core.ObservationHooks {
	return ObservationHooks("agentcp", "policy", "judge")
}

// DiscoverySearchHooks captures search_apps/search_functions calls (spec
// §4.9).
func DiscoverySearchHooks() core.ObservationHooks {
	return ObservationHooks("agentcp", "discovery", "search")
}

// ConnectorDispatchHooks captures connector-protocol executions (spec
// §4.8), named per connector key so one misbehaving connector's latency
// doesn't get averaged into every other connector's histogram.
func ConnectorDispatchHooks(connectorKey string) core.ObservationHooks {
	return ObservationHooks("agentcp", "connectors", sanitizeLabel(connectorKey))
}

func sanitizeLabel(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	if s == "" {
		return "unknown"
	}
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path-scoped identifiers (project ids, agent
// ids, app/function names) into a fixed placeholder so the requests_total
// and request_duration_seconds series stay low-cardinality, mirroring
// the teacher's account-path-aware canonicalPath for this project's own
// route shapes (spec §6): /v1/projects/:id, /v1/apps/:id, etc.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	idResourcePrefixes := map[string]struct{}{
		"projects": {}, "agents": {}, "apps": {}, "functions": {},
		"app-configurations": {}, "linked-accounts": {},
	}
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			if _, ok := idResourcePrefixes[parts[i-1]]; ok {
				out = append(out, ":id")
				continue
			}
		}
		out = append(out, part)
	}
	return "/" + strings.Join(out, "/")
}
