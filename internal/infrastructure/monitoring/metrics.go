package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared across metrics
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Pending boundary labels
const (
	BoundarySandbox = "sandbox"
	BoundaryGateway = "gateway"
)

// Bundle fetch result labels
const (
	BundleHit     = "hit"
	BundleFetched = "fetched"
	BundleError   = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Fragment metrics
	FragmentsActive  prometheus.Gauge
	FragmentsSpawned prometheus.Counter

	// Execution metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	Violations        *prometheus.CounterVec

	// Operation stream metrics
	Operations *prometheus.CounterVec

	// Tool metrics
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	ToolRefusals *prometheus.CounterVec

	// Pending request gauges per boundary
	Pending *prometheus.GaugeVec

	// Bundle metrics
	Bundles *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON stats endpoint
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveFragments   int64   `json:"active_fragments"`
	ActiveConnections int64   `json:"active_connections"`
	TotalViolations   int64   `json:"total_violations"`
	TotalDuration     float64 `json:"-"`
	RequestCount      int64   `json:"-"`
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitrine_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitrine_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitrine_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitrine_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Fragment metrics
		FragmentsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitrine_fragments_active",
				Help: "Number of active fragments",
			},
		),
		FragmentsSpawned: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vitrine_fragments_spawned_total",
				Help: "Total number of fragments spawned",
			},
		),

		// Execution metrics
		Executions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitrine_executions_total",
				Help: "Total number of sandbox executions",
			},
			[]string{"status"},
		),
		ExecutionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vitrine_execution_duration_seconds",
				Help:    "Sandbox execution duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		Violations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitrine_security_violations_total",
				Help: "Total number of code submissions refused by the gate",
			},
			[]string{"identifier"},
		),

		// Operation stream metrics
		Operations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitrine_operations_total",
				Help: "Total number of UI operations streamed",
			},
			[]string{"type"},
		),

		// Tool metrics
		ToolCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitrine_tool_calls_total",
				Help: "Total number of tool calls",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitrine_tool_duration_seconds",
				Help:    "Tool call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"tool"},
		),
		ToolRefusals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitrine_tool_refusals_total",
				Help: "Total number of tool calls refused by allowlists",
			},
			[]string{"tool"},
		),

		// Pending request gauges
		Pending: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vitrine_pending_requests",
				Help: "Requests awaiting settlement per boundary",
			},
			[]string{"boundary"},
		),

		// Bundle metrics
		Bundles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitrine_bundle_fetches_total",
				Help: "Total number of bundle resolutions",
			},
			[]string{"result"},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitrine_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitrine_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitrine_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// FragmentSpawned records a successful spawn
func (m *Metrics) FragmentSpawned() {
	m.FragmentsSpawned.Inc()
	m.FragmentsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveFragments++
	m.mu.Unlock()
}

// FragmentClosed records a teardown
func (m *Metrics) FragmentClosed() {
	m.FragmentsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveFragments--
	m.mu.Unlock()
}

// ExecutionObserved records one sandbox execution
func (m *Metrics) ExecutionObserved(duration time.Duration, status string) {
	m.Executions.WithLabelValues(status).Inc()
	if status == StatusOK {
		m.ExecutionDuration.Observe(duration.Seconds())
	}
}

// ViolationRecorded counts a gate refusal by identifier
func (m *Metrics) ViolationRecorded(identifier string) {
	m.Violations.WithLabelValues(identifier).Inc()
	m.mu.Lock()
	m.snapshot.TotalViolations++
	m.mu.Unlock()
}

// OperationStreamed counts one streamed UI operation
func (m *Metrics) OperationStreamed(opType string) {
	m.Operations.WithLabelValues(opType).Inc()
}

// ToolCallObserved records one tool call settlement
func (m *Metrics) ToolCallObserved(tool, status string, duration time.Duration) {
	m.ToolCalls.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ToolRefused counts an allowlist refusal
func (m *Metrics) ToolRefused(tool string) {
	m.ToolRefusals.WithLabelValues(tool).Inc()
}

// SetPending sets the pending gauge for a boundary
func (m *Metrics) SetPending(boundary string, count int) {
	m.Pending.WithLabelValues(boundary).Set(float64(count))
}

// BundleResolved counts a bundle resolution by result
func (m *Metrics) BundleResolved(result string) {
	m.Bundles.WithLabelValues(result).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}
