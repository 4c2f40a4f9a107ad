// Package metrics exposes pipeline and HTTP collectors to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_ask_requests_total",
			Help: "Total number of pipeline requests by final outcome.",
		},
		[]string{"outcome"},
	)
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekaya_ask_stage_duration_seconds",
			Help:    "Latency of each pipeline stage.",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_ask_rejections_total",
			Help: "Total number of statements rejected by the validator, by reason.",
		},
		[]string{"reason"},
	)
	generationAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ekaya_ask_generation_attempts",
			Help:    "Provider attempts needed to obtain a candidate statement.",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
	degradedAnswersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ekaya_ask_degraded_answers_total",
			Help: "Total number of answers that fell back to the raw table.",
		},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_ask_mcp_tool_calls_total",
			Help: "Total number of MCP tool calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_ask_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekaya_ask_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		stageDurationSeconds,
		rejectionsTotal,
		generationAttempts,
		degradedAnswersTotal,
		toolCallsTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

// Pipeline stages.
const (
	StagePrompt     = "prompt"
	StageGenerate   = "generate"
	StageValidate   = "validate"
	StageExecute    = "execute"
	StageSynthesize = "synthesize"
)

// ObserveStage records the latency of one stage.
func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordRequest counts a finished request by outcome
// (succeeded, empty, failed, rejected, error).
func RecordRequest(outcome string) {
	pipelineRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection counts a validator rejection.
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordGenerationAttempts records how many provider calls a generation took.
func RecordGenerationAttempts(attempts int) {
	generationAttempts.Observe(float64(attempts))
}

// RecordDegradedAnswer counts a synthesis fallback.
func RecordDegradedAnswer() {
	degradedAnswersTotal.Inc()
}

// RecordToolCall counts an MCP tool call (ok, tool_error, error).
func RecordToolCall(tool, outcome string) {
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// ObserveHTTP records one served HTTP request.
func ObserveHTTP(method, path, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
