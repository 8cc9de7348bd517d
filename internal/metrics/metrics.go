// Package metrics exposes Prometheus collectors for the API, the ingestion
// pipeline and the model clients.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every collector in this package plus the Go runtime collectors.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campus_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	PipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_pipeline_runs_total",
		Help: "Instagram pipeline runs by result",
	}, []string{"result"})
	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campus_pipeline_duration_seconds",
		Help:    "Instagram pipeline run duration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
	PostsStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_pipeline_posts_stored_total",
		Help: "Posts stored by the Instagram pipeline",
	})

	ExtractionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_extraction_posts_total",
		Help: "Extracted posts by outcome",
	}, []string{"outcome"})

	LLMRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_llm_retries_total",
		Help: "Model API retry attempts by endpoint",
	}, []string{"endpoint"})

	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_job_runs_total",
		Help: "Scheduled job runs by job and result",
	}, []string{"job", "result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequests, HTTPDuration,
		PipelineRuns, PipelineDuration, PostsStored,
		ExtractionOutcomes,
		LLMRetries,
		JobRuns,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePipelineRun records a finished pipeline run.
func ObservePipelineRun(start time.Time, err error) {
	PipelineRuns.WithLabelValues(result(err)).Inc()
	PipelineDuration.Observe(time.Since(start).Seconds())
}

// IncExtraction counts one extraction outcome such as "created" or "past".
func IncExtraction(outcome string) { ExtractionOutcomes.WithLabelValues(outcome).Inc() }

// IncLLMRetry increments the retry counter for an endpoint.
func IncLLMRetry(endpoint string) { LLMRetries.WithLabelValues(endpoint).Inc() }

// ObserveJob records a scheduled job run.
func ObserveJob(job string, err error) { JobRuns.WithLabelValues(job, result(err)).Inc() }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
