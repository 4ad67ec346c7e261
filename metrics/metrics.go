package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prepvox",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prepvox",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// InterviewsCreated counts interviews persisted with generated questions.
	InterviewsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "prepvox",
		Name:      "interviews_created_total",
		Help:      "Total number of interviews created",
	})

	// AnswersSaved counts persisted answers, including re-answers.
	AnswersSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "prepvox",
		Name:      "answers_saved_total",
		Help:      "Total number of interview answers saved",
	})

	// InterviewsCompleted counts interviews that received feedback.
	InterviewsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "prepvox",
		Name:      "interviews_completed_total",
		Help:      "Total number of interviews completed with feedback",
	})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "prepvox",
		Name:      "generation_duration_seconds",
		Help:      "Duration of AI generation calls in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
	})

	// CaptureSessionsActive tracks open speech-capture websocket sessions.
	CaptureSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "prepvox",
		Name:      "capture_sessions_active",
		Help:      "Current number of active speech capture sessions",
	})
)

// NewGenerationTimer times one AI generation call.
func NewGenerationTimer() *prometheus.Timer {
	return prometheus.NewTimer(generationDuration)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required so the websocket upgrade works through the middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
