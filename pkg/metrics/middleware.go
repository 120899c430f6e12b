package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	requestsCollectorName = "http_requests_total"
	latencyCollectorName  = "http_request_duration_milliseconds"
)

var defaultLatencyBuckets = []float64{5, 25, 100, 500, 1000}

// Middleware counts the requests served by a chi router and observes their latency,
// partitioned by status code, method and route pattern.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewMiddleware(name string, buckets ...float64) *Middleware {
	if len(buckets) == 0 {
		buckets = defaultLatencyBuckets
	}

	return &Middleware{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem:   dataBroker,
				Name:        requestsCollectorName,
				Help:        "Number of HTTP requests partitioned by status code, method and HTTP path.",
				ConstLabels: prometheus.Labels{"service": name},
			}, []string{"code", "method", "path"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem:   dataBroker,
			Name:        latencyCollectorName,
			Help:        "Time spent on the request partitioned by status code, method and HTTP path.",
			ConstLabels: prometheus.Labels{"service": name},
			Buckets:     buckets,
		}, []string{"code", "method", "path"}),
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}
		code := strconv.Itoa(ww.Status())
		path := rctx.RoutePattern()
		m.requests.WithLabelValues(code, r.Method, path).Inc()
		m.latency.WithLabelValues(code, r.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// Register adds the collectors to reg, adopting the ones already registered under the same name.
func (m *Middleware) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.requests); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		m.requests = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.latency); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		m.latency = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	return nil
}
